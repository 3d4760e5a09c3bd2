// Package pluto drives the transmit path of an ADALM-Pluto (AD936x
// based) radio through the libiio command-line tools.
//
// Tuning parameters are applied with iio_attr against the ad9361-phy
// control device, and baseband samples are streamed by feeding
// interleaved little-endian int16 I/Q pairs to a long-running
// iio_writedev process on the DAC device. Both binaries ship with
// libiio and must be on PATH (or be pointed at with options).
package pluto

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/skywave/pkg/sdr"
)

const (
	phyDevice = "ad9361-phy"
	dacDevice = "cf-ad9361-dds-core-lpc"
	txChannel = "voltage0"
	loChannel = "altvoltage1"

	// minPracticalRate is the lowest DAC rate the AD936x sustains
	// without extra FIR decimation stages. Lower rates are still
	// programmed; whether they hold is up to the hardware.
	minPracticalRate = 520_833

	// writerDrainTimeout bounds how long teardown waits for
	// iio_writedev to flush after stdin is closed.
	writerDrainTimeout = 2 * time.Second
)

// Compile-time interface assertions.
var (
	_ sdr.Driver = (*Driver)(nil)
	_ sdr.Device = (*device)(nil)
)

// Option configures a Driver.
type Option func(*Driver)

// WithAttrTool overrides the iio_attr binary path.
func WithAttrTool(path string) Option {
	return func(d *Driver) { d.attrTool = path }
}

// WithWriteTool overrides the iio_writedev binary path.
func WithWriteTool(path string) Option {
	return func(d *Driver) { d.writeTool = path }
}

// WithBufferSamples sets the hardware buffer size, in IQ samples,
// requested from iio_writedev.
func WithBufferSamples(n int) Option {
	return func(d *Driver) { d.bufSamples = n }
}

// WithLogger sets the logger used by opened devices.
func WithLogger(log *slog.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// Driver opens Pluto devices by libiio URI, for example
// "ip:192.168.2.1" or "usb:1.4.5".
type Driver struct {
	attrTool   string
	writeTool  string
	bufSamples int
	log        *slog.Logger
}

// NewDriver returns a Driver with default tool paths and buffer size.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		attrTool:   "iio_attr",
		writeTool:  "iio_writedev",
		bufSamples: 8192,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open verifies that the libiio tools are installed and that the radio
// behind uri answers, then returns a transmit handle for it.
func (d *Driver) Open(ctx context.Context, uri string) (sdr.Device, error) {
	attrTool, err := exec.LookPath(d.attrTool)
	if err != nil {
		return nil, fmt.Errorf("pluto: iio_attr not found: %w", err)
	}
	writeTool, err := exec.LookPath(d.writeTool)
	if err != nil {
		return nil, fmt.Errorf("pluto: iio_writedev not found: %w", err)
	}
	// Listing context attributes is the cheapest round trip that proves
	// the device is reachable.
	probe := exec.CommandContext(ctx, attrTool, "-u", uri, "-C")
	if out, err := probe.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pluto: probe %q: %w: %s", uri, err, firstLine(out))
	}
	return &device{
		uri:        uri,
		attrTool:   attrTool,
		writeTool:  writeTool,
		bufSamples: d.bufSamples,
		log:        d.log,
	}, nil
}

type device struct {
	uri        string
	attrTool   string
	writeTool  string
	bufSamples int
	log        *slog.Logger

	mu     sync.Mutex
	writer *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
}

// Configure programs sample rate, LO frequency and attenuation into the
// phy control device. Sample rates below the AD936x practical floor are
// passed through as-is; the hardware rejects what it cannot do.
func (p *device) Configure(cfg sdr.TxConfig) error {
	if cfg.CenterFreq <= 0 {
		return fmt.Errorf("pluto: center frequency %g must be positive", cfg.CenterFreq)
	}
	if cfg.SampleRate < minPracticalRate {
		p.log.Warn("sample rate below AD936x practical minimum; the frontend may not sustain it",
			"sample_rate", cfg.SampleRate, "practical_min", minPracticalRate)
	}
	if err := p.setPhyAttr(txChannel, "sampling_frequency", strconv.Itoa(cfg.SampleRate)); err != nil {
		return err
	}
	if err := p.setPhyAttr(loChannel, "frequency", strconv.FormatInt(int64(math.Round(cfg.CenterFreq)), 10)); err != nil {
		return err
	}
	return p.setPhyAttr(txChannel, "hardwaregain", strconv.FormatFloat(cfg.Gain, 'f', -1, 64))
}

// EnableTX powers the TX LO up and starts the sample writer process.
func (p *device) EnableTX() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		return nil
	}
	if err := p.setPhyAttr(loChannel, "powerdown", "0"); err != nil {
		return err
	}
	return p.startWriterLocked()
}

// DisableTX stops the writer and powers the TX LO back down.
func (p *device) DisableTX() error {
	p.mu.Lock()
	stopErr := p.stopWriterLocked()
	p.mu.Unlock()
	if err := p.setPhyAttr(loChannel, "powerdown", "1"); err != nil {
		return err
	}
	return stopErr
}

// DestroyBuffer releases the DAC buffer by stopping the writer process
// that owns it. A no-op when no writer is running.
func (p *device) DestroyBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopWriterLocked()
}

// Send converts iq to interleaved int16 and blocks until the writer
// process has taken the whole buffer.
func (p *device) Send(iq []complex64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return fmt.Errorf("pluto: transmit chain not enabled")
	}
	if _, err := p.stdin.Write(iqBytes(iq)); err != nil {
		return fmt.Errorf("pluto: push %d samples: %w: %s", len(iq), err, firstLine(p.stderr.Bytes()))
	}
	return nil
}

// Close stops any running writer. Attribute state is left as-is; the
// caller is expected to have disabled TX first.
func (p *device) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopWriterLocked()
}

func (p *device) startWriterLocked() error {
	stderr := &bytes.Buffer{}
	cmd := exec.Command(p.writeTool,
		"-u", p.uri,
		"-b", strconv.Itoa(p.bufSamples),
		dacDevice, "voltage0", "voltage1")
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("pluto: writer stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pluto: start %s: %w", p.writeTool, err)
	}
	p.writer = cmd
	p.stdin = stdin
	p.stderr = stderr
	p.log.Debug("pluto writer started", "uri", p.uri, "buffer_samples", p.bufSamples)
	return nil
}

func (p *device) stopWriterLocked() error {
	if p.writer == nil {
		return nil
	}
	cmd, stdin, stderr := p.writer, p.stdin, p.stderr
	p.writer, p.stdin, p.stderr = nil, nil, nil

	// iio_writedev flushes its remaining buffers and exits once stdin
	// reaches EOF. Kill it if that never happens.
	stdin.Close()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			p.log.Warn("pluto writer exited with error", "err", err, "stderr", firstLine(stderr.Bytes()))
		}
	case <-time.After(writerDrainTimeout):
		cmd.Process.Kill()
		<-done
		return fmt.Errorf("pluto: writer did not drain within %v", writerDrainTimeout)
	}
	return nil
}

func (p *device) setPhyAttr(channel, attr, value string) error {
	cmd := exec.Command(p.attrTool, "-u", p.uri, "-c", "-o", "--", phyDevice, channel, attr, value)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pluto: set %s.%s=%s: %w: %s", channel, attr, value, err, firstLine(out))
	}
	return nil
}

// iqBytes lays iq out the way the DAC expects it: I then Q per sample,
// each int16 little-endian. Out-of-range values clip instead of
// wrapping.
func iqBytes(iq []complex64) []byte {
	buf := make([]byte, 4*len(iq))
	for i, s := range iq {
		binary.LittleEndian.PutUint16(buf[4*i:], uint16(clamp16(real(s))))
		binary.LittleEndian.PutUint16(buf[4*i+2:], uint16(clamp16(imag(s))))
	}
	return buf
}

func clamp16(v float32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

func firstLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
