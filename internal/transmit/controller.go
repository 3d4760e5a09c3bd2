// Package transmit turns audio into a narrowband FM signal and streams
// it to a radio in fixed-size buffers.
//
// # Signal flow
//
//  1. Ingest — a WAV file is decoded to normalized mono float64.
//  2. Resample — audio is brought to the intermediate rate (48 kHz by
//     default), then renormalized to 95% full scale because resampling
//     can overshoot the original peak.
//  3. Modulate — the audio frequency-modulates a baseband carrier into
//     unit-magnitude IQ samples.
//  4. Resample — the IQ stream is brought up to the radio's DAC rate.
//  5. Stream — samples are scaled to the DAC integer range and pushed
//     to the device in chunks, in order, each blocking until consumed.
//
// The whole flow runs synchronously inside [Controller.Transmit]; the
// context is checked between chunks so a cancelled transmission stops at
// the next buffer boundary. Device teardown always runs, and its errors
// are logged rather than allowed to mask the transmission outcome.
package transmit

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/skywave/internal/observe"
	"github.com/MrWong99/skywave/pkg/audio"
	"github.com/MrWong99/skywave/pkg/dsp"
	"github.com/MrWong99/skywave/pkg/sdr"
)

const (
	// renormTarget is the peak level audio is normalized to after
	// resampling, leaving headroom for interpolation overshoot.
	renormTarget = 0.95

	// dacScale maps unit-magnitude IQ onto the DAC integer range at
	// half full scale.
	dacScale = 0.5 * (1 << 15)

	// progressEvery controls how often chunk progress is logged.
	progressEvery = 10
)

// Config carries the radio and pipeline parameters of a Controller.
type Config struct {
	// URI is the radio address, for example "ip:192.168.2.1".
	URI string
	// CenterFreq is the transmit frequency in Hz.
	CenterFreq float64
	// SampleRate is the DAC rate in samples per second.
	SampleRate int
	// Gain is the hardware transmit gain in dB.
	Gain float64
	// Deviation is the FM peak deviation in Hz.
	Deviation float64
	// IntermediateRate is the audio processing rate in samples per
	// second. Modulation happens at this rate.
	IntermediateRate int
	// ChunkSize is the number of IQ samples per buffer pushed to the
	// radio.
	ChunkSize int
}

// Controller owns one radio configuration and transmits audio files
// through it. It is stateless between calls; every transmission opens
// and closes its own device session.
type Controller struct {
	cfg     Config
	driver  sdr.Driver
	metrics *observe.Metrics
}

// New validates cfg and returns a Controller that opens devices through
// driver. A nil metrics falls back to [observe.DefaultMetrics].
func New(cfg Config, driver sdr.Driver, metrics *observe.Metrics) (*Controller, error) {
	if driver == nil {
		return nil, fmt.Errorf("transmit: driver must not be nil")
	}
	if cfg.URI == "" {
		return nil, fmt.Errorf("transmit: radio URI must not be empty")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("transmit: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.IntermediateRate <= 0 {
		return nil, fmt.Errorf("transmit: intermediate rate must be positive, got %d", cfg.IntermediateRate)
	}
	if cfg.Deviation <= 0 {
		return nil, fmt.Errorf("transmit: deviation must be positive, got %g", cfg.Deviation)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("transmit: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Controller{cfg: cfg, driver: driver, metrics: metrics}, nil
}

// TransmitFile decodes the WAV file at path and transmits it.
func (c *Controller) TransmitFile(ctx context.Context, path string) error {
	ctx, span := observe.StartSpan(ctx, "transmit.file",
		trace.WithAttributes(attribute.String("file", path)))
	defer span.End()

	done := c.stageTimer(ctx, "ingest")
	buf, err := audio.ReadFile(path)
	done()
	if err != nil {
		return fmt.Errorf("transmit: ingest %s: %w", path, err)
	}
	observe.Logger(ctx).Info("audio loaded",
		"file", path,
		"rate", buf.Rate,
		"samples", len(buf.Samples),
		"duration", buf.Duration())
	return c.Transmit(ctx, buf)
}

// Transmit runs the full pipeline on buf and streams the result to the
// radio. It returns nil only when every chunk was accepted by the
// device; any stage or device failure is returned after teardown.
func (c *Controller) Transmit(ctx context.Context, buf *audio.Buffer) (err error) {
	ctx, span := observe.StartSpan(ctx, "transmit",
		trace.WithAttributes(
			attribute.String("uri", c.cfg.URI),
			attribute.Float64("center_freq_hz", c.cfg.CenterFreq),
			attribute.Int("sample_rate", c.cfg.SampleRate),
		))
	defer span.End()
	log := observe.Logger(ctx)

	start := time.Now()
	c.metrics.ActiveTransmissions.Add(ctx, 1)
	defer func() {
		c.metrics.ActiveTransmissions.Add(ctx, -1)
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordTransmission(ctx, status, time.Since(start).Seconds())
	}()

	iq, err := c.prepare(ctx, buf)
	if err != nil {
		return err
	}
	chunks := chunkIQ(iq, c.cfg.ChunkSize)

	sess := sdr.NewSession(c.driver, log)
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("sdr session close", "err", cerr)
		}
	}()
	if err := sess.Connect(ctx, c.cfg.URI); err != nil {
		return fmt.Errorf("transmit: connect radio: %w", err)
	}
	if err := sess.Configure(sdr.TxConfig{
		SampleRate: c.cfg.SampleRate,
		CenterFreq: c.cfg.CenterFreq,
		Gain:       c.cfg.Gain,
	}); err != nil {
		return fmt.Errorf("transmit: configure radio: %w", err)
	}
	if err := sess.Start(); err != nil {
		return fmt.Errorf("transmit: start streaming: %w", err)
	}

	total := len(chunks)
	if total == 0 {
		log.Warn("nothing to transmit", "samples", len(iq))
		return nil
	}
	done := c.stageTimer(ctx, "stream")
	for i, chunk := range chunks {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("transmit: aborted before chunk %d/%d: %w", i+1, total, cerr)
		}
		if len(chunk) == 0 {
			log.Warn("skipping empty chunk", "chunk", i+1, "total", total)
			continue
		}
		if err := sess.Send(chunk); err != nil {
			return fmt.Errorf("transmit: chunk %d/%d: %w", i+1, total, err)
		}
		c.metrics.RecordChunk(ctx, len(chunk))
		if (i+1)%progressEvery == 0 || i+1 == total {
			log.Info("transmit progress", "chunk", i+1, "total", total)
		}
	}
	done()

	log.Info("transmission complete",
		"chunks", total,
		"samples", len(iq),
		"elapsed", time.Since(start))
	return nil
}

// prepare runs the DSP half of the pipeline: resample to the
// intermediate rate, renormalize, modulate and resample to the DAC rate
// with samples scaled for the converter.
func (c *Controller) prepare(ctx context.Context, buf *audio.Buffer) ([]complex64, error) {
	done := c.stageTimer(ctx, "resample_audio")
	rs, err := dsp.NewResampler(buf.Rate, c.cfg.IntermediateRate)
	if err != nil {
		return nil, fmt.Errorf("transmit: audio resampler: %w", err)
	}
	samples := rs.Resample(buf.Samples)
	renormalize(samples)
	done()

	done = c.stageTimer(ctx, "modulate")
	mod, err := dsp.NewModulator(dsp.ModulatorConfig{
		SampleRate: c.cfg.IntermediateRate,
		Deviation:  c.cfg.Deviation,
	})
	if err != nil {
		return nil, fmt.Errorf("transmit: modulator: %w", err)
	}
	sig := mod.Modulate(samples)
	done()

	done = c.stageTimer(ctx, "resample_iq")
	rsIQ, err := dsp.NewResampler(c.cfg.IntermediateRate, c.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("transmit: iq resampler: %w", err)
	}
	iq := rsIQ.ResampleComplex(sig.IQ)
	for i := range iq {
		iq[i] *= complex(float32(dacScale), 0)
	}
	done()
	return iq, nil
}

// renormalize scales xs in place so its peak sits at renormTarget.
// All-zero input is left untouched.
func renormalize(xs []float64) {
	peak := 0.0
	for _, x := range xs {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	scale := renormTarget / peak
	for i := range xs {
		xs[i] *= scale
	}
}

// chunkIQ splits iq into consecutive buffers of at most size samples.
// The returned chunks alias iq; none of them is empty.
func chunkIQ(iq []complex64, size int) [][]complex64 {
	if len(iq) == 0 {
		return nil
	}
	chunks := make([][]complex64, 0, (len(iq)+size-1)/size)
	for start := 0; start < len(iq); start += size {
		end := min(start+size, len(iq))
		chunks = append(chunks, iq[start:end:end])
	}
	return chunks
}

func (c *Controller) stageTimer(ctx context.Context, stage string) func() {
	start := time.Now()
	return func() {
		c.metrics.RecordStage(ctx, stage, time.Since(start).Seconds())
	}
}
