// Package mock provides test doubles for the sdr.Device and sdr.Driver
// interfaces.
//
// Device records every call in order and lets tests script failures per
// method, so lifecycle and cleanup behavior can be verified without
// hardware.
//
// Example:
//
//	dev := &mock.Device{SendErr: errors.New("underrun"), SendErrCall: 2}
//	drv := &mock.Driver{Device: dev}
//	sess := sdr.NewSession(drv, nil)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/skywave/pkg/sdr"
)

// Compile-time interface assertions.
var (
	_ sdr.Device = (*Device)(nil)
	_ sdr.Driver = (*Driver)(nil)
)

// OpenCall records a single invocation of [Driver.Open].
type OpenCall struct {
	// Ctx is the context passed to Open.
	Ctx context.Context
	// URI is the device URI passed to Open.
	URI string
}

// Driver is a mock implementation of sdr.Driver.
type Driver struct {
	mu sync.Mutex

	// Device is returned by Open. When nil, Open allocates a fresh
	// Device and stores it here so the test can inspect it afterwards.
	Device *Device

	// OpenErr, if non-nil, is returned from Open instead of a device.
	OpenErr error

	// OpenCalls records every call to Open in order.
	OpenCalls []OpenCall
}

// Open returns the configured Device or OpenErr.
func (d *Driver) Open(ctx context.Context, uri string) (sdr.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, OpenCall{Ctx: ctx, URI: uri})
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.Device == nil {
		d.Device = &Device{}
	}
	return d.Device, nil
}

// Device is a mock implementation of sdr.Device. The zero value is ready
// to use and succeeds on every call.
type Device struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ConfigureErr, if non-nil, is returned from Configure.
	ConfigureErr error

	// EnableTXErr, if non-nil, is returned from EnableTX.
	EnableTXErr error

	// DisableTXErr, if non-nil, is returned from DisableTX.
	DisableTXErr error

	// DestroyBufferErr, if non-nil, is returned from DestroyBuffer.
	DestroyBufferErr error

	// SendErr, if non-nil, is returned from Send. When SendErrCall is
	// zero every Send fails; otherwise only the call with that 1-based
	// number fails.
	SendErr error

	// SendErrCall selects which Send call returns SendErr.
	SendErrCall int

	// CloseErr, if non-nil, is returned from Close.
	CloseErr error

	// --- Call records ---

	// Calls records the name of every method call in order:
	// "configure", "enable_tx", "disable_tx", "destroy_buffer",
	// "send", "close".
	Calls []string

	// Configs records the TxConfig of every Configure call.
	Configs []sdr.TxConfig

	// Sent records a copy of the IQ buffer of every successful Send.
	Sent [][]complex64

	sendCount int
}

// Configure records the config and returns ConfigureErr.
func (m *Device) Configure(cfg sdr.TxConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "configure")
	m.Configs = append(m.Configs, cfg)
	return m.ConfigureErr
}

// EnableTX records the call and returns EnableTXErr.
func (m *Device) EnableTX() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "enable_tx")
	return m.EnableTXErr
}

// DisableTX records the call and returns DisableTXErr.
func (m *Device) DisableTX() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "disable_tx")
	return m.DisableTXErr
}

// DestroyBuffer records the call and returns DestroyBufferErr.
func (m *Device) DestroyBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "destroy_buffer")
	return m.DestroyBufferErr
}

// Send records a copy of iq and returns SendErr according to
// SendErrCall.
func (m *Device) Send(iq []complex64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "send")
	m.sendCount++
	if m.SendErr != nil && (m.SendErrCall == 0 || m.sendCount == m.SendErrCall) {
		return m.SendErr
	}
	buf := make([]complex64, len(iq))
	copy(buf, iq)
	m.Sent = append(m.Sent, buf)
	return nil
}

// Close records the call and returns CloseErr.
func (m *Device) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "close")
	return m.CloseErr
}

// CallCount returns how many times the named method was called.
func (m *Device) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == name {
			n++
		}
	}
	return n
}
