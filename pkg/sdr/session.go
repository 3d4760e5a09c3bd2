package sdr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// settleDelay keeps the transmit chain keyed after the last buffer was
// pushed so the hardware can drain it before teardown.
const settleDelay = 500 * time.Millisecond

// State is the lifecycle position of a [Session].
type State int

const (
	// StateDisconnected is the initial state before Connect.
	StateDisconnected State = iota
	// StateConnected means the device handle is open but unconfigured.
	StateConnected
	// StateConfigured means transmit parameters have been applied.
	StateConfigured
	// StateStreaming means the TX chain is enabled and accepting buffers.
	StateStreaming
	// StateClosed is terminal. No further calls are valid.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session drives a [Device] through its transmit lifecycle:
//
//	Disconnected -> Connect -> Connected -> Configure -> Configured
//	             -> Start -> Streaming -> Send... -> Close -> Closed
//
// Calls outside this order fail without touching the device. Close may
// be called from any state, is safe to call multiple times and runs its
// teardown exactly once. A Session is safe for concurrent use, though
// the expected pattern is a single sender plus a deferred Close.
type Session struct {
	driver Driver
	log    *slog.Logger

	mu       sync.Mutex
	dev      Device
	state    State
	streamed bool

	closeOnce sync.Once
	closeErr  error
}

// NewSession returns a Session in the Disconnected state. The logger may
// be nil, in which case [slog.Default] is used.
func NewSession(driver Driver, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{driver: driver, log: log}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the device behind uri. Valid only in the Disconnected
// state. A driver failure is reported as [ErrDeviceUnavailable] with the
// cause attached.
func (s *Session) Connect(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return s.stateErrLocked("connect")
	}
	dev, err := s.driver.Open(ctx, uri)
	if err != nil {
		return fmt.Errorf("sdr: open %q: %w", uri, errors.Join(ErrDeviceUnavailable, err))
	}
	s.dev = dev
	s.state = StateConnected
	s.log.Debug("sdr device connected", "uri", uri)
	return nil
}

// Configure applies transmit parameters. Valid only in the Connected
// state. A device refusal is reported as [ErrConfigRejected] with the
// cause attached.
func (s *Session) Configure(cfg TxConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return s.stateErrLocked("configure")
	}
	if err := s.dev.Configure(cfg); err != nil {
		return fmt.Errorf("sdr: configure: %w", errors.Join(ErrConfigRejected, err))
	}
	s.state = StateConfigured
	s.log.Debug("sdr device configured",
		"sample_rate", cfg.SampleRate,
		"center_freq_hz", cfg.CenterFreq,
		"gain_db", cfg.Gain)
	return nil
}

// Start clears any stale sample buffer and enables the transmit chain.
// Valid only in the Configured state.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfigured {
		return s.stateErrLocked("start")
	}
	// A buffer can survive from a previous run on the same hardware.
	// Destroying it here is a no-op on a fresh device.
	if err := s.dev.DestroyBuffer(); err != nil {
		return fmt.Errorf("sdr: clear stale buffer: %w", errors.Join(ErrConfigRejected, err))
	}
	if err := s.dev.EnableTX(); err != nil {
		return fmt.Errorf("sdr: enable tx: %w", errors.Join(ErrConfigRejected, err))
	}
	s.state = StateStreaming
	s.streamed = true
	s.log.Debug("sdr streaming started")
	return nil
}

// Send pushes one IQ buffer to the device, blocking until consumed.
// Valid only in the Streaming state. A device failure is reported as
// [ErrTransmit]; the session stays in Streaming so Close still settles
// the chain before teardown.
func (s *Session) Send(iq []complex64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return s.stateErrLocked("send")
	}
	if err := s.dev.Send(iq); err != nil {
		return fmt.Errorf("sdr: send %d samples: %w", len(iq), errors.Join(ErrTransmit, err))
	}
	return nil
}

// Close tears the session down: it lets the transmit chain settle when
// streaming was ever active, disables TX, destroys the sample buffer and
// releases the device handle. All teardown steps run even when earlier
// ones fail; their errors are joined into the return value. Repeated
// calls return the result of the first.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.dev == nil {
			s.state = StateClosed
			return
		}
		if s.streamed {
			time.Sleep(settleDelay)
		}
		var errs []error
		if err := s.dev.DisableTX(); err != nil {
			errs = append(errs, fmt.Errorf("disable tx: %w", err))
		}
		if err := s.dev.DestroyBuffer(); err != nil {
			errs = append(errs, fmt.Errorf("destroy buffer: %w", err))
		}
		if err := s.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		s.state = StateClosed
		if len(errs) > 0 {
			s.closeErr = fmt.Errorf("sdr: close: %w", errors.Join(errs...))
		}
	})
	return s.closeErr
}

func (s *Session) stateErrLocked(op string) error {
	return fmt.Errorf("sdr: %s not valid in state %s", op, s.state)
}
