package dsp

import (
	"fmt"
	"math"
)

// ModulatorConfig describes a narrowband FM modulator.
type ModulatorConfig struct {
	// SampleRate is the rate of the incoming audio in Hz. The produced
	// signal keeps the same rate.
	SampleRate int

	// Deviation is the peak frequency shift in Hz imparted for a
	// maximum-amplitude (±1.0) input sample.
	Deviation float64
}

// Modulator turns a normalized mono sequence into a phase-continuous
// complex FM baseband signal. The instantaneous phase is the running sum
// of the input scaled by the per-sample sensitivity, integrated once
// across the whole buffer: the phase never resets at any internal
// boundary, so concatenating the produced samples in order is free of
// spectral discontinuities.
type Modulator struct {
	rate        int
	sensitivity float64
}

// NewModulator validates cfg and returns a ready modulator. The
// sensitivity is 2π·deviation/sampleRate radians per sample per unit
// amplitude.
func NewModulator(cfg ModulatorConfig) (*Modulator, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: modulator sample rate %d", ErrInvalidRate, cfg.SampleRate)
	}
	if cfg.Deviation <= 0 {
		return nil, fmt.Errorf("dsp: deviation must be positive, got %g", cfg.Deviation)
	}
	return &Modulator{
		rate:        cfg.SampleRate,
		sensitivity: tau * cfg.Deviation / float64(cfg.SampleRate),
	}, nil
}

// Modulate integrates samples into a unit-magnitude phasor sequence at the
// modulator's sample rate. Every output sample lies on the unit circle;
// amplitude scaling for the DAC happens later in the transmit path.
//
// The phase accumulator is local to the call, so Modulate is deterministic
// and safe for concurrent use.
func (m *Modulator) Modulate(samples []float64) *Signal {
	iq := make([]complex64, len(samples))
	var phase float64
	for i, s := range samples {
		phase += m.sensitivity * s
		sin, cos := math.Sincos(phase)
		iq[i] = complex(float32(cos), float32(sin))
	}
	return &Signal{IQ: iq, Rate: m.rate}
}
