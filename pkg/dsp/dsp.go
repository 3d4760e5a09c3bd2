// Package dsp implements the signal-path math for FM transmission:
// rational-ratio resampling with an anti-aliasing polyphase FIR, and
// phase-continuous narrowband frequency modulation.
//
// All operations produce new slices; inputs are never mutated. Sample
// sequences travel as float64 on the audio side and complex64 on the IQ
// side, with phase and filter accumulation done in float64 throughout.
package dsp

import (
	"errors"
	"math"
)

// tau is one full turn in radians.
const tau = 2 * math.Pi

// ErrInvalidRate indicates a non-positive sample rate was supplied to a
// resampler or modulator constructor.
var ErrInvalidRate = errors.New("dsp: sample rate must be positive")

// Signal is a complex baseband sample sequence with its sample rate.
// Samples produced by [Modulator.Modulate] are unit-circle phasors until
// the transmit path scales them into the device's fixed-point range.
type Signal struct {
	IQ   []complex64
	Rate int
}

// Duration returns the time span covered by the signal in seconds.
func (s *Signal) Duration() float64 {
	if s.Rate <= 0 {
		return 0
	}
	return float64(len(s.IQ)) / float64(s.Rate)
}

// gcd returns the greatest common divisor of two positive integers.
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
