// Package audio reads PCM WAV recordings into normalized floating-point
// mono buffers suitable for modulation.
//
// The decoder walks the RIFF container chunk by chunk rather than assuming
// a fixed 44-byte header, collapses multi-channel input to mono by
// averaging, and maps every supported sample encoding into the [-1, 1]
// floating range: integer PCM is divided by the magnitude of the encoding's
// most negative value, floating PCM is divided by its own peak. The result
// is an immutable [Buffer] consumed by the DSP stages.
package audio

import (
	"errors"
	"time"
)

// ErrMalformed indicates the file is not a well-formed RIFF/WAVE container
// or carries non-finite sample values.
var ErrMalformed = errors.New("audio: malformed WAV data")

// ErrUnsupportedFormat indicates the sample encoding cannot be interpreted
// as integer or floating PCM.
var ErrUnsupportedFormat = errors.New("audio: unsupported sample format")

// Buffer is a normalized mono sample sequence with its sample rate.
// Buffers are value objects: each pipeline stage produces a new one and
// never mutates its input.
type Buffer struct {
	// Samples holds mono samples with |s| <= 1 after normalization.
	Samples []float64

	// Rate is the sample rate in Hz. Always positive for decoded buffers.
	Rate int
}

// Duration returns the playing time represented by the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.Rate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.Rate) * float64(time.Second))
}

// Peak returns the largest absolute sample value, or 0 for an empty buffer.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
