package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// WAVE format tags from the fmt chunk. Extensible containers resolve to one
// of the concrete tags via their sub-format GUID.
const (
	formatPCM        = 0x0001
	formatIEEEFloat  = 0x0003
	formatExtensible = 0xFFFE
)

// Info holds the format metadata extracted from a RIFF/WAVE container.
type Info struct {
	// Format is the resolved format tag (formatPCM or formatIEEEFloat).
	Format uint16

	// Channels is the interleaved channel count (1 = mono, 2 = stereo).
	Channels int

	// SampleRate is the embedded rate in Hz.
	SampleRate int

	// BitsPerSample is the container size of one sample of one channel.
	BitsPerSample int

	// DataOffset is the byte offset of the first PCM frame.
	DataOffset int

	// DataSize is the byte length of the data chunk payload.
	DataSize int
}

// ParseInfo scans the RIFF/WAVE container in data and returns the format
// description from the "fmt " sub-chunk together with the data chunk
// location. Chunks other than fmt and data (LIST, fact, cue, …) are
// skipped. Walking the chunk list is more robust than hardcoding a 44-byte
// offset because the fmt chunk size varies between writers.
func ParseInfo(data []byte) (Info, error) {
	if len(data) < 12 {
		return Info{}, fmt.Errorf("%w: %d bytes is too short for a RIFF header", ErrMalformed, len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return Info{}, fmt.Errorf("%w: missing RIFF magic", ErrMalformed)
	}
	if string(data[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("%w: missing WAVE identifier", ErrMalformed)
	}

	var info Info
	foundFmt := false

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(data) {
				return Info{}, fmt.Errorf("%w: fmt chunk truncated", ErrMalformed)
			}
			f := data[body:]
			info.Format = binary.LittleEndian.Uint16(f[0:2])
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))

			// Extensible containers carry the real format tag in the first
			// two bytes of the sub-format GUID at offset 24.
			if info.Format == formatExtensible {
				if chunkSize < 26 || body+26 > len(data) {
					return Info{}, fmt.Errorf("%w: extensible fmt chunk truncated", ErrMalformed)
				}
				info.Format = binary.LittleEndian.Uint16(f[24:26])
			}
			foundFmt = true

		case "data":
			if !foundFmt {
				return Info{}, fmt.Errorf("%w: data chunk precedes fmt chunk", ErrMalformed)
			}
			if body+chunkSize > len(data) {
				chunkSize = len(data) - body
			}
			info.DataOffset = body
			info.DataSize = chunkSize
			return info, nil
		}

		// Chunks are word-aligned: pad by one byte when the size is odd.
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Info{}, fmt.Errorf("%w: missing data chunk", ErrMalformed)
}

// ReadFile decodes the WAV file at path into a normalized mono [Buffer].
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %q: %w", path, err)
	}
	buf, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	return buf, nil
}

// Decode converts WAV bytes into a normalized mono [Buffer].
//
// Multi-channel frames are averaged into a single channel. Integer PCM is
// scaled by the magnitude of the encoding's most negative representable
// value (32768 for 16-bit); unsigned 8-bit is re-centred around zero
// first. Floating PCM is divided by its own peak absolute value unless the
// buffer is entirely silent, which passes through unchanged. Non-finite
// float samples fail with [ErrMalformed]; encodings outside integer and
// floating PCM fail with [ErrUnsupportedFormat].
func Decode(data []byte) (*Buffer, error) {
	info, err := ParseInfo(data)
	if err != nil {
		return nil, err
	}
	if info.Channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformed, info.Channels)
	}
	if info.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrMalformed, info.SampleRate)
	}

	raw := data[info.DataOffset : info.DataOffset+info.DataSize]

	frames, scale, isFloat, err := decodeFrames(raw, info)
	if err != nil {
		return nil, err
	}

	mono := downmix(frames, info.Channels)

	if isFloat {
		if err := normalizeFloat(mono); err != nil {
			return nil, err
		}
	} else {
		for i := range mono {
			mono[i] /= scale
		}
	}

	return &Buffer{Samples: mono, Rate: info.SampleRate}, nil
}

// decodeFrames converts the raw data chunk into interleaved float64 sample
// values in their native range, returning the integer full-scale divisor
// and whether the encoding was floating point.
func decodeFrames(raw []byte, info Info) (samples []float64, scale float64, isFloat bool, err error) {
	bytesPer := info.BitsPerSample / 8
	if bytesPer <= 0 {
		return nil, 0, false, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, info.BitsPerSample)
	}
	n := len(raw) / bytesPer
	samples = make([]float64, n)

	switch {
	case info.Format == formatPCM && info.BitsPerSample == 8:
		// 8-bit WAV PCM is unsigned, biased at 128.
		for i := range n {
			samples[i] = float64(raw[i]) - 128
		}
		return samples, 128, false, nil

	case info.Format == formatPCM && info.BitsPerSample == 16:
		for i := range n {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			samples[i] = float64(v)
		}
		return samples, 32768, false, nil

	case info.Format == formatPCM && info.BitsPerSample == 24:
		for i := range n {
			b := raw[i*3 : i*3+3]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			// Sign-extend from 24 bits.
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			samples[i] = float64(v)
		}
		return samples, 8388608, false, nil

	case info.Format == formatPCM && info.BitsPerSample == 32:
		for i := range n {
			v := int32(binary.LittleEndian.Uint32(raw[i*4:]))
			samples[i] = float64(v)
		}
		return samples, 2147483648, false, nil

	case info.Format == formatIEEEFloat && info.BitsPerSample == 32:
		for i := range n {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		return samples, 1, true, nil

	case info.Format == formatIEEEFloat && info.BitsPerSample == 64:
		for i := range n {
			samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return samples, 1, true, nil
	}

	return nil, 0, false, fmt.Errorf("%w: format tag 0x%04x with %d bits per sample",
		ErrUnsupportedFormat, info.Format, info.BitsPerSample)
}

// downmix averages interleaved channel frames into mono. Mono input is
// returned as-is.
func downmix(samples []float64, channels int) []float64 {
	if channels == 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// normalizeFloat scales floating samples in place by their peak magnitude.
// An all-silent buffer passes through unchanged. Non-finite values fail
// fast here so NaN/Inf never reaches the modulator.
func normalizeFloat(samples []float64) error {
	var peak float64
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: non-finite sample value", ErrMalformed)
		}
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return nil
	}
	for i := range samples {
		samples[i] /= peak
	}
	return nil
}
