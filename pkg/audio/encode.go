package audio

import (
	"encoding/binary"
	"math"
)

// WrapPCM16 builds a RIFF/WAVE container around raw little-endian int16 PCM
// frames. Providers that return headerless PCM use it to produce a file the
// decoder can read back.
func WrapPCM16(pcm []byte, rate, channels int) []byte {
	const bits = 16
	blockAlign := channels * bits / 8

	buf := make([]byte, 0, 44+len(pcm))
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(pcm)))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, formatPCM)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rate*blockAlign))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(blockAlign))
	buf = binary.LittleEndian.AppendUint16(buf, bits)

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pcm)))
	buf = append(buf, pcm...)
	return buf
}

// Encode serializes buf as a 16-bit mono WAV file. Samples outside [-1, 1]
// are clamped to full scale.
func Encode(buf *Buffer) []byte {
	pcm := make([]byte, len(buf.Samples)*2)
	for i, s := range buf.Samples {
		v := math.Round(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return WrapPCM16(pcm, buf.Rate, 1)
}
