package pluto

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/skywave/pkg/sdr"
)

func TestIQBytesLayout(t *testing.T) {
	got := iqBytes([]complex64{complex(1, -2), complex(16384, -16384)})
	want := []byte{
		0x01, 0x00, 0xFE, 0xFF, // 1, -2
		0x00, 0x40, 0x00, 0xC0, // 16384, -16384
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("iqBytes = % X, want % X", got, want)
	}
}

func TestIQBytesClipsOutOfRange(t *testing.T) {
	got := iqBytes([]complex64{complex(40000, -40000)})
	want := []byte{0xFF, 0x7F, 0x00, 0x80} // 32767, -32768
	if !bytes.Equal(got, want) {
		t.Fatalf("iqBytes = % X, want % X", got, want)
	}
}

func TestClamp16TruncatesTowardZero(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{1.9, 1},
		{-1.9, -1},
		{0, 0},
		{32767, 32767},
		{-32768, -32768},
	}
	for _, c := range cases {
		if got := clamp16(c.in); got != c.want {
			t.Errorf("clamp16(%g) = %d, want %d", c.in, got, c.want)
		}
	}
}

// stubAttrTool writes an iio_attr stand-in that accepts every invocation.
func stubAttrTool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iio_attr")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub tool: %v", err)
	}
	return path
}

func TestConfigureAcceptsLowSampleRate(t *testing.T) {
	p := &device{
		uri:      "ip:test",
		attrTool: stubAttrTool(t),
		log:      slog.New(slog.DiscardHandler),
	}
	// Below the AD936x practical floor: programmed anyway, warned about,
	// never rejected up front.
	err := p.Configure(sdr.TxConfig{SampleRate: 500_000, CenterFreq: 144.39e6, Gain: -10})
	if err != nil {
		t.Fatalf("Configure with 500 kS/s: %v", err)
	}
}

func TestConfigureRejectsNonPositiveFrequency(t *testing.T) {
	p := &device{uri: "ip:test", log: slog.New(slog.DiscardHandler)}
	if err := p.Configure(sdr.TxConfig{SampleRate: 1_000_000, CenterFreq: 0}); err == nil {
		t.Fatal("Configure accepted zero center frequency, want error")
	}
}

func TestDriverOptions(t *testing.T) {
	d := NewDriver(WithAttrTool("/opt/iio/iio_attr"), WithWriteTool("/opt/iio/iio_writedev"), WithBufferSamples(4096))
	if d.attrTool != "/opt/iio/iio_attr" || d.writeTool != "/opt/iio/iio_writedev" {
		t.Errorf("tool paths = %q, %q; options not applied", d.attrTool, d.writeTool)
	}
	if d.bufSamples != 4096 {
		t.Errorf("bufSamples = %d, want 4096", d.bufSamples)
	}
}
