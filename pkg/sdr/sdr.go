// Package sdr defines the transmit-side contract for software-defined
// radio hardware and a Session lifecycle that drives a device from
// connection through streaming to teardown.
//
// A [Driver] knows how to reach hardware behind a URI and hands out a
// [Device]. The [Session] wraps a device in a strict state machine so
// that callers cannot configure an unopened device or stream before the
// transmit channel is enabled. Concrete drivers live in subpackages;
// tests use the mock subpackage.
package sdr

import (
	"context"
	"errors"
)

// Sentinel errors for the transmit path. Callers match them with
// [errors.Is]; concrete drivers attach the underlying cause.
var (
	// ErrDeviceUnavailable reports that the radio behind a URI could not
	// be reached or refused the connection.
	ErrDeviceUnavailable = errors.New("sdr: device unavailable")

	// ErrConfigRejected reports that the hardware did not accept a
	// requested parameter, for example a sample rate outside the
	// supported range.
	ErrConfigRejected = errors.New("sdr: configuration rejected")

	// ErrTransmit reports a failure while pushing samples to the device.
	ErrTransmit = errors.New("sdr: transmit failed")
)

// TxConfig carries the transmit parameters applied to a device in a
// single Configure call.
type TxConfig struct {
	// SampleRate is the DAC sample rate in samples per second.
	SampleRate int
	// CenterFreq is the transmit LO frequency in Hz.
	CenterFreq float64
	// Gain is the hardware transmit attenuation in dB. Values are
	// negative or zero on most frontends.
	Gain float64
}

// Device is a handle to transmit-capable radio hardware. Implementations
// are not required to be safe for concurrent use; the Session serializes
// all access.
type Device interface {
	// Configure applies sample rate, center frequency and gain.
	Configure(cfg TxConfig) error

	// EnableTX powers up the transmit chain and prepares it to accept
	// sample buffers.
	EnableTX() error

	// DisableTX powers the transmit chain back down. Safe to call when
	// the chain was never enabled.
	DisableTX() error

	// DestroyBuffer releases any sample buffer held by the device. It
	// must be a no-op when no buffer exists, so callers can invoke it
	// unconditionally before streaming starts.
	DestroyBuffer() error

	// Send pushes one buffer of baseband IQ samples to the hardware,
	// blocking until the device has consumed it. Samples are expected
	// to already be scaled to the DAC range.
	Send(iq []complex64) error

	// Close releases the device handle. The device is unusable
	// afterwards.
	Close() error
}

// Driver opens devices. Implementations map the URI scheme onto their
// transport, for example "ip:192.168.2.1" for a network-attached radio.
type Driver interface {
	Open(ctx context.Context, uri string) (Device, error)
}
