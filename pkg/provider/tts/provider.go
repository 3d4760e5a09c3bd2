// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Coqui server
// or the ElevenLabs API) and turns a complete utterance into a WAV recording
// that the transmission pipeline can ingest. Synthesis is batch rather than
// streaming: the broadcast script is known in full before the radio keys up,
// so there is nothing to gain from pipelining partial sentences.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must return promptly when ctx is cancelled.
type Provider interface {
	// Synthesize converts text into a complete RIFF/WAVE recording and
	// returns the container bytes. The embedded sample rate and channel
	// layout are whatever the backend produces; callers normalize through
	// the audio package before modulation.
	//
	// voice selects the voice profile. Providers should return an error if
	// the requested voice is not available rather than falling back silently.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)

	// CloneVoice creates a new voice profile by training on the supplied
	// audio samples. Each element of samples must be a WAV-encoded recording
	// of the reference speaker.
	//
	// This is an expensive operation and should not be called in the hot
	// path. A nil or empty samples slice must return an error rather than
	// panic. Providers without a cloning API return an error unconditionally.
	CloneVoice(ctx context.Context, samples [][]byte) (*VoiceProfile, error)
}
