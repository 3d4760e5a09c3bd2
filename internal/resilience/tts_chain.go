package resilience

import (
	"context"

	"github.com/MrWong99/skywave/pkg/provider/tts"
)

// TTSChain implements [tts.Provider] over a failover [Chain] of TTS
// backends.
type TTSChain struct {
	chain *Chain[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSChain)(nil)

// NewTTSChain creates an empty TTS failover chain. At least one backend must
// be registered with [TTSChain.Add] before use.
func NewTTSChain(cfg ChainConfig) *TTSChain {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSChain{chain: NewChain[tts.Provider](cfg)}
}

// Add registers a backend. Backends are tried in registration order.
func (c *TTSChain) Add(name string, p tts.Provider) {
	c.chain.Add(name, p)
}

// Synthesize renders text with the first healthy backend. A backend that
// fails mid-utterance counts as a failure and the next one gets the full
// text, so the caller never receives a partial recording.
func (c *TTSChain) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return Run(ctx, c.chain, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns available voices from the first healthy backend.
func (c *TTSChain) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return Run(ctx, c.chain, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// CloneVoice creates a new voice profile using the first healthy backend.
func (c *TTSChain) CloneVoice(ctx context.Context, samples [][]byte) (*tts.VoiceProfile, error) {
	return Run(ctx, c.chain, func(p tts.Provider) (*tts.VoiceProfile, error) {
		return p.CloneVoice(ctx, samples)
	})
}
