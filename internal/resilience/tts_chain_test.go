package resilience

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/skywave/pkg/provider/tts"
	ttsmock "github.com/MrWong99/skywave/pkg/provider/tts/mock"
)

func TestTTSChain_Synthesize_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeResult: []byte("primary-audio")}
	secondary := &ttsmock.Provider{SynthesizeResult: []byte("fallback-audio")}

	chain := NewTTSChain(ChainConfig{})
	chain.Add("primary", primary)
	chain.Add("secondary", secondary)

	wav, err := chain.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "v"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(wav, []byte("primary-audio")) {
		t.Fatalf("audio = %q, want primary-audio", wav)
	}
	if len(secondary.SynthesizeCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.SynthesizeCalls))
	}
}

func TestTTSChain_Synthesize_Failover(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{SynthesizeResult: []byte("fallback-audio")}

	chain := NewTTSChain(ChainConfig{})
	chain.Add("primary", primary)
	chain.Add("secondary", secondary)

	wav, err := chain.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "v"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(wav, []byte("fallback-audio")) {
		t.Fatalf("audio = %q, want fallback-audio", wav)
	}
	// The fallback must receive the full utterance, not a continuation.
	if len(secondary.SynthesizeCalls) != 1 || secondary.SynthesizeCalls[0].Text != "hello" {
		t.Fatalf("secondary calls = %+v, want one call with full text", secondary.SynthesizeCalls)
	}
}

func TestTTSChain_Synthesize_Exhausted(t *testing.T) {
	chain := NewTTSChain(ChainConfig{})
	chain.Add("primary", &ttsmock.Provider{SynthesizeErr: errors.New("primary down")})
	chain.Add("secondary", &ttsmock.Provider{SynthesizeErr: errors.New("secondary down")})

	_, err := chain.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "v"})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestTTSChain_ListVoices_Failover(t *testing.T) {
	primary := &ttsmock.Provider{ListVoicesErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{
		ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
	}

	chain := NewTTSChain(ChainConfig{})
	chain.Add("primary", primary)
	chain.Add("secondary", secondary)

	voices, err := chain.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Fatalf("voices = %+v, want [v1]", voices)
	}
}

func TestTTSChain_CloneVoice(t *testing.T) {
	chain := NewTTSChain(ChainConfig{})
	chain.Add("primary", &ttsmock.Provider{
		CloneVoiceResult: &tts.VoiceProfile{ID: "cloned"},
	})

	profile, err := chain.CloneVoice(context.Background(), [][]byte{[]byte("sample")})
	if err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	if profile.ID != "cloned" {
		t.Fatalf("profile.ID = %q, want cloned", profile.ID)
	}
}
