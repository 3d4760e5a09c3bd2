package coqui_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/skywave/pkg/audio"
	"github.com/MrWong99/skywave/pkg/provider/tts"
	"github.com/MrWong99/skywave/pkg/provider/tts/coqui"
)

// testWAV returns a small valid mono WAV file.
func testWAV() []byte {
	pcm := make([]byte, 256)
	return audio.WrapPCM16(pcm, 22050, 1)
}

func TestSynthesizeXTTS(t *testing.T) {
	wav := testWAV()

	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts_to_audio/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL, coqui.WithAPIMode(coqui.APIModeXTTS), coqui.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Synthesize(context.Background(), "Station identification.", tts.VoiceProfile{ID: "ref.wav"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != len(wav) {
		t.Errorf("got %d WAV bytes, want %d", len(got), len(wav))
	}
	if gotBody["text"] != "Station identification." {
		t.Errorf("text = %q, want %q", gotBody["text"], "Station identification.")
	}
	if gotBody["speaker_wav"] != "ref.wav" {
		t.Errorf("speaker_wav = %q, want %q", gotBody["speaker_wav"], "ref.wav")
	}
	if gotBody["language"] != "en" {
		t.Errorf("language = %q, want %q", gotBody["language"], "en")
	}
}

func TestSynthesizeStandardQueryParams(t *testing.T) {
	wav := testWAV()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("text") != "Hello world." {
			t.Errorf("text = %q, want %q", q.Get("text"), "Hello world.")
		}
		if q.Get("speaker_id") != "p225" {
			t.Errorf("speaker_id = %q, want %q", q.Get("speaker_id"), "p225")
		}
		w.Write(wav)
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "Hello world.", tts.VoiceProfile{ID: "p225"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}

func TestSynthesizeRejectsInvalidWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a RIFF container"))
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
		t.Error("malformed WAV response accepted, want error")
	}
}

func TestSynthesizeInputValidation(t *testing.T) {
	p, err := coqui.New("http://localhost:8002", coqui.WithAPIMode(coqui.APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "  ", tts.VoiceProfile{ID: "ref.wav"}); err == nil {
		t.Error("blank text accepted, want error")
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
		t.Error("missing voice ID accepted in XTTS mode, want error")
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
		t.Error("500 response accepted, want error")
	}
}

func TestListVoicesXTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studio_speakers" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Zofija":{},"Aaron":{}}`)
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL, coqui.WithAPIMode(coqui.APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	// Keys are sorted for deterministic output.
	if voices[0].Name != "Aaron" || voices[1].Name != "Zofija" {
		t.Errorf("voices = %q, %q; want Aaron, Zofija", voices[0].Name, voices[1].Name)
	}
}

func TestListVoicesStandardSingleSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/details" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model_name":"tts_models/en/ljspeech/vits","language":"en"}`)
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("got %d voices, want 1", len(voices))
	}
	if voices[0].ID != "tts_models/en/ljspeech/vits" {
		t.Errorf("voice ID = %q, want model name", voices[0].ID)
	}
}

func TestListVoicesStandardMultiSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model_name":"tts_models/en/vctk/vits","speakers":["p243","p225"]}`)
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "p225" || voices[1].ID != "p243" {
		t.Errorf("voices = %q, %q; want p225, p243 sorted", voices[0].ID, voices[1].ID)
	}
}

func TestCloneVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/clone_speaker" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("request is not multipart: %v", err)
		} else if got := len(r.MultipartForm.File["wav_files"]); got != 2 {
			t.Errorf("got %d wav_files parts, want 2", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"cloned-voice-1","status":"ok"}`)
	}))
	defer srv.Close()

	p, err := coqui.New(srv.URL, coqui.WithAPIMode(coqui.APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	profile, err := p.CloneVoice(context.Background(), [][]byte{testWAV(), testWAV()})
	if err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	if profile.ID != "cloned-voice-1" {
		t.Errorf("cloned voice ID = %q, want %q", profile.ID, "cloned-voice-1")
	}
}

func TestCloneVoiceUnsupportedCases(t *testing.T) {
	p, err := coqui.New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.CloneVoice(context.Background(), [][]byte{{1}}); err == nil {
		t.Error("CloneVoice succeeded in standard mode, want error")
	}

	p2, err := coqui.New("http://localhost:8002", coqui.WithAPIMode(coqui.APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p2.CloneVoice(context.Background(), nil); err == nil {
		t.Error("CloneVoice with no samples succeeded, want error")
	}
}
