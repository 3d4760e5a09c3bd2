// Package workflow orchestrates a complete text-to-RF run: a language
// model writes the broadcast script, a speech provider renders it to a
// WAV recording, and the transmit pipeline keys it onto the air.
//
// A run with no prompt skips the generation stages and transmits an
// existing recording as-is. Stages run strictly in sequence and the run
// stops at the first failure; nothing is transmitted unless the
// recording on disk is a valid WAV.
package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/skywave/internal/observe"
	"github.com/MrWong99/skywave/pkg/audio"
	"github.com/MrWong99/skywave/pkg/provider/llm"
	"github.com/MrWong99/skywave/pkg/provider/tts"
)

// Transmitter sends a recorded WAV file over the radio.
// [github.com/MrWong99/skywave/internal/transmit.Controller] implements it.
type Transmitter interface {
	TransmitFile(ctx context.Context, path string) error
}

// Config describes one run.
type Config struct {
	// Prompt is the user prompt that drives script generation. Empty
	// makes the run transmit-only: AudioFile must already exist.
	Prompt string

	// SystemPrompt is an optional instruction injected before the prompt.
	SystemPrompt string

	// Voice selects the TTS voice used for synthesis.
	Voice tts.VoiceProfile

	// AudioFile is where the synthesised recording is written, or the
	// existing recording to transmit when Prompt is empty.
	AudioFile string
}

// Runner executes runs against a fixed set of providers and a radio.
type Runner struct {
	cfg     Config
	llm     llm.Provider
	tts     tts.Provider
	tx      Transmitter
	metrics *observe.Metrics

	// llmName and ttsName tag provider metrics.
	llmName string
	ttsName string
}

// Option configures a Runner.
type Option func(*Runner)

// WithProviderNames sets the provider names used as metric attributes.
func WithProviderNames(llmName, ttsName string) Option {
	return func(r *Runner) {
		r.llmName = llmName
		r.ttsName = ttsName
	}
}

// WithMetrics overrides the metrics sink. Nil is ignored.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New validates cfg against the supplied providers and returns a Runner.
// textGen and speech may be nil for transmit-only configurations; tx is
// always required.
func New(cfg Config, textGen llm.Provider, speech tts.Provider, tx Transmitter, opts ...Option) (*Runner, error) {
	if tx == nil {
		return nil, fmt.Errorf("workflow: transmitter must not be nil")
	}
	if cfg.AudioFile == "" {
		return nil, fmt.Errorf("workflow: audio file path must not be empty")
	}
	if cfg.Prompt != "" {
		if textGen == nil {
			return nil, fmt.Errorf("workflow: prompt is set but no LLM provider is configured")
		}
		if speech == nil {
			return nil, fmt.Errorf("workflow: prompt is set but no TTS provider is configured")
		}
	}
	r := &Runner{
		cfg:     cfg,
		llm:     textGen,
		tts:     speech,
		tx:      tx,
		metrics: observe.DefaultMetrics(),
		llmName: "llm",
		ttsName: "tts",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the configured run. Each run gets a fresh ID that tags
// its span and log lines.
func (r *Runner) Run(ctx context.Context) (err error) {
	runID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()
	log := observe.Logger(ctx).With("run_id", runID)

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.RecordWorkflowRun(ctx, status)
		log.Info("run finished", "status", status, "elapsed", time.Since(start))
	}()

	if r.cfg.Prompt == "" {
		log.Info("transmit-only run", "file", r.cfg.AudioFile)
		return r.tx.TransmitFile(ctx, r.cfg.AudioFile)
	}

	script, err := r.generateScript(ctx)
	if err != nil {
		return err
	}
	log.Info("script generated", "chars", len(script))

	if err := r.synthesize(ctx, script); err != nil {
		return err
	}
	log.Info("recording written", "file", r.cfg.AudioFile)

	return r.tx.TransmitFile(ctx, r.cfg.AudioFile)
}

// generateScript asks the language model for the broadcast script.
func (r *Runner) generateScript(ctx context.Context) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, "workflow.generate")
	defer span.End()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			r.metrics.RecordProviderError(ctx, r.llmName, "llm")
		}
		r.metrics.RecordProviderRequest(ctx, r.llmName, "llm", status)
	}()

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: r.cfg.Prompt}},
		SystemPrompt: r.cfg.SystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("workflow: generate script: %w", err)
	}
	if resp.Content == "" {
		return "", fmt.Errorf("workflow: model returned an empty script")
	}
	observe.Logger(ctx).Debug("llm usage",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Content, nil
}

// synthesize renders script to speech, validates the result and writes
// it to the configured audio file.
func (r *Runner) synthesize(ctx context.Context, script string) (err error) {
	ctx, span := observe.StartSpan(ctx, "workflow.synthesize")
	defer span.End()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			r.metrics.RecordProviderError(ctx, r.ttsName, "tts")
		}
		r.metrics.RecordProviderRequest(ctx, r.ttsName, "tts", status)
	}()

	wav, err := r.tts.Synthesize(ctx, script, r.cfg.Voice)
	if err != nil {
		return fmt.Errorf("workflow: synthesize speech: %w", err)
	}
	info, err := audio.ParseInfo(wav)
	if err != nil {
		return fmt.Errorf("workflow: provider returned invalid audio: %w", err)
	}
	observe.Logger(ctx).Debug("speech synthesised",
		"rate", info.SampleRate,
		"channels", info.Channels,
		"bytes", len(wav))

	if err := os.WriteFile(r.cfg.AudioFile, wav, 0o644); err != nil {
		return fmt.Errorf("workflow: write recording %s: %w", r.cfg.AudioFile, err)
	}
	return nil
}
