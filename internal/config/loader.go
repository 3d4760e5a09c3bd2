package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Fields absent from the file keep their [Default] values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Suspicious-but-workable values are warned about, not rejected.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Radio
	if cfg.Radio.URI == "" {
		errs = append(errs, errors.New("radio.uri is required"))
	}
	if cfg.Radio.CenterFreq <= 0 {
		errs = append(errs, fmt.Errorf("radio.center_freq_hz must be positive, got %g", cfg.Radio.CenterFreq))
	}
	if cfg.Radio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("radio.sample_rate must be positive, got %d", cfg.Radio.SampleRate))
	} else if cfg.Radio.SampleRate < minPracticalSampleRate {
		slog.Warn("radio.sample_rate is below the AD936x practical minimum; the frontend may not sustain it",
			"sample_rate", cfg.Radio.SampleRate,
			"practical_min", minPracticalSampleRate,
		)
	}
	if cfg.Radio.Deviation <= 0 {
		errs = append(errs, fmt.Errorf("radio.fm_deviation_hz must be positive, got %g", cfg.Radio.Deviation))
	}
	if cfg.Radio.IntermediateRate <= 0 {
		errs = append(errs, fmt.Errorf("radio.intermediate_rate must be positive, got %d", cfg.Radio.IntermediateRate))
	}
	if cfg.Radio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("radio.chunk_size must be positive, got %d", cfg.Radio.ChunkSize))
	}
	if cfg.Radio.TxGain > 0 {
		slog.Warn("radio.tx_gain_db is positive; Pluto transmit gain is an attenuation and is usually <= 0",
			"tx_gain_db", cfg.Radio.TxGain,
		)
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	errs = append(errs, validateFallbacks("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateFallbacks("tts", cfg.Providers.TTS)...)

	// Provider availability warnings. A transmit-only run needs neither.
	if cfg.Workflow.Prompt != "" {
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("workflow.prompt is set but providers.llm is not configured"))
		}
		if cfg.Providers.TTS.Name == "" {
			errs = append(errs, errors.New("workflow.prompt is set but providers.tts is not configured"))
		}
	}
	if cfg.Workflow.AudioFile == "" {
		errs = append(errs, errors.New("workflow.audio_file is required"))
	}

	return errors.Join(errs...)
}

// validateFallbacks checks the fallback list of a provider chain: fallbacks
// need a configured primary, and every fallback entry needs a name.
func validateFallbacks(kind string, chain ProviderChain) []error {
	if len(chain.Fallbacks) == 0 {
		return nil
	}
	var errs []error
	if chain.Name == "" {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks is set but providers.%s.name is empty", kind, kind))
	}
	for i, fb := range chain.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
