// Package config provides the configuration schema, loader, and provider
// registry for the Skywave transmission tool.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default radio and pipeline parameters. They mirror the values the tool
// was originally tuned with: a network-attached ADALM-Pluto on the 70 cm
// amateur band, streaming at 1 MS/s.
const (
	DefaultSDRURI           = "ip:192.168.2.1"
	DefaultCenterFreq       = 440.135e6
	DefaultSampleRate       = 1_000_000
	DefaultTxGain           = -10
	DefaultDeviation        = 5_000
	DefaultIntermediateRate = 48_000
	DefaultChunkSize        = 8192
	DefaultAudioFile        = "output.wav"

	// minPracticalSampleRate is the lowest DAC rate the AD936x frontend
	// sustains without extra FIR decimation stages. Rates below it are
	// accepted but warned about.
	minPracticalSampleRate = 521_000
)

// Config is the root configuration structure for Skywave.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Radio     RadioConfig     `yaml:"radio"`
	Providers ProvidersConfig `yaml:"providers"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
}

// ServerConfig holds the optional observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the health/metrics server listens on
	// (e.g., ":8080"). Empty disables the server; the tool then runs as a
	// plain one-shot command.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// RadioConfig holds the SDR transmit parameters and the DSP pipeline rates.
type RadioConfig struct {
	// URI is the device address, for example "ip:192.168.2.1" for a
	// network-attached ADALM-Pluto.
	URI string `yaml:"uri"`

	// CenterFreq is the transmit LO frequency in Hz.
	CenterFreq float64 `yaml:"center_freq_hz"`

	// SampleRate is the DAC rate in samples per second.
	SampleRate int `yaml:"sample_rate"`

	// TxGain is the hardware transmit gain in dB. Negative or zero on the
	// Pluto frontend; -10 is a safe bench default.
	TxGain float64 `yaml:"tx_gain_db"`

	// Deviation is the FM peak deviation in Hz for full-scale audio.
	Deviation float64 `yaml:"fm_deviation_hz"`

	// IntermediateRate is the audio processing rate in samples per second.
	// Audio is resampled to this rate before modulation.
	IntermediateRate int `yaml:"intermediate_rate"`

	// ChunkSize is the number of IQ samples per buffer pushed to the radio.
	ChunkSize int `yaml:"chunk_size"`
}

// ProvidersConfig declares which provider implementations serve the text and
// speech stages. Each chain names a primary provider registered in the
// [Registry], plus optional fallbacks tried in order when the primary fails.
type ProvidersConfig struct {
	LLM ProviderChain `yaml:"llm"`
	TTS ProviderChain `yaml:"tts"`
}

// ProviderChain is a primary provider entry with an ordered list of
// fallbacks behind it.
type ProviderChain struct {
	ProviderEntry `yaml:",inline"`

	// Fallbacks are tried in order when the primary (and every earlier
	// fallback) fails or has an open circuit breaker.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Entries returns the primary followed by the fallbacks, in try order.
func (c ProviderChain) Entries() []ProviderEntry {
	return append([]ProviderEntry{c.ProviderEntry}, c.Fallbacks...)
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemma3:1b-it-qat").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// WorkflowConfig describes the text-to-RF run: what to say, which voice to
// say it in, and where the intermediate recording lands.
type WorkflowConfig struct {
	// Prompt is the user prompt sent to the LLM to produce the broadcast
	// script. Ignored when AudioFile points at an existing recording and
	// the run is transmit-only.
	Prompt string `yaml:"prompt"`

	// SystemPrompt is an optional instruction injected before the prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// VoiceID selects the TTS voice. For Coqui XTTS servers this is the
	// reference speaker WAV used for voice cloning.
	VoiceID string `yaml:"voice_id"`

	// AudioFile is where the synthesised WAV is written before
	// transmission, and what gets transmitted in transmit-only mode.
	AudioFile string `yaml:"audio_file"`
}

// Default returns a Config populated with the built-in radio and pipeline
// defaults. Loading YAML on top of it overrides only the fields the file
// names.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel: LogInfo,
		},
		Radio: RadioConfig{
			URI:              DefaultSDRURI,
			CenterFreq:       DefaultCenterFreq,
			SampleRate:       DefaultSampleRate,
			TxGain:           DefaultTxGain,
			Deviation:        DefaultDeviation,
			IntermediateRate: DefaultIntermediateRate,
			ChunkSize:        DefaultChunkSize,
		},
		Workflow: WorkflowConfig{
			AudioFile: DefaultAudioFile,
		},
	}
}
