// Command skywave generates a spoken broadcast with an LLM and a TTS
// provider and transmits it as narrowband FM through an ADALM-Pluto SDR.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/skywave/internal/config"
	"github.com/MrWong99/skywave/internal/health"
	"github.com/MrWong99/skywave/internal/observe"
	"github.com/MrWong99/skywave/internal/resilience"
	"github.com/MrWong99/skywave/internal/transmit"
	"github.com/MrWong99/skywave/internal/workflow"
	"github.com/MrWong99/skywave/pkg/provider/llm"
	"github.com/MrWong99/skywave/pkg/provider/llm/anyllm"
	"github.com/MrWong99/skywave/pkg/provider/tts"
	"github.com/MrWong99/skywave/pkg/provider/tts/coqui"
	"github.com/MrWong99/skywave/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/skywave/pkg/sdr/pluto"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	prompt := flag.String("prompt", "", "override the broadcast prompt from the config")
	audioFile := flag.String("audio", "", "override the audio file path from the config")
	transmitOnly := flag.Bool("transmit-only", false, "skip generation and transmit the audio file as-is")
	flag.Parse()

	// Provider API keys commonly live in a .env next to the binary.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "skywave: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "skywave: %v\n", err)
		}
		return 1
	}
	if *prompt != "" {
		cfg.Workflow.Prompt = *prompt
	}
	if *audioFile != "" {
		cfg.Workflow.AudioFile = *audioFile
	}
	if *transmitOnly {
		cfg.Workflow.Prompt = ""
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("skywave starting",
		"version", version,
		"config", *configPath,
		"uri", cfg.Radio.URI,
		"center_freq_hz", cfg.Radio.CenterFreq,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Init(ctx, observe.TelemetryConfig{
		ServiceName:    "skywave",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	textGen, speech, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Radio ─────────────────────────────────────────────────────────────────
	driver := pluto.NewDriver(
		pluto.WithLogger(logger),
		pluto.WithBufferSamples(cfg.Radio.ChunkSize),
	)
	controller, err := transmit.New(transmit.Config{
		URI:              cfg.Radio.URI,
		CenterFreq:       cfg.Radio.CenterFreq,
		SampleRate:       cfg.Radio.SampleRate,
		Gain:             cfg.Radio.TxGain,
		Deviation:        cfg.Radio.Deviation,
		IntermediateRate: cfg.Radio.IntermediateRate,
		ChunkSize:        cfg.Radio.ChunkSize,
	}, driver, nil)
	if err != nil {
		slog.Error("failed to initialise transmit pipeline", "err", err)
		return 1
	}

	runner, err := workflow.New(workflow.Config{
		Prompt:       cfg.Workflow.Prompt,
		SystemPrompt: cfg.Workflow.SystemPrompt,
		Voice:        tts.VoiceProfile{ID: cfg.Workflow.VoiceID},
		AudioFile:    cfg.Workflow.AudioFile,
	}, textGen, speech, controller,
		workflow.WithProviderNames(cfg.Providers.LLM.Name, cfg.Providers.TTS.Name))
	if err != nil {
		slog.Error("failed to initialise workflow", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Server.ListenAddr != "" {
		srv := newObservabilityServer(cfg)
		g.Go(func() error {
			slog.Info("observability server listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("observability server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// Ending the run also brings down the observability server.
		defer stop()
		return runner.Run(gCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders are the hosted backends that share the APIKey + BaseURL
// construction pattern. Ollama is registered separately because it is a local
// server addressed purely by BaseURL.
var anyLLMProviders = []string{
	"openai", "anthropic", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("ollama", entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		p, err := elevenlabs.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		p, err := coqui.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// buildProviders instantiates the provider chains declared in cfg.
// Unconfigured providers come back nil, which the workflow accepts for
// transmit-only runs. Every backend sits behind its own circuit breaker, and
// configured fallbacks take over when everything before them fails.
func buildProviders(cfg *config.Config, reg *config.Registry) (llm.Provider, tts.Provider, error) {
	var textGen llm.Provider
	var speech tts.Provider

	if cfg.Providers.LLM.Name != "" {
		chain := resilience.NewLLMChain(resilience.ChainConfig{Metrics: observe.DefaultMetrics()})
		for _, entry := range cfg.Providers.LLM.Entries() {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
			}
			chain.Add(entry.Name, p)
			slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
		}
		textGen = chain
	}

	if cfg.Providers.TTS.Name != "" {
		chain := resilience.NewTTSChain(resilience.ChainConfig{Metrics: observe.DefaultMetrics()})
		for _, entry := range cfg.Providers.TTS.Entries() {
			p, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
			}
			chain.Add(entry.Name, p)
			slog.Info("provider created", "kind", "tts", "name", entry.Name)
		}
		speech = chain
	}

	return textGen, speech, nil
}

// ── Observability server ──────────────────────────────────────────────────────

// newObservabilityServer builds the HTTP server exposing health probes and the
// Prometheus scrape endpoint.
func newObservabilityServer(cfg *config.Config) *http.Server {
	checkers := []health.Checker{health.RadioChecker(cfg.Radio.URI)}
	if url := cfg.Providers.TTS.BaseURL; url != "" {
		checkers = append(checkers, health.EndpointChecker("tts", url))
	}
	if url := cfg.Providers.LLM.BaseURL; url != "" {
		checkers = append(checkers, health.EndpointChecker("llm", url))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Skywave — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printEntry("Radio", cfg.Radio.URI)
	printEntry("Frequency", fmt.Sprintf("%.4f MHz", cfg.Radio.CenterFreq/1e6))
	printEntry("Sample rate", fmt.Sprintf("%d S/s", cfg.Radio.SampleRate))
	printEntry("Deviation", fmt.Sprintf("%.0f Hz", cfg.Radio.Deviation))
	printEntry("Audio file", cfg.Workflow.AudioFile)
	if cfg.Server.ListenAddr != "" {
		printEntry("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printEntry(kind, value)
}

func printEntry(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
