// Command aurelia is the main entry point for the Aurelia companion
// streaming gateway.
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

	"github.com/aurelia-labs/aurelia/internal/agentclient/llmengine"
	"github.com/aurelia-labs/aurelia/internal/config"
	"github.com/aurelia-labs/aurelia/internal/gateway"
	"github.com/aurelia-labs/aurelia/internal/health"
	"github.com/aurelia-labs/aurelia/internal/persona"
	"github.com/aurelia-labs/aurelia/internal/resilience"
	"github.com/aurelia-labs/aurelia/internal/rest"
	"github.com/aurelia-labs/aurelia/pkg/memory/postgres"
	"github.com/aurelia-labs/aurelia/pkg/provider/embeddings"
	embeddingsollama "github.com/aurelia-labs/aurelia/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/aurelia-labs/aurelia/pkg/provider/embeddings/openai"
	"github.com/aurelia-labs/aurelia/pkg/provider/llm"
	"github.com/aurelia-labs/aurelia/pkg/provider/llm/anyllm"
	llmopenai "github.com/aurelia-labs/aurelia/pkg/provider/llm/openai"
	"github.com/aurelia-labs/aurelia/pkg/provider/tts"
	"github.com/aurelia-labs/aurelia/pkg/provider/tts/coqui"
	"github.com/aurelia-labs/aurelia/pkg/provider/tts/elevenlabs"
	"github.com/aurelia-labs/aurelia/pkg/provider/vlm"
	vlmopenai "github.com/aurelia-labs/aurelia/pkg/provider/vlm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aurelia: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aurelia: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("aurelia starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "error", err)
		return 1
	}
	ttsProvider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to build tts provider", "error", err)
		return 1
	}

	// Wrapping even a single configured backend in its FallbackGroup gives it
	// circuit-breaker protection for free; AddFallback is there for a
	// deployment that configures more than one backend per slot, which the
	// current config schema does not yet expose (see DESIGN.md).
	llmWithBreaker := resilience.NewLLMFallback(llmProvider, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	ttsWithBreaker := resilience.NewTTSFallback(ttsProvider, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
	vlmProvider, err := reg.CreateVLM(cfg.Providers.VLM)
	if err != nil {
		slog.Error("failed to build vlm provider", "error", err)
		return 1
	}
	// Constructed eagerly so a bad embeddings config fails fast at startup;
	// the built provider is discarded and nothing in this binary uses it.
	if _, err := reg.CreateEmbeddings(cfg.Providers.Embeddings); err != nil {
		slog.Error("failed to build embeddings provider", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, cfg.Memory.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to connect to memory store", "error", err)
		return 1
	}

	personaMgr, err := persona.NewManager(cfg.Persona.Dir)
	if err != nil {
		slog.Error("failed to load persona catalogue", "error", err)
		return 1
	}

	engine := llmengine.New(llmWithBreaker)

	authorizer := func(_ context.Context, token string) (string, error) {
		if token == "" {
			return "", errors.New("empty token")
		}
		return token, nil
	}

	gw := gateway.NewManager(cfg.Streaming, engine, personaMgr, authorizer)

	restHandler := &rest.Handler{
		TTS: ttsWithBreaker,
		VLM: vlmProvider,
		STM: store,
		LTM: store,
		Voice: tts.VoiceProfile{
			Provider: cfg.Persona.Voice.Provider,
			ID:       cfg.Persona.Voice.VoiceID,
		},
	}

	healthHandler := health.New(
		health.Checker{Name: "memory", Check: func(ctx context.Context) error {
			_, err := store.GetRecent(ctx, "healthcheck", time.Second)
			return err
		}},
	)

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	restHandler.Register(mux)
	mux.HandleFunc("/v1/chat/stream", gw.ServeHTTP)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires every concrete provider implementation the
// module ships with into reg, keyed by the name used in configs/*.yaml.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		return llmopenai.New(e.APIKey, e.Model)
	})
	for _, name := range []string{"anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(e.Name, e.Model)
		})
	}

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		return elevenlabs.New(e.APIKey)
	})
	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		return coqui.New(e.BaseURL)
	})

	reg.RegisterVLM("openai", func(e config.ProviderEntry) (vlm.Provider, error) {
		return vlmopenai.New(e.APIKey, e.Model)
	})

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return embeddingsopenai.New(e.APIKey, e.Model)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return embeddingsollama.New(e.BaseURL, e.Model)
	})
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
