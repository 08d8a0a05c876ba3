package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":        {"elevenlabs", "coqui"},
	"vlm":        {"openai"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Streaming
	if cfg.Streaming.MinChunkLen < 0 {
		errs = append(errs, fmt.Errorf("streaming.min_chunk_len must be >= 0, got %d", cfg.Streaming.MinChunkLen))
	}
	if cfg.Streaming.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("streaming.queue_capacity must be > 0, got %d", cfg.Streaming.QueueCapacity))
	}
	for i, rule := range cfg.Streaming.NormalizationRules {
		if rule.Pattern == "" {
			errs = append(errs, fmt.Errorf("streaming.normalization_rules[%d]: pattern must not be empty", i))
			continue
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("streaming.normalization_rules[%d]: invalid pattern %q: %w", i, rule.Pattern, err))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vlm", cfg.Providers.VLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the agent engine will not be able to generate responses")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; POST /v1/tts/synthesize will have no backend")
	}

	// Embeddings ↔ memory dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
		cfg.Memory.EmbeddingDimensions = 1536
	}

	// Memory availability
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; long-term memory will not be available")
	}

	// Persona
	if cfg.Persona.Dir == "" {
		slog.Warn("persona.dir is empty; fetch_backgrounds/fetch_avatar_configs will return empty catalogues")
	}
	if cfg.Persona.Voice.SpeedFactor != 0 {
		if cfg.Persona.Voice.SpeedFactor < 0.5 || cfg.Persona.Voice.SpeedFactor > 2.0 {
			errs = append(errs, fmt.Errorf("persona.voice.speed_factor %.2f is out of range [0.5, 2.0]", cfg.Persona.Voice.SpeedFactor))
		}
	}
	if cfg.Persona.Voice.PitchShift < -10 || cfg.Persona.Voice.PitchShift > 10 {
		errs = append(errs, fmt.Errorf("persona.voice.pitch_shift %.2f is out of range [-10, 10]", cfg.Persona.Voice.PitchShift))
	}
	if cfg.Persona.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && cfg.Persona.Voice.Provider != cfg.Providers.TTS.Name {
		slog.Warn("persona voice provider does not match configured TTS provider",
			"voice_provider", cfg.Persona.Voice.Provider,
			"tts_provider", cfg.Providers.TTS.Name,
		)
	}

	return errors.Join(errs...)
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
