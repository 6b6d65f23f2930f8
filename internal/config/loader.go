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
	"stt":        {"whisper"},
	"tts":        {"coqui"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
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
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Harness
	if cfg.Harness.ChunkFrames < 0 {
		errs = append(errs, fmt.Errorf("harness.chunk_frames %d must not be negative", cfg.Harness.ChunkFrames))
	}
	if cfg.Harness.SettleDelayMs < 0 {
		errs = append(errs, fmt.Errorf("harness.settle_delay_ms %d must not be negative", cfg.Harness.SettleDelayMs))
	}
	if cfg.Harness.DefaultPreset != "" && !cfg.Harness.DefaultPreset.IsValid() {
		errs = append(errs, fmt.Errorf("harness.default_preset %q is invalid; valid values: strict, standard, lenient", cfg.Harness.DefaultPreset))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for _, e := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", e.Name)
	}
	for _, e := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", e.Name)
	}
	for _, e := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", e.Name)
	}

	// Fallbacks only make sense behind a primary.
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallbacks set without a primary providers.stt"))
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts_fallbacks set without a primary providers.tts"))
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks set without a primary providers.llm"))
	}

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" && len(cfg.Suites) > 0 {
		slog.Warn("no STT provider configured; suites cannot run until one is set")
	}
	if cfg.Harness.DefaultPreset == PresetLenient && cfg.Providers.Embeddings.Name == "" && cfg.Providers.LLM.Name == "" {
		slog.Warn("default_preset is lenient but neither embeddings nor llm provider is configured; semantic tiers will degrade to rule matching")
	}

	// Embeddings ↔ storage dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" && len(cfg.Suites) > 0 {
		slog.Warn("storage.postgres_dsn is empty; suite results will not be persisted")
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
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
