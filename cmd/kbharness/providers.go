package main

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/unamentis/kbharness/internal/config"
	"github.com/unamentis/kbharness/internal/resilience"
	"github.com/unamentis/kbharness/pkg/provider/embeddings"
	ollamaembed "github.com/unamentis/kbharness/pkg/provider/embeddings/ollama"
	oaembed "github.com/unamentis/kbharness/pkg/provider/embeddings/openai"
	"github.com/unamentis/kbharness/pkg/provider/llm"
	"github.com/unamentis/kbharness/pkg/provider/llm/anyllm"
	oaillm "github.com/unamentis/kbharness/pkg/provider/llm/openai"
	"github.com/unamentis/kbharness/pkg/provider/stt"
	"github.com/unamentis/kbharness/pkg/provider/stt/whisper"
	"github.com/unamentis/kbharness/pkg/provider/tts"
	"github.com/unamentis/kbharness/pkg/provider/tts/coqui"
)

// providers bundles the instantiated pipeline backends. Any field may be nil
// when the corresponding config block is empty.
type providers struct {
	STT        stt.Provider
	TTS        tts.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the native SDK client.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// The any-llm backends share one pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates every provider named in cfg using the registry.
// Unregistered names are skipped with a debug log so a config written for a
// newer build still loads; any other construction failure is fatal. When
// fallback backends are configured they are composed behind the primary with
// per-backend circuit breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	ps := &providers{}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "tts", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	if err := attachFallbacks(cfg, reg, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// attachFallbacks wraps the primaries in resilience fallback groups when the
// config lists fallback backends.
func attachFallbacks(cfg *config.Config, reg *config.Registry, ps *providers) error {
	var fbCfg resilience.FallbackConfig

	if len(cfg.Providers.STTFallbacks) > 0 && ps.STT != nil {
		fb := resilience.NewSTTFallback(ps.STT, cfg.Providers.STT.Name, fbCfg)
		for _, entry := range cfg.Providers.STTFallbacks {
			p, err := reg.CreateSTT(entry)
			if err != nil {
				return fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("fallback registered", "kind", "stt", "name", entry.Name)
		}
		ps.STT = fb
	}

	if len(cfg.Providers.TTSFallbacks) > 0 && ps.TTS != nil {
		fb := resilience.NewTTSFallback(ps.TTS, cfg.Providers.TTS.Name, fbCfg)
		for _, entry := range cfg.Providers.TTSFallbacks {
			p, err := reg.CreateTTS(entry)
			if err != nil {
				return fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("fallback registered", "kind", "tts", "name", entry.Name)
		}
		ps.TTS = fb
	}

	if len(cfg.Providers.LLMFallbacks) > 0 && ps.LLM != nil {
		fb := resilience.NewLLMFallback(ps.LLM, cfg.Providers.LLM.Name, fbCfg)
		for _, entry := range cfg.Providers.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("fallback registered", "kind", "llm", "name", entry.Name)
		}
		ps.LLM = fb
	}

	return nil
}

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
