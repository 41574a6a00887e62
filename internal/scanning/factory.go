package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Supported providers
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// DefaultModels lists each provider's fallback chain, most capable first.
var DefaultModels = map[string][]string{
	ProviderAnthropic: {"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"},
	ProviderGemini:    {"gemini-2.5-pro", "gemini-2.5-flash"},
	ProviderOllama:    {"llava"},
}

// Config selects and configures a backend
type Config struct {
	Provider string
	APIKey   string
	Models   []string
	BaseURL  string
}

// NewBackend creates the backend for cfg.Provider. A missing or malformed
// credential is not an error here; it surfaces from CheckCredentials on first use.
func NewBackend(ctx context.Context, cfg Config) (extraction.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderAnthropic:
		if cfg.BaseURL != "" {
			return NewAnthropicWithEndpoint(cfg.APIKey, cfg.BaseURL), nil
		}
		return NewAnthropic(cfg.APIKey), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey)
	case ProviderOllama:
		return NewOllama(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewClient creates the backend for cfg and wraps it in an InferenceClient
// over cfg.Models, or the provider's defaults when none are given.
func NewClient(ctx context.Context, cfg Config) (*extraction.InferenceClient, extraction.Backend, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	models := cleanModels(cfg.Models)
	if len(models) == 0 {
		models = DefaultModels[backend.Name()]
	}

	client, err := extraction.NewInferenceClient(backend, models)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("creating inference client: %w", err)
	}

	return client, backend, nil
}

func cleanModels(models []string) []string {
	var out []string
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
