package config

import (
	_ "embed"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

// EnvVarPrefix is the prefix of environment variables mirroring each flag
const EnvVarPrefix = "RECEIPT_EXTRACTOR"

//go:embed VERSION.txt
var versionFile string

// Version is the release version of both binaries
var Version = strings.TrimSpace(versionFile)

// Extraction holds the flags shared by the server and the CLI
type Extraction struct {
	backend            *string
	anthropicKey       *string
	geminiKey          *string
	models             *string
	ollamaURL          *string
	timeoutSeconds     *int
	inferenceCeilingMB *int
	workers            *int
}

// RegisterExtraction adds the backend and pipeline flags to fs
func RegisterExtraction(fs *ff.FlagSet) *Extraction {
	return &Extraction{
		backend:            fs.StringLong("backend", scanning.ProviderAnthropic, "Extraction backend: 'anthropic', 'gemini' or 'ollama'"),
		anthropicKey:       fs.StringLong("anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)"),
		geminiKey:          fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		models:             fs.StringLong("models", "", "Comma-separated model priority list (default depends on backend)"),
		ollamaURL:          fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		timeoutSeconds:     fs.IntLong("timeout-seconds", int(extraction.DefaultTimeout/time.Second), "Deadline for one extraction, in seconds"),
		inferenceCeilingMB: fs.IntLong("inference-ceiling-mb", extraction.DefaultInferenceCeiling>>20, "Maximum base64-encoded size of an image sent to the model, in MB"),
		workers:            fs.IntLong("normalize-workers", 0, "Parts normalized in parallel (0 = number of CPUs)"),
	}
}

// Pipeline returns the immutable pipeline configuration
func (e *Extraction) Pipeline() extraction.Config {
	return extraction.Config{
		Normalizer: extraction.NormalizerOptions{
			Ceiling: *e.inferenceCeilingMB << 20,
			Workers: *e.workers,
		},
		Timeout: time.Duration(*e.timeoutSeconds) * time.Second,
	}
}

// Backend returns the backend selection, with API keys falling back to the vendor's own env var
func (e *Extraction) Backend() scanning.Config {
	cfg := scanning.Config{
		Provider: strings.ToLower(strings.TrimSpace(*e.backend)),
		Models:   strings.Split(*e.models, ","),
	}

	switch cfg.Provider {
	case scanning.ProviderAnthropic:
		cfg.APIKey = firstNonEmpty(*e.anthropicKey, os.Getenv("ANTHROPIC_API_KEY"))
	case scanning.ProviderGemini:
		cfg.APIKey = firstNonEmpty(*e.geminiKey, os.Getenv("GEMINI_API_KEY"))
	case scanning.ProviderOllama:
		cfg.BaseURL = *e.ollamaURL
	}

	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
