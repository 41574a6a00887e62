package scanning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

const geminiPrefix = "AIza"

// Gemini implements extraction.Backend using Google Gemini
type Gemini struct {
	apiKey string
	client *genai.Client
}

// NewGemini creates a new Gemini backend. No client is created for a key
// that fails CheckCredentials.
func NewGemini(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Gemini, error) {
	g := &Gemini{apiKey: strings.TrimSpace(apiKey)}
	if g.CheckCredentials() != nil {
		return g, nil
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	g.client = client

	return g, nil
}

// Name returns the provider name
func (g *Gemini) Name() string {
	return "gemini"
}

// CheckCredentials validates the configured key without calling the API.
func (g *Gemini) CheckCredentials() error {
	if g.apiKey == "" {
		return &extraction.ConfigurationError{Reason: "gemini api key is required"}
	}
	if !strings.HasPrefix(g.apiKey, geminiPrefix) {
		return &extraction.ConfigurationError{Reason: "gemini api key has an invalid format"}
	}
	return nil
}

// Complete generates content for req with model at temperature 0. A 404 from
// the API is reported as extraction.ErrModelUnavailable.
func (g *Gemini) Complete(ctx context.Context, model string, req *extraction.Request) (string, error) {
	if g.client == nil {
		return "", g.CheckCredentials()
	}

	gm := g.client.GenerativeModel(model)
	gm.SetTemperature(0)

	resp, err := gm.GenerateContent(ctx, geminiParts(req)...)
	if err != nil {
		if isGeminiNotFound(err) {
			return "", fmt.Errorf("%w: %s: %w", extraction.ErrModelUnavailable, model, err)
		}
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return text.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func geminiParts(req *extraction.Request) []genai.Part {
	parts := make([]genai.Part, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		switch b := b.(type) {
		case extraction.ImageBlock:
			// genai.ImageData expects just the format suffix (e.g. "png")
			parts = append(parts, genai.ImageData(strings.TrimPrefix(b.MimeType, "image/"), b.Data))
		case extraction.DocumentBlock:
			parts = append(parts, genai.Blob{MIMEType: extraction.MimePDF, Data: b.Data})
		case extraction.InstructionBlock:
			parts = append(parts, genai.Text(b.Text))
		}
	}
	return parts
}

func isGeminiNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
