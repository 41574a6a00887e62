package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama implements extraction.Backend using Ollama.
// Recommended models for receipt extraction:
//   - llava (general purpose vision model)
//   - qwen2.5vl (good OCR capabilities)
//   - llama3.2-vision
//
// Ollama cannot read PDFs, so documents are rasterized to one PNG per page.
type Ollama struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates a new Ollama backend
func NewOllama(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models on local hardware are slow
		},
	}
}

// Name returns the provider name
func (o *Ollama) Name() string {
	return "ollama"
}

// CheckCredentials checks that the base URL is usable. Ollama needs no key.
func (o *Ollama) CheckCredentials() error {
	u, err := url.Parse(o.baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &extraction.ConfigurationError{Reason: fmt.Sprintf("invalid ollama url %q", o.baseURL)}
	}
	return nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Complete sends req to the chat API. Documents are rasterized first.
// A 404 means the model is not pulled and is reported as extraction.ErrModelUnavailable.
func (o *Ollama) Complete(ctx context.Context, model string, req *extraction.Request) (string, error) {
	images, err := ollamaImages(req)
	if err != nil {
		return "", err
	}

	reqBody := ollamaChatRequest{
		Model:  model,
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": 0,
		},
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from German receipts and invoices. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: req.Instruction(),
				Images:  images,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		baseErr := fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %w", extraction.ErrModelUnavailable, baseErr)
		}
		return "", baseErr
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return chatResp.Message.Content, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}

// ollamaImages flattens the media blocks into base64 images in order.
func ollamaImages(req *extraction.Request) ([]string, error) {
	var images []string
	for i, b := range req.Media() {
		switch b := b.(type) {
		case extraction.ImageBlock:
			images = append(images, base64.StdEncoding.EncodeToString(b.Data))
		case extraction.DocumentBlock:
			pages, err := pdfToImages(b.Data)
			if err != nil {
				return nil, fmt.Errorf("rasterizing document %d: %w", i, err)
			}
			for _, p := range pages {
				images = append(images, base64.StdEncoding.EncodeToString(p))
			}
		}
	}
	return images, nil
}
