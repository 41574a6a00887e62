package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	anthropicPrefix  = "sk-ant-"
)

// Anthropic implements extraction.Backend using the Anthropic Messages API
type Anthropic struct {
	apiKey    string
	endpoint  string
	maxTokens int
	client    *http.Client
}

// NewAnthropic creates a new Anthropic backend. The key is only checked by CheckCredentials.
func NewAnthropic(apiKey string) *Anthropic {
	return NewAnthropicWithEndpoint(apiKey, anthropicURL)
}

// NewAnthropicWithEndpoint creates a backend pointing at a custom API endpoint (for testing).
func NewAnthropicWithEndpoint(apiKey, endpoint string) *Anthropic {
	return &Anthropic{
		apiKey:    strings.TrimSpace(apiKey),
		endpoint:  endpoint,
		maxTokens: 2048,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name
func (a *Anthropic) Name() string {
	return "anthropic"
}

// CheckCredentials validates the configured key without calling the API.
func (a *Anthropic) CheckCredentials() error {
	if a.apiKey == "" {
		return &extraction.ConfigurationError{Reason: "anthropic api key is required"}
	}
	if !strings.HasPrefix(a.apiKey, anthropicPrefix) {
		return &extraction.ConfigurationError{Reason: "anthropic api key has an invalid format"}
	}
	return nil
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends req to model and returns the concatenated text of the reply.
// A missing model is reported as extraction.ErrModelUnavailable.
func (a *Anthropic) Complete(ctx context.Context, model string, req *extraction.Request) (string, error) {
	reqBody := anthropicRequest{
		Model:     model,
		MaxTokens: a.maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: anthropicBlocks(req)},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyAnthropicError(resp.StatusCode, body, model)
	}

	var msg anthropicResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text in anthropic response (stop_reason: %s)", msg.StopReason)
	}

	return text.String(), nil
}

// Close is a no-op for the HTTP client
func (a *Anthropic) Close() error {
	return nil
}

func anthropicBlocks(req *extraction.Request) []anthropicBlock {
	blocks := make([]anthropicBlock, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		switch b := b.(type) {
		case extraction.ImageBlock:
			blocks = append(blocks, anthropicBlock{
				Type:   "image",
				Source: &anthropicSource{Type: "base64", MediaType: b.MimeType, Data: base64.StdEncoding.EncodeToString(b.Data)},
			})
		case extraction.DocumentBlock:
			blocks = append(blocks, anthropicBlock{
				Type:   "document",
				Source: &anthropicSource{Type: "base64", MediaType: extraction.MimePDF, Data: base64.StdEncoding.EncodeToString(b.Data)},
			})
		case extraction.InstructionBlock:
			blocks = append(blocks, anthropicBlock{Type: "text", Text: b.Text})
		}
	}
	return blocks
}

// classifyAnthropicError maps a non-200 reply onto ErrModelUnavailable when
// the model itself is missing, and a plain error otherwise.
func classifyAnthropicError(status int, body []byte, model string) error {
	var apiErr anthropicError
	_ = json.Unmarshal(body, &apiErr)

	baseErr := fmt.Errorf("anthropic API error (status %d): %s", status, string(body))

	switch {
	case status == http.StatusNotFound, apiErr.Error.Type == "not_found_error":
		return fmt.Errorf("%w: %w", extraction.ErrModelUnavailable, baseErr)
	case status == http.StatusBadRequest && apiErr.Error.Type == "invalid_request_error" &&
		rejectsModel(apiErr.Error.Message):
		return fmt.Errorf("%w: %w", extraction.ErrModelUnavailable, baseErr)
	}
	return baseErr
}

// rejectsModel reports whether a 400 message says the model itself is unknown,
// as opposed to some other parameter that merely mentions the model.
func rejectsModel(message string) bool {
	m := strings.ToLower(message)
	if strings.Contains(m, "invalid model") {
		return true
	}
	return strings.Contains(m, "model") &&
		(strings.Contains(m, "not found") || strings.Contains(m, "does not exist") || strings.Contains(m, "unknown model"))
}
