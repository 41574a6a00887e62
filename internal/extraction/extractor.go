package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds one extraction when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config is the read-only configuration of an Extractor.
type Config struct {
	Normalizer NormalizerOptions

	// Timeout bounds a whole extraction, including all model attempts.
	Timeout time.Duration
}

// Inferer sends an assembled request to a model and returns its reply.
type Inferer interface {
	Infer(ctx context.Context, req *Request) (*Reply, error)
}

// Extractor turns receipt files into a validated ReceiptData. It holds no
// mutable state; concurrent Extract calls are independent.
type Extractor struct {
	normalizer *SizeNormalizer
	inferer    Inferer
	timeout    time.Duration
}

// NewExtractor creates an Extractor
func NewExtractor(cfg Config, inferer Inferer) *Extractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{
		normalizer: NewSizeNormalizer(cfg.Normalizer),
		inferer:    inferer,
		timeout:    timeout,
	}
}

// Extract runs the pipeline over the parts of one receipt, given in reading order.
func (e *Extractor) Extract(ctx context.Context, parts []InputPart) (*ReceiptData, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	normalized, err := e.normalizer.NormalizeAll(ctx, parts)
	if err != nil {
		return nil, wrapContextErr(ctx, fmt.Errorf("normalizing input: %w", err))
	}

	req, err := Assemble(normalized)
	if err != nil {
		return nil, fmt.Errorf("assembling request: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, timeoutError(err)
	}

	reply, err := e.inferer.Infer(ctx, req)
	if err != nil {
		return nil, wrapContextErr(ctx, fmt.Errorf("running inference: %w", err))
	}

	fields, err := ParseReply(reply.Text)
	if err != nil {
		slog.Error("Failed to parse model reply", "model", reply.Model, "raw", reply.Text, "error", err)
		return nil, err
	}

	data := Validate(fields, reply.Text)
	data.Model = reply.Model
	data.PromptVersion = req.PromptVersion

	slog.Info("Extracted receipt",
		"parts", len(parts),
		"model", reply.Model,
		"duration", time.Since(start),
		"warnings", len(data.Warnings),
	)
	return data, nil
}

// wrapContextErr marks err as a timeout when the extraction deadline expired.
func wrapContextErr(ctx context.Context, err error) error {
	if errors.Is(err, ErrTimeout) {
		return err
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return timeoutError(err)
	}
	return err
}
