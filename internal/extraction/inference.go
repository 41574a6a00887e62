package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Backend sends a request to one vendor's multimodal completion API.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// CheckCredentials validates credential presence and format without any
	// network call. It returns a *ConfigurationError on failure.
	CheckCredentials() error

	// Complete sends req to model and returns the reply text. Errors wrapping
	// ErrModelUnavailable mean the model does not exist or is not available
	// to the credential.
	Complete(ctx context.Context, model string, req *Request) (string, error)

	// Close releases the backend's resources
	Close() error
}

type inferenceState int

const (
	stateTrying inferenceState = iota
	stateSucceeded
	stateFailed
)

// attempt is one state of the fallback machine: Trying(models[index]),
// Succeeded(reply) or Failed(err).
type attempt struct {
	state inferenceState
	index int
	reply *Reply
	err   error
}

// InferenceClient runs a request against an ordered list of models,
// falling back only when a model is unavailable.
type InferenceClient struct {
	backend Backend
	models  []string
}

// NewInferenceClient creates an InferenceClient. models is tried in order, most capable first.
func NewInferenceClient(backend Backend, models []string) (*InferenceClient, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}
	return &InferenceClient{
		backend: backend,
		models:  append([]string(nil), models...),
	}, nil
}

// Models returns the candidate models in priority order.
func (c *InferenceClient) Models() []string {
	return append([]string(nil), c.models...)
}

// Infer sends req to the first available model.
func (c *InferenceClient) Infer(ctx context.Context, req *Request) (*Reply, error) {
	if err := c.backend.CheckCredentials(); err != nil {
		return nil, err
	}

	a := attempt{state: stateTrying}
	for {
		switch a.state {
		case stateSucceeded:
			return a.reply, nil
		case stateFailed:
			return nil, a.err
		default:
			a = c.step(ctx, a, req)
		}
	}
}

// step performs the attempt for models[a.index] and returns the next state.
func (c *InferenceClient) step(ctx context.Context, a attempt, req *Request) attempt {
	model := c.models[a.index]

	text, err := c.backend.Complete(ctx, model, req)
	if err == nil {
		return attempt{state: stateSucceeded, reply: &Reply{Text: text, Model: model}}
	}

	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr == nil {
			ctxErr = err
		}
		return attempt{state: stateFailed, err: timeoutError(ctxErr)}
	}

	if !errors.Is(err, ErrModelUnavailable) {
		return attempt{state: stateFailed, err: &BackendFault{Model: model, Err: err}}
	}

	next := a.index + 1
	if next >= len(c.models) {
		return attempt{state: stateFailed, err: &BackendUnavailableError{Models: c.Models(), Err: err}}
	}

	slog.Warn("Model unavailable, falling back",
		"backend", c.backend.Name(),
		"model", model,
		"next_model", c.models[next],
		"error", err,
	)
	return attempt{state: stateTrying, index: next}
}
