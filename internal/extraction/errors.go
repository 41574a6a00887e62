package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelUnavailable is wrapped by backends when the requested model
	// does not exist or is not available to the configured credential.
	// It is the only error that makes the InferenceClient try the next model.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrTimeout is returned when the caller's deadline expires mid-extraction.
	ErrTimeout = errors.New("extraction timed out")
)

// ConfigurationError reports a missing or malformed backend credential.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "extraction backend not configured: " + e.Reason
}

// UnsupportedInputError reports a part whose MIME type is not accepted.
type UnsupportedInputError struct {
	Index    int
	MimeType string
	Err      error
}

func (e *UnsupportedInputError) Error() string {
	msg := fmt.Sprintf("unsupported file type: %q (part %d)", e.MimeType, e.Index)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedInputError) Unwrap() error {
	return e.Err
}

// BackendUnavailableError reports that every candidate model was unavailable.
type BackendUnavailableError struct {
	Models []string
	Err    error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("no model available (tried %s): %v", strings.Join(e.Models, ", "), e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// BackendFault reports a backend failure that is not a model availability
// gap: auth, rate limiting, malformed request, network.
type BackendFault struct {
	Model string
	Err   error
}

func (e *BackendFault) Error() string {
	return fmt.Sprintf("backend error (model %s): %v", e.Model, e.Err)
}

func (e *BackendFault) Unwrap() error {
	return e.Err
}

// ParseError reports a reply that could not be decoded as a JSON object.
// Raw holds the unmodified reply.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model reply: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrorKind is the coarse classification a caller maps to its own messaging.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindInput         ErrorKind = "input"
	KindTimeout       ErrorKind = "timeout"
	KindFailure       ErrorKind = "failure"
)

// Classify maps err onto an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return KindConfiguration
	}

	var inErr *UnsupportedInputError
	if errors.As(err, &inErr) {
		return KindInput
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	return KindFailure
}

func timeoutError(err error) error {
	return fmt.Errorf("%w: %w", ErrTimeout, err)
}
