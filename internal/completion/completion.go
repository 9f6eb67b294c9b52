package completion

import (
	"context"
	"errors"
)

// Role identifies the author of a history message in provider terms.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one prior turn sent to the provider.
type Message struct {
	Role Role
	Text string
}

// Request is a single completion call.
type Request struct {
	// System is the variant's instruction prompt.
	System string
	// History holds prior turns, oldest first, starting with a user turn.
	History []Message
	// Prompt is the latest user message.
	Prompt string

	MaxOutputTokens int32
	Temperature     float32

	// JSON asks the provider for a JSON-only reply when it supports that.
	JSON bool
}

// Completer produces the model's reply text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var (
	// ErrEmptyCompletion is returned when the provider answers with no text.
	ErrEmptyCompletion = errors.New("provider returned an empty completion")
	// ErrUnavailable is returned by the disabled provider.
	ErrUnavailable = errors.New("completion provider unavailable")
)

// retryableError marks transient failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
