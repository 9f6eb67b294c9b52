package assistant

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fyrsmithlabs/assistd/internal/completion"
)

var (
	// ErrNoTurns means the request carried no conversation.
	ErrNoTurns = errors.New("no conversation turns")
	// ErrTooManyTurns means the conversation is over the variant's cap.
	ErrTooManyTurns = errors.New("conversation exceeds turn cap")
	// ErrEmptyMessage means there is no user message to answer.
	ErrEmptyMessage = errors.New("no user message to answer")
)

// PanicError is a recovered panic converted to an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recovered panic: %v", e.Value)
}

// checkTurns enforces presence and the length cap.
func checkTurns(turns []Turn, limit int) error {
	if len(turns) == 0 {
		return ErrNoTurns
	}
	if len(turns) > limit {
		return fmt.Errorf("%w: %d turns, cap %d", ErrTooManyTurns, len(turns), limit)
	}
	return nil
}

// safeComplete runs one completion call under a timeout and converts a
// panicking provider into an error.
func safeComplete(ctx context.Context, c completion.Completer, req completion.Request, timeout time.Duration) (text string, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.Complete(ctx, req)
}
