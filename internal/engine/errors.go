package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/memora/internal/rerank"
	"github.com/scrypster/memora/internal/storage"
)

// Error taxonomy. Match with errors.Is; messages carry the details.
var (
	// ErrValidation reports a malformed request.
	ErrValidation = errors.New("validation error")

	// ErrNotFound reports an unknown agent or document.
	ErrNotFound = errors.New("not found")

	// ErrBudgetExhausted marks a traversal that hit its visit budget. It is
	// surfaced as a trace flag, never returned.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrStrategyUnavailable is returned when every retrieval strategy failed.
	ErrStrategyUnavailable = errors.New("all retrieval strategies unavailable")

	// ErrDependencyTimeout reports a model or store call that hit its deadline.
	ErrDependencyTimeout = errors.New("dependency timeout")

	// ErrTimeout reports an operation that exceeded its own deadline.
	ErrTimeout = errors.New("timeout")

	// ErrNotStarted is returned by operations that need running workers.
	ErrNotStarted = errors.New("engine not started")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate maps collaborator errors onto the engine taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, rerank.ErrUnknownReranker):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}

// classifyStageError tags deadline failures of a stage call as
// ErrDependencyTimeout. stageCtx is the context the call ran under.
func classifyStageError(stageCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrDependencyTimeout, err)
	}
	return err
}
