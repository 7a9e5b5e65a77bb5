package quiz

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoEligibleUnits = errors.New("no content unit has enough source text")
	ErrEmptyResponse   = errors.New("generation service returned no usable items")
)

// GenerationError tags a generation failure with its retry class. Errors that
// are not GenerationErrors are treated as retryable.
type GenerationError struct {
	Kind      string
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func NonRetryable(kind string, err error) error {
	return &GenerationError{Kind: kind, Retryable: false, Err: err}
}

func Retryable(kind string, err error) error {
	return &GenerationError{Kind: kind, Retryable: true, Err: err}
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeRetryable
	outcomeNonRetryable
	outcomeCanceled
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeRetryable:
		return "retryable"
	case outcomeNonRetryable:
		return "non_retryable"
	case outcomeCanceled:
		return "canceled"
	}
	return "unknown"
}

// classifyAttempt maps one generation call to the outcome the pass loop acts on.
func classifyAttempt(ctx context.Context, err error) outcome {
	if err == nil {
		return outcomeOK
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return outcomeCanceled
	}
	var ge *GenerationError
	if errors.As(err, &ge) && !ge.Retryable {
		return outcomeNonRetryable
	}
	return outcomeRetryable
}
