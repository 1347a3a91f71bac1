// Package generation produces grounded answers from a language model.
package generation

import (
	"context"
	"errors"
)

// Sentinel errors for generation.
var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrEmptyPrompt indicates an empty prompt.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrGenerationFailed indicates a permanent generation failure.
	ErrGenerationFailed = errors.New("generation failed")
)

// Provider generates text from a prompt. One question produces exactly
// one generation call; providers do not stream.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// retryableError marks an error as worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError reports whether an error is transient.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
