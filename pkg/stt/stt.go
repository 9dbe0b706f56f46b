// Package stt records a short utterance and turns it into text.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	ErrNoRecorder = errors.New("stt: record command required")
	ErrNoModel    = errors.New("stt: whisper model required")
)

// Transcriber records for window and returns the best-effort transcript.
// Silence comes back as "" with a nil error.
type Transcriber interface {
	Transcribe(ctx context.Context, window time.Duration) (string, error)
}

// ProviderError wraps an error with the backend that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with provider context. Returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
