package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable means the backend could not be reached or refused
	// the request before streaming began.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendProtocol means the response did not decode as the expected
	// incremental chunk format.
	ErrBackendProtocol = errors.New("backend protocol error")

	// ErrStreamInterrupted means the stream ended or stalled without a
	// terminal success marker.
	ErrStreamInterrupted = errors.New("stream interrupted")
)

// ProviderError is returned when the backend answers with a non-200 status.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap classifies every status failure as the backend being unavailable.
func (e *ProviderError) Unwrap() error { return ErrBackendUnavailable }
