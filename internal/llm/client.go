// Package llm defines the streaming chat backend interface and its HTTP clients.
//
// Two wire formats are supported: Ollama's line-delimited JSON chat stream and
// the OpenAI-compatible server-sent event stream. Both are exposed through the
// same Client interface so the relay never sees the difference.
package llm

import (
	"context"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Stream event types.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
	// EventHeartbeat marks bytes that carried no payload, such as SSE
	// keep-alive comments. It only proves the backend is alive.
	EventHeartbeat = "heartbeat"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a Stream call.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// CompletionResponse summarizes a finished stream.
type CompletionResponse struct {
	Content  string        `json:"content"`
	Model    string        `json:"model,omitempty"`
	Usage    Usage         `json:"usage"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// StreamEvent is a chunk from a streaming completion.
type StreamEvent struct {
	Type    string `json:"type"`              // "delta", "done", "error"
	Content string `json:"content,omitempty"` // text delta
	Error   string `json:"error,omitempty"`   // error message (type="error")

	// Err is the typed failure behind Error; match it with errors.Is.
	Err error `json:"-"`

	// Final fields (type="done")
	Response *CompletionResponse `json:"response,omitempty"`
}

// Client is the interface all chat backends implement.
type Client interface {
	// Stream sends a request and returns a channel of streaming events.
	// Failures before the response body starts are returned directly and
	// wrap ErrBackendUnavailable. Once the channel is returned it yields
	// zero or more "delta" events followed by exactly one "done" or "error"
	// event, then closes.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "ollama", "openai").
	Name() string
}

func errorEvent(err error) StreamEvent {
	return StreamEvent{Type: EventError, Error: err.Error(), Err: err}
}

// emit delivers evt unless ctx is cancelled first.
func emit(ctx context.Context, ch chan<- StreamEvent, evt StreamEvent) bool {
	select {
	case ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}
