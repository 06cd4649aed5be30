package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaAPIClient is a direct HTTP client for Ollama's /api/chat endpoint.
type OllamaAPIClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAPIClient creates a new Ollama API client.
// baseURL should be like "http://localhost:11434"; any path on it is dropped.
func NewOllamaAPIClient(baseURL, model string, headerTimeout time.Duration) *OllamaAPIClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaAPIClient{
		baseURL: hostOnly(baseURL),
		model:   model,
		client:  newHTTPClient(headerTimeout),
	}
}

// Name returns the provider name.
func (o *OllamaAPIClient) Name() string {
	return "ollama"
}

// Stream sends a streaming chat request to the Ollama API.
func (o *OllamaAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	body := ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   true,
	}
	if req.Temperature != nil {
		body.Options = map[string]any{"temperature": *req.Temperature}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: request creation failed: %v", ErrBackendUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	stream, err := openStream(ctx, o.client, o.Name(), httpReq)
	if err != nil {
		return nil, err
	}

	eventChan := make(chan StreamEvent)
	go o.readStream(ctx, stream, model, eventChan)
	return eventChan, nil
}

func (o *OllamaAPIClient) readStream(ctx context.Context, body io.ReadCloser, model string, eventChan chan<- StreamEvent) {
	defer close(eventChan)
	defer body.Close()

	start := time.Now()
	scanner := newStreamLineScanner(body)
	scanner.keepAlive = heartbeats(ctx, eventChan)
	var fullContent strings.Builder

	for scanner.Scan() {
		var chunk ollamaChatChunk
		if err := json.Unmarshal([]byte(scanner.Data()), &chunk); err != nil {
			emit(ctx, eventChan, errorEvent(fmt.Errorf("%w: ollama: undecodable line %q: %v", ErrBackendProtocol, truncate(scanner.Data(), 80), err)))
			return
		}
		if chunk.Error != "" {
			emit(ctx, eventChan, errorEvent(fmt.Errorf("%w: ollama: %s", ErrBackendProtocol, chunk.Error)))
			return
		}

		// /api/chat puts the text under message.content; /api/generate under response.
		text := chunk.Response
		if chunk.Message != nil {
			text = chunk.Message.Content
		}
		if text != "" {
			fullContent.WriteString(text)
			if !emit(ctx, eventChan, StreamEvent{Type: EventDelta, Content: text}) {
				return
			}
		}

		if chunk.Done {
			emit(ctx, eventChan, StreamEvent{
				Type: EventDone,
				Response: &CompletionResponse{
					Content:  fullContent.String(),
					Model:    model,
					Duration: time.Since(start),
					Usage: Usage{
						InputTokens:  chunk.PromptEvalCount,
						OutputTokens: chunk.EvalCount,
					},
				},
			})
			return
		}
	}

	emit(ctx, eventChan, errorEvent(interrupted(o.Name(), scanner.Err())))
}

// hostOnly strips any path from an endpoint URL, keeping scheme and host.
func hostOnly(raw string) string {
	raw = strings.TrimSuffix(raw, "/")
	scheme := ""
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme, raw = raw[:i+3], raw[i+3:]
	}
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return scheme + raw
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// API request/response structures

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatChunk struct {
	Model           string   `json:"model"`
	CreatedAt       string   `json:"created_at"`
	Message         *Message `json:"message,omitempty"`
	Response        string   `json:"response,omitempty"`
	Done            bool     `json:"done"`
	Error           string   `json:"error,omitempty"`
	TotalDuration   int64    `json:"total_duration"`
	PromptEvalCount int      `json:"prompt_eval_count"`
	EvalCount       int      `json:"eval_count"`
}
