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

// OpenAIAPIClient streams from any OpenAI-compatible /v1/chat/completions
// endpoint (llama.cpp server, vLLM, LM Studio, OpenAI itself).
type OpenAIAPIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIAPIClient creates a client for an OpenAI-compatible server.
// apiKey may be empty for local servers that do not check it.
func NewOpenAIAPIClient(baseURL, apiKey, model string, headerTimeout time.Duration) *OpenAIAPIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIAPIClient{
		baseURL: hostOnly(baseURL),
		apiKey:  apiKey,
		model:   model,
		client:  newHTTPClient(headerTimeout),
	}
}

// Name returns the provider name.
func (c *OpenAIAPIClient) Name() string {
	return "openai"
}

// Stream sends a streaming chat completion request.
func (c *OpenAIAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	payload, err := json.Marshal(openAIChatRequest{
		Model:       model,
		Messages:    req.Messages,
		Stream:      true,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: request creation failed: %v", ErrBackendUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	stream, err := openStream(ctx, c.client, c.Name(), httpReq)
	if err != nil {
		return nil, err
	}

	eventChan := make(chan StreamEvent)
	go c.readStream(ctx, stream, model, eventChan)
	return eventChan, nil
}

func (c *OpenAIAPIClient) readStream(ctx context.Context, body io.ReadCloser, model string, eventChan chan<- StreamEvent) {
	defer close(eventChan)
	defer body.Close()

	start := time.Now()
	scanner := newStreamLineScanner(body)
	scanner.keepAlive = heartbeats(ctx, eventChan)
	var fullContent strings.Builder
	var usage Usage

	done := func() {
		emit(ctx, eventChan, StreamEvent{
			Type: EventDone,
			Response: &CompletionResponse{
				Content:  fullContent.String(),
				Model:    model,
				Usage:    usage,
				Duration: time.Since(start),
			},
		})
	}

	for scanner.Scan() {
		data := scanner.Data()
		if data == "[DONE]" {
			done()
			return
		}

		var chunk openAIChatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			emit(ctx, eventChan, errorEvent(fmt.Errorf("%w: openai: undecodable event %q: %v", ErrBackendProtocol, truncate(data, 80), err)))
			return
		}
		if chunk.Error != nil {
			emit(ctx, eventChan, errorEvent(fmt.Errorf("%w: openai: %s", ErrBackendProtocol, chunk.Error.Message)))
			return
		}
		if chunk.Usage != nil {
			usage = Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if text := choice.Delta.Content; text != "" {
			fullContent.WriteString(text)
			if !emit(ctx, eventChan, StreamEvent{Type: EventDelta, Content: text}) {
				return
			}
		}
		// Some servers never send [DONE]; a finish reason is terminal too.
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			done()
			return
		}
	}

	emit(ctx, eventChan, errorEvent(interrupted(c.Name(), scanner.Err())))
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type openAIChatChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}
