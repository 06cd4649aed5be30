package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return ScriptedStream("mock ", "stream response"), nil
}

// ScriptedStream returns a closed channel that yields each chunk as a delta
// followed by a done event carrying the concatenation.
func ScriptedStream(chunks ...string) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(chunks)+1)
	full := ""
	for _, c := range chunks {
		ch <- StreamEvent{Type: EventDelta, Content: c}
		full += c
	}
	ch <- StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: full}}
	close(ch)
	return ch
}
