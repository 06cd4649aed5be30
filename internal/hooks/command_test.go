package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandHandler_ReceivesPayload(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	h := CommandHandler(config.HookEntry{Command: `printf '%s ' "$CHATRELAY_EVENT" > ` + out + ` && cat >> ` + out})

	err := h(context.Background(), Payload{Event: EventNudgeSent, Data: map[string]any{"text": "hi"}})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "nudge_sent "))
	assert.Contains(t, string(data), `"text":"hi"`)
}

func TestCommandHandler_Failure(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "echo boom >&2; exit 3"})
	err := h(context.Background(), Payload{Event: EventRelayStart})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCommandHandler_Timeout(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "sleep 5", Timeout: 50})
	err := h(context.Background(), Payload{Event: EventRelayStart})
	assert.Error(t, err)
}

func TestRegisterCommands(t *testing.T) {
	m := testManager()
	n := m.RegisterCommands(config.HooksConfig{
		EventNudgeSent:  {{Command: "true"}, {Command: "true"}},
		EventLevelUp:    {{Command: "true"}},
		"gateway_start": {{Command: "true"}},
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, m.Count(EventNudgeSent))
	assert.Equal(t, 1, m.Count(EventLevelUp))
	assert.Equal(t, 0, m.Count("gateway_start"))
}

func TestRegisteredCommandsRunInBackground(t *testing.T) {
	out := filepath.Join(t.TempDir(), "ran")
	m := testManager()
	m.RegisterCommands(config.HooksConfig{
		EventRelayStop: {{Command: "sleep 0.1; touch " + out}},
	})

	m.Emit(context.Background(), EventRelayStop, nil)
	require.True(t, m.Wait(5*time.Second))
	assert.FileExists(t, out)
}
