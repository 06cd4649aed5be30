package session

import (
	"fmt"
	"testing"

	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/persona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryBoundedFIFO(t *testing.T) {
	h := NewHistory(3, persona.Persona{Name: "p", SystemPrompt: "sys"})
	for i := range 5 {
		h.Append(llm.Message{Role: llm.RoleUser, Content: fmt.Sprint(i)})
	}
	assert.Equal(t, 3, h.Len())

	snap := h.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "sys"}, snap[0])
	assert.Equal(t, "2", snap[1].Content)
	assert.Equal(t, "4", snap[3].Content)
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := NewHistory(2, persona.Persona{Name: "p", SystemPrompt: "sys"})
	h.Append(llm.Message{Role: llm.RoleUser, Content: "a"})
	snap := h.Snapshot()
	snap[1].Content = "changed"
	assert.Equal(t, "a", h.Snapshot()[1].Content)
}

func TestHistoryClearKeepsPersona(t *testing.T) {
	h := NewHistory(2, persona.Persona{Name: "p", SystemPrompt: "sys"})
	h.Append(llm.Message{Role: llm.RoleUser, Content: "a"})
	h.SetPersona(persona.Persona{Name: "pirate", SystemPrompt: "arr"})
	h.Clear()

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, "pirate", h.Persona().Name)
	assert.Equal(t, []llm.Message{{Role: llm.RoleSystem, Content: "arr"}}, h.Snapshot())
}

func TestHistoryMinimumLimit(t *testing.T) {
	h := NewHistory(0, persona.Persona{})
	h.Append(llm.Message{Content: "a"})
	h.Append(llm.Message{Content: "b"})
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, "b", h.Snapshot()[1].Content)
}
