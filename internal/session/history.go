package session

import (
	"github.com/soyeahso/chatrelay/internal/llm"
	"github.com/soyeahso/chatrelay/internal/persona"
)

// History is one user's bounded conversation buffer plus active persona.
// It is not safe for concurrent use; the owning state's lock guards it.
type History struct {
	limit   int
	persona persona.Persona
	buf     []llm.Message
}

// NewHistory creates an empty history holding at most limit messages.
func NewHistory(limit int, p persona.Persona) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{limit: limit, persona: p, buf: make([]llm.Message, 0, limit)}
}

// Append adds msg, evicting the oldest entries so Len never exceeds the limit.
func (h *History) Append(msg llm.Message) {
	if len(h.buf) >= h.limit {
		drop := len(h.buf) - h.limit + 1
		h.buf = append(h.buf[:0], h.buf[drop:]...)
	}
	h.buf = append(h.buf, msg)
}

// Snapshot returns the persona's system prompt followed by the buffer,
// oldest first. The result is a fresh slice.
func (h *History) Snapshot() []llm.Message {
	out := make([]llm.Message, 0, len(h.buf)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: h.persona.SystemPrompt})
	return append(out, h.buf...)
}

// Clear empties the buffer. The persona is kept.
func (h *History) Clear() {
	h.buf = h.buf[:0]
}

// SetPersona switches the persona used by later snapshots.
func (h *History) SetPersona(p persona.Persona) {
	h.persona = p
}

// Persona returns the active persona.
func (h *History) Persona() persona.Persona { return h.persona }

// Len returns the number of buffered messages.
func (h *History) Len() int { return len(h.buf) }
