package llm

import (
	"sync"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// History is a conversation transcript with a fixed system prompt. Only the
// most recent maxTurns user/assistant pairs are kept.
type History struct {
	mu       sync.Mutex
	system   string
	messages []ttypes.Message
	maxTurns int
}

// NewHistory creates a history. maxTurns <= 0 keeps everything.
func NewHistory(systemPrompt string, maxTurns int) *History {
	return &History{system: systemPrompt, maxTurns: maxTurns}
}

// Add appends a message and drops the oldest turns beyond the limit.
func (h *History) Add(role ttypes.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, ttypes.Message{Role: role, Content: content})
	if h.maxTurns > 0 {
		if excess := len(h.messages) - 2*h.maxTurns; excess > 0 {
			h.messages = append([]ttypes.Message(nil), h.messages[excess:]...)
		}
	}
}

// Messages returns a copy of the history, system prompt first.
func (h *History) Messages() []ttypes.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ttypes.Message, 0, len(h.messages)+1)
	if h.system != "" {
		out = append(out, ttypes.Message{Role: ttypes.RoleSystem, Content: h.system})
	}
	return append(out, h.messages...)
}

// Len returns the number of non-system messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Reset forgets everything but the system prompt.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
