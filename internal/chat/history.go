package chat

import "github.com/ollavox/ollavox/internal/ollama"

// History is the ordered transcript of the running conversation.
type History struct {
	turns []ollama.Message
}

func NewHistory() *History {
	return &History{}
}

// Append adds a turn to the end of the conversation.
func (h *History) Append(role, content string) {
	h.turns = append(h.turns, ollama.Message{Role: role, Content: content})
}

// DropLast removes the most recent turn. Used to roll back a user turn whose
// request failed, so a retry sees the history it would have seen originally.
func (h *History) DropLast() {
	if len(h.turns) > 0 {
		h.turns = h.turns[:len(h.turns)-1]
	}
}

// Messages returns a copy of the conversation in order.
func (h *History) Messages() []ollama.Message {
	out := make([]ollama.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	return len(h.turns)
}
