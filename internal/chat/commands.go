package chat

import "strings"

// Kind classifies one line of user input from the interactive prompt.
type Kind int

const (
	KindChat Kind = iota
	KindEmpty
	KindQuit
	KindVoice
)

// Input is a parsed prompt line. Text carries the message for KindChat and
// the requested tier for KindVoice.
type Input struct {
	Kind Kind
	Text string
}

// ParseInput classifies a raw prompt line. The quit keywords and the voice
// prefix are matched case-insensitively, but the tier keeps its original
// case so an unknown-tier warning can echo exactly what the user typed.
func ParseInput(line string) Input {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Input{Kind: KindEmpty}
	}
	lower := strings.ToLower(trimmed)
	switch lower {
	case "quit", "exit", "bye":
		return Input{Kind: KindQuit}
	}
	if strings.HasPrefix(lower, "voice:") {
		tier := strings.TrimSpace(trimmed[len("voice:"):])
		return Input{Kind: KindVoice, Text: tier}
	}
	return Input{Kind: KindChat, Text: trimmed}
}
