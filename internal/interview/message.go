package interview

import "github.com/spigell/aura-hire/internal/ai"

// ChatMessage is one committed turn of an interview transcript.
type ChatMessage struct {
	ID      string  `json:"id"`
	Role    ai.Role `json:"role"`
	Content string  `json:"content"`
	// Timestamp is in Unix milliseconds and strictly increases within a transcript.
	Timestamp int64 `json:"timestamp"`
}

// State is the processing state of a session.
type State int

const (
	StateIdle State = iota
	// StateAwaitingReply is entered once the user message is recorded and
	// lasts until the first reply fragment arrives.
	StateAwaitingReply
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

func toAIMessages(messages []ChatMessage) []ai.Message {
	out := make([]ai.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
