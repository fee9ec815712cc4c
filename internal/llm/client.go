// Package llm defines the completion capability the pipeline depends on
// and a Gemini-backed implementation of it. Streaming providers are
// buffered: by the time Complete returns, the full text is in hand.
package llm

import "context"

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles understood by every provider the pipeline talks to.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client is the completion capability. Implementations own their rate
// limiting and transport; retry policy lives with the caller.
type Client interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}

// UserMessage builds a single-turn user message slice, the common case.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}
