// Package llm provides the chat-completion client used by the router,
// the extractor and the coach.
package llm

import "time"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant are shorthands for building message lists.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// CallOptions tune a single completion.
type CallOptions struct {
	// JSON asks the provider to constrain output to a JSON object.
	JSON        bool
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the unified response from any LLM provider.
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage (provider-neutral, zero when unreported)
	InputTokens  int
	OutputTokens int

	Duration time.Duration
}
