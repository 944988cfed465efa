// Package completion abstracts the language-model backend. The gateway is
// stateless per call: every request carries the full ordered conversational
// history, oldest first.
package completion

import "context"

// Roles accepted by the gateway.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of the context sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Gateway produces a completion for an ordered message context.
type Gateway interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
