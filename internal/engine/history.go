package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/branchcanvas/engine/internal/completion"
	"github.com/branchcanvas/engine/internal/models"
)

// BuildContext reconstructs the ordered message context for a model call:
// the ancestor chain of the given message, oldest first, mapped to
// role-tagged entries. The message itself is excluded. The completion
// gateway is stateless per call, so chronological order is what makes
// continuations coherent.
func (e *Engine) BuildContext(ctx context.Context, messageID uuid.UUID) ([]completion.Message, error) {
	parents, err := e.msgs.GetParentMessages(ctx, messageID)
	if err != nil {
		return nil, err
	}

	// immediate-parent-first -> oldest-first
	out := make([]completion.Message, 0, len(parents))
	for i := len(parents) - 1; i >= 0; i-- {
		out = append(out, toCompletionMessage(parents[i]))
	}
	return out, nil
}

// ContextForMessage is BuildContext plus the message itself as the final
// entry: the full history up to and including messageID, oldest first.
func (e *Engine) ContextForMessage(ctx context.Context, messageID uuid.UUID) ([]completion.Message, error) {
	chain, err := e.BuildContext(ctx, messageID)
	if err != nil {
		return nil, err
	}
	var self models.Message
	if err := e.msgs.GetByID(ctx, messageID, &self); err != nil {
		return nil, err
	}
	return append(chain, toCompletionMessage(self)), nil
}

func toCompletionMessage(m models.Message) completion.Message {
	role := completion.RoleAssistant
	if m.Role == models.RoleUser {
		role = completion.RoleUser
	}
	return completion.Message{Role: role, Content: m.Content}
}
