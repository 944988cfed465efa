package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/branchcanvas/engine/internal/completion"
	"github.com/branchcanvas/engine/internal/models"
	"github.com/branchcanvas/engine/internal/repository"
	"github.com/branchcanvas/engine/pkg/logger"
)

// TypeConversationTitle names the title-generation task.
const TypeConversationTitle = "conversation:title"

const titlePrompt = "Summarize the following question as a conversation title of at most six words. Reply with the title only.\n\nQuestion: "

// TitlePayload is the task payload for conversation title generation.
type TitlePayload struct {
	ConversationID string `json:"conversation_id"`
}

// NewTitleTask builds the asynq task for a conversation.
func NewTitleTask(conversationID uuid.UUID) (*asynq.Task, error) {
	b, err := json.Marshal(TitlePayload{ConversationID: conversationID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeConversationTitle, b), nil
}

// TitleTaskHandler replaces a fresh conversation's verbatim-question title
// with a short generated summary.
type TitleTaskHandler struct {
	convs   repository.ConversationRepository
	gateway completion.Gateway
}

func NewTitleTaskHandler(convs repository.ConversationRepository, gateway completion.Gateway) *TitleTaskHandler {
	return &TitleTaskHandler{convs: convs, gateway: gateway}
}

func (h *TitleTaskHandler) HandleTitle(ctx context.Context, t *asynq.Task) error {
	var p TitlePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid title task payload", zap.Error(err))
		return err
	}
	id, err := uuid.Parse(p.ConversationID)
	if err != nil {
		logger.L().Error("invalid conversation id in task", zap.Error(err))
		return err
	}

	var conv models.Conversation
	if err := h.convs.GetByID(ctx, id, &conv); err != nil {
		logger.L().Error("get conversation failed", zap.Error(err))
		return err
	}

	title, err := h.gateway.Complete(ctx, []completion.Message{
		{Role: completion.RoleUser, Content: titlePrompt + conv.Title},
	})
	if err != nil {
		logger.L().Error("title completion failed", zap.String("conversation_id", id.String()), zap.Error(err))
		return err
	}
	if title == "" {
		return nil
	}

	if err := h.convs.UpdateTitle(ctx, id, title); err != nil {
		logger.L().Error("update conversation title failed", zap.Error(err))
		return err
	}

	logger.L().Info("conversation title generated", zap.String("conversation_id", id.String()))
	return nil
}
