package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/branchcanvas/engine/internal/models"
	appErr "github.com/branchcanvas/engine/pkg/errors"
)

type ConversationRepository interface {
	BaseRepository[models.Conversation]
	// ListByUser returns the user's conversations, optionally preloading
	// their messages ordered by creation time.
	ListByUser(ctx context.Context, userID uuid.UUID, includeMessages bool) ([]models.Conversation, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
}

type conversationRepository struct {
	BaseRepository[models.Conversation]
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{BaseRepository: NewBaseRepository[models.Conversation](db), db: db}
}

func (r *conversationRepository) ListByUser(ctx context.Context, userID uuid.UUID, includeMessages bool) ([]models.Conversation, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC")
	if includeMessages {
		q = q.Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("messages.created_at ASC")
		})
	}
	var out []models.Conversation
	if err := q.Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list conversations failed")
	}
	return out, nil
}

func (r *conversationRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	res := r.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update conversation title failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "conversation not found")
	}
	return nil
}
