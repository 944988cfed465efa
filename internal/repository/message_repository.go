package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/branchcanvas/engine/internal/models"
	appErr "github.com/branchcanvas/engine/pkg/errors"
)

type MessageRepository interface {
	BaseRepository[models.Message]
	// CreateMessage validates the conversation (and parent, when given)
	// exist before inserting, so referential errors surface as typed
	// rejections rather than constraint violations.
	CreateMessage(ctx context.Context, content, role string, conversationID uuid.UUID, parentID *uuid.UUID) (*models.Message, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content, role string) (*models.Message, error)
	// GetParentMessages returns the ancestor chain of a message, immediate
	// parent first, excluding the message itself.
	GetParentMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error)
	// DeleteWithChildren removes the message and every transitive child in
	// one call. Deleting an id that no longer exists is a no-op.
	DeleteWithChildren(ctx context.Context, id uuid.UUID) error
}

type messageRepository struct {
	BaseRepository[models.Message]
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{BaseRepository: NewBaseRepository[models.Message](db), db: db}
}

func (r *messageRepository) CreateMessage(ctx context.Context, content, role string, conversationID uuid.UUID, parentID *uuid.UUID) (*models.Message, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).Select("id").First(&conv, "id = ?", conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.New(appErr.CodeNotFound, "conversation does not exist").WithMeta("conversation_id", conversationID)
		}
		return nil, appErr.Wrap(err, appErr.CodeInternal, "check conversation failed")
	}

	if parentID != nil {
		var parent models.Message
		if err := r.db.WithContext(ctx).Select("id").First(&parent, "id = ?", *parentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, appErr.New(appErr.CodeNotFound, "parent message does not exist").WithMeta("parent_id", *parentID)
			}
			return nil, appErr.Wrap(err, appErr.CodeInternal, "check parent message failed")
		}
	}

	m := &models.Message{
		ConversationID: conversationID,
		ParentID:       parentID,
		Role:           role,
		Content:        content,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "create message failed")
	}
	return m, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id uuid.UUID, content, role string) (*models.Message, error) {
	var m models.Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.New(appErr.CodeNotFound, "message not found")
		}
		return nil, appErr.Wrap(err, appErr.CodeInternal, "get message failed")
	}
	m.Content = content
	m.Role = role
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "update message failed")
	}
	return &m, nil
}

// ancestorQuery walks parent_id links upward. Depth 1 is the immediate
// parent; ordering by depth gives the chain parent-first.
const ancestorQuery = `
WITH RECURSIVE ancestors AS (
    SELECT m.*, 1 AS depth
    FROM messages m
    WHERE m.id = (SELECT parent_id FROM messages WHERE id = ? AND deleted_at IS NULL)
      AND m.deleted_at IS NULL
    UNION ALL
    SELECT m.*, a.depth + 1
    FROM messages m
    JOIN ancestors a ON m.id = a.parent_id
    WHERE m.deleted_at IS NULL
)
SELECT id, conversation_id, parent_id, role, content, created_at, updated_at
FROM ancestors
ORDER BY depth ASC`

func (r *messageRepository) GetParentMessages(ctx context.Context, id uuid.UUID) ([]models.Message, error) {
	var out []models.Message
	if err := r.db.WithContext(ctx).Raw(ancestorQuery, id).Scan(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "get parent messages failed")
	}
	return out, nil
}

const subtreeQuery = `
WITH RECURSIVE subtree AS (
    SELECT id FROM messages WHERE id = ? AND deleted_at IS NULL
    UNION ALL
    SELECT m.id
    FROM messages m
    JOIN subtree s ON m.parent_id = s.id
    WHERE m.deleted_at IS NULL
)
SELECT id FROM subtree`

func (r *messageRepository) DeleteWithChildren(ctx context.Context, id uuid.UUID) error {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Raw(subtreeQuery, id).Scan(&ids).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "collect message subtree failed")
	}
	if len(ids) == 0 {
		// already gone, treat as success
		return nil
	}
	if err := r.db.WithContext(ctx).Delete(&models.Message{}, "id IN ?", ids).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "delete message subtree failed")
	}
	return nil
}
