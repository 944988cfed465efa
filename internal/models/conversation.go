package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation groups messages sharing one root context. The title starts as
// the first question verbatim; a background task may replace it with a
// generated summary.
type Conversation struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id" validate:"required"`
	Title     string         `gorm:"not null" json:"title" validate:"required"`
	Messages  []Message      `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
