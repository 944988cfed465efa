package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message roles mirror the completion gateway's chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted unit of conversational content. ParentID forms the
// reply tree: nil for the root question of a conversation, otherwise the
// message this one replies to (or was generated from).
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;index;not null" json:"conversation_id" validate:"required"`
	ParentID       *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Role           string         `gorm:"type:varchar(16);not null" json:"role" validate:"required,oneof=user assistant"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
