package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CanvasSnapshot stores a versioned save of a user's canvas: the node/edge
// collections with their laid-out positions, as jsonb. Loading the current
// snapshot lets the browser restore the last view without re-running layout.
type CanvasSnapshot struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_snapshots_user_version,unique,priority:1" json:"user_id" validate:"required"`
	Version   int            `gorm:"not null;index:idx_snapshots_user_version,unique,priority:2" json:"version" validate:"gte=1"`
	Nodes     datatypes.JSON `gorm:"type:jsonb" json:"nodes" validate:"required"`
	Edges     datatypes.JSON `gorm:"type:jsonb" json:"edges" validate:"required"`
	IsCurrent bool           `gorm:"not null;default:false;index" json:"is_current"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
