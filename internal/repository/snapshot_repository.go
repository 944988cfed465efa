package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/branchcanvas/engine/internal/models"
	appErr "github.com/branchcanvas/engine/pkg/errors"
)

type SnapshotRepository interface {
	BaseRepository[models.CanvasSnapshot]
	// SaveNew persists a snapshot as the next version for the user and marks
	// it current, clearing the previous current flag in one transaction.
	SaveNew(ctx context.Context, snap *models.CanvasSnapshot) error
	GetCurrent(ctx context.Context, userID uuid.UUID, dest *models.CanvasSnapshot) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CanvasSnapshot, error)
}

type snapshotRepository struct {
	BaseRepository[models.CanvasSnapshot]
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{BaseRepository: NewBaseRepository[models.CanvasSnapshot](db), db: db}
}

func (r *snapshotRepository) SaveNew(ctx context.Context, snap *models.CanvasSnapshot) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return appErr.Wrap(tx.Error, appErr.CodeInternal, "begin transaction failed")
	}

	var maxVersion int
	if err := tx.Model(&models.CanvasSnapshot{}).Where("user_id = ?", snap.UserID).
		Select("COALESCE(MAX(version),0)").Scan(&maxVersion).Error; err != nil {
		tx.Rollback()
		return appErr.Wrap(err, appErr.CodeInternal, "compute snapshot version failed")
	}

	if err := tx.Model(&models.CanvasSnapshot{}).Where("user_id = ? AND is_current = true", snap.UserID).
		Update("is_current", false).Error; err != nil {
		tx.Rollback()
		return appErr.Wrap(err, appErr.CodeInternal, "clear current snapshot failed")
	}

	snap.Version = maxVersion + 1
	snap.IsCurrent = true
	if err := tx.Create(snap).Error; err != nil {
		tx.Rollback()
		return appErr.Wrap(err, appErr.CodeInternal, "create snapshot failed")
	}

	if err := tx.Commit().Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "commit transaction failed")
	}
	return nil
}

func (r *snapshotRepository) GetCurrent(ctx context.Context, userID uuid.UUID, dest *models.CanvasSnapshot) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_current = true", userID).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no current snapshot")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get current snapshot failed")
	}
	return nil
}

func (r *snapshotRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CanvasSnapshot, error) {
	var out []models.CanvasSnapshot
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("version DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list snapshots failed")
	}
	return out, nil
}
