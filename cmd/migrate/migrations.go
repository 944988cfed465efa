package main

import (
	"gorm.io/gorm"

	"github.com/branchcanvas/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.CanvasSnapshot{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	if err := enablePgcryptoExtension(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addMessageTreeIndexes,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// enablePgcryptoExtension ensures gen_random_uuid() is available for
// primary key defaults before the tables are created.
func enablePgcryptoExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addMessageTreeIndexes speeds up the recursive ancestor and subtree
// queries, which walk parent_id within a conversation.
func addMessageTreeIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_conversation_parent
		ON messages(conversation_id, parent_id)
		WHERE deleted_at IS NULL
	`).Error; err != nil {
		return err
	}

	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_parent
		ON messages(parent_id)
		WHERE deleted_at IS NULL
	`).Error
}
