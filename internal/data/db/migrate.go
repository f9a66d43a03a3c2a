package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&mix.Thread{},
		&mix.Message{},
		&mix.Version{},
		&mix.Run{},
		&mix.PlanDraft{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureIndexes(db)
}

// EnsureIndexes adds the partial indexes AutoMigrate cannot express. The
// syntax is accepted by both postgres and sqlite.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_mix_chat_message_idem
			ON mix_chat_message (thread_id, idempotency_key)
			WHERE role = 'user' AND idempotency_key <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_mix_chat_run_active
			ON mix_chat_run (thread_id, status)
			WHERE status IN ('queued', 'running')`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
