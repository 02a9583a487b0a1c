package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Identity
		// =========================
		&types.User{},

		// =========================
		// Mail
		// =========================
		&types.Email{},
		&types.MailReceipt{},

		// =========================
		// Tasks + scoring
		// =========================
		&types.Task{},
		&types.Features{},
		&types.UserModel{},

		// =========================
		// Jobs / worker
		// =========================
		&types.JobRun{},
	)
}

// EnsureConstraints adds the ownership foreign keys. Migration runs with
// DisableForeignKeyConstraintWhenMigrating, so cascades are declared here.
func EnsureConstraints(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"fk_email_user", `ALTER TABLE email ADD CONSTRAINT fk_email_user FOREIGN KEY (user_id) REFERENCES app_user(id) ON DELETE CASCADE`},
		{"fk_mail_receipt_user", `ALTER TABLE mail_receipt ADD CONSTRAINT fk_mail_receipt_user FOREIGN KEY (user_id) REFERENCES app_user(id) ON DELETE CASCADE`},
		{"fk_task_user", `ALTER TABLE task ADD CONSTRAINT fk_task_user FOREIGN KEY (user_id) REFERENCES app_user(id) ON DELETE CASCADE`},
		{"fk_task_features_task", `ALTER TABLE task_features ADD CONSTRAINT fk_task_features_task FOREIGN KEY (task_id) REFERENCES task(id) ON DELETE CASCADE`},
		{"fk_task_features_user", `ALTER TABLE task_features ADD CONSTRAINT fk_task_features_user FOREIGN KEY (user_id) REFERENCES app_user(id) ON DELETE CASCADE`},
		{"fk_user_model_user", `ALTER TABLE user_model ADD CONSTRAINT fk_user_model_user FOREIGN KEY (user_id) REFERENCES app_user(id) ON DELETE CASCADE`},
	}
	for _, st := range stmts {
		var n int64
		if err := db.Raw(`SELECT count(*) FROM pg_constraint WHERE conname = ?`, st.name).Scan(&n).Error; err != nil {
			return fmt.Errorf("check %s: %w", st.name, err)
		}
		if n > 0 {
			continue
		}
		if err := db.Exec(st.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}
	return nil
}

func EnsureIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_task_user_message
		ON task (user_id, message_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_task_user_message: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_run_runnable
		ON job_run (status, created_at)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_run_runnable: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := EnsureIndexes(s.db); err != nil {
		return err
	}
	if err := EnsureConstraints(s.db); err != nil {
		return err
	}
	s.log.Info("Postgres migration complete")
	return nil
}
