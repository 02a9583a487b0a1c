package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos/dberr"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos/jobs"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos/mail"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos/tasks"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos/user"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo

type EmailRepo = mail.EmailRepo
type ReceiptRepo = mail.ReceiptRepo

type TaskRepo = tasks.TaskRepo
type FeaturesRepo = tasks.FeaturesRepo
type UserModelRepo = tasks.UserModelRepo

type JobRunRepo = jobs.JobRunRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }

func NewEmailRepo(db *gorm.DB, baseLog *logger.Logger) EmailRepo {
	return mail.NewEmailRepo(db, baseLog)
}
func NewReceiptRepo(db *gorm.DB, baseLog *logger.Logger) ReceiptRepo {
	return mail.NewReceiptRepo(db, baseLog)
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo { return tasks.NewTaskRepo(db, baseLog) }
func NewFeaturesRepo(db *gorm.DB, baseLog *logger.Logger) FeaturesRepo {
	return tasks.NewFeaturesRepo(db, baseLog)
}
func NewUserModelRepo(db *gorm.DB, baseLog *logger.Logger) UserModelRepo {
	return tasks.NewUserModelRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

// MapError classifies infrastructure errors into domain codes.
func MapError(op string, err error) error { return dberr.MapError(op, err) }
