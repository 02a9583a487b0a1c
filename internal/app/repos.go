package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type Repos struct {
	Users      repos.UserRepo
	Emails     repos.EmailRepo
	Receipts   repos.ReceiptRepo
	Tasks      repos.TaskRepo
	Features   repos.FeaturesRepo
	UserModels repos.UserModelRepo
	JobRuns    repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Users:      repos.NewUserRepo(db, log),
		Emails:     repos.NewEmailRepo(db, log),
		Receipts:   repos.NewReceiptRepo(db, log),
		Tasks:      repos.NewTaskRepo(db, log),
		Features:   repos.NewFeaturesRepo(db, log),
		UserModels: repos.NewUserModelRepo(db, log),
		JobRuns:    repos.NewJobRunRepo(db, log),
	}
}
