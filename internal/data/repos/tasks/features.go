package tasks

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos/dberr"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type FeaturesRepo interface {
	Create(dbc dbctx.Context, rows []*types.Features) error
	GetByTaskID(dbc dbctx.Context, taskID uuid.UUID) (*types.Features, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Features, error)
}

type featuresRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeaturesRepo(db *gorm.DB, baseLog *logger.Logger) FeaturesRepo {
	return &featuresRepo{db: db, log: baseLog.With("repo", "FeaturesRepo")}
}

// Create is insert-only; a second write for the same task is ignored.
func (r *featuresRepo) Create(dbc dbctx.Context, rows []*types.Features) error {
	if len(rows) == 0 {
		return nil
	}
	err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error
	return dberr.MapError("FeaturesRepo.Create", err)
}

func (r *featuresRepo) GetByTaskID(dbc dbctx.Context, taskID uuid.UUID) (*types.Features, error) {
	if taskID == uuid.Nil {
		return nil, nil
	}
	var f types.Features
	if err := dbc.Conn(r.db).Where("task_id = ?", taskID).Limit(1).Find(&f).Error; err != nil {
		return nil, dberr.MapError("FeaturesRepo.GetByTaskID", err)
	}
	if f.ID == uuid.Nil {
		return nil, nil
	}
	return &f, nil
}

func (r *featuresRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Features, error) {
	var out []*types.Features
	if userID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, dberr.MapError("FeaturesRepo.ListByUser", err)
	}
	return out, nil
}
