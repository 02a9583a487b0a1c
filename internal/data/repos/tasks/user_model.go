package tasks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos/dberr"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type UserModelRepo interface {
	Get(dbc dbctx.Context, userID uuid.UUID) (*types.UserModel, error)
	Upsert(dbc dbctx.Context, m *types.UserModel) error
}

type userModelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserModelRepo(db *gorm.DB, baseLog *logger.Logger) UserModelRepo {
	return &userModelRepo{db: db, log: baseLog.With("repo", "UserModelRepo")}
}

func (r *userModelRepo) Get(dbc dbctx.Context, userID uuid.UUID) (*types.UserModel, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var m types.UserModel
	if err := dbc.Conn(r.db).Where("user_id = ?", userID).Limit(1).Find(&m).Error; err != nil {
		return nil, dberr.MapError("UserModelRepo.Get", err)
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

func (r *userModelRepo) Upsert(dbc dbctx.Context, m *types.UserModel) error {
	if m == nil || m.UserID == uuid.Nil {
		return nil
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.UpdatedAt = time.Now()
	err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"utility_model", "cost_model", "mapping_version", "updates", "updated_at"}),
		}).
		Create(m).Error
	return dberr.MapError("UserModelRepo.Upsert", err)
}
