package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos/dberr"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type UserRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.User, error)
	GetByGrantID(dbc dbctx.Context, grantID string) (*types.User, error)
	SetGrant(dbc dbctx.Context, id uuid.UUID, grantID, mailEmail string) error
	UpdatePersonality(dbc dbctx.Context, id uuid.UUID, personality datatypes.JSON) error
	MarkPersonalityRun(dbc dbctx.Context, id uuid.UUID, runKey string) error
	UpdateDomainInf(dbc dbctx.Context, id uuid.UUID, domainInf string) error
	SetTaskGen(dbc dbctx.Context, id uuid.UUID, on bool) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var u types.User
	if err := dbc.Conn(ur.db).Where("id = ?", id).Limit(1).Find(&u).Error; err != nil {
		return nil, dberr.MapError("UserRepo.GetByID", err)
	}
	if u.ID == uuid.Nil {
		return nil, nil
	}
	return &u, nil
}

// GetByIDForUpdate row-locks the user; it only makes sense inside a transaction.
func (ur *userRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var u types.User
	err := dbc.Conn(ur.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&u).Error
	if err != nil {
		return nil, dberr.MapError("UserRepo.GetByIDForUpdate", err)
	}
	if u.ID == uuid.Nil {
		return nil, nil
	}
	return &u, nil
}

func (ur *userRepo) GetByGrantID(dbc dbctx.Context, grantID string) (*types.User, error) {
	if grantID == "" {
		return nil, nil
	}
	var u types.User
	if err := dbc.Conn(ur.db).Where("grant_id = ?", grantID).Limit(1).Find(&u).Error; err != nil {
		return nil, dberr.MapError("UserRepo.GetByGrantID", err)
	}
	if u.ID == uuid.Nil {
		return nil, nil
	}
	return &u, nil
}

func (ur *userRepo) SetGrant(dbc dbctx.Context, id uuid.UUID, grantID, mailEmail string) error {
	updates := map[string]any{"grant_id": grantID, "updated_at": time.Now()}
	if mailEmail != "" {
		updates["mail_email"] = mailEmail
	}
	return ur.update(dbc, "UserRepo.SetGrant", id, updates)
}

func (ur *userRepo) UpdatePersonality(dbc dbctx.Context, id uuid.UUID, personality datatypes.JSON) error {
	return ur.update(dbc, "UserRepo.UpdatePersonality", id, map[string]any{
		"personality": personality,
		"updated_at":  time.Now(),
	})
}

func (ur *userRepo) MarkPersonalityRun(dbc dbctx.Context, id uuid.UUID, runKey string) error {
	return ur.update(dbc, "UserRepo.MarkPersonalityRun", id, map[string]any{
		"personality_run": runKey,
		"updated_at":      time.Now(),
	})
}

func (ur *userRepo) UpdateDomainInf(dbc dbctx.Context, id uuid.UUID, domainInf string) error {
	return ur.update(dbc, "UserRepo.UpdateDomainInf", id, map[string]any{
		"domain_inf": domainInf,
		"updated_at": time.Now(),
	})
}

func (ur *userRepo) SetTaskGen(dbc dbctx.Context, id uuid.UUID, on bool) error {
	return ur.update(dbc, "UserRepo.SetTaskGen", id, map[string]any{
		"task_gen":   on,
		"updated_at": time.Now(),
	})
}

func (ur *userRepo) update(dbc dbctx.Context, op string, id uuid.UUID, updates map[string]any) error {
	if id == uuid.Nil {
		return nil
	}
	err := dbc.Conn(ur.db).
		Model(&types.User{}).
		Where("id = ?", id).
		Updates(updates).Error
	return dberr.MapError(op, err)
}
