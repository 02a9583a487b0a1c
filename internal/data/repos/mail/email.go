package mail

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

type EmailRepo interface {
	Upsert(dbc dbctx.Context, email *types.Email) error
	GetByMessageID(dbc dbctx.Context, userID uuid.UUID, messageID string) (*types.Email, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Email, error)
	SetClassificationIfEmpty(dbc dbctx.Context, userID uuid.UUID, messageID, classification string) (bool, error)
}

type emailRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmailRepo(db *gorm.DB, baseLog *logger.Logger) EmailRepo {
	return &emailRepo{db: db, log: baseLog.With("repo", "EmailRepo")}
}

// Upsert inserts the email or refreshes its mutable columns (snippet, body,
// classification). Identity columns are never rewritten.
func (r *emailRepo) Upsert(dbc dbctx.Context, email *types.Email) error {
	if email == nil || email.MessageID == "" {
		return nil
	}
	if email.ID == uuid.Nil {
		email.ID = uuid.New()
	}
	err := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"snippet":        gorm.Expr("EXCLUDED.snippet"),
				"body":           gorm.Expr("EXCLUDED.body"),
				"classification": gorm.Expr("COALESCE(NULLIF(EXCLUDED.classification, ''), email.classification)"),
				"updated_at":     time.Now(),
			}),
		}).
		Create(email).Error
	return dberr.MapError("EmailRepo.Upsert", err)
}

func (r *emailRepo) GetByMessageID(dbc dbctx.Context, userID uuid.UUID, messageID string) (*types.Email, error) {
	if userID == uuid.Nil || messageID == "" {
		return nil, nil
	}
	var e types.Email
	err := dbc.Conn(r.db).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Limit(1).
		Find(&e).Error
	if err != nil {
		return nil, dberr.MapError("EmailRepo.GetByMessageID", err)
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *emailRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Email, error) {
	var out []*types.Email
	if userID == uuid.Nil {
		return out, nil
	}
	q := dbc.Conn(r.db).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, dberr.MapError("EmailRepo.ListByUser", err)
	}
	return out, nil
}

// SetClassificationIfEmpty mirrors a task classification onto its email the
// first time one is assigned.
func (r *emailRepo) SetClassificationIfEmpty(dbc dbctx.Context, userID uuid.UUID, messageID, classification string) (bool, error) {
	if userID == uuid.Nil || messageID == "" || classification == "" {
		return false, nil
	}
	res := dbc.Conn(r.db).
		Model(&types.Email{}).
		Where("user_id = ? AND message_id = ? AND (classification IS NULL OR classification = '')", userID, messageID).
		Updates(map[string]any{"classification": classification, "updated_at": time.Now()})
	if res.Error != nil {
		return false, dberr.MapError("EmailRepo.SetClassificationIfEmpty", res.Error)
	}
	return res.RowsAffected > 0, nil
}
