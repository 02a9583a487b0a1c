package mail

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos/dberr"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type ReceiptRepo interface {
	Get(dbc dbctx.Context, userID uuid.UUID, messageID string) (*types.MailReceipt, error)
	// Create reports false when a receipt for (user, message) already exists.
	Create(dbc dbctx.Context, rec *types.MailReceipt) (bool, error)
}

type receiptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReceiptRepo(db *gorm.DB, baseLog *logger.Logger) ReceiptRepo {
	return &receiptRepo{db: db, log: baseLog.With("repo", "ReceiptRepo")}
}

func (r *receiptRepo) Get(dbc dbctx.Context, userID uuid.UUID, messageID string) (*types.MailReceipt, error) {
	if userID == uuid.Nil || messageID == "" {
		return nil, nil
	}
	var rec types.MailReceipt
	err := dbc.Conn(r.db).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, dberr.MapError("ReceiptRepo.Get", err)
	}
	if rec.ID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

func (r *receiptRepo) Create(dbc dbctx.Context, rec *types.MailReceipt) (bool, error) {
	if rec == nil {
		return false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	res := dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, dberr.MapError("ReceiptRepo.Create", res.Error)
	}
	return res.RowsAffected > 0, nil
}
