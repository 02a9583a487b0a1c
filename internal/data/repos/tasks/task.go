package tasks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos/dberr"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type TaskRepo interface {
	Create(dbc dbctx.Context, tasks []*types.Task) ([]*types.Task, error)
	GetByID(dbc dbctx.Context, userID, id uuid.UUID) (*types.Task, error)
	GetByIDs(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID) ([]*types.Task, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Task, error)
	ListByMessage(dbc dbctx.Context, userID uuid.UUID, messageID string) ([]*types.Task, error)
	UpdateFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]any) error
	Delete(dbc dbctx.Context, userID, id uuid.UUID) (bool, error)
	DeleteByMessage(dbc dbctx.Context, userID uuid.UUID, messageID string) (int64, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) Create(dbc dbctx.Context, tasks []*types.Task) ([]*types.Task, error) {
	if len(tasks) == 0 {
		return []*types.Task{}, nil
	}
	for _, t := range tasks {
		if t != nil && t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}
	if err := dbc.Conn(r.db).Create(&tasks).Error; err != nil {
		return nil, dberr.MapError("TaskRepo.Create", err)
	}
	return tasks, nil
}

func (r *taskRepo) GetByID(dbc dbctx.Context, userID, id uuid.UUID) (*types.Task, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var t types.Task
	err := dbc.Conn(r.db).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&t).Error
	if err != nil {
		return nil, dberr.MapError("TaskRepo.GetByID", err)
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

// GetByIDs returns the user's tasks among ids ordered by relevance descending.
func (r *taskRepo) GetByIDs(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID) ([]*types.Task, error) {
	var out []*types.Task
	if userID == uuid.Nil || len(ids) == 0 {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("relevance_score DESC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.MapError("TaskRepo.GetByIDs", err)
	}
	return out, nil
}

func (r *taskRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Task, error) {
	var out []*types.Task
	if userID == uuid.Nil {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("user_id = ?", userID).
		Order("relevance_score DESC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.MapError("TaskRepo.ListByUser", err)
	}
	return out, nil
}

func (r *taskRepo) ListByMessage(dbc dbctx.Context, userID uuid.UUID, messageID string) ([]*types.Task, error) {
	var out []*types.Task
	if userID == uuid.Nil || messageID == "" {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.MapError("TaskRepo.ListByMessage", err)
	}
	return out, nil
}

func (r *taskRepo) UpdateFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]any) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	err := dbc.Conn(r.db).
		Model(&types.Task{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates).Error
	return dberr.MapError("TaskRepo.UpdateFields", err)
}

func (r *taskRepo) Delete(dbc dbctx.Context, userID, id uuid.UUID) (bool, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return false, nil
	}
	res := dbc.Conn(r.db).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&types.Task{})
	if res.Error != nil {
		return false, dberr.MapError("TaskRepo.Delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *taskRepo) DeleteByMessage(dbc dbctx.Context, userID uuid.UUID, messageID string) (int64, error) {
	if userID == uuid.Nil || messageID == "" {
		return 0, nil
	}
	res := dbc.Conn(r.db).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Delete(&types.Task{})
	if res.Error != nil {
		return 0, dberr.MapError("TaskRepo.DeleteByMessage", res.Error)
	}
	return res.RowsAffected, nil
}
