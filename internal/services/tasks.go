package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	"github.com/yungbote/inboxpilot-backend/internal/data/graph"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/domain/mail"
	"github.com/yungbote/inboxpilot-backend/internal/domain/tasks"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

// Manual tasks hang off a synthetic email so graph traversal still finds them.
const manualMessagePrefix = "manual:"

type CreateTaskRequest struct {
	Task           string `json:"task"`
	Deadline       string `json:"deadline"`
	Priority       string `json:"priority"`
	MessageID      string `json:"message_id"`
	Classification string `json:"classification"`
}

type UpdateTaskRequest struct {
	Task           *string  `json:"task"`
	Deadline       *string  `json:"deadline"`
	Priority       *string  `json:"priority"`
	Classification *string  `json:"classification"`
	RelevanceScore *float64 `json:"relevance_score"`
	UtilityScore   *float64 `json:"utility_score"`
	CostScore      *float64 `json:"cost_score"`
}

type TaskService interface {
	Create(ctx context.Context, userID uuid.UUID, req CreateTaskRequest) (*types.Task, error)
	Get(ctx context.Context, userID, taskID uuid.UUID) (*types.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Task, error)
	Update(ctx context.Context, userID, taskID uuid.UUID, req UpdateTaskRequest) (*types.Task, error)
	Delete(ctx context.Context, userID, taskID uuid.UUID) error
	AddDependency(ctx context.Context, userID, taskID, dependsOn uuid.UUID) error
}

type TaskDeps struct {
	Log     *logger.Logger
	Tx      db.TxRunner
	Tasks   repos.TaskRepo
	Emails  repos.EmailRepo
	Scoring scoring.Config
	Graph   TaskGraph
	Events  Events
}

type taskService struct {
	deps TaskDeps
	log  *logger.Logger
}

func NewTaskService(deps TaskDeps) TaskService {
	return &taskService{deps: deps, log: deps.Log.With("service", "TaskService")}
}

func (s *taskService) Create(ctx context.Context, userID uuid.UUID, req CreateTaskRequest) (*types.Task, error) {
	const op = "tasks.create"
	if userID == uuid.Nil {
		return nil, errs.BadInput(op, "missing user")
	}
	title := strings.TrimSpace(req.Task)
	if title == "" {
		return nil, errs.BadInput(op, "task is required")
	}
	class := strings.TrimSpace(req.Classification)
	if class != "" && !tasks.ValidClass(class) {
		return nil, errs.BadInput(op, "invalid classification")
	}

	id := uuid.New()
	priority := tasks.NormalizePriority(req.Priority)
	score := scoring.PriorityScore(priority, s.deps.Scoring.Rule)
	msgID := strings.TrimSpace(req.MessageID)
	if msgID == "" {
		msgID = manualMessagePrefix + id.String()
	}
	t := &types.Task{
		ID:             id,
		UserID:         userID,
		MessageID:      msgID,
		Title:          title,
		Deadline:       tasks.NormalizeDeadline(req.Deadline),
		Priority:       priority,
		UtilityScore:   score.Utility,
		CostScore:      score.Cost,
		RelevanceScore: score.Relevance,
		Classification: class,
	}
	err := s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		_, err := s.deps.Tasks.Create(dbc, []*types.Task{t})
		return err
	})
	if err != nil {
		return nil, err
	}

	if graphOn(s.deps.Graph) {
		g := s.deps.Graph
		if err := g.UpsertUser(ctx, userID); err != nil {
			s.log.Warn("graph user upsert failed", "user_id", userID, "error", err)
		} else if err := g.UpsertEmail(ctx, userID, graph.EmailNode{MessageID: msgID, Subject: title}); err != nil {
			s.log.Warn("graph email upsert failed", "message_id", msgID, "error", err)
		} else if err := g.UpsertTasks(ctx, userID, msgID, []*types.Task{t}); err != nil {
			s.log.Warn("graph task upsert failed", "task_id", id, "error", err)
		}
	}
	s.notify(ctx, userID, realtime.SSEEventTaskCreated, t)
	return t, nil
}

func (s *taskService) Get(ctx context.Context, userID, taskID uuid.UUID) (*types.Task, error) {
	t, err := s.deps.Tasks.GetByID(dbctx.With(ctx), userID, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.NotFound("tasks.get", "task not found")
	}
	return t, nil
}

// ListByUser walks the graph when it is available and hydrates attributes
// from Postgres; otherwise it reads the user index directly. Either way the
// result is ordered by relevance, highest first.
func (s *taskService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Task, error) {
	dbc := dbctx.With(ctx)
	if graphOn(s.deps.Graph) {
		ids, err := s.deps.Graph.ListUserTaskIDs(ctx, userID)
		if err == nil {
			return s.deps.Tasks.GetByIDs(dbc, userID, ids)
		}
		s.log.Warn("graph task listing failed; using relational index", "user_id", userID, "error", err)
	}
	return s.deps.Tasks.ListByUser(dbc, userID)
}

func (s *taskService) Update(ctx context.Context, userID, taskID uuid.UUID, req UpdateTaskRequest) (*types.Task, error) {
	const op = "tasks.update"
	updates := map[string]any{}
	if req.Task != nil {
		title := strings.TrimSpace(*req.Task)
		if title == "" {
			return nil, errs.BadInput(op, "task cannot be empty")
		}
		updates["task"] = title
	}
	if req.Deadline != nil {
		updates["deadline"] = tasks.NormalizeDeadline(*req.Deadline)
	}
	if req.Priority != nil {
		updates["priority"] = tasks.NormalizePriority(*req.Priority)
	}
	if req.Classification != nil {
		if !tasks.ValidClass(*req.Classification) {
			return nil, errs.BadInput(op, "invalid classification")
		}
		updates["classification"] = *req.Classification
	}
	for col, v := range map[string]*float64{
		"relevance_score": req.RelevanceScore,
		"utility_score":   req.UtilityScore,
		"cost_score":      req.CostScore,
	} {
		if v == nil {
			continue
		}
		if *v < 0 || *v > 1 {
			return nil, errs.BadInput(op, col+" must be within [0,1]")
		}
		updates[col] = *v
	}
	if len(updates) == 0 {
		return nil, errs.BadInput(op, "no fields to update")
	}

	var (
		out       *types.Task
		firstTime bool
	)
	err := s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		before, err := s.deps.Tasks.GetByID(dbc, userID, taskID)
		if err != nil {
			return err
		}
		if before == nil {
			return errs.NotFound(op, "task not found")
		}
		if err := s.deps.Tasks.UpdateFields(dbc, userID, taskID, updates); err != nil {
			return err
		}
		if req.Classification != nil && before.Classification == "" && before.MessageID != "" {
			firstTime = true
			if _, err := s.deps.Emails.SetClassificationIfEmpty(dbc, userID, before.MessageID, mail.NormalizeClass(*req.Classification)); err != nil {
				return err
			}
		}
		out, err = s.deps.Tasks.GetByID(dbc, userID, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errs.NotFound(op, "task not found")
	}

	if graphOn(s.deps.Graph) {
		if err := s.deps.Graph.UpdateTask(ctx, out); err != nil {
			s.log.Warn("graph task update failed", "task_id", taskID, "error", err)
		}
		if firstTime {
			if err := s.deps.Graph.SetEmailClassification(ctx, out.MessageID, mail.NormalizeClass(out.Classification)); err != nil {
				s.log.Warn("graph email classification failed", "message_id", out.MessageID, "error", err)
			}
		}
	}
	s.notify(ctx, userID, realtime.SSEEventTaskUpdated, out)
	return out, nil
}

func (s *taskService) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	var deleted bool
	err := s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		var err error
		deleted, err = s.deps.Tasks.Delete(dbc, userID, taskID)
		return err
	})
	if err != nil {
		return err
	}
	if !deleted {
		return errs.NotFound("tasks.delete", "task not found")
	}
	if graphOn(s.deps.Graph) {
		if err := s.deps.Graph.DeleteTask(ctx, taskID); err != nil {
			s.log.Warn("graph task delete failed", "task_id", taskID, "error", err)
		}
	}
	s.notify(ctx, userID, realtime.SSEEventTaskDeleted, map[string]any{"task_id": taskID})
	return nil
}

// AddDependency records taskID DEPENDS_ON dependsOn. Both tasks must belong
// to the user; an edge closing a cycle is rejected by the graph store.
func (s *taskService) AddDependency(ctx context.Context, userID, taskID, dependsOn uuid.UUID) error {
	const op = "tasks.add_dependency"
	if dependsOn == uuid.Nil {
		return errs.BadInput(op, "depends_on is required")
	}
	if !graphOn(s.deps.Graph) {
		return errs.New(errs.CodeConflict, op, "dependencies need the graph store", nil)
	}
	found, err := s.deps.Tasks.GetByIDs(dbctx.With(ctx), userID, []uuid.UUID{taskID, dependsOn})
	if err != nil {
		return err
	}
	want := 2
	if taskID == dependsOn {
		want = 1
	}
	if len(found) < want {
		return errs.NotFound(op, "task not found")
	}
	if err := s.deps.Graph.AddDependency(ctx, userID, taskID, dependsOn); err != nil {
		return err
	}
	s.log.Info("task dependency added", "user_id", userID, "task_id", taskID, "depends_on", dependsOn)
	return nil
}

func (s *taskService) notify(ctx context.Context, userID uuid.UUID, ev realtime.SSEEvent, data any) {
	if s.deps.Events != nil {
		s.deps.Events.Notify(ctx, userID, ev, data)
	}
}
