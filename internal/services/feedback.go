package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/domain/mail"
	"github.com/yungbote/inboxpilot-backend/internal/domain/tasks"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/steps"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"

	maxAdjustment  = 0.5
	neighbourNudge = 0.1
)

type ReorderRequest struct {
	TaskID         uuid.UUID  `json:"task_id"`
	Direction      string     `json:"direction"`
	Positions      int        `json:"positions"`
	TaskAboveID    *uuid.UUID `json:"task_above_id,omitempty"`
	TaskBelowID    *uuid.UUID `json:"task_below_id,omitempty"`
	Classification string     `json:"classification"`
}

func (r ReorderRequest) validate() error {
	const op = "feedback.reorder"
	if r.TaskID == uuid.Nil {
		return errs.BadInput(op, "task_id required")
	}
	if r.Direction != DirectionUp && r.Direction != DirectionDown {
		return errs.BadInput(op, "direction must be up or down")
	}
	if r.Positions <= 0 {
		return errs.BadInput(op, "positions must be positive")
	}
	if !tasks.ValidClass(r.Classification) {
		return errs.BadInput(op, "invalid classification")
	}
	return nil
}

type ReorderResult struct {
	TaskID         uuid.UUID `json:"task_id"`
	RelevanceScore float64   `json:"relevance_score"`
	UtilityScore   float64   `json:"utility_score"`
	CostScore      float64   `json:"cost_score"`
}

type FeedbackService interface {
	Reorder(ctx context.Context, userID uuid.UUID, req ReorderRequest) (*ReorderResult, error)
}

type FeedbackDeps struct {
	Log      *logger.Logger
	Tx       db.TxRunner
	Users    repos.UserRepo
	Tasks    repos.TaskRepo
	Features repos.FeaturesRepo
	Emails   repos.EmailRepo
	// Models is optional; without it re-orders never retrain.
	Models  scoring.ModelStore
	Scoring scoring.Config
	Steps   steps.Deps
	Graph   TaskGraph
	Events  Events
	Config  Config
}

type feedbackService struct {
	deps        FeedbackDeps
	log         *logger.Logger
	locks       *userLocks
	personality *personalityStore
	now         func() time.Time
}

func NewFeedbackService(deps FeedbackDeps) FeedbackService {
	deps.Config = deps.Config.withDefaults()
	return &feedbackService{
		deps:        deps,
		log:         deps.Log.With("service", "FeedbackService"),
		locks:       newUserLocks(),
		personality: newPersonalityStore(deps.Tx, deps.Users, deps.Config.PersonalityMax),
		now:         time.Now,
	}
}

// Adjustment is the move size derived from how far the task travelled.
func Adjustment(positions int) float64 {
	adj := float64(positions) * 0.1
	if adj > maxAdjustment {
		return maxAdjustment
	}
	return adj
}

// NeighbourRelevance places the task between its new neighbours. Without
// neighbours it moves by adj in direction, starting from 0.5 when the task
// has no relevance yet.
func NeighbourRelevance(current float64, above, below *types.Task, direction string, adj float64) float64 {
	switch {
	case above != nil && below != nil:
		return (above.RelevanceScore + below.RelevanceScore) / 2
	case above != nil:
		return scoring.Clamp01(above.RelevanceScore - neighbourNudge)
	case below != nil:
		return scoring.Clamp01(below.RelevanceScore + neighbourNudge)
	}
	base := current
	if base == 0 {
		base = 0.5
	}
	if direction == DirectionUp {
		return scoring.Clamp01(base + adj)
	}
	return scoring.Clamp01(base - adj)
}

func (s *feedbackService) Reorder(ctx context.Context, userID uuid.UUID, req ReorderRequest) (*ReorderResult, error) {
	const op = "feedback.reorder"
	if userID == uuid.Nil {
		return nil, errs.BadInput(op, "missing user")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	release := s.locks.Lock(userID)
	defer release()

	log := s.log.With("user_id", userID, "task_id", req.TaskID)
	adj := Adjustment(req.Positions)

	var (
		task         *types.Task
		above, below *types.Task
	)
	err := s.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		u, err := s.deps.Users.GetByIDForUpdate(dbc, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return errs.NotFound(op, "user not found")
		}
		t, err := s.deps.Tasks.GetByID(dbc, userID, req.TaskID)
		if err != nil {
			return err
		}
		if t == nil {
			return errs.NotFound(op, "task not found")
		}
		if above, err = s.neighbour(dbc, userID, req.TaskAboveID, req.TaskID, req.Classification); err != nil {
			return err
		}
		if below, err = s.neighbour(dbc, userID, req.TaskBelowID, req.TaskID, req.Classification); err != nil {
			return err
		}

		relevance := NeighbourRelevance(t.RelevanceScore, above, below, req.Direction, adj)
		utility, cost := t.UtilityScore, t.CostScore

		if above != nil || below != nil {
			model, u, c, ok := s.retrain(dbc, userID, t, above, below)
			if ok {
				if err := s.deps.Models.Save(dbc, userID, model); err != nil {
					return err
				}
				utility, cost = u, c
				relevance = scoring.Relevance(u, c, s.deps.Scoring.Online)
			}
		}

		relevance = scoring.Clamp01(relevance)
		if err := s.deps.Tasks.UpdateFields(dbc, userID, t.ID, map[string]any{
			"relevance_score": relevance,
			"utility_score":   utility,
			"cost_score":      cost,
			"classification":  req.Classification,
		}); err != nil {
			return err
		}
		t.RelevanceScore, t.UtilityScore, t.CostScore = relevance, utility, cost
		t.Classification = req.Classification

		if t.MessageID != "" {
			if _, err := s.deps.Emails.SetClassificationIfEmpty(dbc, userID, t.MessageID, mail.NormalizeClass(req.Classification)); err != nil {
				return err
			}
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mirror(ctx, task)
	if s.deps.Events != nil {
		s.deps.Events.Notify(ctx, userID, realtime.SSEEventTaskReordered, task)
	}

	s.updatePersonality(ctx, log, userID, task, above, below, req.Direction, adj)

	return &ReorderResult{
		TaskID:         task.ID,
		RelevanceScore: task.RelevanceScore,
		UtilityScore:   task.UtilityScore,
		CostScore:      task.CostScore,
	}, nil
}

// neighbour loads a neighbour task. Missing tasks, the task itself and tasks
// in another classification count as absent.
func (s *feedbackService) neighbour(dbc dbctx.Context, userID uuid.UUID, id *uuid.UUID, self uuid.UUID, class string) (*types.Task, error) {
	if id == nil || *id == uuid.Nil || *id == self {
		return nil, nil
	}
	t, err := s.deps.Tasks.GetByID(dbc, userID, *id)
	if err != nil || t == nil {
		return nil, err
	}
	if t.Classification != class {
		return nil, nil
	}
	return t, nil
}

// retrain fits the user's model one step towards the neighbours' scores and
// re-predicts the task. ok is false when the task can't be retrained; the
// caller then keeps the neighbour-derived relevance.
func (s *feedbackService) retrain(dbc dbctx.Context, userID uuid.UUID, t *types.Task, above, below *types.Task) (*scoring.UserModel, float64, float64, bool) {
	if s.deps.Models == nil || s.deps.Features == nil {
		return nil, 0, 0, false
	}
	log := s.log.With("user_id", userID, "task_id", t.ID)

	feat, err := s.deps.Features.GetByTaskID(dbc, t.ID)
	if err != nil {
		log.Warn("feature lookup failed; skipping retrain", "error", err)
		return nil, 0, 0, false
	}
	if feat == nil {
		log.Debug("task has no feature record; skipping retrain")
		return nil, 0, 0, false
	}

	model, state, err := s.deps.Models.Load(dbc, userID)
	if err != nil {
		log.Warn("model load failed; skipping retrain", "error", err)
		return nil, 0, 0, false
	}
	if state == scoring.StateReset {
		samples, err := s.history(dbc, userID)
		if err != nil {
			log.Warn("could not load history for rebuild", "error", err)
		}
		n := model.Rebuild(samples)
		log.Info("user model rebuilt from stored scores", "samples", n)
	}

	now := s.now()
	sample := sampleFor(feat, t, now)
	var nb []*types.Task
	for _, n := range []*types.Task{above, below} {
		if n != nil {
			nb = append(nb, n)
		}
	}
	for _, n := range nb {
		sample.UtilityY += n.UtilityScore / float64(len(nb))
		sample.CostY += n.CostScore / float64(len(nb))
	}
	if err := model.PartialFit(sample); err != nil {
		log.Warn("partial fit rejected; skipping retrain", "error", err)
		return nil, 0, 0, false
	}
	return model, model.PredictUtility(sample.UtilityX), model.PredictCost(sample.CostX), true
}

// history turns every scored task with features into a training sample whose
// targets are the task's current scores.
func (s *feedbackService) history(dbc dbctx.Context, userID uuid.UUID) ([]scoring.Sample, error) {
	feats, err := s.deps.Features.ListByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.deps.Tasks.ListByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Task, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}
	now := s.now()
	out := make([]scoring.Sample, 0, len(feats))
	for _, f := range feats {
		t := byID[f.TaskID]
		if t == nil {
			continue
		}
		sm := sampleFor(f, t, now)
		sm.UtilityY, sm.CostY = t.UtilityScore, t.CostScore
		out = append(out, sm)
	}
	return out, nil
}

func sampleFor(f *types.Features, t *types.Task, now time.Time) scoring.Sample {
	util := decodeFeatureMap(f.Utility)
	cost := decodeFeatureMap(f.Cost)
	return scoring.Sample{
		UtilityX: scoring.UtilityVector(util, t.Priority, t.Deadline, now),
		CostX:    scoring.CostVector(cost, t.Priority, t.Deadline, now),
	}
}

func decodeFeatureMap(raw []byte) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func (s *feedbackService) mirror(ctx context.Context, t *types.Task) {
	if !graphOn(s.deps.Graph) || t == nil {
		return
	}
	if err := s.deps.Graph.UpdateTask(ctx, t); err != nil {
		s.log.Warn("graph task update failed", "task_id", t.ID, "error", err)
	}
	if t.MessageID == "" {
		return
	}
	if err := s.deps.Graph.SetEmailClassification(ctx, t.MessageID, mail.NormalizeClass(t.Classification)); err != nil {
		s.log.Warn("graph email classification failed", "message_id", t.MessageID, "error", err)
	}
}

// updatePersonality asks the oracle how the re-order shifts the user's
// profile and swaps in the result as the current trait. Only the current
// trait is sent; the rest of the list is re-read under lock when writing.
// Failures leave the stored list untouched.
func (s *feedbackService) updatePersonality(ctx context.Context, log *logger.Logger, userID uuid.UUID, t, above, below *types.Task, direction string, adj float64) {
	if s.deps.Steps.Oracle == nil {
		return
	}
	u, err := s.deps.Users.GetByID(dbctx.With(ctx), userID)
	if err != nil || u == nil {
		log.Warn("personality update skipped; user lookup failed", "error", err)
		return
	}

	out, err := steps.FeedbackPersonality(ctx, s.deps.Steps, steps.FeedbackPersonalityInput{
		CurrentPersonality: u.CurrentTrait(),
		Task:               feedbackTask(t),
		TaskAbove:          feedbackTaskPtr(above),
		TaskBelow:          feedbackTaskPtr(below),
		Direction:          direction,
		AdjustmentFactor:   adj,
	})
	if err != nil {
		log.Warn("personality update failed; keeping previous personality", "error", err)
		return
	}
	next := strings.TrimSpace(out.Personality[len(out.Personality)-1])
	if next == "" {
		return
	}
	traits, err := s.personality.replaceCurrent(ctx, "feedback.personality", userID, next)
	if err != nil {
		log.Warn("personality write failed", "error", err)
		return
	}
	log.Info("personality updated from feedback", "feedback_pattern", out.Pattern)
	if s.deps.Events != nil {
		s.deps.Events.Notify(ctx, userID, realtime.SSEEventPersonalityUpdated, map[string]any{"personality": traits})
	}
}

// ReplaceCurrentTrait swaps the last trait for next, or starts the list.
func ReplaceCurrentTrait(traits []string, next string) []string {
	out := append([]string(nil), traits...)
	if len(out) == 0 {
		return []string{next}
	}
	out[len(out)-1] = next
	return out
}

func feedbackTask(t *types.Task) steps.FeedbackTask {
	score := t.RelevanceScore
	return steps.FeedbackTask{ID: t.ID.String(), Description: t.Title, RelevanceScore: &score}
}

func feedbackTaskPtr(t *types.Task) *steps.FeedbackTask {
	if t == nil {
		return nil
	}
	ft := feedbackTask(t)
	return &ft
}
