package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/steps"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

type feedbackHarness struct {
	svc    FeedbackService
	mem    *memDB
	models *memModels
	graph  *fakeGraph
	events *recordingEvents
	oracle *fakeOracle
	user   *types.User
}

func newFeedbackHarness(t *testing.T, answer func(oracle.Request) (string, error)) *feedbackHarness {
	t.Helper()
	log := testLogger(t)
	mem := newMemDB()
	h := &feedbackHarness{
		mem:    mem,
		models: newMemModels(),
		graph:  newFakeGraph(),
		events: &recordingEvents{},
		oracle: &fakeOracle{fn: answer},
	}
	h.user = mem.addUser("Organised engineer", "Prefers deep work")
	h.svc = NewFeedbackService(FeedbackDeps{
		Log:      log,
		Tx:       db.NoTx{},
		Users:    memUsers{mem},
		Tasks:    memTasks{mem},
		Features: memFeatures{mem},
		Emails:   memEmails{mem},
		Models:   h.models,
		Scoring:  scoring.Config{Mode: scoring.ModeOnline, Rule: scoring.DefaultRuleWeights, Online: scoring.DefaultOnlineWeights},
		Steps:    steps.Deps{Log: log, Oracle: h.oracle, Prompts: prompts.MustDefault()},
		Graph:    h.graph,
		Events:   h.events,
	})
	return h
}

func personalityAnswer(req oracle.Request) (string, error) {
	return `{"personality":["Organised engineer","Prioritises client work"],"feedback_pattern":"moves client tasks up"}`, nil
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestReorderBetweenNeighbours(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	uid := h.user.ID
	above := h.mem.addTask(uid, "above", "Main Focus-View", 0.80)
	below := h.mem.addTask(uid, "below", "Main Focus-View", 0.40)
	task := h.mem.addTask(uid, "task", "Drawer", 0.30)

	res, err := h.svc.Reorder(context.Background(), uid, ReorderRequest{
		TaskID:         task.ID,
		Direction:      DirectionUp,
		Positions:      2,
		TaskAboveID:    &above.ID,
		TaskBelowID:    &below.ID,
		Classification: "Main Focus-View",
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if !near(res.RelevanceScore, 0.60) {
		t.Fatalf("relevance: want=0.60 got=%v", res.RelevanceScore)
	}
	stored := h.mem.tasks[task.ID]
	if stored.Classification != "Main Focus-View" {
		t.Fatalf("classification: want=Main Focus-View got=%q", stored.Classification)
	}
	if h.models.saves != 0 {
		t.Fatalf("task without features should not retrain, saves=%d", h.models.saves)
	}
	if !h.events.has(realtime.SSEEventTaskReordered) {
		t.Fatalf("expected a reorder event")
	}
}

func TestReorderWithoutNeighbours(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	task := h.mem.addTask(h.user.ID, "task", "Drawer", 0.50)

	res, err := h.svc.Reorder(context.Background(), h.user.ID, ReorderRequest{
		TaskID:         task.ID,
		Direction:      DirectionDown,
		Positions:      4,
		Classification: "Drawer",
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if !near(res.RelevanceScore, 0.10) {
		t.Fatalf("relevance: want=0.10 got=%v", res.RelevanceScore)
	}
}

func TestNeighbourRelevanceRules(t *testing.T) {
	hi := &types.Task{RelevanceScore: 0.05}
	lo := &types.Task{RelevanceScore: 0.97}
	cases := []struct {
		name         string
		current      float64
		above, below *types.Task
		dir          string
		adj          float64
		want         float64
	}{
		{"above only floors at zero", 0.4, hi, nil, DirectionUp, 0.1, 0},
		{"below only caps at one", 0.4, nil, lo, DirectionUp, 0.1, 1},
		{"unset relevance starts at half", 0, nil, nil, DirectionUp, 0.3, 0.8},
		{"up caps at one", 0.9, nil, nil, DirectionUp, 0.5, 1},
	}
	for _, tc := range cases {
		if got := NeighbourRelevance(tc.current, tc.above, tc.below, tc.dir, tc.adj); !near(got, tc.want) {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
	if got := Adjustment(9); got != 0.5 {
		t.Fatalf("adjustment cap: want=0.5 got=%v", got)
	}
}

func TestReorderIgnoresNeighbourInOtherClass(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	uid := h.user.ID
	other := h.mem.addTask(uid, "other", "Library", 0.9)
	task := h.mem.addTask(uid, "task", "Drawer", 0.5)

	res, err := h.svc.Reorder(context.Background(), uid, ReorderRequest{
		TaskID:         task.ID,
		Direction:      DirectionUp,
		Positions:      1,
		TaskAboveID:    &other.ID,
		Classification: "Drawer",
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if !near(res.RelevanceScore, 0.6) {
		t.Fatalf("mismatched neighbour should be absent: want=0.6 got=%v", res.RelevanceScore)
	}
}

func TestReorderRetrainsModel(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	uid := h.user.ID
	above := h.mem.addTask(uid, "above", "Drawer", 0.9)
	above.UtilityScore, above.CostScore = 0.9, 0.1
	below := h.mem.addTask(uid, "below", "Drawer", 0.7)
	below.UtilityScore, below.CostScore = 0.7, 0.3
	task := h.mem.addTask(uid, "task", "Drawer", 0.2)
	h.mem.features[task.ID] = &types.Features{
		TaskID:         task.ID,
		UserID:         uid,
		Utility:        []byte(`{"priority":"high","reward_pathways":"yes"}`),
		Cost:           []byte(`{"task_complexity":"low","time_required":"30_minutes"}`),
		MappingVersion: scoring.MappingVersion,
	}

	res, err := h.svc.Reorder(context.Background(), uid, ReorderRequest{
		TaskID:         task.ID,
		Direction:      DirectionUp,
		Positions:      3,
		TaskAboveID:    &above.ID,
		TaskBelowID:    &below.ID,
		Classification: "Drawer",
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	m := h.models.models[uid]
	if m == nil || m.Updates != 1 {
		t.Fatalf("model should be saved after one update: %+v", m)
	}
	// One step from the neutral start moves utility up and cost down.
	if res.UtilityScore <= 0.5 || res.CostScore >= 0.5 {
		t.Fatalf("prediction did not move towards neighbours: u=%v c=%v", res.UtilityScore, res.CostScore)
	}
	want := scoring.Relevance(res.UtilityScore, res.CostScore, scoring.DefaultOnlineWeights)
	if !near(res.RelevanceScore, want) {
		t.Fatalf("relevance: want=%v got=%v", want, res.RelevanceScore)
	}
	for _, v := range []float64{res.UtilityScore, res.CostScore, res.RelevanceScore} {
		if v < 0 || v > 1 {
			t.Fatalf("score outside [0,1]: %+v", res)
		}
	}
}

func TestReorderRebuildsDiscardedModel(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	h.models.reset = true
	uid := h.user.ID
	above := h.mem.addTask(uid, "above", "Drawer", 0.9)
	task := h.mem.addTask(uid, "task", "Drawer", 0.2)
	h.mem.features[task.ID] = &types.Features{TaskID: task.ID, UserID: uid, Utility: []byte(`{}`), Cost: []byte(`{}`)}

	if _, err := h.svc.Reorder(context.Background(), uid, ReorderRequest{
		TaskID: task.ID, Direction: DirectionUp, Positions: 1, TaskAboveID: &above.ID, Classification: "Drawer",
	}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if m := h.models.models[uid]; m == nil || m.Updates != 1 {
		t.Fatalf("rebuilt model should carry this update: %+v", m)
	}
}

func TestReorderPersonality(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	task := h.mem.addTask(h.user.ID, "task", "Drawer", 0.5)
	if _, err := h.svc.Reorder(context.Background(), h.user.ID, ReorderRequest{
		TaskID: task.ID, Direction: DirectionUp, Positions: 1, Classification: "Drawer",
	}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	got := h.mem.users[h.user.ID].Traits()
	if len(got) != 2 || got[0] != "Organised engineer" || got[1] != "Prioritises client work" {
		t.Fatalf("personality: got=%v", got)
	}
	if !h.events.has(realtime.SSEEventPersonalityUpdated) {
		t.Fatalf("expected a personality event")
	}
}

func TestReorderPersonalityFailureKeepsTraits(t *testing.T) {
	h := newFeedbackHarness(t, func(oracle.Request) (string, error) {
		return "", errors.New("oracle down")
	})
	task := h.mem.addTask(h.user.ID, "task", "Drawer", 0.5)
	res, err := h.svc.Reorder(context.Background(), h.user.ID, ReorderRequest{
		TaskID: task.ID, Direction: DirectionUp, Positions: 2, Classification: "Drawer",
	})
	if err != nil {
		t.Fatalf("oracle failure must not fail the re-order: %v", err)
	}
	if !near(res.RelevanceScore, 0.7) {
		t.Fatalf("relevance: want=0.7 got=%v", res.RelevanceScore)
	}
	got := h.mem.users[h.user.ID].Traits()
	if len(got) != 2 || got[1] != "Prefers deep work" {
		t.Fatalf("personality changed: %v", got)
	}
}

func TestReorderValidation(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	task := h.mem.addTask(h.user.ID, "task", "Drawer", 0.5)
	bad := []ReorderRequest{
		{TaskID: task.ID, Direction: "sideways", Positions: 1, Classification: "Drawer"},
		{TaskID: task.ID, Direction: DirectionUp, Positions: 0, Classification: "Drawer"},
		{TaskID: task.ID, Direction: DirectionUp, Positions: 1, Classification: "Inbox"},
	}
	for i, req := range bad {
		if _, err := h.svc.Reorder(context.Background(), h.user.ID, req); !errs.IsCode(err, errs.CodeBadInput) {
			t.Fatalf("case %d: want=bad_input got=%v", i, err)
		}
	}
	_, err := h.svc.Reorder(context.Background(), h.user.ID, ReorderRequest{
		TaskID: uuid.New(), Direction: DirectionUp, Positions: 1, Classification: "Drawer",
	})
	if !errs.IsCode(err, errs.CodeNotFound) {
		t.Fatalf("missing task: want=not_found got=%v", err)
	}
}

func TestReorderSerialisesPerUser(t *testing.T) {
	h := newFeedbackHarness(t, personalityAnswer)
	task := h.mem.addTask(h.user.ID, "task", "Drawer", 0.5)
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := h.svc.Reorder(context.Background(), h.user.ID, ReorderRequest{
				TaskID: task.ID, Direction: DirectionUp, Positions: 1, Classification: "Drawer",
			})
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Reorder: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("re-orders deadlocked")
		}
	}
	// 0.5 + 8 * 0.1, capped.
	if got := h.mem.tasks[task.ID].RelevanceScore; got != 1 {
		t.Fatalf("relevance after 8 serial bumps: want=1 got=%v", got)
	}
}

func TestReorderPersonalitySendsCurrentTraitOnly(t *testing.T) {
	var prompt string
	h := newFeedbackHarness(t, func(req oracle.Request) (string, error) {
		if req.Name == prompts.FeedbackPersonality {
			prompt = req.User
		}
		return `{"personality":"Prioritises client work","feedback_pattern":"moves client tasks up"}`, nil
	})
	task := h.mem.addTask(h.user.ID, "task", "Drawer", 0.5)
	if _, err := h.svc.Reorder(context.Background(), h.user.ID, ReorderRequest{
		TaskID: task.ID, Direction: DirectionUp, Positions: 1, Classification: "Drawer",
	}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if !strings.Contains(prompt, `"current_personality":"Prefers deep work"`) || strings.Contains(prompt, "Organised engineer") {
		t.Fatalf("prompt should carry only the current trait: %s", prompt)
	}
	got := h.mem.users[h.user.ID].Traits()
	if len(got) != 2 || got[0] != "Organised engineer" || got[1] != "Prioritises client work" {
		t.Fatalf("personality: got=%v", got)
	}
}
