package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

func newTaskHarness(t *testing.T) (TaskService, *memDB, *fakeGraph, *recordingEvents) {
	t.Helper()
	mem := newMemDB()
	g := newFakeGraph()
	ev := &recordingEvents{}
	svc := NewTaskService(TaskDeps{
		Log:     testLogger(t),
		Tx:      db.NoTx{},
		Tasks:   memTasks{mem},
		Emails:  memEmails{mem},
		Scoring: scoring.Config{Rule: scoring.DefaultRuleWeights, Online: scoring.DefaultOnlineWeights},
		Graph:   g,
		Events:  ev,
	})
	return svc, mem, g, ev
}

func TestCreateTaskScoresByPriority(t *testing.T) {
	svc, mem, g, ev := newTaskHarness(t)
	u := mem.addUser()
	task, err := svc.Create(context.Background(), u.ID, CreateTaskRequest{Task: "File expenses", Priority: "HIGH"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Priority != "high" || task.Deadline != "No Deadline" {
		t.Fatalf("normalisation: %+v", task)
	}
	// 0.5 * 0.8 with no cost.
	if task.RelevanceScore != 0.4 || task.UtilityScore != 0.8 {
		t.Fatalf("scores: relevance=%v utility=%v", task.RelevanceScore, task.UtilityScore)
	}
	if !strings.HasPrefix(task.MessageID, manualMessagePrefix) {
		t.Fatalf("manual task anchor: got=%q", task.MessageID)
	}
	if ids, _ := g.ListUserTaskIDs(context.Background(), u.ID); len(ids) != 1 || ids[0] != task.ID {
		t.Fatalf("graph mirror: %v", ids)
	}
	if !ev.has(realtime.SSEEventTaskCreated) {
		t.Fatalf("expected created event")
	}
	if _, err := svc.Create(context.Background(), u.ID, CreateTaskRequest{Task: "  "}); !errs.IsCode(err, errs.CodeBadInput) {
		t.Fatalf("empty title: want=bad_input got=%v", err)
	}
}

func TestListByUserOrdersByRelevance(t *testing.T) {
	svc, mem, g, _ := newTaskHarness(t)
	u := mem.addUser()
	low := mem.addTask(u.ID, "low", "", 0.1)
	high := mem.addTask(u.ID, "high", "", 0.9)
	mid := mem.addTask(u.ID, "mid", "", 0.5)
	g.taskIDs[u.ID] = []uuid.UUID{low.ID, high.ID, mid.ID}

	got, err := svc.ListByUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 3 || got[0].ID != high.ID || got[2].ID != low.ID {
		t.Fatalf("order: %v %v %v", got[0].Title, got[1].Title, got[2].Title)
	}

	g.enabled = false
	got, _ = svc.ListByUser(context.Background(), u.ID)
	if len(got) != 3 || got[0].ID != high.ID {
		t.Fatalf("relational listing order wrong")
	}
}

func TestUpdateTaskValidatesScores(t *testing.T) {
	svc, mem, _, _ := newTaskHarness(t)
	u := mem.addUser()
	task := mem.addTask(u.ID, "t", "", 0.3)
	bad := 1.5
	if _, err := svc.Update(context.Background(), u.ID, task.ID, UpdateTaskRequest{RelevanceScore: &bad}); !errs.IsCode(err, errs.CodeBadInput) {
		t.Fatalf("out of range score: want=bad_input got=%v", err)
	}
	if _, err := svc.Update(context.Background(), u.ID, task.ID, UpdateTaskRequest{}); !errs.IsCode(err, errs.CodeBadInput) {
		t.Fatalf("empty patch: want=bad_input got=%v", err)
	}
	if _, err := svc.Update(context.Background(), u.ID, uuid.New(), UpdateTaskRequest{Deadline: strPtr("2026-06-01")}); !errs.IsCode(err, errs.CodeNotFound) {
		t.Fatalf("missing task: want=not_found got=%v", err)
	}
}

func TestUpdateTaskMirrorsFirstClassification(t *testing.T) {
	svc, mem, g, ev := newTaskHarness(t)
	u := mem.addUser()
	task := mem.addTask(u.ID, "t", "", 0.3)
	mem.emails[task.MessageID] = &types.Email{UserID: u.ID, MessageID: task.MessageID}

	out, err := svc.Update(context.Background(), u.ID, task.ID, UpdateTaskRequest{Classification: strPtr("Library")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if out.Classification != "Library" {
		t.Fatalf("classification: got=%q", out.Classification)
	}
	if got := mem.emails[task.MessageID].Classification; got != "library" {
		t.Fatalf("email classification: want=library got=%q", got)
	}
	if g.classes[task.MessageID] != "library" {
		t.Fatalf("graph classification: %v", g.classes)
	}
	if !ev.has(realtime.SSEEventTaskUpdated) {
		t.Fatalf("expected updated event")
	}

	if _, err := svc.Update(context.Background(), u.ID, task.ID, UpdateTaskRequest{Classification: strPtr("Drawer")}); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if got := mem.emails[task.MessageID].Classification; got != "library" {
		t.Fatalf("email classification is set once, got=%q", got)
	}
}

func TestDeleteTask(t *testing.T) {
	svc, mem, g, _ := newTaskHarness(t)
	u := mem.addUser()
	task := mem.addTask(u.ID, "t", "", 0.3)
	if err := svc.Delete(context.Background(), u.ID, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(g.deleted) != 1 || g.deleted[0] != task.ID {
		t.Fatalf("graph delete: %v", g.deleted)
	}
	if err := svc.Delete(context.Background(), u.ID, task.ID); !errs.IsCode(err, errs.CodeNotFound) {
		t.Fatalf("second delete: want=not_found got=%v", err)
	}
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	svc, mem, _, _ := newTaskHarness(t)
	u := mem.addUser()
	a := mem.addTask(u.ID, "a", "", 0.3)
	b := mem.addTask(u.ID, "b", "", 0.4)
	ctx := context.Background()
	if err := svc.AddDependency(ctx, u.ID, a.ID, b.ID); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if err := svc.AddDependency(ctx, u.ID, b.ID, a.ID); !errs.IsCode(err, errs.CodeInvariantViolation) {
		t.Fatalf("b->a: want=invariant_violation got=%v", err)
	}
	if err := svc.AddDependency(ctx, u.ID, a.ID, uuid.New()); !errs.IsCode(err, errs.CodeNotFound) {
		t.Fatalf("unknown task: want=not_found got=%v", err)
	}
}

func strPtr(s string) *string { return &s }
