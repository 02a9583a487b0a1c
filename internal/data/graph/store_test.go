package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

func TestCreatesCycle(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	edges := map[uuid.UUID][]uuid.UUID{
		a: {b},
		b: {c},
	}
	if !CreatesCycle(edges, c, a) {
		t.Fatalf("c->a: want cycle")
	}
	if !CreatesCycle(edges, a, a) {
		t.Fatalf("self edge: want cycle")
	}
	if CreatesCycle(edges, a, c) {
		t.Fatalf("a->c: redundant edge is not a cycle")
	}
	if CreatesCycle(edges, d, a) {
		t.Fatalf("d->a: want no cycle")
	}
}

func TestDisabledStoreIsNoop(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	s := NewStore(nil, log)
	ctx := context.Background()
	if s.Enabled() {
		t.Fatalf("Enabled: want=false")
	}
	s.EnsureSchema(ctx)
	if err := s.UpsertEmail(ctx, uuid.New(), EmailNode{MessageID: "m"}); err != nil {
		t.Fatalf("UpsertEmail: %v", err)
	}
	ids, err := s.ListUserTaskIDs(ctx, uuid.New())
	if err != nil || len(ids) != 0 {
		t.Fatalf("ListUserTaskIDs: ids=%v err=%v", ids, err)
	}
	err = s.AddDependency(ctx, uuid.New(), uuid.New(), uuid.New())
	if !errs.IsCode(err, errs.CodeTransient) {
		t.Fatalf("AddDependency: want transient got=%v", err)
	}
}

type fakeDependencyTx struct {
	locked bool
	graph  map[uuid.UUID][]uuid.UUID
	tasks  map[uuid.UUID]bool
}

func (f *fakeDependencyTx) lockUser(context.Context) error {
	f.locked = true
	return nil
}

func (f *fakeDependencyTx) edges(context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	if !f.locked {
		return nil, errors.New("edges read before lock")
	}
	return f.graph, nil
}

func (f *fakeDependencyTx) link(_ context.Context, src, dst uuid.UUID) (bool, error) {
	if !f.tasks[src] || !f.tasks[dst] {
		return false, nil
	}
	f.graph[src] = append(f.graph[src], dst)
	return true, nil
}

func TestAddDependencyChecksAndLinksInOneTx(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	tx := &fakeDependencyTx{
		graph: map[uuid.UUID][]uuid.UUID{},
		tasks: map[uuid.UUID]bool{a: true, b: true, c: true},
	}
	ctx := context.Background()
	if err := addDependency(ctx, tx, a, b); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if err := addDependency(ctx, tx, b, c); err != nil {
		t.Fatalf("b->c: %v", err)
	}
	if err := addDependency(ctx, tx, c, a); !errs.IsCode(err, errs.CodeInvariantViolation) {
		t.Fatalf("c->a: want=invariant_violation got=%v", err)
	}
	if len(tx.graph[c]) != 0 {
		t.Fatalf("cyclic edge written: %v", tx.graph[c])
	}
	if err := addDependency(ctx, tx, a, uuid.New()); !errs.IsCode(err, errs.CodeNotFound) {
		t.Fatalf("unknown task: want=not_found got=%v", err)
	}
}
