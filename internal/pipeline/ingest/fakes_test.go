package ingest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/graph"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
)

type memStore struct {
	mu       sync.Mutex
	receipts map[string]*types.MailReceipt
	emails   map[string]*types.Email
	tasks    map[uuid.UUID]*types.Task
	features map[uuid.UUID]*types.Features
}

func newMemStore() *memStore {
	return &memStore{
		receipts: map[string]*types.MailReceipt{},
		emails:   map[string]*types.Email{},
		tasks:    map[uuid.UUID]*types.Task{},
		features: map[uuid.UUID]*types.Features{},
	}
}

func receiptKey(userID uuid.UUID, msgID string) string { return userID.String() + "|" + msgID }

type memReceipts struct{ s *memStore }

func (r memReceipts) Get(_ dbctx.Context, userID uuid.UUID, msgID string) (*types.MailReceipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.receipts[receiptKey(userID, msgID)], nil
}

func (r memReceipts) Create(_ dbctx.Context, rec *types.MailReceipt) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := receiptKey(rec.UserID, rec.MessageID)
	if _, ok := r.s.receipts[k]; ok {
		return false, nil
	}
	r.s.receipts[k] = rec
	return true, nil
}

type memEmails struct{ s *memStore }

func (r memEmails) Upsert(_ dbctx.Context, e *types.Email) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.emails[e.MessageID] = e
	return nil
}

func (r memEmails) GetByMessageID(_ dbctx.Context, userID uuid.UUID, msgID string) (*types.Email, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e, ok := r.s.emails[msgID]; ok && e.UserID == userID {
		return e, nil
	}
	return nil, nil
}

func (r memEmails) ListByUser(_ dbctx.Context, userID uuid.UUID, _ int) ([]*types.Email, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.Email
	for _, e := range r.s.emails {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memEmails) SetClassificationIfEmpty(_ dbctx.Context, _ uuid.UUID, msgID, class string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.emails[msgID]
	if !ok || e.Classification != "" {
		return false, nil
	}
	e.Classification = class
	return true, nil
}

type memTasks struct{ s *memStore }

func (r memTasks) Create(_ dbctx.Context, rows []*types.Task) ([]*types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range rows {
		r.s.tasks[t.ID] = t
	}
	return rows, nil
}

func (r memTasks) GetByID(_ dbctx.Context, userID, id uuid.UUID) (*types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tasks[id]; ok && t.UserID == userID {
		return t, nil
	}
	return nil, nil
}

func (r memTasks) GetByIDs(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID) ([]*types.Task, error) {
	var out []*types.Task
	for _, id := range ids {
		if t, _ := r.GetByID(dbc, userID, id); t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memTasks) ListByUser(_ dbctx.Context, userID uuid.UUID) ([]*types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.Task
	for _, t := range r.s.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return out, nil
}

func (r memTasks) ListByMessage(_ dbctx.Context, userID uuid.UUID, msgID string) ([]*types.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.Task
	for _, t := range r.s.tasks {
		if t.UserID == userID && t.MessageID == msgID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memTasks) UpdateFields(_ dbctx.Context, _ uuid.UUID, _ uuid.UUID, _ map[string]any) error {
	return nil
}

func (r memTasks) Delete(_ dbctx.Context, _ uuid.UUID, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.tasks[id]
	delete(r.s.tasks, id)
	return ok, nil
}

func (r memTasks) DeleteByMessage(_ dbctx.Context, userID uuid.UUID, msgID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.tasks {
		if t.UserID == userID && t.MessageID == msgID {
			delete(r.s.tasks, id)
			n++
		}
	}
	return n, nil
}

type memFeatures struct{ s *memStore }

func (r memFeatures) Create(_ dbctx.Context, rows []*types.Features) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range rows {
		r.s.features[f.TaskID] = f
	}
	return nil
}

func (r memFeatures) GetByTaskID(_ dbctx.Context, taskID uuid.UUID) (*types.Features, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.features[taskID], nil
}

type fakeGraph struct {
	mu     sync.Mutex
	emails map[string]int
	tasks  map[string]int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{emails: map[string]int{}, tasks: map[string]int{}}
}

func (g *fakeGraph) Enabled() bool                                { return true }
func (g *fakeGraph) UpsertUser(context.Context, uuid.UUID) error { return nil }

func (g *fakeGraph) UpsertEmail(_ context.Context, _ uuid.UUID, e graph.EmailNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emails[e.MessageID]++
	return nil
}

func (g *fakeGraph) UpsertTasks(_ context.Context, _ uuid.UUID, msgID string, rows []*types.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks[msgID] += len(rows)
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []realtime.SSEEvent
}

func (e *recordingEvents) Notify(_ context.Context, _ uuid.UUID, ev realtime.SSEEvent, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (r memFeatures) ListByUser(_ dbctx.Context, userID uuid.UUID) ([]*types.Features, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.Features
	for _, f := range r.s.features {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}
