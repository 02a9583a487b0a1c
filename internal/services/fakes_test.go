package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/inboxpilot-backend/internal/data/graph"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

type memDB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*types.User
	tasks    map[uuid.UUID]*types.Task
	features map[uuid.UUID]*types.Features
	emails   map[string]*types.Email
	jobs     []*types.JobRun
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[uuid.UUID]*types.User{},
		tasks:    map[uuid.UUID]*types.Task{},
		features: map[uuid.UUID]*types.Features{},
		emails:   map[string]*types.Email{},
	}
}

func (m *memDB) addUser(traits ...string) *types.User {
	u := &types.User{ID: uuid.New(), Email: "pat@example.com", Personality: types.EncodeTraits(traits, 10)}
	m.users[u.ID] = u
	return u
}

func (m *memDB) addTask(userID uuid.UUID, title, class string, relevance float64) *types.Task {
	t := &types.Task{
		ID:             uuid.New(),
		UserID:         userID,
		MessageID:      "msg-" + title,
		Title:          title,
		Deadline:       "No Deadline",
		Priority:       "medium",
		RelevanceScore: relevance,
		UtilityScore:   relevance,
		Classification: class,
	}
	m.tasks[t.ID] = t
	return t
}

// users

type memUsers struct{ m *memDB }

func (r memUsers) GetByID(_ dbctx.Context, id uuid.UUID) (*types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	return r.GetByID(dbc, id)
}

func (r memUsers) GetByGrantID(_ dbctx.Context, grantID string) (*types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.GrantID == grantID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUsers) SetGrant(_ dbctx.Context, id uuid.UUID, grantID, mailEmail string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		u.GrantID, u.MailEmail = grantID, mailEmail
	}
	return nil
}

func (r memUsers) UpdatePersonality(_ dbctx.Context, id uuid.UUID, p datatypes.JSON) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		u.Personality = p
	}
	return nil
}

func (r memUsers) MarkPersonalityRun(_ dbctx.Context, id uuid.UUID, runKey string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		u.PersonalityRun = runKey
	}
	return nil
}

// serialTx runs one transaction at a time, standing in for row locks.
type serialTx struct{ mu sync.Mutex }

func (s *serialTx) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(dbctx.With(ctx))
}

func (r memUsers) UpdateDomainInf(_ dbctx.Context, id uuid.UUID, d string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		u.DomainInf = d
	}
	return nil
}

func (r memUsers) SetTaskGen(_ dbctx.Context, id uuid.UUID, on bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.users[id]; ok {
		u.TaskGen = on
	}
	return nil
}

// tasks

type memTasks struct{ m *memDB }

func (r memTasks) Create(_ dbctx.Context, rows []*types.Task) ([]*types.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range rows {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		r.m.tasks[t.ID] = t
	}
	return rows, nil
}

func (r memTasks) GetByID(_ dbctx.Context, userID, id uuid.UUID) (*types.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tasks[id]
	if !ok || t.UserID != userID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r memTasks) GetByIDs(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID) ([]*types.Task, error) {
	var out []*types.Task
	for _, id := range ids {
		if t, _ := r.GetByID(dbc, userID, id); t != nil {
			out = append(out, t)
		}
	}
	sortByRelevance(out)
	return out, nil
}

func (r memTasks) ListByUser(_ dbctx.Context, userID uuid.UUID) ([]*types.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*types.Task
	for _, t := range r.m.tasks {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortByRelevance(out)
	return out, nil
}

func (r memTasks) ListByMessage(_ dbctx.Context, userID uuid.UUID, msgID string) ([]*types.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*types.Task
	for _, t := range r.m.tasks {
		if t.UserID == userID && t.MessageID == msgID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memTasks) UpdateFields(_ dbctx.Context, userID, id uuid.UUID, updates map[string]any) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tasks[id]
	if !ok || t.UserID != userID {
		return errors.New("no such task")
	}
	for k, v := range updates {
		switch k {
		case "task":
			t.Title = v.(string)
		case "deadline":
			t.Deadline = v.(string)
		case "priority":
			t.Priority = v.(string)
		case "classification":
			t.Classification = v.(string)
		case "relevance_score":
			t.RelevanceScore = v.(float64)
		case "utility_score":
			t.UtilityScore = v.(float64)
		case "cost_score":
			t.CostScore = v.(float64)
		}
	}
	return nil
}

func (r memTasks) Delete(_ dbctx.Context, userID, id uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tasks[id]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(r.m.tasks, id)
	return true, nil
}

func (r memTasks) DeleteByMessage(_ dbctx.Context, userID uuid.UUID, msgID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, t := range r.m.tasks {
		if t.UserID == userID && t.MessageID == msgID {
			delete(r.m.tasks, id)
			n++
		}
	}
	return n, nil
}

func sortByRelevance(ts []*types.Task) {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].RelevanceScore > ts[j].RelevanceScore })
}

// features

type memFeatures struct{ m *memDB }

func (r memFeatures) Create(_ dbctx.Context, rows []*types.Features) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, f := range rows {
		r.m.features[f.TaskID] = f
	}
	return nil
}

func (r memFeatures) GetByTaskID(_ dbctx.Context, taskID uuid.UUID) (*types.Features, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.features[taskID], nil
}

func (r memFeatures) ListByUser(_ dbctx.Context, userID uuid.UUID) ([]*types.Features, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*types.Features
	for _, f := range r.m.features {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

// emails

type memEmails struct{ m *memDB }

func (r memEmails) Upsert(_ dbctx.Context, e *types.Email) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.emails[e.MessageID] = e
	return nil
}

func (r memEmails) GetByMessageID(_ dbctx.Context, _ uuid.UUID, msgID string) (*types.Email, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.emails[msgID], nil
}

func (r memEmails) ListByUser(_ dbctx.Context, userID uuid.UUID, limit int) ([]*types.Email, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*types.Email
	for _, e := range r.m.emails {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memEmails) SetClassificationIfEmpty(_ dbctx.Context, _ uuid.UUID, msgID, class string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.emails[msgID]
	if !ok || e.Classification != "" {
		return false, nil
	}
	e.Classification = class
	return true, nil
}

// jobs

type memJobs struct{ m *memDB }

func (r memJobs) Enqueue(_ dbctx.Context, job *types.JobRun) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, j := range r.m.jobs {
		if job.DedupeKey != "" && j.DedupeKey == job.DedupeKey {
			return false, nil
		}
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	r.m.jobs = append(r.m.jobs, job)
	return true, nil
}

// models

type memModels struct {
	mu     sync.Mutex
	models map[uuid.UUID]*scoring.UserModel
	reset  bool
	saves  int
}

func newMemModels() *memModels { return &memModels{models: map[uuid.UUID]*scoring.UserModel{}} }

func (s *memModels) Load(_ dbctx.Context, userID uuid.UUID) (*scoring.UserModel, scoring.LoadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reset {
		s.reset = false
		return scoring.NewUserModel(), scoring.StateReset, nil
	}
	if m, ok := s.models[userID]; ok {
		return m, scoring.StateLoaded, nil
	}
	return scoring.NewUserModel(), scoring.StateNew, nil
}

func (s *memModels) Save(_ dbctx.Context, userID uuid.UUID, m *scoring.UserModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[userID] = m
	s.saves++
	return nil
}

// graph

var errCycle = errs.Invariant("graph", "dependency would create a cycle")

type fakeGraph struct {
	mu       sync.Mutex
	enabled  bool
	updated  []uuid.UUID
	deleted  []uuid.UUID
	classes  map[string]string
	taskIDs  map[uuid.UUID][]uuid.UUID
	deps     map[uuid.UUID][]uuid.UUID
	emails   []string
	inserted map[string]int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		enabled:  true,
		classes:  map[string]string{},
		taskIDs:  map[uuid.UUID][]uuid.UUID{},
		deps:     map[uuid.UUID][]uuid.UUID{},
		inserted: map[string]int{},
	}
}

func (g *fakeGraph) Enabled() bool                                { return g.enabled }
func (g *fakeGraph) UpsertUser(context.Context, uuid.UUID) error { return nil }

func (g *fakeGraph) UpsertEmail(_ context.Context, _ uuid.UUID, e graph.EmailNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emails = append(g.emails, e.MessageID)
	return nil
}

func (g *fakeGraph) UpsertTasks(_ context.Context, userID uuid.UUID, msgID string, rows []*types.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range rows {
		g.taskIDs[userID] = append(g.taskIDs[userID], t.ID)
	}
	g.inserted[msgID] += len(rows)
	return nil
}

func (g *fakeGraph) UpdateTask(_ context.Context, t *types.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updated = append(g.updated, t.ID)
	return nil
}

func (g *fakeGraph) DeleteTask(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, id)
	return nil
}

func (g *fakeGraph) SetEmailClassification(_ context.Context, msgID, class string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.classes[msgID]; !ok {
		g.classes[msgID] = class
	}
	return nil
}

func (g *fakeGraph) ListUserTaskIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uuid.UUID(nil), g.taskIDs[userID]...), nil
}

func (g *fakeGraph) AddDependency(_ context.Context, _ uuid.UUID, taskID, dependsOn uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if graph.CreatesCycle(g.deps, taskID, dependsOn) {
		return errCycle
	}
	g.deps[taskID] = append(g.deps[taskID], dependsOn)
	return nil
}

// events

type recordingEvents struct {
	mu     sync.Mutex
	events []realtime.SSEEvent
}

func (e *recordingEvents) Notify(_ context.Context, _ uuid.UUID, ev realtime.SSEEvent, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEvents) has(ev realtime.SSEEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, x := range e.events {
		if x == ev {
			return true
		}
	}
	return false
}

// oracle

type fakeOracle struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(req oracle.Request) (string, error)
}

func (o *fakeOracle) Complete(_ context.Context, req oracle.Request) (oracle.Response, error) {
	o.mu.Lock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[req.Name]++
	o.mu.Unlock()
	text, err := o.fn(req)
	if err != nil {
		return oracle.Response{}, err
	}
	return oracle.Parse(text, req.Format), nil
}
