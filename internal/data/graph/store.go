package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/platform/neo4jdb"
)

// Store mirrors users, emails and tasks into Neo4j:
//
//	(:User)-[:HAS_EMAIL]->(:Email)-[:CONTAINS_TASK]->(:Task)-[:DEPENDS_ON]->(:Task)
//
// A Store built on a nil client is disabled: writes are no-ops and
// Enabled reports false.
type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewStore(client *neo4jdb.Client, baseLog *logger.Logger) *Store {
	return &Store{client: client, log: baseLog.With("store", "GraphStore")}
}

func (s *Store) Enabled() bool {
	return s != nil && s.client != nil && s.client.Driver != nil
}

// EmailNode carries the Email properties kept in the graph.
type EmailNode struct {
	MessageID      string
	Subject        string
	Snippet        string
	Classification string
}

var schema = []string{
	`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
	`CREATE CONSTRAINT email_message_id_unique IF NOT EXISTS FOR (e:Email) REQUIRE e.message_id IS UNIQUE`,
	`CREATE CONSTRAINT task_id_unique IF NOT EXISTS FOR (t:Task) REQUIRE t.id IS UNIQUE`,
}

// EnsureSchema creates uniqueness constraints. Failures are logged, not returned.
func (s *Store) EnsureSchema(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, stmt := range schema {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Store) write(ctx context.Context, cypher string, params map[string]any) error {
	if !s.Enabled() {
		return nil
	}
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (s *Store) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if !s.Enabled() {
		return nil, nil
	}
	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	recs, _ := out.([]*neo4j.Record)
	return recs, nil
}

func (s *Store) UpsertUser(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	return s.write(ctx, `
MERGE (u:User {id: $user_id})
ON CREATE SET u.created_at = $now
`, map[string]any{"user_id": userID.String(), "now": nowString()})
}

// UpsertEmail merges the email under its user. Classification is only set
// when the node has none.
func (s *Store) UpsertEmail(ctx context.Context, userID uuid.UUID, e EmailNode) error {
	if userID == uuid.Nil || e.MessageID == "" {
		return nil
	}
	return s.write(ctx, `
MERGE (u:User {id: $user_id})
MERGE (e:Email {message_id: $message_id})
ON CREATE SET e.created_at = $now
SET e.subject = $subject,
    e.snippet = CASE WHEN $snippet = '' THEN e.snippet ELSE $snippet END,
    e.classification = CASE WHEN e.classification IS NULL OR e.classification = '' THEN $classification ELSE e.classification END
MERGE (u)-[:HAS_EMAIL]->(e)
`, map[string]any{
		"user_id":        userID.String(),
		"message_id":     e.MessageID,
		"subject":        e.Subject,
		"snippet":        e.Snippet,
		"classification": e.Classification,
		"now":            nowString(),
	})
}

func (s *Store) UpsertTasks(ctx context.Context, userID uuid.UUID, messageID string, tasks []*types.Task) error {
	if userID == uuid.Nil || messageID == "" || len(tasks) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		if t == nil || t.ID == uuid.Nil {
			continue
		}
		rows = append(rows, taskRow(t))
	}
	if len(rows) == 0 {
		return nil
	}
	return s.write(ctx, `
MERGE (u:User {id: $user_id})
MERGE (e:Email {message_id: $message_id})
MERGE (u)-[:HAS_EMAIL]->(e)
WITH e
UNWIND $rows AS r
MERGE (t:Task {id: r.id})
ON CREATE SET t.created_at = r.created_at
SET t.task = r.task,
    t.deadline = r.deadline,
    t.priority = r.priority,
    t.utility_score = r.utility_score,
    t.cost_score = r.cost_score,
    t.relevance_score = r.relevance_score,
    t.classification = r.classification,
    t.updated_at = r.updated_at
MERGE (e)-[:CONTAINS_TASK]->(t)
`, map[string]any{
		"user_id":    userID.String(),
		"message_id": messageID,
		"rows":       rows,
	})
}

// UpdateTask refreshes the mutable properties of an existing task node.
func (s *Store) UpdateTask(ctx context.Context, t *types.Task) error {
	if t == nil || t.ID == uuid.Nil {
		return nil
	}
	return s.write(ctx, `
MATCH (t:Task {id: $row.id})
SET t.task = $row.task,
    t.deadline = $row.deadline,
    t.priority = $row.priority,
    t.utility_score = $row.utility_score,
    t.cost_score = $row.cost_score,
    t.relevance_score = $row.relevance_score,
    t.classification = $row.classification,
    t.updated_at = $row.updated_at
`, map[string]any{"row": taskRow(t)})
}

func (s *Store) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	if taskID == uuid.Nil {
		return nil
	}
	return s.write(ctx, `MATCH (t:Task {id: $id}) DETACH DELETE t`, map[string]any{"id": taskID.String()})
}

func (s *Store) SetEmailClassification(ctx context.Context, messageID, classification string) error {
	if messageID == "" || classification == "" {
		return nil
	}
	return s.write(ctx, `
MATCH (e:Email {message_id: $message_id})
WHERE e.classification IS NULL OR e.classification = ''
SET e.classification = $classification
`, map[string]any{"message_id": messageID, "classification": classification})
}

// ListUserTaskIDs walks user -> emails -> tasks.
func (s *Store) ListUserTaskIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	recs, err := s.read(ctx, `
MATCH (:User {id: $user_id})-[:HAS_EMAIL]->(:Email)-[:CONTAINS_TASK]->(t:Task)
RETURN DISTINCT t.id AS id
`, map[string]any{"user_id": userID.String()})
	if err != nil {
		return nil, fmt.Errorf("graph list tasks: %w", err)
	}
	out := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		v, ok := rec.Get("id")
		if !ok {
			continue
		}
		str, _ := v.(string)
		id, err := uuid.Parse(str)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

const dependencyEdges = `
MATCH (:User {id: $user_id})-[:HAS_EMAIL]->(:Email)-[:CONTAINS_TASK]->(a:Task)-[:DEPENDS_ON]->(b:Task)
RETURN a.id AS src, b.id AS dst
`

// Dependencies returns the DEPENDS_ON adjacency among the user's tasks.
func (s *Store) Dependencies(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	if userID == uuid.Nil {
		return map[uuid.UUID][]uuid.UUID{}, nil
	}
	recs, err := s.read(ctx, dependencyEdges, map[string]any{"user_id": userID.String()})
	if err != nil {
		return nil, fmt.Errorf("graph dependencies: %w", err)
	}
	return edgesFromRecords(recs), nil
}

func edgesFromRecords(recs []*neo4j.Record) map[uuid.UUID][]uuid.UUID {
	out := map[uuid.UUID][]uuid.UUID{}
	for _, rec := range recs {
		sv, _ := rec.Get("src")
		dv, _ := rec.Get("dst")
		src, err1 := uuid.Parse(fmt.Sprint(sv))
		dst, err2 := uuid.Parse(fmt.Sprint(dv))
		if err1 != nil || err2 != nil {
			continue
		}
		out[src] = append(out[src], dst)
	}
	return out
}

// dependencyTx is the part of a write transaction AddDependency uses.
type dependencyTx interface {
	// lockUser takes a write lock on the user node until commit.
	lockUser(ctx context.Context) error
	edges(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error)
	// link merges src->dst and reports whether both tasks were found.
	link(ctx context.Context, src, dst uuid.UUID) (bool, error)
}

// AddDependency records task DEPENDS_ON dependsOn. The cycle check and the
// write run in one transaction holding the user's lock, so concurrent adds
// cannot close a cycle between them. An edge that would close a cycle is an
// invariant violation; an unknown task is not found.
func (s *Store) AddDependency(ctx context.Context, userID, taskID, dependsOn uuid.UUID) error {
	const op = "GraphStore.AddDependency"
	if !s.Enabled() {
		return errs.New(errs.CodeTransient, op, "graph store not configured", nil)
	}
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, addDependency(ctx, &neo4jDependencyTx{tx: tx, userID: userID.String()}, taskID, dependsOn)
	})
	switch {
	case err == nil:
		return nil
	case errs.IsCode(err, errs.CodeInvariantViolation), errs.IsCode(err, errs.CodeNotFound):
		return err
	default:
		return errs.Wrap(errs.CodeTransient, op, err)
	}
}

func addDependency(ctx context.Context, tx dependencyTx, src, dst uuid.UUID) error {
	const op = "GraphStore.AddDependency"
	if err := tx.lockUser(ctx); err != nil {
		return err
	}
	edges, err := tx.edges(ctx)
	if err != nil {
		return err
	}
	if CreatesCycle(edges, src, dst) {
		return errs.Invariant(op, "dependency would create a cycle")
	}
	ok, err := tx.link(ctx, src, dst)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound(op, "task not found in graph")
	}
	return nil
}

type neo4jDependencyTx struct {
	tx     neo4j.ManagedTransaction
	userID string
}

func (t *neo4jDependencyTx) lockUser(ctx context.Context) error {
	res, err := t.tx.Run(ctx, `
MATCH (u:User {id: $user_id})
SET u.dependency_version = coalesce(u.dependency_version, 0) + 1
`, map[string]any{"user_id": t.userID})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (t *neo4jDependencyTx) edges(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	res, err := t.tx.Run(ctx, dependencyEdges, map[string]any{"user_id": t.userID})
	if err != nil {
		return nil, err
	}
	recs, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return edgesFromRecords(recs), nil
}

func (t *neo4jDependencyTx) link(ctx context.Context, src, dst uuid.UUID) (bool, error) {
	res, err := t.tx.Run(ctx, `
MATCH (:User {id: $user_id})-[:HAS_EMAIL]->(:Email)-[:CONTAINS_TASK]->(a:Task {id: $src})
MATCH (:User {id: $user_id})-[:HAS_EMAIL]->(:Email)-[:CONTAINS_TASK]->(b:Task {id: $dst})
WITH DISTINCT a, b
MERGE (a)-[r:DEPENDS_ON]->(b)
RETURN count(r) AS n
`, map[string]any{"user_id": t.userID, "src": src.String(), "dst": dst.String()})
	if err != nil {
		return false, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return false, err
	}
	v, _ := rec.Get("n")
	n, _ := v.(int64)
	return n > 0, nil
}

// CreatesCycle reports whether adding src->dst to edges closes a cycle,
// i.e. dst already reaches src (or src == dst).
func CreatesCycle(edges map[uuid.UUID][]uuid.UUID, src, dst uuid.UUID) bool {
	if src == dst {
		return true
	}
	seen := map[uuid.UUID]bool{dst: true}
	stack := []uuid.UUID{dst}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range edges[n] {
			if next == src {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func taskRow(t *types.Task) map[string]any {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return map[string]any{
		"id":              t.ID.String(),
		"task":            t.Title,
		"deadline":        t.Deadline,
		"priority":        t.Priority,
		"utility_score":   t.UtilityScore,
		"cost_score":      t.CostScore,
		"relevance_score": t.RelevanceScore,
		"classification":  t.Classification,
		"created_at":      created.UTC().Format(time.RFC3339Nano),
		"updated_at":      updated.UTC().Format(time.RFC3339Nano),
	}
}

func nowString() string { return time.Now().UTC().Format(time.RFC3339Nano) }
