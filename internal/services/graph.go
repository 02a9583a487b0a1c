package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/data/graph"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
)

// TaskGraph is the slice of the graph store the services touch. *graph.Store
// satisfies it; a disabled store turns every call into a no-op.
type TaskGraph interface {
	Enabled() bool
	UpsertUser(ctx context.Context, userID uuid.UUID) error
	UpsertEmail(ctx context.Context, userID uuid.UUID, e graph.EmailNode) error
	UpsertTasks(ctx context.Context, userID uuid.UUID, messageID string, tasks []*types.Task) error
	UpdateTask(ctx context.Context, t *types.Task) error
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
	SetEmailClassification(ctx context.Context, messageID, classification string) error
	ListUserTaskIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	AddDependency(ctx context.Context, userID, taskID, dependsOn uuid.UUID) error
}

var _ TaskGraph = (*graph.Store)(nil)

type Events interface {
	Notify(ctx context.Context, userID uuid.UUID, event realtime.SSEEvent, data any)
}

func graphOn(g TaskGraph) bool { return g != nil && g.Enabled() }
