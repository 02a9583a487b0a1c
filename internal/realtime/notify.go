package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

// Publisher delivers a message to every API instance.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// Notifier sends per-user events. Failures are logged and dropped.
type Notifier struct {
	pub Publisher
	log *logger.Logger
}

func NewNotifier(pub Publisher, baseLog *logger.Logger) *Notifier {
	return &Notifier{pub: pub, log: baseLog.With("component", "Notifier")}
}

func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, event SSEEvent, data any) {
	if n == nil || n.pub == nil || userID == uuid.Nil {
		return
	}
	msg := SSEMessage{Channel: UserChannel(userID), Event: event, Data: data}
	if err := n.pub.Publish(ctx, msg); err != nil {
		n.log.Warn("event publish failed", "event", event, "user_id", userID, "error", err)
	}
}

// LocalPublisher broadcasts straight into a hub. Used when redis is not configured.
type LocalPublisher struct {
	Hub *SSEHub
}

func (p LocalPublisher) Publish(_ context.Context, msg SSEMessage) error {
	if p.Hub != nil {
		p.Hub.Broadcast(msg)
	}
	return nil
}
