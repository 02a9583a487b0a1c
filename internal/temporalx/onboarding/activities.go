package onboarding

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/services"
)

const heartbeatEvery = 10 * time.Second

type Activities struct {
	Onboarding services.OnboardingService
}

func (a *Activities) FetchMail(ctx context.Context, in Input) ([]types.RawMessage, error) {
	if a == nil || a.Onboarding == nil {
		return nil, fmt.Errorf("onboarding: activities not configured")
	}
	msgs, err := a.Onboarding.FetchMail(ctx, in.UserID, in.GrantID)
	return msgs, classify(err)
}

func (a *Activities) Ingest(ctx context.Context, in IngestInput) (*services.OnboardingResult, error) {
	if a == nil || a.Onboarding == nil {
		return nil, fmt.Errorf("onboarding: activities not configured")
	}
	runKey := ""
	if activity.IsActivity(ctx) {
		runKey = activity.GetInfo(ctx).WorkflowExecution.RunID
		stop := startHeartbeat(ctx, len(in.Messages))
		defer stop()
	}
	res, err := a.Onboarding.Ingest(ctx, in.UserID, runKey, in.Messages)
	return res, classify(err)
}

// startHeartbeat reports progress until the returned func is called, so a
// long ingest is not mistaken for a dead worker.
func startHeartbeat(ctx context.Context, details any) func() {
	activity.RecordHeartbeat(ctx, details)
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx, details)
			}
		}
	}()
	return func() { close(done) }
}

// classify stops Temporal from retrying errors that cannot heal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch errs.CodeOf(err) {
	case errs.CodeBadInput, errs.CodeNotFound, errs.CodeInvariantViolation:
		return temporal.NewNonRetryableApplicationError(err.Error(), string(errs.CodeOf(err)), err)
	default:
		return err
	}
}
