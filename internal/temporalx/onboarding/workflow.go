package onboarding

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/services"
)

// Workflow fetches the lookback window of mail and pushes it through the
// batch pipeline. Ingest is idempotent per message, so retries are safe.
func Workflow(ctx workflow.Context, in Input) (*services.OnboardingResult, error) {
	if in.GrantID == "" {
		return nil, fmt.Errorf("onboarding: missing grant_id")
	}

	fetchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	})
	var msgs []types.RawMessage
	if err := workflow.ExecuteActivity(fetchCtx, ActivityFetch, in).Get(ctx, &msgs); err != nil {
		return nil, err
	}

	ingestCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
	var out services.OnboardingResult
	if err := workflow.ExecuteActivity(ingestCtx, ActivityIngest, IngestInput{UserID: in.UserID, Messages: msgs}).Get(ctx, &out); err != nil {
		return nil, err
	}
	out.WorkflowID = workflow.GetInfo(ctx).WorkflowExecution.ID
	return &out, nil
}
