package onboarding

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// Dispatcher starts onboarding workflows. It implements
// services.OnboardingDispatcher.
type Dispatcher struct {
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewDispatcher(tc temporalsdkclient.Client, taskQueue string) *Dispatcher {
	return &Dispatcher{tc: tc, taskQueue: taskQueue}
}

// StartOnboarding is a no-op returning the existing id while a run for the
// same user is still open.
func (d *Dispatcher) StartOnboarding(ctx context.Context, userID uuid.UUID, grantID string) (string, error) {
	if d == nil || d.tc == nil {
		return "", fmt.Errorf("onboarding: temporal client not configured")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                       WorkflowID(userID),
		TaskQueue:                d.taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}
	run, err := d.tc.ExecuteWorkflow(ctx, opts, WorkflowName, Input{UserID: userID, GrantID: grantID})
	if err != nil {
		return "", fmt.Errorf("start onboarding workflow: %w", err)
	}
	return run.GetID(), nil
}
