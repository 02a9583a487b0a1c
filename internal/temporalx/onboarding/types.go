package onboarding

import (
	"github.com/google/uuid"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
)

const (
	WorkflowName     = "user_onboarding"
	ActivityFetch    = "onboarding_fetch_mail"
	ActivityIngest   = "onboarding_ingest"
	workflowIDPrefix = "onboarding:"
)

type Input struct {
	UserID  uuid.UUID `json:"user_id"`
	GrantID string    `json:"grant_id"`
}

type IngestInput struct {
	UserID   uuid.UUID          `json:"user_id"`
	Messages []types.RawMessage `json:"messages"`
}

func WorkflowID(userID uuid.UUID) string { return workflowIDPrefix + userID.String() }
