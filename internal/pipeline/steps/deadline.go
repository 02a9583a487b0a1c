package steps

import (
	"context"
	"time"

	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

const deadlineToolName = "get_task_deadline"

// DeadlineProximity is max(0, 1 - days_left/7) for deadlines today or later.
// Past dates and unparseable values are 0.
func DeadlineProximity(deadline string, now time.Time) float64 {
	t, ok := scoring.ParseDeadline(deadline)
	if !ok {
		return 0
	}
	due := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := due.Sub(today).Hours() / 24
	if days < 0 {
		return 0
	}
	v := 1 - days/7
	if v < 0 {
		return 0
	}
	return v
}

func deadlineTool(now func() time.Time) oracle.Tool {
	return oracle.Tool{
		Name:        deadlineToolName,
		Description: "Returns how close a task deadline is, from 0 (a week or more away) to 1 (due today).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"deadline_date": map[string]any{
					"type":        "string",
					"description": "Deadline date as YYYY-MM-DD.",
				},
			},
			"required": []string{"deadline_date"},
		},
		Call: func(_ context.Context, args map[string]any) (any, error) {
			return DeadlineProximity(stringFromAny(args["deadline_date"]), now()), nil
		},
	}
}
