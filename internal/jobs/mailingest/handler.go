package mailingest

import (
	"context"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/jobs"
	"github.com/yungbote/inboxpilot-backend/internal/jobs/runtime"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/ingest"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

// Runner is satisfied by services.WebhookService.
type Runner interface {
	RunMailIngest(ctx context.Context, job *types.JobRun) (ingest.Result, error)
}

type Handler struct {
	log    *logger.Logger
	runner Runner
}

func New(baseLog *logger.Logger, runner Runner) *Handler {
	return &Handler{log: baseLog.With("handler", jobs.TypeMailIngest), runner: runner}
}

func (h *Handler) Type() string { return jobs.TypeMailIngest }

type result struct {
	MessageID string `json:"message_id"`
	Outcome   string `json:"outcome"`
	TaskCount int    `json:"task_count"`
}

func (h *Handler) Run(jc *runtime.Context) error {
	res, err := h.runner.RunMailIngest(jc.Ctx, jc.Job)
	if err != nil {
		jc.Fail("ingest", err)
		return nil
	}
	h.log.Debug("mail ingest finished", "job_id", jc.Job.ID, "message_id", res.MessageID, "outcome", res.Outcome)
	jc.Succeed(res.Outcome, result{
		MessageID: res.MessageID,
		Outcome:   res.Outcome,
		TaskCount: len(res.Tasks),
	})
	return nil
}
