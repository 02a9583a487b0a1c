package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/jobs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
)

// Store is the part of the job_run repo a running job may touch.
type Store interface {
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

// Context is the handle a handler gets for one claimed job. Handlers report
// the outcome through Succeed or Fail and never write job_run themselves.
type Context struct {
	Ctx  context.Context
	Job  *types.JobRun
	Repo Store
	done bool
}

func NewContext(ctx context.Context, job *types.JobRun, repo Store) *Context {
	return &Context{Ctx: ctx, Job: job, Repo: repo}
}

// Done reports whether Succeed or Fail already ran.
func (c *Context) Done() bool { return c != nil && c.done }

// DecodePayload unmarshals the job payload into out.
func (c *Context) DecodePayload(out any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(c.Job.Payload, out)
}

func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil {
		return
	}
	_ = c.Repo.Heartbeat(dbctx.Context{Ctx: c.background()}, c.Job.ID)
}

// Fail marks the run failed. The claim query retries failed runs until the
// attempt budget is spent.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.done {
		return
	}
	c.done = true
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		_ = c.Repo.UpdateFields(dbctx.Context{Ctx: c.background()}, c.Job.ID, map[string]interface{}{
			"status":        jobs.StatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
	}
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(stage string, result any) {
	if c == nil || c.done {
		return
	}
	c.done = true
	now := time.Now()
	raw, err := json.Marshal(result)
	if err != nil {
		raw = []byte("{}")
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		_ = c.Repo.UpdateFields(dbctx.Context{Ctx: c.background()}, c.Job.ID, map[string]interface{}{
			"status":     jobs.StatusSucceeded,
			"stage":      stage,
			"error":      "",
			"result":     datatypes.JSON(raw),
			"locked_at":  nil,
			"updated_at": now,
		})
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusSucceeded
		c.Job.Stage = stage
		c.Job.Result = datatypes.JSON(raw)
		c.Job.LockedAt = nil
	}
}

// background keeps lifecycle writes alive when the job context was cancelled.
func (c *Context) background() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(c.Ctx)
}
