package mailingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/domain/jobs"
	"github.com/yungbote/inboxpilot-backend/internal/jobs/runtime"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/ingest"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type fakeRunner struct {
	res ingest.Result
	err error
}

func (f fakeRunner) RunMailIngest(ctx context.Context, job *types.JobRun) (ingest.Result, error) {
	return f.res, f.err
}

type memStore struct{ last map[string]interface{} }

func (s *memStore) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	s.last = updates
	return nil
}

func (s *memStore) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func run(t *testing.T, r Runner) (*memStore, *types.JobRun) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := New(log, r)
	if h.Type() != jobs.TypeMailIngest {
		t.Fatalf("Type: want=%s got=%s", jobs.TypeMailIngest, h.Type())
	}
	store := &memStore{}
	job := &types.JobRun{ID: uuid.New(), JobType: jobs.TypeMailIngest}
	if err := h.Run(runtime.NewContext(context.Background(), job, store)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return store, job
}

func TestRunStoresSummary(t *testing.T) {
	store, job := run(t, fakeRunner{res: ingest.Result{
		MessageID: "m1",
		Outcome:   ingest.OutcomeTasks,
		Tasks:     []*types.Task{{Title: "a"}, {Title: "b"}},
	}})
	if store.last["status"] != jobs.StatusSucceeded {
		t.Fatalf("status: want=%s got=%v", jobs.StatusSucceeded, store.last["status"])
	}
	var got result
	if err := json.Unmarshal(job.Result, &got); err != nil {
		t.Fatalf("result: %v", err)
	}
	if got.TaskCount != 2 || got.MessageID != "m1" {
		t.Fatalf("result: want=m1/2 got=%s/%d", got.MessageID, got.TaskCount)
	}
}

func TestRunMarksFailure(t *testing.T) {
	store, job := run(t, fakeRunner{err: errs.BadInput("webhook.run_mail_ingest", "bad payload")})
	if store.last["status"] != jobs.StatusFailed {
		t.Fatalf("status: want=%s got=%v", jobs.StatusFailed, store.last["status"])
	}
	if job.Stage != "ingest" {
		t.Fatalf("stage: want=ingest got=%s", job.Stage)
	}
}
