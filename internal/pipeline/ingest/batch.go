package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/sanitize"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/steps"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
)

type BatchSummary struct {
	Total      int      `json:"total"`
	Processed  int      `json:"processed"`
	WithTasks  int      `json:"with_tasks"`
	NoTasks    int      `json:"no_tasks"`
	Spam       int      `json:"spam"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Abandoned  int      `json:"abandoned"`
	Skipped    int      `json:"skipped"`
	Tasks      int      `json:"tasks"`
	Results    []Result `json:"results"`
}

// Ham is a message that passed the spam check and still needs extraction.
// Index is its position in BatchSummary.Results.
type Ham struct {
	Index   int
	Message types.RawMessage
	Body    string
}

// ProcessBatch classifies a batch and extracts tasks from what survives.
// Results line up with the processed prefix of msgs.
func (p *Pipeline) ProcessBatch(ctx context.Context, user *types.User, msgs []types.RawMessage) BatchSummary {
	sum, ham := p.ClassifyBatch(ctx, user, msgs)
	return p.ExtractBatch(ctx, user, sum, ham)
}

// ClassifyBatch takes the first SpamBatch messages and spam-checks them in
// batches of MaxConcurrency. Spam is committed straight away, duplicates and
// failures are recorded, and everything else comes back as ham. Messages past
// SpamBatch are skipped.
func (p *Pipeline) ClassifyBatch(ctx context.Context, user *types.User, msgs []types.RawMessage) (BatchSummary, []Ham) {
	sum := BatchSummary{Total: len(msgs)}
	if n := p.cfg.SpamBatch; n > 0 && len(msgs) > n {
		sum.Skipped = len(msgs) - n
		msgs = msgs[:n]
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	sum.Results = p.fanOut(ctx, "spam", ids, func(ctx context.Context, i int) Result {
		return p.classify(ctx, user, msgs[i])
	})

	var ham []Ham
	for i, r := range sum.Results {
		if r.Outcome == outcomeHam {
			ham = append(ham, Ham{Index: i, Message: msgs[i], Body: sanitize.Text(msgs[i].Body)})
		}
	}
	return sum, ham
}

// ExtractBatch runs extraction and scoring over ham, fills in its results and
// tallies the batch. A failed message never affects its siblings.
func (p *Pipeline) ExtractBatch(ctx context.Context, user *types.User, sum BatchSummary, ham []Ham) BatchSummary {
	ids := make([]string, len(ham))
	for i, h := range ham {
		ids[i] = h.Message.ID
	}
	out := p.fanOut(ctx, "extract", ids, func(ctx context.Context, i int) Result {
		return p.ProcessMessage(ctx, user, ham[i].Message, Options{SkipSpam: true})
	})
	for i, h := range ham {
		if h.Index >= 0 && h.Index < len(sum.Results) {
			sum.Results[h.Index] = out[i]
		}
	}

	for _, r := range sum.Results {
		switch r.Outcome {
		case OutcomeTasks:
			sum.Processed++
			sum.WithTasks++
			sum.Tasks += len(r.Tasks)
		case OutcomeNoTasks:
			sum.Processed++
			sum.NoTasks++
		case OutcomeSpam:
			sum.Processed++
			sum.Spam++
		case OutcomeDuplicate:
			sum.Duplicates++
		default:
			if errors.Is(r.Err, context.DeadlineExceeded) {
				sum.Abandoned++
			}
			sum.Failed++
		}
	}
	p.log.Info("batch ingest finished",
		"user_id", user.ID,
		"total", sum.Total,
		"processed", sum.Processed,
		"tasks", sum.Tasks,
		"failed", sum.Failed,
		"abandoned", sum.Abandoned,
		"skipped", sum.Skipped,
	)
	if p.deps.Events != nil {
		p.deps.Events.Notify(ctx, user.ID, realtime.SSEEventIngestCompleted, map[string]any{
			"total":     sum.Total,
			"processed": sum.Processed,
			"tasks":     sum.Tasks,
			"failed":    sum.Failed,
		})
	}
	return sum
}

// classify is the first half of ProcessMessage: duplicate check and spam
// verdict. Ham comes back with outcomeHam.
func (p *Pipeline) classify(ctx context.Context, user *types.User, msg types.RawMessage) Result {
	msgID := strings.TrimSpace(msg.ID)
	if user == nil || user.ID == uuid.Nil {
		return failed(msgID, errs.BadInput("ingest.classify", "missing user"))
	}
	if msgID == "" {
		return failed(msgID, errs.BadInput("ingest.classify", "missing message id"))
	}
	if rec, err := p.deps.Receipts.Get(dbctx.With(ctx), user.ID, msgID); err != nil {
		return failed(msgID, err)
	} else if rec != nil {
		return Result{MessageID: msgID, Outcome: OutcomeDuplicate}
	}
	verdict, err := steps.ClassifySpam(ctx, p.deps.Steps, steps.SpamInput{Body: sanitize.Text(msg.Body), Profile: user.ProfileContext()})
	if err != nil {
		return failed(msgID, err)
	}
	if verdict.IsSpam() {
		return p.commitSpam(ctx, user.ID, msgID)
	}
	return Result{MessageID: msgID, Outcome: outcomeHam}
}

// fanOut calls fn for every index in batches of MaxConcurrency, each batch
// under its own BatchTimeout. Indexes not reached before ctx ends fail with
// the context error.
func (p *Pipeline) fanOut(ctx context.Context, stage string, ids []string, fn func(ctx context.Context, i int) Result) []Result {
	out := make([]Result, len(ids))
	size := p.cfg.MaxConcurrency
	for start := 0; start < len(ids); start += size {
		if ctx.Err() != nil {
			for i := start; i < len(ids); i++ {
				out[i] = failed(ids[i], ctx.Err())
			}
			break
		}
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		p.runBatch(ctx, stage, ids, start, end, out, fn)
	}
	return out
}

func (p *Pipeline) runBatch(ctx context.Context, stage string, ids []string, start, end int, out []Result, fn func(ctx context.Context, i int) Result) {
	bctx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	began := time.Now()
	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for i := start; i < end; i++ {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("panic while ingesting message", "stage", stage, "message_id", ids[i], "panic", r)
					out[i] = Result{MessageID: ids[i], Outcome: OutcomeFailed, Error: "panic"}
				}
			}()
			out[i] = fn(bctx, i)
			return nil
		})
	}
	_ = g.Wait()
	if errors.Is(bctx.Err(), context.DeadlineExceeded) {
		p.log.Warn("batch timed out; continuing with next batch",
			"stage", stage, "start", start, "end", end, "elapsed", time.Since(began).String())
	}
}
