package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	"github.com/yungbote/inboxpilot-backend/internal/data/graph"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/domain/mail"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/sanitize"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/steps"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
)

var tracer = otel.Tracer("inboxpilot/pipeline")

const (
	OutcomeSpam      = mail.OutcomeSpam
	OutcomeTasks     = mail.OutcomeTasks
	OutcomeNoTasks   = mail.OutcomeNoTasks
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"

	// outcomeHam marks a message between classification and extraction.
	outcomeHam = "ham"

	snippetRunes = 200
)

var errDuplicate = errors.New("ingest: message already processed")

// Graph is the part of the graph store the pipeline mirrors into.
type Graph interface {
	Enabled() bool
	UpsertUser(ctx context.Context, userID uuid.UUID) error
	UpsertEmail(ctx context.Context, userID uuid.UUID, e graph.EmailNode) error
	UpsertTasks(ctx context.Context, userID uuid.UUID, messageID string, tasks []*types.Task) error
}

type Events interface {
	Notify(ctx context.Context, userID uuid.UUID, event realtime.SSEEvent, data any)
}

type Deps struct {
	Log      *logger.Logger
	Tx       db.TxRunner
	Steps    steps.Deps
	Scorer   *scoring.Scorer
	Emails   repos.EmailRepo
	Receipts repos.ReceiptRepo
	Tasks    repos.TaskRepo
	Features repos.FeaturesRepo
	// Graph and Events are optional.
	Graph  Graph
	Events Events
}

type Pipeline struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
}

func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Log == nil || deps.Tx == nil || deps.Scorer == nil || deps.Emails == nil ||
		deps.Receipts == nil || deps.Tasks == nil || deps.Features == nil || deps.Steps.Oracle == nil {
		return nil, fmt.Errorf("ingest: missing deps")
	}
	if deps.Steps.Log == nil {
		deps.Steps.Log = deps.Log
	}
	return &Pipeline{deps: deps, cfg: cfg.withDefaults(), log: deps.Log.With("component", "IngestPipeline")}, nil
}

func (p *Pipeline) Config() Config { return p.cfg }

type Options struct {
	SkipSpam bool
}

type Result struct {
	MessageID string        `json:"message_id"`
	Outcome   string        `json:"outcome"`
	Tasks     []*types.Task `json:"tasks,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

func failed(msgID string, err error) Result {
	return Result{MessageID: msgID, Outcome: OutcomeFailed, Err: err, Error: err.Error()}
}

// ProcessMessage runs one message end to end. The relational writes for a
// message commit together with its receipt; the graph mirror follows
// best-effort. Re-delivered messages come back as duplicates.
func (p *Pipeline) ProcessMessage(ctx context.Context, user *types.User, msg types.RawMessage, opts Options) Result {
	msgID := strings.TrimSpace(msg.ID)
	if user == nil || user.ID == uuid.Nil {
		return failed(msgID, errs.BadInput("ingest.message", "missing user"))
	}
	if msgID == "" {
		return failed(msgID, errs.BadInput("ingest.message", "missing message id"))
	}
	ctx, span := tracer.Start(ctx, "ingest.message")
	span.SetAttributes(attribute.String("message_id", msgID))
	defer span.End()

	log := p.log.With("user_id", user.ID, "message_id", msgID)

	if rec, err := p.deps.Receipts.Get(dbctx.With(ctx), user.ID, msgID); err != nil {
		return failed(msgID, err)
	} else if rec != nil {
		return Result{MessageID: msgID, Outcome: OutcomeDuplicate}
	}

	body := sanitize.Text(msg.Body)

	if !opts.SkipSpam {
		verdict, err := steps.ClassifySpam(ctx, p.deps.Steps, steps.SpamInput{Body: body, Profile: user.ProfileContext()})
		if err != nil {
			return failed(msgID, err)
		}
		if verdict.IsSpam() {
			log.Debug("message classified as spam")
			return p.commitSpam(ctx, user.ID, msgID)
		}
	}

	extracted, err := steps.ExtractTasks(ctx, p.deps.Steps, steps.ExtractInput{Body: body, Personality: user.CurrentTrait()})
	if err != nil {
		log.Warn("task extraction failed; abandoning message", "error", err)
		return failed(msgID, err)
	}
	if err := ctx.Err(); err != nil {
		return failed(msgID, errs.Wrap(errs.CodeTransient, "ingest.message", err))
	}

	if len(extracted.Tasks) == 0 {
		return p.commitNoTasks(ctx, user, msg, body)
	}
	return p.commitTasks(ctx, user, msg, body, extracted.Tasks)
}

func (p *Pipeline) commitSpam(ctx context.Context, userID uuid.UUID, msgID string) Result {
	err := p.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		return p.writeReceipt(dbc, userID, msgID, OutcomeSpam, 0)
	})
	return p.finish(msgID, OutcomeSpam, nil, err)
}

func (p *Pipeline) commitTasks(ctx context.Context, user *types.User, msg types.RawMessage, body string, extracted []steps.ExtractedTask) Result {
	msgID := strings.TrimSpace(msg.ID)
	feats := make([]steps.FeaturesOutput, len(extracted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.TaskConcurrency)
	for i := range extracted {
		i := i
		g.Go(func() error {
			out, err := steps.ExtractFeatures(gctx, p.deps.Steps, steps.FeaturesInput{
				Personality: user.CurrentTrait(),
				EmailBody:   body,
				Task:        extracted[i],
			})
			feats[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return failed(msgID, err)
	}
	if err := ctx.Err(); err != nil {
		return failed(msgID, errs.Wrap(errs.CodeTransient, "ingest.features", err))
	}

	inputs := make([]scoring.Input, len(extracted))
	for i, t := range extracted {
		inputs[i] = scoring.Input{Utility: feats[i].Utility, Cost: feats[i].Cost, Priority: t.Priority, Deadline: t.Deadline}
	}
	scores := p.deps.Scorer.ScoreBatch(dbctx.With(ctx), user.ID, inputs)

	rows := make([]*types.Task, len(extracted))
	featRows := make([]*types.Features, len(extracted))
	for i, t := range extracted {
		if err := checkScores(scores[i]); err != nil {
			return failed(msgID, err)
		}
		rows[i] = &types.Task{
			ID:             uuid.New(),
			UserID:         user.ID,
			MessageID:      msgID,
			Title:          t.Title,
			Deadline:       t.Deadline,
			Priority:       t.Priority,
			UtilityScore:   scores[i].Utility,
			CostScore:      scores[i].Cost,
			RelevanceScore: scores[i].Relevance,
		}
		featRows[i] = &types.Features{
			TaskID:         rows[i].ID,
			UserID:         user.ID,
			Utility:        jsonColumn(feats[i].Utility),
			Cost:           jsonColumn(feats[i].Cost),
			MappingVersion: scoring.MappingVersion,
		}
	}

	err := p.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := p.writeReceipt(dbc, user.ID, msgID, OutcomeTasks, len(rows)); err != nil {
			return err
		}
		if _, err := p.deps.Tasks.Create(dbc, rows); err != nil {
			return err
		}
		return p.deps.Features.Create(dbc, featRows)
	})
	res := p.finish(msgID, OutcomeTasks, rows, err)
	if res.Err != nil || res.Outcome == OutcomeDuplicate {
		return res
	}

	p.mirror(ctx, user.ID, graph.EmailNode{
		MessageID: msgID,
		Subject:   msg.Subject,
		Snippet:   snippet(body),
	}, rows)
	if p.deps.Events != nil {
		p.deps.Events.Notify(ctx, user.ID, realtime.SSEEventTaskCreated, map[string]any{"message_id": msgID, "tasks": rows})
	}
	return res
}

func (p *Pipeline) commitNoTasks(ctx context.Context, user *types.User, msg types.RawMessage, body string) Result {
	msgID := strings.TrimSpace(msg.ID)
	in := steps.ContentInput{Subject: msg.Subject, Body: body}

	var (
		summary steps.SummaryOutput
		class   steps.ClassifyOutput
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		summary, err = steps.SummarizeContent(gctx, p.deps.Steps, in)
		return err
	})
	g.Go(func() (err error) {
		class, err = steps.ClassifyContent(gctx, p.deps.Steps, in)
		return err
	})
	if err := g.Wait(); err != nil {
		return failed(msgID, err)
	}

	row := &types.Email{
		UserID:         user.ID,
		MessageID:      msgID,
		Subject:        msg.Subject,
		Sender:         msg.From,
		Body:           summary.Summary,
		Snippet:        snippet(summary.Summary),
		Classification: class.Classification,
		ReceivedAt:     msg.ReceivedAt,
	}
	err := p.deps.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := p.writeReceipt(dbc, user.ID, msgID, OutcomeNoTasks, 0); err != nil {
			return err
		}
		return p.deps.Emails.Upsert(dbc, row)
	})
	res := p.finish(msgID, OutcomeNoTasks, nil, err)
	if res.Err != nil || res.Outcome == OutcomeDuplicate {
		return res
	}
	p.mirror(ctx, user.ID, graph.EmailNode{
		MessageID:      msgID,
		Subject:        msg.Subject,
		Snippet:        row.Snippet,
		Classification: row.Classification,
	}, nil)
	return res
}

// writeReceipt claims the message inside the transaction. A lost race with a
// concurrent delivery rolls the transaction back as a duplicate.
func (p *Pipeline) writeReceipt(dbc dbctx.Context, userID uuid.UUID, msgID, outcome string, n int) error {
	created, err := p.deps.Receipts.Create(dbc, &types.MailReceipt{
		UserID:    userID,
		MessageID: msgID,
		Outcome:   outcome,
		TaskCount: n,
	})
	if err != nil {
		return err
	}
	if !created {
		return errDuplicate
	}
	return nil
}

func (p *Pipeline) finish(msgID, outcome string, rows []*types.Task, err error) Result {
	switch {
	case errors.Is(err, errDuplicate):
		return Result{MessageID: msgID, Outcome: OutcomeDuplicate}
	case err != nil:
		p.log.Warn("message commit failed", "message_id", msgID, "error", err)
		return failed(msgID, err)
	}
	return Result{MessageID: msgID, Outcome: outcome, Tasks: rows}
}

func (p *Pipeline) mirror(ctx context.Context, userID uuid.UUID, node graph.EmailNode, rows []*types.Task) {
	g := p.deps.Graph
	if g == nil || !g.Enabled() {
		return
	}
	if err := g.UpsertUser(ctx, userID); err != nil {
		p.log.Warn("graph user upsert failed", "user_id", userID, "error", err)
		return
	}
	if err := g.UpsertEmail(ctx, userID, node); err != nil {
		p.log.Warn("graph email upsert failed", "message_id", node.MessageID, "error", err)
		return
	}
	if len(rows) > 0 {
		if err := g.UpsertTasks(ctx, userID, node.MessageID, rows); err != nil {
			p.log.Warn("graph task upsert failed", "message_id", node.MessageID, "error", err)
		}
	}
}

func checkScores(s scoring.Scores) error {
	for _, v := range []float64{s.Utility, s.Cost, s.Relevance} {
		if v < 0 || v > 1 {
			return errs.Invariant("ingest.score", fmt.Sprintf("score %v outside [0,1]", v))
		}
	}
	return nil
}

func snippet(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= snippetRunes {
		return string(r)
	}
	return string(r[:snippetRunes]) + "..."
}
