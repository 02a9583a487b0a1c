package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/domain/jobs"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/ingest"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

const EventMessageCreated = "message.created"

type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object webhookMessage `json:"object"`
	} `json:"data"`
}

type webhookMessage struct {
	ID      string `json:"id"`
	GrantID string `json:"grant_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    []struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"from"`
}

type WebhookAck struct {
	Queued  bool       `json:"queued"`
	Ignored string     `json:"ignored,omitempty"`
	JobID   *uuid.UUID `json:"job_id,omitempty"`
}

// JobEnqueuer is the write side of the job_run table.
type JobEnqueuer interface {
	Enqueue(dbc dbctx.Context, job *types.JobRun) (bool, error)
}

type WebhookService interface {
	// Handle validates a provider push and queues message.created events.
	Handle(ctx context.Context, ev WebhookEvent) (*WebhookAck, error)
	// RunMailIngest processes one queued mail_ingest job.
	RunMailIngest(ctx context.Context, job *types.JobRun) (ingest.Result, error)
}

type webhookService struct {
	log      *logger.Logger
	users    repos.UserRepo
	jobs     JobEnqueuer
	pipeline Ingestor
}

func NewWebhookService(baseLog *logger.Logger, users repos.UserRepo, jobs JobEnqueuer, pipeline Ingestor) WebhookService {
	return &webhookService{
		log:      baseLog.With("service", "WebhookService"),
		users:    users,
		jobs:     jobs,
		pipeline: pipeline,
	}
}

func MailIngestDedupeKey(messageID string) string { return jobs.TypeMailIngest + ":" + messageID }

func (s *webhookService) Handle(ctx context.Context, ev WebhookEvent) (*WebhookAck, error) {
	const op = "webhook.handle"
	if ev.Type != EventMessageCreated {
		return &WebhookAck{Ignored: "event type " + ev.Type}, nil
	}
	msg := ev.Data.Object
	msgID := strings.TrimSpace(msg.ID)
	grantID := strings.TrimSpace(msg.GrantID)
	if msgID == "" || grantID == "" {
		return nil, errs.BadInput(op, "message id and grant_id are required")
	}
	dbc := dbctx.With(ctx)
	u, err := s.users.GetByGrantID(dbc, grantID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.BadInput(op, "no user for grant")
	}
	if !u.TaskGen {
		return &WebhookAck{Ignored: "task generation disabled"}, nil
	}

	from := ""
	if len(msg.From) > 0 {
		from = msg.From[0].Email
	}
	payload, err := json.Marshal(jobs.MailIngestPayload{
		GrantID:   grantID,
		MessageID: msgID,
		Subject:   msg.Subject,
		From:      from,
		Body:      msg.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	job := &types.JobRun{
		OwnerUserID: u.ID,
		JobType:     jobs.TypeMailIngest,
		DedupeKey:   MailIngestDedupeKey(msgID),
		Payload:     datatypes.JSON(payload),
	}
	created, err := s.jobs.Enqueue(dbc, job)
	if err != nil {
		return nil, err
	}
	if !created {
		s.log.Debug("webhook redelivery ignored", "message_id", msgID)
		return &WebhookAck{Ignored: "already queued"}, nil
	}
	s.log.Info("mail ingest queued", "user_id", u.ID, "message_id", msgID, "job_id", job.ID)
	return &WebhookAck{Queued: true, JobID: &job.ID}, nil
}

func (s *webhookService) RunMailIngest(ctx context.Context, job *types.JobRun) (ingest.Result, error) {
	const op = "webhook.run_mail_ingest"
	if job == nil || job.JobType != jobs.TypeMailIngest {
		return ingest.Result{}, errs.BadInput(op, "not a mail_ingest job")
	}
	var p jobs.MailIngestPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return ingest.Result{}, errs.New(errs.CodeBadInput, op, "bad payload", err)
	}
	u, err := s.users.GetByID(dbctx.With(ctx), job.OwnerUserID)
	if err != nil {
		return ingest.Result{}, err
	}
	if u == nil {
		return ingest.Result{}, errs.NotFound(op, "user not found")
	}
	res := s.pipeline.ProcessMessage(ctx, u, types.RawMessage{
		ID:      p.MessageID,
		GrantID: p.GrantID,
		Subject: p.Subject,
		From:    p.From,
		Body:    p.Body,
	}, ingest.Options{})
	if res.Outcome == ingest.OutcomeFailed {
		return res, res.Err
	}
	return res, nil
}
