package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	"github.com/yungbote/inboxpilot-backend/internal/data/repos"
	types "github.com/yungbote/inboxpilot-backend/internal/domain"
	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/ingest"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/sanitize"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/steps"
	"github.com/yungbote/inboxpilot-backend/internal/platform/dbctx"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
)

const (
	sentFetchLimit  = 200
	sentSnippetRune = 200
)

type MailSource interface {
	FetchRecent(ctx context.Context, grantID string, since time.Time) ([]types.RawMessage, error)
	FetchSent(ctx context.Context, grantID string, limit int) ([]types.RawMessage, error)
}

// Ingestor is the message pipeline. *ingest.Pipeline satisfies it.
type Ingestor interface {
	ProcessMessage(ctx context.Context, user *types.User, msg types.RawMessage, opts ingest.Options) ingest.Result
	ClassifyBatch(ctx context.Context, user *types.User, msgs []types.RawMessage) (ingest.BatchSummary, []ingest.Ham)
	ExtractBatch(ctx context.Context, user *types.User, sum ingest.BatchSummary, ham []ingest.Ham) ingest.BatchSummary
}

// OnboardingDispatcher runs onboarding somewhere durable and returns a run id.
type OnboardingDispatcher interface {
	StartOnboarding(ctx context.Context, userID uuid.UUID, grantID string) (string, error)
}

type OnboardingResult struct {
	WorkflowID  string               `json:"workflow_id,omitempty"`
	Fetched     int                  `json:"fetched"`
	Summary     *ingest.BatchSummary `json:"summary,omitempty"`
	Personality string               `json:"personality,omitempty"`
}

type QuestionsRequest struct {
	Email       string             `json:"email"`
	Ratings     map[string]int     `json:"emailRatings,omitempty"`
	RatedEmails []steps.RatedEmail `json:"ratedEmails,omitempty"`
}

type SubmitRequest struct {
	Questions   []steps.Question   `json:"questions"`
	Answers     map[string]string  `json:"answers"`
	Domain      string             `json:"domain"`
	Ratings     map[string]int     `json:"emailRatings"`
	RatedEmails []steps.RatedEmail `json:"ratedEmails"`
}

type OnboardingService interface {
	// Start binds the grant to the user and runs onboarding, through the
	// dispatcher when one is configured.
	Start(ctx context.Context, userID uuid.UUID, grantID string) (*OnboardingResult, error)
	FetchMail(ctx context.Context, userID uuid.UUID, grantID string) ([]types.RawMessage, error)
	// Ingest is safe to retry with the same runKey: the personality trait
	// is appended at most once per run.
	Ingest(ctx context.Context, userID uuid.UUID, runKey string, msgs []types.RawMessage) (*OnboardingResult, error)
	Questions(ctx context.Context, userID uuid.UUID, req QuestionsRequest) (*steps.DomainOutput, error)
	Submit(ctx context.Context, userID uuid.UUID, req SubmitRequest) (string, error)
}

type OnboardingDeps struct {
	Log        *logger.Logger
	Tx         db.TxRunner
	Users      repos.UserRepo
	Mail       MailSource
	Pipeline   Ingestor
	Steps      steps.Deps
	Dispatcher OnboardingDispatcher
	Events     Events
	Config     Config
}

type onboardingService struct {
	deps        OnboardingDeps
	log         *logger.Logger
	cfg         Config
	personality *personalityStore
	now         func() time.Time
}

func NewOnboardingService(deps OnboardingDeps) OnboardingService {
	cfg := deps.Config.withDefaults()
	return &onboardingService{
		deps:        deps,
		log:         deps.Log.With("service", "OnboardingService"),
		cfg:         cfg,
		personality: newPersonalityStore(deps.Tx, deps.Users, cfg.PersonalityMax),
		now:         time.Now,
	}
}

func (s *onboardingService) user(ctx context.Context, op string, userID uuid.UUID) (*types.User, error) {
	if userID == uuid.Nil {
		return nil, errs.BadInput(op, "missing user")
	}
	u, err := s.deps.Users.GetByID(dbctx.With(ctx), userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.NotFound(op, "user not found")
	}
	return u, nil
}

func (s *onboardingService) Start(ctx context.Context, userID uuid.UUID, grantID string) (*OnboardingResult, error) {
	const op = "onboarding.start"
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return nil, errs.BadInput(op, "grant_id is required")
	}
	u, err := s.user(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if u.GrantID != grantID {
		if err := s.deps.Users.SetGrant(dbctx.With(ctx), userID, grantID, u.MailEmail); err != nil {
			return nil, err
		}
	}

	if s.deps.Dispatcher != nil {
		id, err := s.deps.Dispatcher.StartOnboarding(ctx, userID, grantID)
		if err != nil {
			return nil, errs.Wrap(errs.CodeTransient, op, err)
		}
		s.log.Info("onboarding dispatched", "user_id", userID, "workflow_id", id)
		return &OnboardingResult{WorkflowID: id}, nil
	}

	msgs, err := s.FetchMail(ctx, userID, grantID)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, userID, "", msgs)
}

func (s *onboardingService) FetchMail(ctx context.Context, userID uuid.UUID, grantID string) ([]types.RawMessage, error) {
	const op = "onboarding.fetch"
	if s.deps.Mail == nil {
		return nil, errs.New(errs.CodeInternal, op, "mail source not configured", nil)
	}
	since := s.now().AddDate(0, 0, -s.cfg.OnboardingDays)
	msgs, err := s.deps.Mail.FetchRecent(ctx, grantID, since)
	if err != nil {
		return nil, errs.Wrap(errs.CodeTransient, op, err)
	}
	if len(msgs) > s.cfg.OnboardingFetchLimit {
		msgs = msgs[:s.cfg.OnboardingFetchLimit]
	}
	s.log.Info("onboarding mail fetched", "user_id", userID, "messages", len(msgs), "since", since.Format(time.RFC3339))
	return msgs, nil
}

// Ingest spam-checks msgs, then extracts tasks and derives a personality
// trait from the non-spam mail side by side. A personality failure does not
// undo ingestion.
func (s *onboardingService) Ingest(ctx context.Context, userID uuid.UUID, runKey string, msgs []types.RawMessage) (*OnboardingResult, error) {
	u, err := s.user(ctx, "onboarding.ingest", userID)
	if err != nil {
		return nil, err
	}
	sum, ham := s.deps.Pipeline.ClassifyBatch(ctx, u, msgs)
	bodies := make([]string, 0, len(ham))
	for _, h := range ham {
		bodies = append(bodies, h.Body)
	}

	res := &OnboardingResult{Fetched: len(msgs)}
	var g errgroup.Group
	g.Go(func() error {
		sum = s.deps.Pipeline.ExtractBatch(ctx, u, sum, ham)
		return nil
	})
	g.Go(func() error {
		res.Personality = s.emailPersonality(ctx, u, runKey, bodies)
		return nil
	})
	_ = g.Wait()
	res.Summary = &sum
	return res, nil
}

// emailPersonality appends a trait derived from bodies and returns it, or ""
// when nothing was appended. A run that already appended is skipped.
func (s *onboardingService) emailPersonality(ctx context.Context, u *types.User, runKey string, bodies []string) string {
	log := s.log.With("user_id", u.ID)
	if len(bodies) == 0 {
		return ""
	}
	if runKey != "" && u.PersonalityRun == runKey {
		log.Info("onboarding personality already recorded", "run", runKey)
		return ""
	}
	trait, err := steps.PersonalityFromEmails(ctx, s.deps.Steps, steps.EmailsPersonalityInput{Bodies: bodies})
	if err != nil {
		log.Warn("onboarding personality failed", "error", err)
		return ""
	}
	traits, changed, err := s.personality.edit(ctx, "onboarding.personality", u.ID, func(dbc dbctx.Context, cur *types.User) ([]string, bool, error) {
		if runKey != "" {
			if cur.PersonalityRun == runKey {
				return nil, false, nil
			}
			if err := s.deps.Users.MarkPersonalityRun(dbc, cur.ID, runKey); err != nil {
				return nil, false, err
			}
		}
		return append(cur.Traits(), trait), true, nil
	})
	if err != nil {
		log.Warn("onboarding personality write failed", "error", err)
		return ""
	}
	if !changed {
		return ""
	}
	s.notifyPersonality(ctx, u.ID, traits)
	return trait
}

// Questions infers the user's domain from their sent mail and proposes
// onboarding questions. Without sent mail the default questions are used.
func (s *onboardingService) Questions(ctx context.Context, userID uuid.UUID, req QuestionsRequest) (*steps.DomainOutput, error) {
	const op = "onboarding.questions"
	u, err := s.user(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = u.MailEmail
	}
	if email == "" {
		email = u.Email
	}
	if !strings.Contains(email, "@") {
		return nil, errs.BadInput(op, "invalid email format")
	}
	for _, r := range req.Ratings {
		if r < 1 || r > 5 {
			return nil, errs.BadInput(op, "ratings must be between 1 and 5")
		}
	}

	sent := s.sentMail(ctx, u)
	if len(sent) == 0 {
		out := steps.DefaultDomain("No sent mail available to infer a domain.")
		return &out, nil
	}
	out, err := steps.InferDomain(ctx, s.deps.Steps, steps.DomainInput{
		Email:       email,
		DomainInf:   u.DomainInf,
		Ratings:     req.Ratings,
		RatedEmails: req.RatedEmails,
		SentEmails:  sent,
	})
	if err != nil {
		return nil, err
	}
	if !out.Fallback {
		inf := out.Domain
		if out.Summary != "" {
			inf = out.Domain + ": " + out.Summary
		}
		if err := s.deps.Users.UpdateDomainInf(dbctx.With(ctx), userID, inf); err != nil {
			s.log.Warn("domain inference write failed", "user_id", userID, "error", err)
		}
	}
	return &out, nil
}

// sentMail returns nil when the user has no grant or the fetch fails.
func (s *onboardingService) sentMail(ctx context.Context, u *types.User) []steps.SentEmail {
	if s.deps.Mail == nil || u.GrantID == "" {
		return nil
	}
	msgs, err := s.deps.Mail.FetchSent(ctx, u.GrantID, sentFetchLimit)
	if err != nil {
		s.log.Warn("sent mail fetch failed; using default questions", "user_id", u.ID, "error", err)
		return nil
	}
	out := make([]steps.SentEmail, 0, len(msgs))
	for _, m := range msgs {
		body := []rune(sanitize.Text(m.Body))
		if len(body) > sentSnippetRune {
			body = body[:sentSnippetRune]
		}
		out = append(out, steps.SentEmail{Subject: m.Subject, Snippet: string(body)})
	}
	return out
}

func (s *onboardingService) Submit(ctx context.Context, userID uuid.UUID, req SubmitRequest) (string, error) {
	const op = "onboarding.submit"
	if _, err := s.user(ctx, op, userID); err != nil {
		return "", err
	}
	if len(req.Questions) == 0 && len(req.Ratings) == 0 {
		return "", errs.BadInput(op, "questions or emailRatings required")
	}
	for _, e := range req.RatedEmails {
		if strings.TrimSpace(e.ID) == "" {
			return "", errs.BadInput(op, "rated email without id")
		}
	}
	trait, err := steps.PersonalityFromQuestionnaire(ctx, s.deps.Steps, steps.QuestionnaireInput{
		Domain:      req.Domain,
		Questions:   req.Questions,
		Answers:     req.Answers,
		Ratings:     req.Ratings,
		RatedEmails: req.RatedEmails,
	})
	if err != nil {
		return "", err
	}
	if err := s.appendTrait(ctx, userID, trait); err != nil {
		return "", err
	}
	return trait, nil
}

func (s *onboardingService) appendTrait(ctx context.Context, userID uuid.UUID, trait string) error {
	traits, err := s.personality.appendTrait(ctx, "onboarding.personality", userID, trait)
	if err != nil {
		return err
	}
	s.notifyPersonality(ctx, userID, traits)
	return nil
}

func (s *onboardingService) notifyPersonality(ctx context.Context, userID uuid.UUID, traits []string) {
	if s.deps.Events != nil {
		s.deps.Events.Notify(ctx, userID, realtime.SSEEventPersonalityUpdated, map[string]any{"personality": traits})
	}
}
