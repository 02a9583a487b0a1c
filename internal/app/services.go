package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	"github.com/yungbote/inboxpilot-backend/internal/data/graph"
	"github.com/yungbote/inboxpilot-backend/internal/jobs/mailingest"
	"github.com/yungbote/inboxpilot-backend/internal/jobs/runtime"
	"github.com/yungbote/inboxpilot-backend/internal/jobs/worker"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/ingest"
	"github.com/yungbote/inboxpilot-backend/internal/pipeline/steps"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/prompts"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
	"github.com/yungbote/inboxpilot-backend/internal/services"
	"github.com/yungbote/inboxpilot-backend/internal/temporalx/onboarding"
	"github.com/yungbote/inboxpilot-backend/internal/temporalx/temporalworker"
)

const graphSchemaTimeout = 15 * time.Second

type Services struct {
	Pipeline   *ingest.Pipeline
	Tasks      services.TaskService
	Feedback   services.FeedbackService
	Users      services.UserService
	Onboarding services.OnboardingService
	Webhook    services.WebhookService

	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(theDB *gorm.DB, log *logger.Logger, cfg Config, r Repos, c *Clients, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	catalog, err := prompts.Load()
	if err != nil {
		return Services{}, fmt.Errorf("load prompts: %w", err)
	}
	stepDeps := steps.Deps{Log: log, Oracle: c.Oracle, Prompts: catalog}

	var pub realtime.Publisher = realtime.LocalPublisher{Hub: hub}
	if c.SSEBus != nil {
		pub = c.SSEBus
	}
	events := realtime.NewNotifier(pub, log)

	tx := db.NewGormTxRunner(theDB)
	g := graph.NewStore(c.Neo4j, log)
	schemaCtx, cancel := context.WithTimeout(context.Background(), graphSchemaTimeout)
	g.EnsureSchema(schemaCtx)
	cancel()
	models := scoring.NewModelStore(r.UserModels, log)
	scorer := scoring.NewScorer(cfg.Scoring, models, log)

	pipeline, err := ingest.New(ingest.Deps{
		Log:      log,
		Tx:       tx,
		Steps:    stepDeps,
		Scorer:   scorer,
		Emails:   r.Emails,
		Receipts: r.Receipts,
		Tasks:    r.Tasks,
		Features: r.Features,
		Graph:    g,
		Events:   events,
	}, cfg.Pipeline)
	if err != nil {
		return Services{}, err
	}

	out := Services{Pipeline: pipeline}
	out.Tasks = services.NewTaskService(services.TaskDeps{
		Log:     log,
		Tx:      tx,
		Tasks:   r.Tasks,
		Emails:  r.Emails,
		Scoring: cfg.Scoring,
		Graph:   g,
		Events:  events,
	})
	out.Feedback = services.NewFeedbackService(services.FeedbackDeps{
		Log:      log,
		Tx:       tx,
		Users:    r.Users,
		Tasks:    r.Tasks,
		Features: r.Features,
		Emails:   r.Emails,
		Models:   models,
		Scoring:  cfg.Scoring,
		Steps:    stepDeps,
		Graph:    g,
		Events:   events,
		Config:   cfg.Services,
	})
	out.Users = services.NewUserService(log, tx, r.Users, events, cfg.Services)

	obDeps := services.OnboardingDeps{
		Log:      log,
		Tx:       tx,
		Users:    r.Users,
		Pipeline: pipeline,
		Steps:    stepDeps,
		Events:   events,
		Config:   cfg.Services,
	}
	if c.Mail != nil {
		obDeps.Mail = c.Mail
	}
	if c.Temporal != nil {
		obDeps.Dispatcher = onboarding.NewDispatcher(c.Temporal, cfg.Temporal.TaskQueue)
	}
	out.Onboarding = services.NewOnboardingService(obDeps)
	out.Webhook = services.NewWebhookService(log, r.Users, r.JobRuns, pipeline)

	if cfg.RunWorker {
		registry := runtime.NewRegistry()
		if err := registry.Register(mailingest.New(log, out.Webhook)); err != nil {
			return Services{}, err
		}
		out.JobWorker = worker.NewWorker(log, r.JobRuns, registry, worker.ConfigFromEnv())

		if c.Temporal != nil {
			tw, err := temporalworker.NewRunner(log, c.Temporal, cfg.Temporal, out.Onboarding)
			if err != nil {
				return Services{}, err
			}
			out.TemporalWorker = tw
		}
	}
	return out, nil
}
