package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/inboxpilot-backend/internal/data/db"
	httpx "github.com/yungbote/inboxpilot-backend/internal/http"
	"github.com/yungbote/inboxpilot-backend/internal/observability"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Clients  *Clients
	SSEHub   *realtime.SSEHub
	Server   *httpx.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

// New wires everything. Any failure here is a startup failure.
func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	otelCfg := observability.OtelConfigFromEnv(cfg.ServiceName)
	shutdown := observability.InitOTel(ctx, log, otelCfg)

	pg, err := db.NewPostgresService(log, cfg.PostgresMaxConns())
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := migrate(pg.DB()); err != nil {
		_ = pg.Close()
		return nil, err
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	reposet := wireRepos(pg.DB(), log)
	serviceset, err := wireServices(pg.DB(), log, cfg, reposet, clients, hub)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           pg.DB(),
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		SSEHub:       hub,
		Server:       wireServer(log, cfg, serviceset, hub, otelCfg.Enabled),
		pg:           pg,
		otelShutdown: shutdown,
	}, nil
}

// Start launches the background loops. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	if a.Services.TemporalWorker != nil {
		if err := a.Services.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	return nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	addr := ":" + a.Cfg.Port
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(ctx, addr, a.Cfg.ShutdownTimeout)
}

// Close waits for the job workers and releases connections. Call it after
// the Start context is cancelled.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Wait()
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
}

func migrate(theDB *gorm.DB) error {
	if err := db.AutoMigrateAll(theDB); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := db.EnsureConstraints(theDB); err != nil {
		return fmt.Errorf("postgres constraints: %w", err)
	}
	if err := db.EnsureIndexes(theDB); err != nil {
		return fmt.Errorf("postgres indexes: %w", err)
	}
	return nil
}
