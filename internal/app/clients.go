package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/inboxpilot-backend/internal/oracle"
	"github.com/yungbote/inboxpilot-backend/internal/platform/gemini"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/platform/neo4jdb"
	"github.com/yungbote/inboxpilot-backend/internal/platform/nylas"
	"github.com/yungbote/inboxpilot-backend/internal/platform/openai"
	"github.com/yungbote/inboxpilot-backend/internal/realtime/bus"
	"github.com/yungbote/inboxpilot-backend/internal/temporalx"
)

// Clients are the external connections. Neo4j, Redis, Nylas and Temporal are
// optional and nil when unconfigured; a configured one that cannot be reached
// fails startup.
type Clients struct {
	Oracle   oracle.Oracle
	Neo4j    *neo4jdb.Client
	SSEBus   bus.Bus
	Mail     *nylas.Client
	Temporal temporalsdkclient.Client

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	backend, err := newBackend(ctx, log, cfg, c)
	if err != nil {
		return nil, err
	}
	c.Oracle = oracle.New(backend, cfg.LLMRequestsPerMinute, log)

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	if neo != nil {
		c.Neo4j = neo
		c.closers = append(c.closers, func() error { return neo.Close(context.Background()) })
	}

	b, err := bus.NewRedisBus(log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init redis SSE bus: %w", err)
	}
	if b != nil {
		c.SSEBus = b
		c.closers = append(c.closers, b.Close)
	}

	mail, err := nylas.NewFromEnv(log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init nylas: %w", err)
	}
	c.Mail = mail
	if mail == nil {
		log.Warn("NYLAS_API_KEY not set; onboarding cannot fetch mail")
	}

	tc, err := temporalx.NewClient(log, cfg.Temporal)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init temporal: %w", err)
	}
	if tc != nil {
		c.Temporal = tc
		c.closers = append(c.closers, func() error { tc.Close(); return nil })
	}
	return c, nil
}

func newBackend(ctx context.Context, log *logger.Logger, cfg Config, c *Clients) (oracle.Backend, error) {
	switch cfg.LLMProvider {
	case ProviderGemini:
		g, err := gemini.NewClient(ctx, log)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		c.closers = append(c.closers, g.Close)
		return g, nil
	default:
		o, err := openai.NewClient(log)
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return o, nil
	}
}

// Close releases clients in reverse order of creation.
func (c *Clients) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
