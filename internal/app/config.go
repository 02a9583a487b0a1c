package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/inboxpilot-backend/internal/pipeline/ingest"
	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
	"github.com/yungbote/inboxpilot-backend/internal/scoring"
	"github.com/yungbote/inboxpilot-backend/internal/services"
	"github.com/yungbote/inboxpilot-backend/internal/temporalx"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration
	JWTSecretKey    string
	AllowedOrigins  string

	ServiceName string
	LLMProvider string
	// LLMRequestsPerMinute > 0 enables the shared oracle rate limit.
	LLMRequestsPerMinute int

	Pipeline ingest.Config
	Scoring  scoring.Config
	Services services.Config
	Temporal temporalx.Config

	// RunWorker starts the job_run worker pool and, when Temporal is
	// configured, the Temporal worker in this process.
	RunWorker bool
}

func LoadConfig() Config {
	return Config{
		Port:            envutil.String("PORT", "8080"),
		ShutdownTimeout: envutil.Seconds("HTTP_SHUTDOWN_TIMEOUT_SECONDS", 15),
		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", ""),
		AllowedOrigins:  envutil.String("CORS_ALLOWED_ORIGINS", ""),

		ServiceName:          envutil.String("OTEL_SERVICE_NAME", "inboxpilot"),
		LLMProvider:          strings.ToLower(envutil.String("LLM_PROVIDER", ProviderOpenAI)),
		LLMRequestsPerMinute: envutil.Int("LLM_REQUESTS_PER_MINUTE", 0),

		Pipeline: ingest.ConfigFromEnv(),
		Scoring:  scoring.ConfigFromEnv(),
		Services: services.ConfigFromEnv(),
		Temporal: temporalx.LoadConfig(),

		RunWorker: envutil.Bool("RUN_WORKER", true),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}

// PostgresMaxConns sizes the pool for the pipeline fan-out.
func (c Config) PostgresMaxConns() int {
	n := c.Pipeline.MaxConcurrency
	if n <= 0 {
		n = 10
	}
	return n * 2
}
