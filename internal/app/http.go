package app

import (
	httpx "github.com/yungbote/inboxpilot-backend/internal/http"
	httpH "github.com/yungbote/inboxpilot-backend/internal/http/handlers"
	httpMW "github.com/yungbote/inboxpilot-backend/internal/http/middleware"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
	"github.com/yungbote/inboxpilot-backend/internal/realtime"
)

func wireServer(log *logger.Logger, cfg Config, s Services, hub *realtime.SSEHub, tracing bool) *httpx.Server {
	log.Info("Wiring router...")
	rc := httpx.RouterConfig{
		Log:            log,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
		AllowedOrigins: cfg.AllowedOrigins,

		HealthHandler:     httpH.NewHealthHandler(),
		WebhookHandler:    httpH.NewWebhookHandler(s.Webhook),
		OnboardingHandler: httpH.NewOnboardingHandler(s.Onboarding),
		TaskHandler:       httpH.NewTaskHandler(s.Tasks),
		FeedbackHandler:   httpH.NewFeedbackHandler(s.Feedback),
		UserHandler:       httpH.NewUserHandler(s.Users),
		RealtimeHandler:   httpH.NewRealtimeHandler(log, hub),
	}
	if tracing {
		rc.TraceService = cfg.ServiceName
	}
	return httpx.NewServer(rc)
}
