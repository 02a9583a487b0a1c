package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/inboxpilot-backend/internal/http/handlers"
	httpMW "github.com/yungbote/inboxpilot-backend/internal/http/middleware"
	"github.com/yungbote/inboxpilot-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware
	AllowedOrigins string
	// TraceService enables otelgin when non-empty.
	TraceService string

	HealthHandler     *httpH.HealthHandler
	WebhookHandler    *httpH.WebhookHandler
	OnboardingHandler *httpH.OnboardingHandler
	TaskHandler       *httpH.TaskHandler
	FeedbackHandler   *httpH.FeedbackHandler
	UserHandler       *httpH.UserHandler
	RealtimeHandler   *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TraceService != "" {
		r.Use(otelgin.Middleware(cfg.TraceService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Provider push; authenticated by grant lookup, not JWT.
		if cfg.WebhookHandler != nil {
			api.GET("/agent/webhook", cfg.WebhookHandler.Challenge)
			api.POST("/agent/webhook", cfg.WebhookHandler.Receive)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.OnboardingHandler != nil {
			protected.POST("/onboarding/start", cfg.OnboardingHandler.Start)
			protected.POST("/onboarding/questions", cfg.OnboardingHandler.Questions)
			protected.POST("/onboarding/submit", cfg.OnboardingHandler.Submit)
		}

		if cfg.TaskHandler != nil {
			protected.POST("/tasks", cfg.TaskHandler.Create)
			protected.GET("/tasks/user/:id", cfg.TaskHandler.ListByUser)
			protected.GET("/tasks/:id", cfg.TaskHandler.Get)
			protected.PATCH("/tasks/:id", cfg.TaskHandler.Update)
			protected.DELETE("/tasks/:id", cfg.TaskHandler.Delete)
			protected.POST("/tasks/:id/dependencies", cfg.TaskHandler.AddDependency)
		}

		if cfg.FeedbackHandler != nil {
			protected.POST("/feedback/re-order", cfg.FeedbackHandler.Reorder)
		}

		if cfg.UserHandler != nil {
			protected.GET("/user/personality", cfg.UserHandler.GetPersonality)
			protected.PUT("/user/personality", cfg.UserHandler.SetPersonality)
		}

		if cfg.RealtimeHandler != nil {
			protected.GET("/events/stream", cfg.RealtimeHandler.Stream)
		}
	}

	return r
}
