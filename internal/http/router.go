package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/intellimix-backend/internal/http/handlers"
	httpMW "github.com/yungbote/intellimix-backend/internal/http/middleware"
	"github.com/yungbote/intellimix-backend/internal/observability"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	MixChatHandler *httpH.MixChatHandler
	RunHandler     *httpH.RunHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/api/v1")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Mix chats
	if cfg.MixChatHandler != nil {
		protected.POST("/mix-chats", cfg.MixChatHandler.CreateThread)
		protected.GET("/mix-chats", cfg.MixChatHandler.ListThreads)
		protected.GET("/mix-chats/:id", cfg.MixChatHandler.GetThread)
		protected.PATCH("/mix-chats/:id", cfg.MixChatHandler.UpdateThread)
		protected.POST("/mix-chats/:id/messages", cfg.MixChatHandler.SendMessage)
		protected.GET("/mix-chats/:id/messages", cfg.MixChatHandler.ListMessages)
		protected.GET("/mix-chats/:id/versions", cfg.MixChatHandler.ListVersions)
		protected.POST("/mix-chats/:id/versions/:version_id/edit-runs", cfg.MixChatHandler.CreateEditRun)
		protected.GET("/mix-chats/:id/plan-drafts/:draft_id", cfg.MixChatHandler.GetPlanDraft)
	}

	// Runs
	if cfg.RunHandler != nil {
		protected.GET("/mix-chat-runs/:id", cfg.RunHandler.GetRun)
		protected.GET("/mix-chat-runs/:id/events", cfg.RunHandler.Events)
	}

	return r
}
