package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/corrowatch-backend/internal/http/handlers"
	httpMW "github.com/yungbote/corrowatch-backend/internal/http/middleware"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	HealthHandler       *httpH.HealthHandler
	MeasurementHandler  *httpH.MeasurementHandler
	AnalyticsHandler    *httpH.AnalyticsHandler
	PolicyHandler       *httpH.PolicyHandler
	QueueHandler        *httpH.QueueHandler
	NotificationHandler *httpH.NotificationHandler
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
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Site submission
		if cfg.MeasurementHandler != nil {
			api.POST("/sites/:site/assets/:asset/measurements", cfg.MeasurementHandler.InsertBatch)
		}

		// Read models
		if cfg.AnalyticsHandler != nil {
			api.GET("/assets/:asset/summary", cfg.AnalyticsHandler.AssetSummary)
			api.PUT("/assets/:asset", cfg.AnalyticsHandler.UpsertAsset)
			api.GET("/analytics/top", cfg.AnalyticsHandler.TopAssets)
		}

		// Policies
		if cfg.PolicyHandler != nil {
			api.GET("/policies/:name", cfg.PolicyHandler.Get)
			api.PUT("/policies/:name", cfg.PolicyHandler.Upsert)
		}

		// Queue operations
		if cfg.QueueHandler != nil {
			api.GET("/queue/peek", cfg.QueueHandler.Peek)
			api.GET("/queue/stats", cfg.QueueHandler.Stats)
			api.POST("/queue/drain", cfg.QueueHandler.Drain)
			api.POST("/queue/requeue", cfg.QueueHandler.Requeue)
			api.POST("/queue/cleanup", cfg.QueueHandler.Cleanup)
		}

		// Notifications (SSE)
		if cfg.NotificationHandler != nil {
			api.GET("/notifications/stream", cfg.NotificationHandler.Stream)
		}
	}

	return r
}
