package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/corrowatch-backend/internal/http"
	httpH "github.com/yungbote/corrowatch-backend/internal/http/handlers"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
)

type Handlers struct {
	Health        *httpH.HealthHandler
	Measurement   *httpH.MeasurementHandler
	Analytics     *httpH.AnalyticsHandler
	Policy        *httpH.PolicyHandler
	Queue         *httpH.QueueHandler
	Notifications *httpH.NotificationHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:        httpH.NewHealthHandler(),
		Measurement:   httpH.NewMeasurementHandler(services.Measurements),
		Analytics:     httpH.NewAnalyticsHandler(services.Analytics),
		Policy:        httpH.NewPolicyHandler(services.Policies),
		Queue:         httpH.NewQueueHandler(services.Queue, cfg.DrainMaxRounds),
		Notifications: httpH.NewNotificationHandler(log, hub, cfg.SSEHeartbeat),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics, serviceName string) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:         log,
		Metrics:     metrics,
		ServiceName: serviceName,
		CORSOrigins: cfg.CORSOrigins,

		HealthHandler:       handlers.Health,
		MeasurementHandler:  handlers.Measurement,
		AnalyticsHandler:    handlers.Analytics,
		PolicyHandler:       handlers.Policy,
		QueueHandler:        handlers.Queue,
		NotificationHandler: handlers.Notifications,
	})
}
