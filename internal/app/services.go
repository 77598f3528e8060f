package app

import (
	"github.com/yungbote/corrowatch-backend/internal/bridge"
	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	"github.com/yungbote/corrowatch-backend/internal/ingest"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/queue"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
	"github.com/yungbote/corrowatch-backend/internal/services"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type Services struct {
	Processor    *ingest.Processor
	Queue        *queue.Service
	Bridge       *bridge.Bridge
	Measurements services.MeasurementService
	Analytics    services.AnalyticsService
	Policies     services.PolicyService

	DrainWorker *ingest.Worker
	Pumper      *bridge.Pumper
	Janitor     *queue.Janitor
}

func wireServices(log *logger.Logger, cfg Config, router *storage.Router, central repos.Central, hub *realtime.Hub, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	proc := ingest.NewProcessor(central, cfg.ActivePolicy, log)
	q := queue.NewService(central, proc, hub, metrics, log)
	br := bridge.New(router, q, metrics, log)

	return Services{
		Processor:    proc,
		Queue:        q,
		Bridge:       br,
		Measurements: services.NewMeasurementService(router, br, metrics, log),
		Analytics:    services.NewAnalyticsService(central, cfg.ActivePolicy, log),
		Policies:     services.NewPolicyService(central, proc, log),

		DrainWorker: ingest.NewWorker(q, log, ingest.WorkerConfig{
			Interval:  cfg.DrainInterval,
			Batch:     cfg.DrainBatch,
			MaxRounds: cfg.DrainMaxRounds,
		}),
		Pumper:  bridge.NewPumper(br, log, cfg.PumpInterval, cfg.PumpBatch),
		Janitor: queue.NewJanitor(q, log, cfg.CleanupEvery, cfg.Retention),
	}
}
