package repos

import (
	"github.com/yungbote/corrowatch-backend/internal/data/repos/analytics"
	"github.com/yungbote/corrowatch-backend/internal/data/repos/events"
	"github.com/yungbote/corrowatch-backend/internal/data/repos/site"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type EventRepo = events.EventRepo
type EventStats = events.Stats

type AssetRepo = analytics.AssetRepo
type LedgerRepo = analytics.LedgerRepo
type AnalyticsRepo = analytics.AnalyticsRepo
type PolicyRepo = analytics.PolicyRepo

type MeasurementRepo = site.MeasurementRepo
type OutboxRepo = site.OutboxRepo

// Central is the repo set bound to the central endpoint.
type Central struct {
	Endpoint  *storage.Endpoint
	Events    EventRepo
	Assets    AssetRepo
	Ledger    LedgerRepo
	Analytics AnalyticsRepo
	Policies  PolicyRepo
}

func NewCentral(ep *storage.Endpoint, log *logger.Logger) Central {
	return Central{
		Endpoint:  ep,
		Events:    events.NewEventRepo(ep, log),
		Assets:    analytics.NewAssetRepo(ep, log),
		Ledger:    analytics.NewLedgerRepo(ep, log),
		Analytics: analytics.NewAnalyticsRepo(ep, log),
		Policies:  analytics.NewPolicyRepo(ep, log),
	}
}

// Site is the repo set bound to one plant endpoint.
type Site struct {
	Endpoint     *storage.Endpoint
	Measurements MeasurementRepo
	Outbox       OutboxRepo
}

func NewSite(ep *storage.Endpoint, log *logger.Logger) Site {
	return Site{
		Endpoint:     ep,
		Measurements: site.NewMeasurementRepo(ep, log),
		Outbox:       site.NewOutboxRepo(ep, log),
	}
}
