package domain

import (
	"github.com/yungbote/corrowatch-backend/internal/domain/analytics"
	"github.com/yungbote/corrowatch-backend/internal/domain/ingestion"
	"github.com/yungbote/corrowatch-backend/internal/domain/site"
)

const (
	EventTypeMeasurementBatch = ingestion.EventTypeMeasurementBatch

	RiskOK      = analytics.RiskOK
	RiskLow     = analytics.RiskLow
	RiskMedium  = analytics.RiskMedium
	RiskHigh    = analytics.RiskHigh
	RiskUnknown = analytics.RiskUnknown
)

type (
	Point       = site.Point
	LastReading = site.LastReading
	Measurement = site.Measurement
	OutboxEvent = site.OutboxEvent

	EventType      = ingestion.EventType
	IngestionEvent = ingestion.Event
	BatchDelta     = ingestion.BatchDelta

	RiskLevel      = analytics.RiskLevel
	Asset          = analytics.Asset
	AssetLedger    = analytics.AssetLedger
	AssetAnalytics = analytics.AssetAnalytics
	RiskPolicy     = analytics.RiskPolicy
)

// SiteModels are migrated on every plant endpoint.
func SiteModels() []any {
	return []any{&site.Measurement{}, &site.OutboxEvent{}}
}

// CentralModels are migrated on the central endpoint.
func CentralModels() []any {
	return []any{
		&ingestion.Event{},
		&analytics.Asset{},
		&analytics.AssetLedger{},
		&analytics.AssetAnalytics{},
		&analytics.RiskPolicy{},
	}
}
