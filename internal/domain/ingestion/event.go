package ingestion

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventTypeMeasurementBatch EventType = "MEASUREMENT_BATCH"
)

// Event is a row of the central inbox. IDs are assigned by the central store
// and increase monotonically, which gives FIFO order for peek.
type Event struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType      string         `gorm:"column:event_type;not null;size:64;index" json:"event_type"`
	SourceSite     string         `gorm:"column:source_site;not null;size:64;index" json:"source_site"`
	IdempotencyKey *string        `gorm:"column:idempotency_key;size:256;uniqueIndex" json:"idempotency_key,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	Processed      bool           `gorm:"column:processed;not null;default:false;index" json:"processed"`
	ProcessedAt    *time.Time     `gorm:"column:processed_at;index" json:"processed_at,omitempty"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError      string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	FailedAt       *time.Time     `gorm:"column:failed_at;index" json:"failed_at,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Event) TableName() string { return "ingestion_event" }

// BatchDelta is the payload of a MEASUREMENT_BATCH event: the two-point window
// a batch leaves behind for its asset.
type BatchDelta struct {
	AssetCode     string    `json:"asset_code"`
	SiteID        string    `json:"site_id"`
	Label         string    `json:"label,omitempty"`
	Note          *string   `json:"note,omitempty"`
	PrevThickness float64   `json:"prev_thickness"`
	PrevDate      time.Time `json:"prev_date"`
	LastThickness float64   `json:"last_thickness"`
	LastDate      time.Time `json:"last_date"`
}

// IdempotencyKey identifies a batch delta across retries. Validation forbids
// two accepted points of one asset sharing a timestamp, so (site, asset,
// lastDate) is unique per delivered batch.
func IdempotencyKey(siteID, assetCode string, lastDate time.Time) string {
	return strings.Join([]string{
		strings.TrimSpace(siteID),
		strings.TrimSpace(assetCode),
		lastDate.UTC().Format(time.RFC3339Nano),
	}, "|")
}

func (d BatchDelta) Key() string { return IdempotencyKey(d.SiteID, d.AssetCode, d.LastDate) }
