package site

import (
	"time"

	"gorm.io/datatypes"
)

// Point is one thickness reading as submitted by a plant. Thickness is in
// millimetres; TakenAt is normalised to UTC on acceptance.
type Point struct {
	Label     string    `json:"label"`
	TakenAt   time.Time `json:"taken_at"`
	Thickness float64   `json:"thickness"`
	Note      *string   `json:"note,omitempty"`
}

// LastReading is the most recently accepted point for an asset.
type LastReading struct {
	Thickness float64   `json:"thickness"`
	TakenAt   time.Time `json:"taken_at"`
}

// Measurement is the site-local, append-only record of an accepted point.
type Measurement struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID    string    `gorm:"column:site_id;not null;size:64;uniqueIndex:uniq_measurement_site_asset_taken" json:"site_id"`
	AssetCode string    `gorm:"column:asset_code;not null;size:64;uniqueIndex:uniq_measurement_site_asset_taken;index" json:"asset_code"`
	Label     string    `gorm:"column:label;size:128" json:"label"`
	TakenAt   time.Time `gorm:"column:taken_at;not null;uniqueIndex:uniq_measurement_site_asset_taken" json:"taken_at"`
	Thickness float64   `gorm:"column:thickness;not null" json:"thickness"`
	Note      *string   `gorm:"column:note;type:text" json:"note,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Measurement) TableName() string { return "measurement" }

// OutboxEvent holds an ingestion event written in the same transaction as the
// measurements it describes, until the transport bridge has delivered it.
type OutboxEvent struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	IdempotencyKey string         `gorm:"column:idempotency_key;not null;size:256;uniqueIndex" json:"idempotency_key"`
	EventType      string         `gorm:"column:event_type;not null;size:64" json:"event_type"`
	SiteID         string         `gorm:"column:site_id;not null;size:64;index" json:"site_id"`
	AssetCode      string         `gorm:"column:asset_code;not null;size:64" json:"asset_code"`
	Payload        datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	PublishedAt    *time.Time     `gorm:"column:published_at;index" json:"published_at,omitempty"`
	CentralEventID *int64         `gorm:"column:central_event_id" json:"central_event_id,omitempty"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError      string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
}

func (OutboxEvent) TableName() string { return "site_outbox" }
