package analytics

import "time"

type RiskLevel string

const (
	RiskOK      RiskLevel = "OK"
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskUnknown RiskLevel = "UNKNOWN"
)

// Asset is the central registry entry for a monitored asset.
type Asset struct {
	AssetCode   string    `gorm:"column:asset_code;primaryKey;size:64" json:"asset_code"`
	SiteID      string    `gorm:"column:site_id;not null;size:64;index" json:"site_id"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Asset) TableName() string { return "asset" }

// AssetLedger is the latest two-point window per asset.
type AssetLedger struct {
	AssetCode     string    `gorm:"column:asset_code;primaryKey;size:64" json:"asset_code"`
	SiteID        string    `gorm:"column:site_id;not null;size:64" json:"site_id"`
	PrevThickness float64   `gorm:"column:prev_thickness;not null" json:"prev_thickness"`
	PrevDate      time.Time `gorm:"column:prev_date;not null" json:"prev_date"`
	LastThickness float64   `gorm:"column:last_thickness;not null" json:"last_thickness"`
	LastDate      time.Time `gorm:"column:last_date;not null" json:"last_date"`
	SourceEventID int64     `gorm:"column:source_event_id" json:"source_event_id"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (AssetLedger) TableName() string { return "asset_ledger" }

// AssetAnalytics is derived from AssetLedger and the active policy. The column
// keeps its historical name correction_rate.
type AssetAnalytics struct {
	AssetCode  string    `gorm:"column:asset_code;primaryKey;size:64" json:"asset_code"`
	Rate       float64   `gorm:"column:correction_rate;not null;index" json:"correction_rate"`
	RiskLevel  RiskLevel `gorm:"column:risk_level;not null;size:16;index" json:"risk_level"`
	PolicyName string    `gorm:"column:policy_name;size:64" json:"policy_name"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (AssetAnalytics) TableName() string { return "asset_analytics" }

// RiskPolicy thresholds are in thickness units per day.
type RiskPolicy struct {
	Name          string    `gorm:"column:name;primaryKey;size:64" json:"name"`
	ThresholdLow  float64   `gorm:"column:threshold_low;not null" json:"threshold_low"`
	ThresholdMed  float64   `gorm:"column:threshold_med;not null" json:"threshold_med"`
	ThresholdHigh float64   `gorm:"column:threshold_high;not null" json:"threshold_high"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RiskPolicy) TableName() string { return "risk_policy" }
