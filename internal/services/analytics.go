package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/risk"
)

var ErrAssetNotFound = errors.New("asset not found")

// AssetSummary is the per-asset read model. Every block and key is always
// present; missing values serialise as null.
type AssetSummary struct {
	Asset     SummaryAsset     `json:"asset"`
	Analytics SummaryAnalytics `json:"analytics"`
	Risk      SummaryRisk      `json:"risk"`
}

type SummaryAsset struct {
	AssetCode   string  `json:"asset_code"`
	Site        *string `json:"site"`
	Description *string `json:"description"`
}

type SummaryAnalytics struct {
	PrevThk   *float64   `json:"prev_thk"`
	PrevDate  *time.Time `json:"prev_date"`
	LastThk   *float64   `json:"last_thk"`
	LastDate  *time.Time `json:"last_date"`
	Rate      *float64   `json:"rate"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type SummaryRisk struct {
	Level         types.RiskLevel `json:"level"`
	Policy        *string         `json:"policy"`
	ThresholdLow  *float64        `json:"threshold_low"`
	ThresholdMed  *float64        `json:"threshold_med"`
	ThresholdHigh *float64        `json:"threshold_high"`
}

type AnalyticsService interface {
	AssetSummary(ctx context.Context, assetCode string) (*AssetSummary, error)
	TopAssets(ctx context.Context, limit int) ([]*types.AssetAnalytics, error)
	UpsertAsset(ctx context.Context, assetCode, siteID, description string) (*types.Asset, error)
}

type analyticsService struct {
	repos        repos.Central
	activePolicy string
	log          *logger.Logger
}

func NewAnalyticsService(central repos.Central, activePolicy string, log *logger.Logger) AnalyticsService {
	if strings.TrimSpace(activePolicy) == "" {
		activePolicy = "default"
	}
	return &analyticsService{
		repos:        central,
		activePolicy: activePolicy,
		log:          log.With("service", "AnalyticsService"),
	}
}

func (s *analyticsService) AssetSummary(ctx context.Context, assetCode string) (*AssetSummary, error) {
	assetCode = strings.TrimSpace(assetCode)
	if assetCode == "" {
		return nil, ErrAssetNotFound
	}
	dbc := dbctx.New(ctx)

	asset, err := s.repos.Assets.Get(dbc, assetCode)
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}
	ledger, err := s.repos.Ledger.Get(dbc, assetCode)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if asset == nil && ledger == nil {
		return nil, ErrAssetNotFound
	}
	row, err := s.repos.Analytics.Get(dbc, assetCode)
	if err != nil {
		return nil, fmt.Errorf("load analytics: %w", err)
	}

	policyName := s.activePolicy
	if row != nil && row.PolicyName != "" {
		policyName = row.PolicyName
	}
	policy, err := s.repos.Policies.Get(dbc, policyName)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	out := &AssetSummary{
		Asset: SummaryAsset{AssetCode: assetCode},
		Risk:  SummaryRisk{Level: types.RiskUnknown},
	}
	if asset != nil {
		out.Asset.Site = ptr(asset.SiteID)
		if asset.Description != "" {
			out.Asset.Description = ptr(asset.Description)
		}
	}
	if ledger != nil {
		if out.Asset.Site == nil {
			out.Asset.Site = ptr(ledger.SiteID)
		}
		out.Analytics.PrevThk = ptr(ledger.PrevThickness)
		out.Analytics.PrevDate = ptr(ledger.PrevDate.UTC())
		out.Analytics.LastThk = ptr(ledger.LastThickness)
		out.Analytics.LastDate = ptr(ledger.LastDate.UTC())
	}
	if policy != nil {
		out.Risk.Policy = ptr(policy.Name)
		out.Risk.ThresholdLow = ptr(policy.ThresholdLow)
		out.Risk.ThresholdMed = ptr(policy.ThresholdMed)
		out.Risk.ThresholdHigh = ptr(policy.ThresholdHigh)
	}

	switch {
	case row != nil:
		out.Analytics.Rate = ptr(row.Rate)
		out.Analytics.UpdatedAt = ptr(row.UpdatedAt.UTC())
		out.Risk.Level = row.RiskLevel
	case ledger != nil && policy != nil:
		rate := risk.RateForLedger(*ledger)
		out.Analytics.Rate = &rate
		out.Risk.Level = risk.EvalRisk(&rate, *policy)
	}
	return out, nil
}

func (s *analyticsService) TopAssets(ctx context.Context, limit int) ([]*types.AssetAnalytics, error) {
	if limit <= 0 || limit > 500 {
		limit = 10
	}
	return s.repos.Analytics.TopByRate(dbctx.New(ctx), limit)
}

func (s *analyticsService) UpsertAsset(ctx context.Context, assetCode, siteID, description string) (*types.Asset, error) {
	assetCode = strings.TrimSpace(assetCode)
	siteID = strings.ToLower(strings.TrimSpace(siteID))
	if assetCode == "" {
		return nil, fmt.Errorf("asset code is required")
	}
	if siteID == "" {
		return nil, fmt.Errorf("site id is required")
	}
	dbc := dbctx.New(ctx)
	if err := s.repos.Assets.Upsert(dbc, &types.Asset{
		AssetCode:   assetCode,
		SiteID:      siteID,
		Description: strings.TrimSpace(description),
	}); err != nil {
		return nil, fmt.Errorf("upsert asset: %w", err)
	}
	s.log.Info("asset registered", "asset_code", assetCode, "site", siteID)
	return s.repos.Assets.Get(dbc, assetCode)
}

func ptr[T any](v T) *T { return &v }
