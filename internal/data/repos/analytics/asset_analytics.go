package analytics

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type AnalyticsRepo interface {
	Upsert(dbc dbctx.Context, row *types.AssetAnalytics) error
	Get(dbc dbctx.Context, assetCode string) (*types.AssetAnalytics, error)
	TopByRate(dbc dbctx.Context, limit int) ([]*types.AssetAnalytics, error)
}

type analyticsRepo struct {
	ep  *storage.Endpoint
	log *logger.Logger
}

func NewAnalyticsRepo(ep *storage.Endpoint, baseLog *logger.Logger) AnalyticsRepo {
	return &analyticsRepo{ep: ep, log: baseLog.With("repo", "AnalyticsRepo")}
}

func (r *analyticsRepo) Upsert(dbc dbctx.Context, row *types.AssetAnalytics) error {
	_, err := r.ep.Command(dbc, storage.OpAnalyticsUpsert, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_code"}},
			UpdateAll: true,
		}).Create(row)
	})
	return err
}

func (r *analyticsRepo) Get(dbc dbctx.Context, assetCode string) (*types.AssetAnalytics, error) {
	rows, err := storage.Query[types.AssetAnalytics](dbc, r.ep, storage.OpAnalyticsAssetSummary, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("asset_code = ?", assetCode).Limit(1)
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *analyticsRepo) TopByRate(dbc dbctx.Context, limit int) ([]*types.AssetAnalytics, error) {
	if limit <= 0 {
		limit = 10
	}
	return storage.Query[*types.AssetAnalytics](dbc, r.ep, storage.OpAnalyticsTopAssetsByCr, func(tx *gorm.DB) *gorm.DB {
		return tx.Order("correction_rate DESC").Order("asset_code ASC").Limit(limit)
	})
}
