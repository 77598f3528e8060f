package analytics

import (
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type AssetRepo interface {
	// Upsert registers or updates an asset; an empty description keeps the
	// stored one.
	Upsert(dbc dbctx.Context, asset *types.Asset) error
	// Ensure registers an asset only if it is unknown.
	Ensure(dbc dbctx.Context, assetCode, siteID string) error
	Get(dbc dbctx.Context, assetCode string) (*types.Asset, error)
}

type assetRepo struct {
	ep  *storage.Endpoint
	log *logger.Logger
}

func NewAssetRepo(ep *storage.Endpoint, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{ep: ep, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) Upsert(dbc dbctx.Context, asset *types.Asset) error {
	if asset == nil || strings.TrimSpace(asset.AssetCode) == "" {
		return nil
	}
	cols := []string{"site_id", "updated_at"}
	if asset.Description != "" {
		cols = append(cols, "description")
	}
	_, err := r.ep.Command(dbc, storage.OpAssetUpsert, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_code"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).Create(asset)
	})
	return err
}

func (r *assetRepo) Ensure(dbc dbctx.Context, assetCode, siteID string) error {
	now := time.Now().UTC()
	_, err := r.ep.Command(dbc, storage.OpAssetUpsert, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_code"}},
			DoNothing: true,
		}).Create(&types.Asset{AssetCode: assetCode, SiteID: siteID, CreatedAt: now, UpdatedAt: now})
	})
	return err
}

func (r *assetRepo) Get(dbc dbctx.Context, assetCode string) (*types.Asset, error) {
	rows, err := storage.Query[types.Asset](dbc, r.ep, storage.OpAssetGet, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("asset_code = ?", assetCode).Limit(1)
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}
