package site

import (
	"gorm.io/gorm"

	"github.com/yungbote/corrowatch-backend/internal/data/db"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type MeasurementRepo interface {
	// LockAsset serialises writers of one asset until the surrounding
	// transaction ends. SQLite already runs one writer at a time.
	LockAsset(dbc dbctx.Context, siteID, assetCode string) error
	InsertBatch(dbc dbctx.Context, rows []*types.Measurement) (int64, error)
	Latest(dbc dbctx.Context, siteID, assetCode string) (*types.LastReading, error)
	ListByAsset(dbc dbctx.Context, siteID, assetCode string) ([]*types.Measurement, error)
}

type measurementRepo struct {
	ep  *storage.Endpoint
	log *logger.Logger
}

func NewMeasurementRepo(ep *storage.Endpoint, baseLog *logger.Logger) MeasurementRepo {
	return &measurementRepo{ep: ep, log: baseLog.With("repo", "MeasurementRepo")}
}

func (r *measurementRepo) InsertBatch(dbc dbctx.Context, rows []*types.Measurement) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return r.ep.Command(dbc, storage.OpMeasurementInsertBatch, func(tx *gorm.DB) *gorm.DB {
		return tx.Create(&rows)
	})
}

func (r *measurementRepo) LockAsset(dbc dbctx.Context, siteID, assetCode string) error {
	if r.ep.Driver != db.DriverPostgres {
		return nil
	}
	_, err := r.ep.Command(dbc, storage.OpMeasurementLockAsset, func(tx *gorm.DB) *gorm.DB {
		return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", siteID+"|"+assetCode)
	})
	return err
}

func (r *measurementRepo) Latest(dbc dbctx.Context, siteID, assetCode string) (*types.LastReading, error) {
	rows, err := storage.Query[types.Measurement](dbc, r.ep, storage.OpMeasurementLatest, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("site_id = ? AND asset_code = ?", siteID, assetCode).
			Order("taken_at DESC").
			Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &types.LastReading{Thickness: rows[0].Thickness, TakenAt: rows[0].TakenAt.UTC()}, nil
}

func (r *measurementRepo) ListByAsset(dbc dbctx.Context, siteID, assetCode string) ([]*types.Measurement, error) {
	return storage.Query[*types.Measurement](dbc, r.ep, storage.OpMeasurementLatest, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("site_id = ? AND asset_code = ?", siteID, assetCode).Order("taken_at ASC")
	})
}
