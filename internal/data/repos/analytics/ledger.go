package analytics

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type LedgerRepo interface {
	// GetForUpdate reads an asset's ledger row, row-locking it on drivers
	// that support it so concurrent appliers of one asset serialise.
	GetForUpdate(dbc dbctx.Context, assetCode string) (*types.AssetLedger, error)
	Get(dbc dbctx.Context, assetCode string) (*types.AssetLedger, error)
	// Upsert writes row unless the stored window already ends at or after
	// row.LastDate. It reports whether the row was written.
	Upsert(dbc dbctx.Context, row *types.AssetLedger) (bool, error)
	List(dbc dbctx.Context) ([]*types.AssetLedger, error)
}

type ledgerRepo struct {
	ep  *storage.Endpoint
	log *logger.Logger
}

func NewLedgerRepo(ep *storage.Endpoint, baseLog *logger.Logger) LedgerRepo {
	return &ledgerRepo{ep: ep, log: baseLog.With("repo", "LedgerRepo")}
}

func (r *ledgerRepo) GetForUpdate(dbc dbctx.Context, assetCode string) (*types.AssetLedger, error) {
	return r.get(dbc, assetCode, true)
}

func (r *ledgerRepo) Get(dbc dbctx.Context, assetCode string) (*types.AssetLedger, error) {
	return r.get(dbc, assetCode, false)
}

func (r *ledgerRepo) get(dbc dbctx.Context, assetCode string, lock bool) (*types.AssetLedger, error) {
	rows, err := storage.Query[types.AssetLedger](dbc, r.ep, storage.OpLedgerGet, func(tx *gorm.DB) *gorm.DB {
		q := tx.Where("asset_code = ?", assetCode).Limit(1)
		if lock && r.ep.ClaimLock() != nil {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		return q
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

var ledgerWindowColumns = []string{
	"site_id",
	"prev_thickness",
	"prev_date",
	"last_thickness",
	"last_date",
	"source_event_id",
	"updated_at",
}

func (r *ledgerRepo) Upsert(dbc dbctx.Context, row *types.AssetLedger) (bool, error) {
	n, err := r.ep.Command(dbc, storage.OpLedgerUpsert, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset_code"}},
			DoUpdates: clause.AssignmentColumns(ledgerWindowColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "asset_ledger.last_date < excluded.last_date"},
			}},
		}).Create(row)
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ledgerRepo) List(dbc dbctx.Context) ([]*types.AssetLedger, error) {
	return storage.Query[*types.AssetLedger](dbc, r.ep, storage.OpLedgerList, func(tx *gorm.DB) *gorm.DB {
		return tx.Order("asset_code ASC")
	})
}
