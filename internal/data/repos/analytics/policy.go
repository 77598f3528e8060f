package analytics

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type PolicyRepo interface {
	Upsert(dbc dbctx.Context, p *types.RiskPolicy) error
	Get(dbc dbctx.Context, name string) (*types.RiskPolicy, error)
}

type policyRepo struct {
	ep  *storage.Endpoint
	log *logger.Logger
}

func NewPolicyRepo(ep *storage.Endpoint, baseLog *logger.Logger) PolicyRepo {
	return &policyRepo{ep: ep, log: baseLog.With("repo", "PolicyRepo")}
}

func (r *policyRepo) Upsert(dbc dbctx.Context, p *types.RiskPolicy) error {
	_, err := r.ep.Command(dbc, storage.OpPolicyUpsert, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		}).Create(p)
	})
	return err
}

func (r *policyRepo) Get(dbc dbctx.Context, name string) (*types.RiskPolicy, error) {
	rows, err := storage.Query[types.RiskPolicy](dbc, r.ep, storage.OpPolicyGet, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("name = ?", name).Limit(1)
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}
