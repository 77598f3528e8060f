package site

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type OutboxRepo interface {
	Insert(dbc dbctx.Context, ev *types.OutboxEvent) (bool, error)
	Pending(dbc dbctx.Context, limit int) ([]*types.OutboxEvent, error)
	MarkPublished(dbc dbctx.Context, id int64, centralID int64, at time.Time) error
	MarkFailed(dbc dbctx.Context, id int64, reason string) error
}

type outboxRepo struct {
	ep  *storage.Endpoint
	log *logger.Logger
}

func NewOutboxRepo(ep *storage.Endpoint, baseLog *logger.Logger) OutboxRepo {
	return &outboxRepo{ep: ep, log: baseLog.With("repo", "OutboxRepo")}
}

func (r *outboxRepo) Insert(dbc dbctx.Context, ev *types.OutboxEvent) (bool, error) {
	n, err := r.ep.Command(dbc, storage.OpOutboxInsert, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(ev)
	})
	return n > 0, err
}

func (r *outboxRepo) Pending(dbc dbctx.Context, limit int) ([]*types.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return storage.Query[*types.OutboxEvent](dbc, r.ep, storage.OpOutboxPending, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("published_at IS NULL").Order("id ASC").Limit(limit)
	})
}

func (r *outboxRepo) MarkPublished(dbc dbctx.Context, id int64, centralID int64, at time.Time) error {
	_, err := r.ep.Command(dbc, storage.OpOutboxMarkPublished, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&types.OutboxEvent{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"published_at":     at,
				"central_event_id": centralID,
				"attempts":         gorm.Expr("attempts + 1"),
				"last_error":       "",
			})
	})
	return err
}

func (r *outboxRepo) MarkFailed(dbc dbctx.Context, id int64, reason string) error {
	_, err := r.ep.Command(dbc, storage.OpOutboxMarkFailed, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&types.OutboxEvent{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": reason,
			})
	})
	return err
}
