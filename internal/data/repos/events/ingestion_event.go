package events

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

var ErrNilEvent = errors.New("enqueue: nil event")

type Stats struct {
	Pending   int64 `json:"pending"`
	Failed    int64 `json:"failed"`
	Processed int64 `json:"processed"`
}

type EventRepo interface {
	// Enqueue inserts ev. When ev carries an idempotency key that already
	// exists, nothing is written and the existing id is returned with
	// created=false.
	Enqueue(dbc dbctx.Context, ev *types.IngestionEvent) (id int64, created bool, err error)
	Peek(dbc dbctx.Context, limit int) ([]*types.IngestionEvent, error)
	// ClaimBatch locks up to limit drainable events. It must run inside a
	// transaction; the locks are held until that transaction ends.
	ClaimBatch(dbc dbctx.Context, limit int) ([]*types.IngestionEvent, error)
	MarkProcessed(dbc dbctx.Context, id int64, at time.Time) (bool, error)
	MarkFailed(dbc dbctx.Context, id int64, reason string, at time.Time) error
	Requeue(dbc dbctx.Context, ids []int64) (int64, error)
	Cleanup(dbc dbctx.Context, cutoff time.Time) (int64, error)
	Stats(dbc dbctx.Context) (Stats, error)
}

type eventRepo struct {
	ep  *storage.Endpoint
	log *logger.Logger
}

func NewEventRepo(ep *storage.Endpoint, baseLog *logger.Logger) EventRepo {
	return &eventRepo{
		ep:  ep,
		log: baseLog.With("repo", "EventRepo"),
	}
}

func (r *eventRepo) Enqueue(dbc dbctx.Context, ev *types.IngestionEvent) (int64, bool, error) {
	if ev == nil {
		return 0, false, ErrNilEvent
	}
	if ev.IdempotencyKey == nil {
		_, err := r.ep.Command(dbc, storage.OpEventsEnqueue, func(tx *gorm.DB) *gorm.DB {
			return tx.Create(ev)
		})
		return ev.ID, err == nil, err
	}
	n, err := r.ep.Command(dbc, storage.OpEventsEnqueue, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(ev)
	})
	if err != nil {
		return 0, false, err
	}
	if n > 0 {
		return ev.ID, true, nil
	}
	existing, err := storage.Query[types.IngestionEvent](dbc, r.ep, storage.OpEventsEnqueue, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("idempotency_key = ?", *ev.IdempotencyKey).Limit(1)
	})
	if err != nil {
		return 0, false, err
	}
	if len(existing) == 0 {
		return 0, false, gorm.ErrRecordNotFound
	}
	ev.ID = existing[0].ID
	return ev.ID, false, nil
}

func (r *eventRepo) Peek(dbc dbctx.Context, limit int) ([]*types.IngestionEvent, error) {
	if limit <= 0 {
		return []*types.IngestionEvent{}, nil
	}
	return storage.Query[*types.IngestionEvent](dbc, r.ep, storage.OpEventsPeek, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("processed = ?", false).Order("id ASC").Limit(limit)
	})
}

func (r *eventRepo) ClaimBatch(dbc dbctx.Context, limit int) ([]*types.IngestionEvent, error) {
	if limit <= 0 {
		return []*types.IngestionEvent{}, nil
	}
	return storage.Query[*types.IngestionEvent](dbc, r.ep, storage.OpEventsClaim, func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(r.ep.ClaimLock()...).
			Where("processed = ? AND failed_at IS NULL", false).
			Order("id ASC").
			Limit(limit)
	})
}

func (r *eventRepo) MarkProcessed(dbc dbctx.Context, id int64, at time.Time) (bool, error) {
	n, err := r.ep.Command(dbc, storage.OpEventsMarkProcessed, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&types.IngestionEvent{}).
			Where("id = ? AND processed = ?", id, false).
			Updates(map[string]interface{}{
				"processed":    true,
				"processed_at": at,
				"attempts":     gorm.Expr("attempts + 1"),
				"last_error":   "",
			})
	})
	return n > 0, err
}

func (r *eventRepo) MarkFailed(dbc dbctx.Context, id int64, reason string, at time.Time) error {
	_, err := r.ep.Command(dbc, storage.OpEventsMarkFailed, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&types.IngestionEvent{}).
			Where("id = ? AND processed = ?", id, false).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": reason,
				"failed_at":  at,
			})
	})
	return err
}

func (r *eventRepo) Requeue(dbc dbctx.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.ep.Command(dbc, storage.OpEventsRequeue, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&types.IngestionEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"processed":    false,
				"processed_at": nil,
				"failed_at":    nil,
				"last_error":   "",
			})
	})
}

// Cleanup deletes processed events whose processing (or, for legacy rows,
// creation) predates cutoff. Unprocessed events are never touched.
func (r *eventRepo) Cleanup(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	return r.ep.Command(dbc, storage.OpEventsCleanup, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("processed = ? AND COALESCE(processed_at, created_at) < ?", true, cutoff).
			Delete(&types.IngestionEvent{})
	})
}

func (r *eventRepo) Stats(dbc dbctx.Context) (Stats, error) {
	type row struct {
		Processed bool
		Failed    bool
		N         int64
	}
	rows, err := storage.Query[row](dbc, r.ep, storage.OpEventsStats, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&types.IngestionEvent{}).
			Select("processed, CASE WHEN failed_at IS NULL THEN 0 ELSE 1 END AS failed, COUNT(*) AS n").
			Group("processed, CASE WHEN failed_at IS NULL THEN 0 ELSE 1 END")
	})
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, rw := range rows {
		switch {
		case rw.Processed:
			s.Processed += rw.N
		case rw.Failed:
			s.Failed += rw.N
		default:
			s.Pending += rw.N
		}
	}
	return s, nil
}
