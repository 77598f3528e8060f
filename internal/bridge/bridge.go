package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

// TransportError is a failed delivery to the central queue. Retrying with
// the same event is safe.
type TransportError struct {
	Site string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publish from site %q: %v", e.Site, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Inbox is the central side of the bridge.
type Inbox interface {
	EnqueueWithKey(ctx context.Context, eventType, sourceSite, key string, payload json.RawMessage) (int64, bool, error)
}

type PumpResult struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// Bridge pushes site outbox events into the central inbox. Sites never read
// central state; the central side never opens plant transactions.
type Bridge struct {
	router  *storage.Router
	inbox   Inbox
	metrics *observability.Metrics
	log     *logger.Logger
	now     func() time.Time
	workers int
}

func New(router *storage.Router, inbox Inbox, metrics *observability.Metrics, baseLog *logger.Logger) *Bridge {
	return &Bridge{
		router:  router,
		inbox:   inbox,
		metrics: metrics,
		log:     baseLog.With("component", "TransportBridge"),
		now:     func() time.Time { return time.Now().UTC() },
		workers: 4,
	}
}

// Publish enqueues ev centrally under its idempotency key and returns the
// central event id. A repeated publish returns the original id.
func (b *Bridge) Publish(ctx context.Context, ev *types.OutboxEvent) (int64, error) {
	if ev == nil {
		return 0, &TransportError{Err: errors.New("nil event")}
	}
	id, created, err := b.inbox.EnqueueWithKey(ctx, ev.EventType, ev.SiteID, ev.IdempotencyKey, json.RawMessage(ev.Payload))
	if err != nil {
		b.metrics.IncOutboxPublish(ev.SiteID, "error")
		return 0, &TransportError{Site: ev.SiteID, Err: err}
	}
	result := "published"
	if !created {
		result = "duplicate"
	}
	b.metrics.IncOutboxPublish(ev.SiteID, result)
	return id, nil
}

// Deliver publishes one outbox row of site and records the outcome on it.
func (b *Bridge) Deliver(ctx context.Context, site repos.Site, ev *types.OutboxEvent) error {
	dbc := dbctx.New(ctx)
	centralID, err := b.Publish(ctx, ev)
	if err != nil {
		if merr := site.Outbox.MarkFailed(dbc, ev.ID, err.Error()); merr != nil {
			b.log.Warn("recording outbox failure failed", "site", ev.SiteID, "outbox_id", ev.ID, "error", merr)
		}
		return err
	}
	if err := site.Outbox.MarkPublished(dbc, ev.ID, centralID, b.now()); err != nil {
		// Central already has the event; the next pump republishes and gets
		// the same id back.
		return fmt.Errorf("mark outbox %d published: %w", ev.ID, err)
	}
	return nil
}

// Pump delivers up to limit unpublished outbox rows of one site, oldest
// first. A failing row does not stop the others.
func (b *Bridge) Pump(ctx context.Context, siteID string, limit int) (PumpResult, error) {
	ep, err := b.router.Resolve(ctx, siteID)
	if err != nil {
		return PumpResult{}, err
	}
	site := repos.NewSite(ep, b.log)
	pending, err := site.Outbox.Pending(dbctx.New(ctx), limit)
	if err != nil {
		return PumpResult{}, fmt.Errorf("read outbox of %s: %w", siteID, err)
	}

	var res PumpResult
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := b.Deliver(ctx, site, ev); err != nil {
			res.Failed++
			b.log.Warn("outbox delivery failed", "site", siteID, "outbox_id", ev.ID, "error", err)
			continue
		}
		res.Published++
	}
	if res.Published > 0 || res.Failed > 0 {
		b.log.Info("outbox pumped", "site", siteID, "published", res.Published, "failed", res.Failed)
	}
	return res, nil
}

// PumpAll pumps every known plant concurrently, including plants resolved
// through the environment fallback. Per-site errors are
// joined; one unreachable plant does not hold up the rest.
func (b *Bridge) PumpAll(ctx context.Context, limit int) (map[string]PumpResult, error) {
	sites := b.router.KnownPlantIDs()
	out := make(map[string]PumpResult, len(sites))
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(b.workers)
	for _, id := range sites {
		id := id
		g.Go(func() error {
			res, err := b.Pump(ctx, id, limit)
			mu.Lock()
			defer mu.Unlock()
			out[id] = res
			if err != nil {
				errs = append(errs, fmt.Errorf("site %s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errors.Join(errs...)
}
