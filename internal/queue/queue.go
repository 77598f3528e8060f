package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type Outcome int

const (
	Applied Outcome = iota
	Stale
)

// Processor applies one claimed event inside the drain transaction. Errors
// matching ErrMalformedPayload skip the event; any other error aborts the
// pass and rolls every claim back.
type Processor interface {
	Apply(dbc dbctx.Context, ev *types.IngestionEvent) (Outcome, error)
}

type Notifier interface {
	Publish(ctx context.Context, channel, event string, data any) int
}

type SkippedEvent struct {
	EventID int64  `json:"event_id"`
	Reason  string `json:"reason"`
}

// DrainReport summarises one drain. Processed counts every event marked
// processed, stale ones included.
type DrainReport struct {
	Processed int            `json:"processed"`
	Stale     int            `json:"stale"`
	Skipped   []SkippedEvent `json:"skipped"`
	Rounds    int            `json:"rounds"`
}

func (r DrainReport) empty() bool { return r.Processed == 0 && len(r.Skipped) == 0 }

func (r *DrainReport) add(o DrainReport) {
	r.Processed += o.Processed
	r.Stale += o.Stale
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Rounds += o.Rounds
}

type Service struct {
	repos   repos.Central
	proc    Processor
	notify  Notifier
	metrics *observability.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewService(central repos.Central, proc Processor, notify Notifier, metrics *observability.Metrics, baseLog *logger.Logger) *Service {
	return &Service{
		repos:   central,
		proc:    proc,
		notify:  notify,
		metrics: metrics,
		log:     baseLog.With("service", "EventQueue"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue stores an event without looking at payload semantics.
func (s *Service) Enqueue(ctx context.Context, eventType, sourceSite string, payload json.RawMessage) (int64, error) {
	id, _, err := s.EnqueueWithKey(ctx, eventType, sourceSite, "", payload)
	return id, err
}

// EnqueueWithKey is Enqueue with an idempotency key: a repeated key returns
// the id of the first event and created=false.
func (s *Service) EnqueueWithKey(ctx context.Context, eventType, sourceSite, key string, payload json.RawMessage) (int64, bool, error) {
	eventType = strings.TrimSpace(eventType)
	sourceSite = strings.TrimSpace(sourceSite)
	if eventType == "" {
		return 0, false, ErrMissingEventType
	}
	if sourceSite == "" {
		return 0, false, ErrMissingSource
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return 0, false, ErrInvalidJSON
	}
	ev := &types.IngestionEvent{
		EventType:  eventType,
		SourceSite: sourceSite,
		Payload:    datatypes.JSON(append([]byte(nil), payload...)),
	}
	if key = strings.TrimSpace(key); key != "" {
		ev.IdempotencyKey = &key
	}
	id, created, err := s.repos.Events.Enqueue(dbctx.New(ctx), ev)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue: %w", err)
	}
	result := "created"
	if !created {
		result = "duplicate"
	}
	s.metrics.IncEnqueued(sourceSite, result)
	s.log.Debug("event enqueued", "event_id", id, "source_site", sourceSite, "result", result)
	return id, created, nil
}

// Peek lists up to limit of the oldest unprocessed events, failed ones
// included.
func (s *Service) Peek(ctx context.Context, limit int) ([]*types.IngestionEvent, error) {
	return s.repos.Events.Peek(dbctx.New(ctx), limit)
}

// Drain claims up to limit events and applies them in one transaction. If
// ctx is cancelled or the store fails mid-pass, the transaction rolls back and
// every claimed event is unprocessed again.
func (s *Service) Drain(ctx context.Context, limit int) (DrainReport, error) {
	rep, err := s.drainOnce(ctx, limit)
	if err != nil {
		return DrainReport{}, err
	}
	s.announce(ctx, rep)
	return rep, nil
}

// DrainUntilEmpty repeats Drain until a pass finds nothing to do or
// maxRounds passes have run. A store error stops the loop; the passes
// already committed are still reported.
func (s *Service) DrainUntilEmpty(ctx context.Context, limit, maxRounds int) (DrainReport, error) {
	if maxRounds <= 0 {
		maxRounds = 1
	}
	total := DrainReport{Skipped: []SkippedEvent{}}
	var err error
	for i := 0; i < maxRounds; i++ {
		var rep DrainReport
		rep, err = s.drainOnce(ctx, limit)
		if err != nil {
			break
		}
		total.add(rep)
		if rep.empty() {
			break
		}
	}
	s.announce(ctx, total)
	return total, err
}

func (s *Service) drainOnce(ctx context.Context, limit int) (DrainReport, error) {
	if limit <= 0 {
		limit = 100
	}
	started := time.Now()
	rep := DrainReport{Skipped: []SkippedEvent{}, Rounds: 1}

	err := s.repos.Endpoint.Transaction(ctx, storage.OpEventsIngest, func(dbc dbctx.Context) error {
		claimed, err := s.repos.Events.ClaimBatch(dbc, limit)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		for _, ev := range claimed {
			if err := dbc.Ctx.Err(); err != nil {
				return err
			}
			outcome, err := s.proc.Apply(dbc, ev)
			if err != nil {
				if !errors.Is(err, ErrMalformedPayload) {
					return fmt.Errorf("apply event %d: %w", ev.ID, err)
				}
				if ferr := s.repos.Events.MarkFailed(dbc, ev.ID, err.Error(), s.now()); ferr != nil {
					return fmt.Errorf("mark event %d failed: %w", ev.ID, ferr)
				}
				s.log.Warn("skipping malformed event", "event_id", ev.ID, "source_site", ev.SourceSite, "error", err)
				rep.Skipped = append(rep.Skipped, SkippedEvent{EventID: ev.ID, Reason: err.Error()})
				continue
			}
			marked, err := s.repos.Events.MarkProcessed(dbc, ev.ID, s.now())
			if err != nil {
				return fmt.Errorf("mark event %d processed: %w", ev.ID, err)
			}
			if !marked {
				continue
			}
			rep.Processed++
			if outcome == Stale {
				rep.Stale++
			}
		}
		return nil
	})

	s.metrics.ObserveDrain(rep.Processed-rep.Stale, rep.Stale, len(rep.Skipped), time.Since(started), err)
	if err != nil {
		s.log.Warn("drain rolled back", "error", err)
		return DrainReport{}, err
	}
	if !rep.empty() {
		s.log.Info("drain pass committed", "processed", rep.Processed, "stale", rep.Stale, "skipped", len(rep.Skipped))
	}
	return rep, nil
}

func (s *Service) announce(ctx context.Context, rep DrainReport) {
	if s.notify == nil || rep.empty() {
		return
	}
	s.notify.Publish(ctx, realtime.ChannelIngestion, realtime.EventDrainCompleted, map[string]any{
		"processed": rep.Processed,
		"stale":     rep.Stale,
		"skipped":   len(rep.Skipped),
		"rounds":    rep.Rounds,
		"at":        s.now(),
	})
}

// Requeue makes the given events drainable again, clearing processed and
// failure state.
func (s *Service) Requeue(ctx context.Context, ids []int64) (int64, error) {
	n, err := s.repos.Events.Requeue(dbctx.New(ctx), ids)
	if err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	s.log.Info("events requeued", "requested", len(ids), "affected", n)
	return n, nil
}

// Cleanup deletes processed events older than olderThan. Unprocessed events
// are kept whatever their age.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("cleanup: negative retention %s", olderThan)
	}
	n, err := s.repos.Events.Cleanup(dbctx.New(ctx), s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	s.metrics.AddCleaned(n)
	if n > 0 {
		s.log.Info("processed events cleaned up", "deleted", n, "older_than", olderThan.String())
	}
	return n, nil
}

func (s *Service) Stats(ctx context.Context) (repos.EventStats, error) {
	st, err := s.repos.Events.Stats(dbctx.New(ctx))
	if err != nil {
		return repos.EventStats{}, err
	}
	s.metrics.SetQueueDepth(st.Pending, st.Failed, st.Processed)
	return st, nil
}
