package queue

import (
	"context"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

// Janitor periodically deletes processed events past retention and refreshes
// the queue depth gauges.
type Janitor struct {
	svc       *Service
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewJanitor(svc *Service, baseLog *logger.Logger, interval, retention time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		svc:       svc,
		log:       baseLog.With("component", "QueueJanitor"),
		interval:  interval,
		retention: retention,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.log.Info("Starting queue janitor", "interval", j.interval.String(), "retention", j.retention.String())
	go j.runLoop(ctx)
}

func (j *Janitor) runLoop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.log.Info("Queue janitor stopped")
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Janitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("queue janitor panic", "panic", r)
		}
	}()
	if _, err := j.svc.Cleanup(ctx, j.retention); err != nil {
		j.log.Warn("cleanup failed", "error", err)
	}
	if _, err := j.svc.Stats(ctx); err != nil {
		j.log.Warn("queue stats failed", "error", err)
	}
}
