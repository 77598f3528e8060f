package ingest

import (
	"context"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/queue"
)

type WorkerConfig struct {
	Interval  time.Duration
	Batch     int
	MaxRounds int
}

// Worker drains the central queue on a fixed interval. A failed or panicking
// pass is logged and the loop carries on.
type Worker struct {
	queue *queue.Service
	log   *logger.Logger
	cfg   WorkerConfig
}

func NewWorker(q *queue.Service, baseLog *logger.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 10
	}
	return &Worker{
		queue: q,
		log:   baseLog.With("component", "IngestWorker"),
		cfg:   cfg,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting ingest worker", "interval", w.cfg.Interval.String(), "batch", w.cfg.Batch)
	go w.runLoop(ctx)
}

func (w *Worker) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Ingest worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one bounded drain and returns its report.
func (w *Worker) RunOnce(ctx context.Context) (rep queue.DrainReport) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Ingest worker panic", "panic", r)
		}
	}()
	rep, err := w.queue.DrainUntilEmpty(ctx, w.cfg.Batch, w.cfg.MaxRounds)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("drain failed", "error", err, "processed", rep.Processed)
		}
		return rep
	}
	if len(rep.Skipped) > 0 {
		w.log.Warn("drain skipped malformed events", "skipped", len(rep.Skipped))
	}
	return rep
}
