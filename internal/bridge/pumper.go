package bridge

import (
	"context"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

// Pumper runs PumpAll on a fixed interval.
type Pumper struct {
	bridge   *Bridge
	log      *logger.Logger
	interval time.Duration
	batch    int
}

func NewPumper(b *Bridge, baseLog *logger.Logger, interval time.Duration, batch int) *Pumper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Pumper{bridge: b, log: baseLog.With("component", "OutboxPumper"), interval: interval, batch: batch}
}

func (p *Pumper) Start(ctx context.Context) {
	p.log.Info("Starting outbox pumper", "interval", p.interval.String())
	go p.runLoop(ctx)
}

func (p *Pumper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Outbox pumper stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Pumper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("outbox pumper panic", "panic", r)
		}
	}()
	if _, err := p.bridge.PumpAll(ctx, p.batch); err != nil && ctx.Err() == nil {
		p.log.Warn("outbox pump incomplete", "error", err)
	}
}
