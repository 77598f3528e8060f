package app

import (
	"context"
	"fmt"

	"github.com/yungbote/corrowatch-backend/internal/data/db"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
	"github.com/yungbote/corrowatch-backend/internal/realtime/bus"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

// wireTransports attaches the optional cross-process notification buses to
// hub. The hub owns and closes them.
func wireTransports(ctx context.Context, log *logger.Logger, cfg Config, router *storage.Router, hub *realtime.Hub) error {
	log.Info("Wiring notification transports...")

	// Redis
	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(ctx, log, bus.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			return fmt.Errorf("init redis bus: %w", err)
		}
		if err := hub.Attach(ctx, b); err != nil {
			_ = b.Close()
			return fmt.Errorf("attach redis bus: %w", err)
		}
	}

	// Postgres LISTEN/NOTIFY on the central datastore
	if cfg.PGNotifyChannel != "" {
		sc, ok := router.Lookup(router.CentralID())
		if !ok || sc.Driver != db.DriverPostgres {
			log.Warn("PG_NOTIFY_CHANNEL set but central site is not postgres; skipping", "central", router.CentralID())
			return nil
		}
		b, err := bus.NewPGBus(ctx, log, bus.PGConfig{DSN: sc.DSN, Channel: cfg.PGNotifyChannel})
		if err != nil {
			return fmt.Errorf("init postgres notify bus: %w", err)
		}
		if err := hub.Attach(ctx, b); err != nil {
			_ = b.Close()
			return fmt.Errorf("attach postgres notify bus: %w", err)
		}
	}
	return nil
}
