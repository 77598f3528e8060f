package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
)

// NOTIFY payloads are capped by postgres at just under 8000 bytes.
const maxNotifyPayload = 7900

type PGConfig struct {
	DSN     string
	Channel string
}

type pgBus struct {
	log     *logger.Logger
	pool    *pgxpool.Pool
	channel string
}

// NewPGBus uses LISTEN/NOTIFY on the central database as the transport.
func NewPGBus(ctx context.Context, log *logger.Logger, cfg PGConfig) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = "corrowatch_notifications"
	}
	poolCfg, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("parse notify dsn: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect notify pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping notify pool: %w", err)
	}
	return &pgBus{
		log:     log.With("service", "PGNotificationBus"),
		pool:    pool,
		channel: ch,
	}, nil
}

func (b *pgBus) Publish(ctx context.Context, msg realtime.Message) error {
	if b == nil || b.pool == nil {
		return fmt.Errorf("pg bus not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if len(raw) > maxNotifyPayload {
		return fmt.Errorf("notification payload too large (%d bytes)", len(raw))
	}
	_, err = b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, string(raw))
	return err
}

func (b *pgBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if b == nil || b.pool == nil {
		return fmt.Errorf("pg bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		conn.Release()
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					b.log.Warn("notification listener stopped", "error", err)
				}
				return
			}
			var msg realtime.Message
			if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
				b.log.Warn("bad pg notification payload", "error", err)
				continue
			}
			onMsg(msg)
		}
	}()
	return nil
}

func (b *pgBus) Close() error {
	if b == nil || b.pool == nil {
		return nil
	}
	b.pool.Close()
	return nil
}
