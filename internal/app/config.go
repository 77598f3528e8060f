package app

import (
	"strings"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/platform/envutil"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type Config struct {
	Port          string
	CentralSiteID string
	SitesConfig   string
	ActivePolicy  string

	WorkersEnabled bool
	DrainInterval  time.Duration
	DrainBatch     int
	DrainMaxRounds int
	PumpInterval   time.Duration
	PumpBatch      int
	CleanupEvery   time.Duration
	Retention      time.Duration

	RedisAddr       string
	RedisChannel    string
	PGNotifyChannel string

	CORSOrigins  []string
	SSEHeartbeat time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:          envutil.String("PORT", "8080"),
		CentralSiteID: envutil.String("CENTRAL_SITE_ID", storage.DefaultCentralSite),
		SitesConfig:   envutil.String("SITES_CONFIG", ""),
		ActivePolicy:  envutil.String("ACTIVE_POLICY", "default"),

		WorkersEnabled: envutil.Bool("WORKERS_ENABLED", true),
		DrainInterval:  envutil.Duration("DRAIN_INTERVAL", time.Second),
		DrainBatch:     envutil.Int("DRAIN_BATCH", 100),
		DrainMaxRounds: envutil.Int("DRAIN_MAX_ROUNDS", 10),
		PumpInterval:   envutil.Duration("OUTBOX_PUMP_INTERVAL", 2*time.Second),
		PumpBatch:      envutil.Int("OUTBOX_PUMP_BATCH", 100),
		CleanupEvery:   envutil.Duration("CLEANUP_INTERVAL", time.Hour),
		Retention:      envutil.Duration("CLEANUP_RETENTION", 168*time.Hour),

		RedisAddr:       envutil.String("REDIS_ADDR", ""),
		RedisChannel:    envutil.String("REDIS_CHANNEL", "corrowatch:notifications"),
		PGNotifyChannel: envutil.String("PG_NOTIFY_CHANNEL", ""),

		CORSOrigins:  splitList(envutil.String("CORS_ORIGINS", "")),
		SSEHeartbeat: envutil.Duration("SSE_HEARTBEAT", 15*time.Second),
	}
	if cfg.DrainBatch <= 0 {
		log.Warn("DRAIN_BATCH must be positive, using default", "value", cfg.DrainBatch)
		cfg.DrainBatch = 100
	}
	if cfg.DrainMaxRounds <= 0 {
		log.Warn("DRAIN_MAX_ROUNDS must be positive, using default", "value", cfg.DrainMaxRounds)
		cfg.DrainMaxRounds = 10
	}
	return cfg
}

// SitesTable loads the explicit sites file when one is configured. Sites not
// listed there still resolve through CORROWATCH_DSN_<SITE>.
func (c Config) SitesTable() (storage.Config, error) {
	table := storage.Config{Central: c.CentralSiteID}
	if c.SitesConfig != "" {
		loaded, err := storage.LoadConfig(c.SitesConfig)
		if err != nil {
			return storage.Config{}, err
		}
		table = loaded
		if strings.TrimSpace(c.CentralSiteID) != "" && c.CentralSiteID != storage.DefaultCentralSite {
			table.Central = storage.NormalizeSiteID(c.CentralSiteID)
		}
	}
	return table, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
