package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DRAIN_BATCH", "DRAIN_INTERVAL", "CLEANUP_RETENTION", "CORS_ORIGINS", "CENTRAL_SITE_ID"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig(logger.Nop())
	if cfg.Port != "8080" || cfg.CentralSiteID != "central" || cfg.DrainBatch != 100 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.DrainInterval != time.Second || cfg.Retention != 168*time.Hour {
		t.Fatalf("durations: %s %s", cfg.DrainInterval, cfg.Retention)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Fatalf("cors: %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DRAIN_BATCH", "-3")
	t.Setenv("DRAIN_INTERVAL", "250ms")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	cfg := LoadConfig(logger.Nop())
	if cfg.DrainBatch != 100 {
		t.Fatalf("negative batch should fall back: %d", cfg.DrainBatch)
	}
	if cfg.DrainInterval != 250*time.Millisecond {
		t.Fatalf("interval: %s", cfg.DrainInterval)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors: %v", cfg.CORSOrigins)
	}
}

func TestSitesTable(t *testing.T) {
	cfg := Config{CentralSiteID: "central"}
	table, err := cfg.SitesTable()
	if err != nil || table.Central != "central" || len(table.Sites) != 0 {
		t.Fatalf("env-only table: %+v err=%v", table, err)
	}

	path := filepath.Join(t.TempDir(), "sites.yaml")
	body := "central: hq\nsites:\n  hq: { driver: sqlite, dsn: hq.db }\n  plant-a: { dsn: a.db }\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.SitesConfig = path
	table, err = cfg.SitesTable()
	if err != nil {
		t.Fatalf("SitesTable: %v", err)
	}
	if table.Central != "hq" || len(table.PlantIDs()) != 1 {
		t.Fatalf("file table: %+v", table)
	}

	cfg.CentralSiteID = "Plant-A"
	if table, _ = cfg.SitesTable(); table.Central != "plant-a" {
		t.Fatalf("explicit central override: %s", table.Central)
	}

	cfg.SitesConfig = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.SitesTable(); err == nil {
		t.Fatalf("missing file should fail")
	}
}
