package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/corrowatch-backend/internal/data/db"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	dbSeq atomic.Int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// FileDSN names a private SQLite database file under the test's temp dir.
// Files survive a discarded connection, which in-memory databases do not.
func FileDSN(tb testing.TB, label string) string {
	tb.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(label)
	path := filepath.Join(tb.TempDir(), fmt.Sprintf("%s_%d.db", name, dbSeq.Add(1)))
	return "file:" + path + "?_busy_timeout=5000&_foreign_keys=off"
}

// DB opens a migrated SQLite database holding both the central and
// the site schema. It is closed on test cleanup.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := db.Open(db.DriverSQLite, FileDSN(tb, "db"), nil)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close(gdb) })
	if err := db.MigrateSite(gdb); err != nil {
		tb.Fatalf("%v", err)
	}
	if err := db.MigrateCentral(gdb); err != nil {
		tb.Fatalf("%v", err)
	}
	return gdb
}

// PostgresDB opens TEST_POSTGRES_DSN with the central schema, skipping the
// test when the variable is unset. Tables are truncated before use.
func PostgresDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	gdb, err := db.Open(db.DriverPostgres, dsn, nil)
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close(gdb) })
	if err := db.MigrateSite(gdb); err != nil {
		tb.Fatalf("%v", err)
	}
	if err := db.MigrateCentral(gdb); err != nil {
		tb.Fatalf("%v", err)
	}
	if err := gdb.Exec(`TRUNCATE ingestion_event, asset, asset_ledger, asset_analytics, risk_policy, measurement, site_outbox RESTART IDENTITY`).Error; err != nil {
		tb.Fatalf("truncate: %v", err)
	}
	return gdb
}

// NoEnv keeps a router from resolving or discovering sites through the
// process environment.
func NoEnv() []storage.Option {
	return []storage.Option{
		storage.WithLookupEnv(func(string) (string, bool) { return "", false }),
		storage.WithEnviron(func() []string { return nil }),
	}
}

// Endpoint wraps a fresh database as the endpoint of siteID.
func Endpoint(tb testing.TB, siteID string, role storage.Role) *storage.Endpoint {
	tb.Helper()
	return storage.NewEndpoint(siteID, role, db.DriverSQLite, DB(tb), Logger(tb))
}

// PostgresEndpoint wraps PostgresDB as the endpoint of siteID. Like
// PostgresDB it skips without TEST_POSTGRES_DSN.
func PostgresEndpoint(tb testing.TB, siteID string, role storage.Role) *storage.Endpoint {
	tb.Helper()
	return storage.NewEndpoint(siteID, role, db.DriverPostgres, PostgresDB(tb), Logger(tb))
}

// Router builds a router whose central and listed plants each live in their
// own database file.
func Router(tb testing.TB, central string, plants ...string) *storage.Router {
	tb.Helper()
	cfg := storage.Config{Central: central, Sites: map[string]storage.SiteConfig{}}
	for _, id := range append([]string{central}, plants...) {
		cfg.Sites[id] = storage.SiteConfig{Driver: db.DriverSQLite, DSN: FileDSN(tb, id)}
	}
	r := storage.NewRouter(cfg, Logger(tb), NoEnv()...)
	tb.Cleanup(func() { _ = r.Close() })
	return r
}
