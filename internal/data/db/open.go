package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DriverForDSN guesses the driver when a site entry does not name one.
func DriverForDSN(dsn string) string {
	d := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"), strings.Contains(d, "host="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// Open connects a gorm handle for driver/dsn. SQLite handles are limited to
// one open connection so in-memory databases and writers stay consistent.
func Open(driver, dsn string, logg *logger.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty dsn")
	}
	if driver == "" {
		driver = DriverForDSN(dsn)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := gdb.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return nil, fmt.Errorf("sqlite busy_timeout: %w", err)
		}
	}
	if logg != nil {
		logg.Debug("datastore connected", "driver", driver, "dsn", dsn)
	}
	return gdb, nil
}

// MigrateSite creates the plant-local tables.
func MigrateSite(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(types.SiteModels()...); err != nil {
		return fmt.Errorf("site automigrate: %w", err)
	}
	return nil
}

// MigrateCentral creates the central inbox, ledger and analytics tables.
func MigrateCentral(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(types.CentralModels()...); err != nil {
		return fmt.Errorf("central automigrate: %w", err)
	}
	return nil
}

func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
