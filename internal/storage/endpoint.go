package storage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/corrowatch-backend/internal/data/db"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

type Role string

const (
	RoleCentral Role = "central"
	RolePlant   Role = "plant"
)

// Endpoint is a connected datastore for one site. It is the uniform
// command/query surface every component talks to, whatever the site.
type Endpoint struct {
	SiteID string
	Role   Role
	Driver string

	dsn    string
	db     *gorm.DB
	log    *logger.Logger
	tracer trace.Tracer
}

func NewEndpoint(siteID string, role Role, driver string, gdb *gorm.DB, log *logger.Logger) *Endpoint {
	if log == nil {
		log = logger.Nop()
	}
	return &Endpoint{
		SiteID: siteID,
		Role:   role,
		Driver: driver,
		db:     gdb,
		log:    log.With("site", siteID),
		tracer: otel.Tracer("corrowatch/storage"),
	}
}

func (e *Endpoint) DB() *gorm.DB { return e.db }

// ClaimLock is the row lock used by queue claims. SQLite serialises writers
// itself and has no row locks, so it gets none.
func (e *Endpoint) ClaimLock() []clause.Expression {
	if e.Driver != db.DriverPostgres {
		return nil
	}
	return []clause.Expression{clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}}
}

// Command runs a mutating operation and reports affected rows.
func (e *Endpoint) Command(dbc dbctx.Context, op Op, fn func(tx *gorm.DB) *gorm.DB) (int64, error) {
	ctx, span := e.start(dbc.Ctx, op)
	defer span.End()
	res := fn(dbc.WithCtx(ctx).Pick(e.db))
	e.finish(span, op, res.RowsAffected, res.Error)
	return res.RowsAffected, res.Error
}

// Query runs a read operation and decodes rows into T.
func Query[T any](dbc dbctx.Context, e *Endpoint, op Op, fn func(tx *gorm.DB) *gorm.DB) ([]T, error) {
	ctx, span := e.start(dbc.Ctx, op)
	defer span.End()
	var out []T
	res := fn(dbc.WithCtx(ctx).Pick(e.db)).Find(&out)
	e.finish(span, op, int64(len(out)), res.Error)
	if res.Error != nil {
		return nil, res.Error
	}
	return out, nil
}

// Transaction runs fn in a transaction scoped to one logical operation; any
// error or panic rolls it back.
func (e *Endpoint) Transaction(ctx context.Context, op Op, fn func(dbc dbctx.Context) error) error {
	ctx, span := e.start(ctx, op)
	defer span.End()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
	e.finish(span, op, -1, err)
	return err
}

// Compute traces a pure computation step under op, alongside the storage
// operations of the same request.
func (e *Endpoint) Compute(ctx context.Context, op Op, fn func()) {
	_, span := e.start(ctx, op)
	defer span.End()
	fn()
}

func (e *Endpoint) start(ctx context.Context, op Op) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return e.tracer.Start(ctx, string(op), trace.WithAttributes(
		attribute.String("corrowatch.site", e.SiteID),
		attribute.String("db.system", e.Driver),
	))
}

func (e *Endpoint) finish(span trace.Span, op Op, rows int64, err error) {
	if rows >= 0 {
		span.SetAttributes(attribute.Int64("db.rows", rows))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Debug("storage op failed", "op", string(op), "error", err)
	}
}

func (e *Endpoint) close() error {
	return db.Close(e.db)
}
