package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) Context { return Context{Ctx: ctx} }

// Pick returns the bound transaction, or fallback when none is set, scoped to
// the request context.
func (c Context) Pick(fallback *gorm.DB) *gorm.DB {
	tx := c.Tx
	if tx == nil {
		tx = fallback
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return tx.WithContext(ctx)
}

func (c Context) WithCtx(ctx context.Context) Context {
	return Context{Ctx: ctx, Tx: c.Tx}
}
