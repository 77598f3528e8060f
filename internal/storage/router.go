package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/corrowatch-backend/internal/data/db"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
)

var ErrUnknownSite = errors.New("unknown site")

type UnknownSiteError struct {
	SiteID string
}

func (e *UnknownSiteError) Error() string {
	return fmt.Sprintf("unknown site %q: no explicit config and no %s variable", e.SiteID, EnvName(EnvDSNPrefix, e.SiteID))
}

func (e *UnknownSiteError) Is(target error) bool { return target == ErrUnknownSite }

// Opener connects and prepares the datastore for a resolved site.
type Opener func(siteID string, role Role, sc SiteConfig) (*gorm.DB, error)

type Option func(*Router)

// WithOpener replaces the default gorm opener (tests use in-memory SQLite).
func WithOpener(open Opener) Option { return func(r *Router) { r.open = open } }

// WithLookupEnv replaces os.LookupEnv for the fallback naming convention.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Router) { r.lookupEnv = fn }
}

// WithEnviron replaces os.Environ for discovering fallback-declared plants.
func WithEnviron(fn func() []string) Option {
	return func(r *Router) { r.environ = fn }
}

// Router resolves logical site ids to connected endpoints. Endpoints are
// opened lazily, reused across calls, and closed by Close or when a reload
// changes their DSN.
type Router struct {
	log       *logger.Logger
	open      Opener
	lookupEnv func(string) (string, bool)
	environ   func() []string

	mu        sync.Mutex
	cfg       Config
	endpoints map[string]*Endpoint
}

func NewRouter(cfg Config, log *logger.Logger, opts ...Option) *Router {
	if log == nil {
		log = logger.Nop()
	}
	r := &Router{
		log:       log.With("component", "StorageRouter"),
		lookupEnv: os.LookupEnv,
		environ:   os.Environ,
		cfg:       cfg.normalize(),
		endpoints: map[string]*Endpoint{},
	}
	r.open = r.defaultOpen
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) CentralID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Central
}

// PlantIDs lists the explicitly configured plants.
func (r *Router) PlantIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.PlantIDs()
}

// KnownPlantIDs lists every plant the router can reach: configured plants,
// plants already opened, and plants declared only through CORROWATCH_DSN_*
// variables. An env-declared plant is named by its variable suffix, lower
// cased with '_' read as '-', unless a known id already maps onto it.
func (r *Router) KnownPlantIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]bool{EnvName(EnvDSNPrefix, r.cfg.Central): true}
	var out []string
	add := func(id string) {
		env := EnvName(EnvDSNPrefix, id)
		if id == "" || id == r.cfg.Central || seen[env] {
			return
		}
		seen[env] = true
		out = append(out, id)
	}
	for _, id := range r.cfg.PlantIDs() {
		add(id)
	}
	for id, ep := range r.endpoints {
		if ep.Role == RolePlant {
			add(id)
		}
	}
	for _, kv := range r.environ() {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvDSNPrefix) || strings.TrimSpace(val) == "" {
			continue
		}
		suffix := strings.TrimPrefix(name, EnvDSNPrefix)
		add(NormalizeSiteID(strings.ReplaceAll(suffix, "_", "-")))
	}
	sort.Strings(out)
	return out
}

func (r *Router) Central(ctx context.Context) (*Endpoint, error) {
	return r.Resolve(ctx, r.CentralID())
}

// Resolve returns the endpoint for siteID: explicit config first, then the
// CORROWATCH_DSN_<SITE> convention, otherwise *UnknownSiteError.
func (r *Router) Resolve(ctx context.Context, siteID string) (*Endpoint, error) {
	id := NormalizeSiteID(siteID)
	if id == "" {
		return nil, &UnknownSiteError{SiteID: siteID}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, ok := r.endpoints[id]; ok {
		return ep, nil
	}
	sc, ok := r.lookupLocked(id)
	if !ok {
		return nil, &UnknownSiteError{SiteID: id}
	}
	role := RolePlant
	if id == r.cfg.Central {
		role = RoleCentral
	}
	gdb, err := r.open(id, role, sc)
	if err != nil {
		return nil, fmt.Errorf("open site %q: %w", id, err)
	}
	ep := NewEndpoint(id, role, sc.Driver, gdb, r.log)
	ep.dsn = sc.DSN
	r.endpoints[id] = ep
	r.log.Info("site endpoint opened", "site", id, "role", string(role), "driver", sc.Driver)
	return ep, nil
}

// Lookup reports how siteID would resolve without opening it.
func (r *Router) Lookup(siteID string) (SiteConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(NormalizeSiteID(siteID))
}

func (r *Router) lookupLocked(id string) (SiteConfig, bool) {
	if sc, ok := r.cfg.Sites[id]; ok && sc.DSN != "" {
		if sc.Driver == "" {
			sc.Driver = db.DriverForDSN(sc.DSN)
		}
		return sc, true
	}
	dsn, ok := r.lookupEnv(EnvName(EnvDSNPrefix, id))
	if !ok || dsn == "" {
		return SiteConfig{}, false
	}
	driver, _ := r.lookupEnv(EnvName(EnvDriverPrefix, id))
	if driver == "" {
		driver = db.DriverForDSN(dsn)
	}
	return SiteConfig{Driver: driver, DSN: dsn}, true
}

// Reload swaps the explicit table. Open endpoints whose resolution changed
// are closed; they reopen on next Resolve.
func (r *Router) Reload(cfg Config) {
	cfg = cfg.normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	for id, ep := range r.endpoints {
		sc, ok := r.lookupLocked(id)
		if ok && sc.DSN == ep.dsn && sc.Driver == ep.Driver {
			continue
		}
		delete(r.endpoints, id)
		if err := ep.close(); err != nil {
			r.log.Warn("closing replaced endpoint failed", "site", id, "error", err)
		}
		r.log.Info("site endpoint retired by reload", "site", id)
	}
}

func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for id, ep := range r.endpoints {
		if err := ep.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(r.endpoints, id)
	}
	return errors.Join(errs...)
}

func (r *Router) defaultOpen(siteID string, role Role, sc SiteConfig) (*gorm.DB, error) {
	gdb, err := db.Open(sc.Driver, sc.DSN, r.log)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateSite(gdb); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	if role == RoleCentral {
		if err := db.MigrateCentral(gdb); err != nil {
			_ = db.Close(gdb)
			return nil, err
		}
	}
	return gdb, nil
}
