package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/data/db"
	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	"github.com/yungbote/corrowatch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/measurement"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/queue"
	"github.com/yungbote/corrowatch-backend/internal/sitestore"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

var t0 = time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)

func appendBatch(t *testing.T, router *storage.Router, site, asset string, days int, thk float64) {
	t.Helper()
	ep, err := router.Resolve(context.Background(), site)
	if err != nil {
		t.Fatalf("resolve %s: %v", site, err)
	}
	store := sitestore.New(repos.NewSite(ep, testutil.Logger(t)), testutil.Logger(t))
	last, err := store.Latest(context.Background(), asset)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	batch, err := measurement.Validate(site, asset, last, []types.Point{{Label: "UT", TakenAt: t0.AddDate(0, 0, days), Thickness: thk}})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, _, err := store.Append(context.Background(), batch); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func newQueue(t *testing.T, router *storage.Router) *queue.Service {
	t.Helper()
	ep, err := router.Central(context.Background())
	if err != nil {
		t.Fatalf("central: %v", err)
	}
	log := testutil.Logger(t)
	return queue.NewService(repos.NewCentral(ep, log), nil, nil, nil, log)
}

func TestPumpDeliversOutboxOnce(t *testing.T) {
	router := testutil.Router(t, "central", "plant-a", "plant-b")
	q := newQueue(t, router)
	metrics := observability.New()
	b := New(router, q, metrics, testutil.Logger(t))
	ctx := context.Background()

	appendBatch(t, router, "plant-a", "P-1", 0, 10)
	appendBatch(t, router, "plant-a", "P-1", 10, 9.9)
	appendBatch(t, router, "plant-b", "P-2", 0, 5)

	results, err := b.PumpAll(ctx, 10)
	if err != nil {
		t.Fatalf("PumpAll: %v", err)
	}
	if results["plant-a"].Published != 2 || results["plant-b"].Published != 1 {
		t.Fatalf("results: %+v", results)
	}

	again, err := b.PumpAll(ctx, 10)
	if err != nil {
		t.Fatalf("PumpAll again: %v", err)
	}
	if again["plant-a"].Published != 0 || again["plant-b"].Published != 0 {
		t.Fatalf("second pump should find nothing: %+v", again)
	}

	peek, err := q.Peek(ctx, 10)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(peek) != 3 {
		t.Fatalf("central queue: want 3 events, got %d", len(peek))
	}
	for _, ev := range peek {
		if ev.IdempotencyKey == nil || ev.EventType != string(types.EventTypeMeasurementBatch) {
			t.Fatalf("event without key or type: %+v", ev)
		}
	}
}

func TestRepublishReturnsSameCentralID(t *testing.T) {
	router := testutil.Router(t, "central", "plant-a")
	q := newQueue(t, router)
	b := New(router, q, nil, testutil.Logger(t))
	ctx := context.Background()

	delta := types.BatchDelta{AssetCode: "P-1", SiteID: "plant-a", PrevDate: t0, LastDate: t0, LastThickness: 10}
	payload, _ := json.Marshal(delta)
	ev := &types.OutboxEvent{
		IdempotencyKey: delta.Key(),
		EventType:      string(types.EventTypeMeasurementBatch),
		SiteID:         "plant-a",
		AssetCode:      "P-1",
		Payload:        payload,
	}
	first, err := b.Publish(ctx, ev)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	second, err := b.Publish(ctx, ev)
	if err != nil || second != first {
		t.Fatalf("retry: id=%d err=%v want %d", second, err, first)
	}
}

type downInbox struct{}

func (downInbox) EnqueueWithKey(context.Context, string, string, string, json.RawMessage) (int64, bool, error) {
	return 0, false, errors.New("central unreachable")
}

func TestFailedDeliveryIsRecordedAndRetried(t *testing.T) {
	router := testutil.Router(t, "central", "plant-a")
	ctx := context.Background()
	appendBatch(t, router, "plant-a", "P-1", 0, 10)

	down := New(router, downInbox{}, nil, testutil.Logger(t))
	res, err := down.Pump(ctx, "plant-a", 10)
	if err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if res.Failed != 1 || res.Published != 0 {
		t.Fatalf("result: %+v", res)
	}

	ep, _ := router.Resolve(ctx, "plant-a")
	pending, err := repos.NewSite(ep, testutil.Logger(t)).Outbox.Pending(dbctx.New(ctx), 10)
	if err != nil || len(pending) != 1 || pending[0].Attempts != 1 || pending[0].LastError == "" {
		t.Fatalf("outbox after failure: %+v err=%v", pending, err)
	}

	var te *TransportError
	if _, err := down.Publish(ctx, pending[0]); !errors.As(err, &te) || te.Site != "plant-a" {
		t.Fatalf("want TransportError, got %v", err)
	}

	up := New(router, newQueue(t, router), nil, testutil.Logger(t))
	res, err = up.Pump(ctx, "plant-a", 10)
	if err != nil || res.Published != 1 {
		t.Fatalf("retry pump: %+v err=%v", res, err)
	}
}

func TestPumpAllContinuesPastBrokenSite(t *testing.T) {
	cfg := storage.Config{
		Central: "central",
		Sites: map[string]storage.SiteConfig{
			"central": {Driver: db.DriverSQLite, DSN: testutil.FileDSN(t, "central")},
			"plant-a": {Driver: db.DriverSQLite, DSN: testutil.FileDSN(t, "plant-a")},
			"plant-x": {Driver: "oracle", DSN: "oracle://nowhere"},
		},
	}
	router := storage.NewRouter(cfg, testutil.Logger(t), testutil.NoEnv()...)
	t.Cleanup(func() { _ = router.Close() })
	appendBatch(t, router, "plant-a", "P-1", 0, 10)

	b := New(router, newQueue(t, router), nil, testutil.Logger(t))
	results, err := b.PumpAll(context.Background(), 10)
	if err == nil {
		t.Fatalf("broken site should be reported")
	}
	if results["plant-a"].Published != 1 {
		t.Fatalf("healthy site not pumped: %+v", results)
	}
}

func TestPumpAllReachesEnvDeclaredPlantAfterRestart(t *testing.T) {
	centralDSN := testutil.FileDSN(t, "central")
	env := map[string]string{
		storage.EnvName(storage.EnvDSNPrefix, "plant-env"):    testutil.FileDSN(t, "plant-env"),
		storage.EnvName(storage.EnvDriverPrefix, "plant-env"): db.DriverSQLite,
	}
	newRouter := func() *storage.Router {
		cfg := storage.Config{
			Central: "central",
			Sites:   map[string]storage.SiteConfig{"central": {Driver: db.DriverSQLite, DSN: centralDSN}},
		}
		r := storage.NewRouter(cfg, testutil.Logger(t),
			storage.WithLookupEnv(func(k string) (string, bool) {
				v, ok := env[k]
				return v, ok
			}),
			storage.WithEnviron(func() []string {
				out := make([]string, 0, len(env))
				for k, v := range env {
					out = append(out, k+"="+v)
				}
				return out
			}),
		)
		t.Cleanup(func() { _ = r.Close() })
		return r
	}

	// The batch lands in the plant outbox but is never published before the
	// process goes away.
	first := newRouter()
	appendBatch(t, first, "plant-env", "E-1", 0, 8)
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	restarted := newRouter()
	q := newQueue(t, restarted)
	results, err := New(restarted, q, nil, testutil.Logger(t)).PumpAll(context.Background(), 10)
	if err != nil {
		t.Fatalf("PumpAll: %v", err)
	}
	if results["plant-env"].Published != 1 {
		t.Fatalf("env-declared plant not pumped: %+v", results)
	}
	stats, err := q.Stats(context.Background())
	if err != nil || stats.Pending != 1 {
		t.Fatalf("central stats: %+v err=%v", stats, err)
	}
}
