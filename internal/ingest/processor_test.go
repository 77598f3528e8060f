package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	"github.com/yungbote/corrowatch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/queue"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
	"github.com/yungbote/corrowatch-backend/internal/risk"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

var t0 = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

type harness struct {
	central repos.Central
	proc    *Processor
	queue   *queue.Service
	hub     *realtime.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, testutil.Endpoint(t, "central", storage.RoleCentral))
}

func newHarnessOn(t *testing.T, ep *storage.Endpoint) *harness {
	t.Helper()
	log := testutil.Logger(t)
	central := repos.NewCentral(ep, log)
	proc := NewProcessor(central, "default", log)
	hub := realtime.NewHub(log)
	return &harness{
		central: central,
		proc:    proc,
		hub:     hub,
		queue:   queue.NewService(central, proc, hub, observability.New(), log),
	}
}

func (h *harness) enqueue(t *testing.T, d types.BatchDelta) int64 {
	t.Helper()
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal delta: %v", err)
	}
	id, _, err := h.queue.EnqueueWithKey(context.Background(), string(types.EventTypeMeasurementBatch), d.SiteID, d.Key(), raw)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

func (h *harness) drain(t *testing.T) queue.DrainReport {
	t.Helper()
	rep, err := h.queue.DrainUntilEmpty(context.Background(), 50, 10)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	return rep
}

func delta(asset string, prevThk float64, prevDays int, lastThk float64, lastDays int) types.BatchDelta {
	return types.BatchDelta{
		AssetCode:     asset,
		SiteID:        "plant-a",
		PrevThickness: prevThk,
		PrevDate:      t0.AddDate(0, 0, prevDays),
		LastThickness: lastThk,
		LastDate:      t0.AddDate(0, 0, lastDays),
	}
}

func TestFourAssetRiskScenario(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		asset string
		d     types.BatchDelta
		rate  float64
		level types.RiskLevel
	}{
		{"P-OK", delta("P-OK", 10.0, 0, 9.9, 100), 0.001, types.RiskOK},
		{"P-LOW", delta("P-LOW", 10.0, 0, 8.0, 100), 0.02, types.RiskLow},
		{"P-MED", delta("P-MED", 10.0, 0, 4.0, 100), 0.06, types.RiskMedium},
		{"P-HIGH", delta("P-HIGH", 10.0, 0, 1.0, 100), 0.09, types.RiskHigh},
	}
	for _, tc := range cases {
		h.enqueue(t, tc.d)
	}

	var notified []realtime.Message
	h.hub.Subscribe(realtime.ChannelIngestion, func(m realtime.Message) { notified = append(notified, m) })

	rep := h.drain(t)
	if rep.Processed != 4 || rep.Stale != 0 || len(rep.Skipped) != 0 {
		t.Fatalf("drain report: %+v", rep)
	}
	if len(notified) != 1 || notified[0].Event != realtime.EventDrainCompleted {
		t.Fatalf("expected one drain.completed notification, got %+v", notified)
	}

	dbc := dbctx.New(context.Background())
	for _, tc := range cases {
		row, err := h.central.Analytics.Get(dbc, tc.asset)
		if err != nil || row == nil {
			t.Fatalf("%s: analytics row missing (err=%v)", tc.asset, err)
		}
		if math.Abs(row.Rate-tc.rate) > 0.0001 {
			t.Fatalf("%s: rate want %.6f got %.6f", tc.asset, tc.rate, row.Rate)
		}
		if row.RiskLevel != tc.level {
			t.Fatalf("%s: level want %s got %s", tc.asset, tc.level, row.RiskLevel)
		}
		if row.PolicyName != "default" {
			t.Fatalf("%s: policy %q", tc.asset, row.PolicyName)
		}
	}

	// Draining again changes nothing.
	if rep := h.drain(t); rep.Processed != 0 {
		t.Fatalf("second drain processed %d", rep.Processed)
	}
}

func TestOutOfOrderEventLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t)
	dbc := dbctx.New(context.Background())

	h.enqueue(t, delta("P-7", 12.5, 0, 12.3, 119))
	h.drain(t)
	before, err := h.central.Ledger.Get(dbc, "P-7")
	if err != nil || before == nil {
		t.Fatalf("ledger: %v %v", before, err)
	}
	analyticsBefore, err := h.central.Analytics.Get(dbc, "P-7")
	if err != nil || analyticsBefore == nil {
		t.Fatalf("analytics: %v", err)
	}
	if analyticsBefore.Rate != 0.001681 {
		t.Fatalf("rate: want 0.001681 got %v", analyticsBefore.Rate)
	}

	// Older window delivered late.
	h.enqueue(t, delta("P-7", 12.6, -30, 12.55, 60))
	rep := h.drain(t)
	if rep.Processed != 1 || rep.Stale != 1 {
		t.Fatalf("late event should be processed as stale: %+v", rep)
	}

	after, err := h.central.Ledger.Get(dbc, "P-7")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if after.LastThickness != before.LastThickness || !after.LastDate.Equal(before.LastDate) || after.SourceEventID != before.SourceEventID {
		t.Fatalf("ledger changed: before=%+v after=%+v", before, after)
	}
	analyticsAfter, err := h.central.Analytics.Get(dbc, "P-7")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if analyticsAfter.Rate != analyticsBefore.Rate || !analyticsAfter.UpdatedAt.Equal(analyticsBefore.UpdatedAt) {
		t.Fatalf("analytics changed: before=%+v after=%+v", analyticsBefore, analyticsAfter)
	}
}

// unlockedLedger reads the ledger as a second applier would before the first
// one committed: nothing there yet.
type unlockedLedger struct {
	repos.LedgerRepo
}

func (unlockedLedger) GetForUpdate(dbctx.Context, string) (*types.AssetLedger, error) {
	return nil, nil
}

func TestOlderEventCommittedLastIsStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	h.enqueue(t, delta("P-3", 12.5, 0, 12.3, 119))
	h.drain(t)
	before, err := h.central.Ledger.Get(dbc, "P-3")
	if err != nil || before == nil {
		t.Fatalf("ledger: %v %v", before, err)
	}
	analyticsBefore, err := h.central.Analytics.Get(dbc, "P-3")
	if err != nil || analyticsBefore == nil {
		t.Fatalf("analytics: %v %v", analyticsBefore, err)
	}

	racing := h.central
	racing.Ledger = unlockedLedger{h.central.Ledger}
	proc := NewProcessor(racing, "default", testutil.Logger(t))

	older := delta("P-3", 12.6, -30, 12.55, 60)
	raw, _ := json.Marshal(older)
	ev := &types.IngestionEvent{ID: 99, EventType: string(types.EventTypeMeasurementBatch), SourceSite: "plant-a", Payload: raw}
	err = h.central.Endpoint.Transaction(ctx, storage.OpEventsIngest, func(dbc dbctx.Context) error {
		outcome, err := proc.Apply(dbc, ev)
		if err != nil {
			return err
		}
		if outcome != queue.Stale {
			t.Fatalf("older window committed last: want Stale got %v", outcome)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	after, err := h.central.Ledger.Get(dbc, "P-3")
	if err != nil || after == nil {
		t.Fatalf("ledger: %v %v", after, err)
	}
	if !after.LastDate.Equal(before.LastDate) || after.LastThickness != before.LastThickness {
		t.Fatalf("ledger regressed: before=%+v after=%+v", before, after)
	}
	analyticsAfter, err := h.central.Analytics.Get(dbc, "P-3")
	if err != nil || analyticsAfter == nil {
		t.Fatalf("analytics: %v %v", analyticsAfter, err)
	}
	if analyticsAfter.Rate != analyticsBefore.Rate || !analyticsAfter.UpdatedAt.Equal(analyticsBefore.UpdatedAt) {
		t.Fatalf("analytics rewritten for a stale window: before=%+v after=%+v", analyticsBefore, analyticsAfter)
	}
}

func TestConcurrentDrainsKeepNewestWindowPostgres(t *testing.T) {
	h := newHarnessOn(t, testutil.PostgresEndpoint(t, "central", storage.RoleCentral))
	ctx := context.Background()

	// Windows for one asset enqueued newest first, so claim order and date
	// order disagree.
	const windows = 24
	for i := windows; i > 0; i-- {
		h.enqueue(t, delta("P-RACE", 20-float64(i-1)*0.1, (i-1)*10, 20-float64(i)*0.1, i*10))
	}

	var g errgroup.Group
	for w := 0; w < 6; w++ {
		g.Go(func() error {
			for {
				rep, err := h.queue.Drain(ctx, 1)
				if err != nil {
					return err
				}
				if rep.Processed == 0 {
					return nil
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent drain: %v", err)
	}

	got, err := h.central.Ledger.Get(dbctx.New(ctx), "P-RACE")
	if err != nil || got == nil {
		t.Fatalf("ledger: %v %v", got, err)
	}
	if want := t0.AddDate(0, 0, windows*10); !got.LastDate.Equal(want) {
		t.Fatalf("ledger last_date: want %s got %s", want, got.LastDate)
	}
}

func TestDuplicateDeliveryIsStale(t *testing.T) {
	h := newHarness(t)
	d := delta("P-9", 8.0, 0, 7.5, 50)
	ev := &types.IngestionEvent{ID: 1, EventType: string(types.EventTypeMeasurementBatch), SourceSite: "plant-a"}
	raw, _ := json.Marshal(d)
	ev.Payload = raw

	err := h.central.Endpoint.Transaction(context.Background(), storage.OpEventsIngest, func(dbc dbctx.Context) error {
		first, err := h.proc.Apply(dbc, ev)
		if err != nil || first != queue.Applied {
			t.Fatalf("first apply: %v %v", first, err)
		}
		second, err := h.proc.Apply(dbc, ev)
		if err != nil || second != queue.Stale {
			t.Fatalf("second apply: %v %v", second, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestMalformedPayloadIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	badID, err := h.queue.Enqueue(ctx, string(types.EventTypeMeasurementBatch), "plant-a", json.RawMessage(`{"asset_code":""}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	h.enqueue(t, delta("P-1", 5, 0, 4.9, 10))

	rep := h.drain(t)
	if rep.Processed != 1 || len(rep.Skipped) != 1 || rep.Skipped[0].EventID != badID {
		t.Fatalf("report: %+v", rep)
	}
}

func TestDecodeDelta(t *testing.T) {
	good, _ := json.Marshal(delta("P-1", 5, 0, 4, 10))
	cases := []struct {
		name    string
		typ     string
		payload string
		ok      bool
	}{
		{"valid", "MEASUREMENT_BATCH", string(good), true},
		{"wrong type", "OTHER", string(good), false},
		{"not an object", "MEASUREMENT_BATCH", `[1,2]`, false},
		{"no dates", "MEASUREMENT_BATCH", `{"asset_code":"P-1","prev_thickness":1,"last_thickness":1}`, false},
		{"reversed dates", "MEASUREMENT_BATCH", `{"asset_code":"P-1","prev_date":"2025-02-01T00:00:00Z","last_date":"2025-01-01T00:00:00Z"}`, false},
	}
	for _, tc := range cases {
		ev := &types.IngestionEvent{ID: 3, EventType: tc.typ, SourceSite: "plant-a", Payload: []byte(tc.payload)}
		d, err := DecodeDelta(ev)
		if tc.ok {
			if err != nil || d.AssetCode != "P-1" || d.SiteID != "plant-a" {
				t.Fatalf("%s: %+v err=%v", tc.name, d, err)
			}
			continue
		}
		if !errors.Is(err, queue.ErrMalformedPayload) {
			t.Fatalf("%s: want malformed, got %v", tc.name, err)
		}
	}
}

func TestPolicySeedAndRecompute(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, delta("P-2", 10.0, 0, 8.0, 100))
	h.drain(t)
	dbc := dbctx.New(context.Background())

	pol, err := h.central.Policies.Get(dbc, "default")
	def := risk.DefaultPolicy("default")
	if err != nil || pol == nil || pol.ThresholdLow != def.ThresholdLow || pol.ThresholdHigh != def.ThresholdHigh {
		t.Fatalf("default policy not seeded: %+v err=%v", pol, err)
	}

	strict := types.RiskPolicy{Name: "default", ThresholdLow: 0.001, ThresholdMed: 0.005, ThresholdHigh: 0.015}
	if err := h.central.Policies.Upsert(dbc, &strict); err != nil {
		t.Fatalf("upsert policy: %v", err)
	}
	n, err := h.proc.RecomputeAll(dbc)
	if err != nil || n != 1 {
		t.Fatalf("RecomputeAll: n=%d err=%v", n, err)
	}
	row, err := h.central.Analytics.Get(dbc, "P-2")
	if err != nil || row.RiskLevel != types.RiskHigh {
		t.Fatalf("recomputed level: %+v err=%v", row, err)
	}
}

func TestWorkerRunOnce(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, delta("P-3", 10, 0, 9, 20))
	h.enqueue(t, delta("P-4", 10, 0, 9, 20))
	w := NewWorker(h.queue, testutil.Logger(t), WorkerConfig{Batch: 1, MaxRounds: 5})
	rep := w.RunOnce(context.Background())
	if rep.Processed != 2 || rep.Rounds != 3 {
		t.Fatalf("RunOnce: %+v", rep)
	}
}
