package sitestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	"github.com/yungbote/corrowatch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/measurement"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

func TestAppendWritesPointsAndOutboxTogether(t *testing.T) {
	ep := testutil.Endpoint(t, "plant-a", storage.RolePlant)
	store := New(repos.NewSite(ep, testutil.Logger(t)), testutil.Logger(t))
	ctx := context.Background()
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	batch, err := measurement.Validate("plant-a", "P-1", nil, []types.Point{
		{Label: "A", TakenAt: t0, Thickness: 10},
		{Label: "B", TakenAt: t0.AddDate(0, 0, 30), Thickness: 9.7},
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	n, ev, err := store.Append(ctx, batch)
	if err != nil || n != 2 {
		t.Fatalf("Append: n=%d err=%v", n, err)
	}
	if ev.IdempotencyKey != "plant-a|P-1|2025-03-03T00:00:00Z" {
		t.Fatalf("idempotency key: %q", ev.IdempotencyKey)
	}
	var d types.BatchDelta
	if err := json.Unmarshal(ev.Payload, &d); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if d.PrevThickness != 10 || d.LastThickness != 9.7 || !d.PrevDate.Equal(t0) {
		t.Fatalf("delta: %+v", d)
	}

	last, err := store.Latest(ctx, "P-1")
	if err != nil || last == nil || last.Thickness != 9.7 {
		t.Fatalf("Latest: %+v err=%v", last, err)
	}

	// A batch overlapping stored timestamps fails as a whole.
	dup := &measurement.ValidatedBatch{
		SiteID: "plant-a", AssetCode: "P-1",
		Points: []types.Point{{TakenAt: t0.AddDate(0, 0, 40), Thickness: 9.6}, {TakenAt: t0, Thickness: 9.5}},
		Delta:  types.BatchDelta{AssetCode: "P-1", SiteID: "plant-a", LastDate: t0.AddDate(0, 0, 50)},
	}
	if _, _, err := store.Append(ctx, dup); err == nil {
		t.Fatalf("Append with a duplicate timestamp should fail")
	}
	pending, err := store.Repos().Outbox.Pending(dbctx.New(ctx), 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("outbox after failed append: %d err=%v", len(pending), err)
	}
	rows, err := store.Repos().Measurements.ListByAsset(dbctx.New(ctx), "plant-a", "P-1")
	if err != nil || len(rows) != 2 {
		t.Fatalf("measurements after failed append: %d err=%v", len(rows), err)
	}
}

func TestSubmitRejectsAgainstStoredReading(t *testing.T) {
	ep := testutil.Endpoint(t, "plant-a", storage.RolePlant)
	store := New(repos.NewSite(ep, testutil.Logger(t)), testutil.Logger(t))
	ctx := context.Background()
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	if n, _, err := store.Submit(ctx, "P-1", []types.Point{{TakenAt: t0, Thickness: 12}}); err != nil || n != 1 {
		t.Fatalf("Submit: n=%d err=%v", n, err)
	}
	_, _, err := store.Submit(ctx, "P-1", []types.Point{{TakenAt: t0.AddDate(0, 0, 1), Thickness: 12.5}})
	var ve *measurement.ValidationError
	if !errors.As(err, &ve) || ve.Kind != measurement.KindThicknessIncreased {
		t.Fatalf("want ThicknessIncreased, got %v", err)
	}
	pending, err := store.Repos().Outbox.Pending(dbctx.New(ctx), 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("rejected submit left an outbox row: %d err=%v", len(pending), err)
	}
}

// submitCompeting races two batches that are each valid against the seeded
// reading but not against each other. Exactly one may win.
func submitCompeting(t *testing.T, ep *storage.Endpoint, trials int) {
	t.Helper()
	log := testutil.Logger(t)
	store := New(repos.NewSite(ep, log), log)
	ctx := context.Background()
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for trial := 0; trial < trials; trial++ {
		asset := fmt.Sprintf("P-%d", trial)
		if _, _, err := store.Submit(ctx, asset, []types.Point{{TakenAt: t0, Thickness: 12}}); err != nil {
			t.Fatalf("%s seed: %v", asset, err)
		}
		batches := [][]types.Point{
			{{TakenAt: t0.AddDate(0, 0, 1), Thickness: 10}},
			{{TakenAt: t0.AddDate(0, 0, 2), Thickness: 11}},
		}
		var (
			wg   sync.WaitGroup
			errs [2]error
		)
		for i := range batches {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = store.Submit(ctx, asset, batches[i])
			}(i)
		}
		wg.Wait()

		accepted := 0
		for _, err := range errs {
			if err == nil {
				accepted++
				continue
			}
			if !errors.Is(err, measurement.ErrValidation) {
				t.Fatalf("%s: unexpected error %v", asset, err)
			}
		}
		if accepted != 1 {
			t.Fatalf("%s: want exactly one accepted batch, got %d (%v)", asset, accepted, errs)
		}

		rows, err := store.Repos().Measurements.ListByAsset(dbctx.New(ctx), "plant-a", asset)
		if err != nil {
			t.Fatalf("%s: list: %v", asset, err)
		}
		for i := 1; i < len(rows); i++ {
			if !rows[i].TakenAt.After(rows[i-1].TakenAt) || rows[i].Thickness > rows[i-1].Thickness {
				t.Fatalf("%s: history not monotonic at %d: %+v then %+v", asset, i, rows[i-1], rows[i])
			}
		}
	}
}

func TestSubmitSerialisesCompetingBatches(t *testing.T) {
	submitCompeting(t, testutil.Endpoint(t, "plant-a", storage.RolePlant), 20)
}

func TestSubmitSerialisesCompetingBatchesPostgres(t *testing.T) {
	submitCompeting(t, testutil.PostgresEndpoint(t, "plant-a", storage.RolePlant), 50)
}
