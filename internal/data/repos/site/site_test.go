package site

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/corrowatch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

func TestMeasurementRepo(t *testing.T) {
	ep := testutil.Endpoint(t, "plant-a", storage.RolePlant)
	repo := NewMeasurementRepo(ep, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	latest, err := repo.Latest(dbc, "plant-a", "P-1")
	if err != nil || latest != nil {
		t.Fatalf("Latest on empty: %v %v", latest, err)
	}

	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := []*types.Measurement{
		{SiteID: "plant-a", AssetCode: "P-1", Label: "A", TakenAt: t0, Thickness: 10},
		{SiteID: "plant-a", AssetCode: "P-1", Label: "B", TakenAt: t0.AddDate(0, 0, 30), Thickness: 9.8},
		{SiteID: "plant-a", AssetCode: "P-2", Label: "A", TakenAt: t0.AddDate(0, 0, 60), Thickness: 4},
	}
	n, err := repo.InsertBatch(dbc, rows)
	if err != nil || n != 3 {
		t.Fatalf("InsertBatch: n=%d err=%v", n, err)
	}

	latest, err = repo.Latest(dbc, "plant-a", "P-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.Thickness != 9.8 || !latest.TakenAt.Equal(t0.AddDate(0, 0, 30)) {
		t.Fatalf("Latest: got %+v", latest)
	}

	// Same asset and timestamp twice violates the unique index.
	if _, err := repo.InsertBatch(dbc, []*types.Measurement{{SiteID: "plant-a", AssetCode: "P-1", TakenAt: t0, Thickness: 1}}); err == nil {
		t.Fatalf("duplicate timestamp should fail")
	}

	all, err := repo.ListByAsset(dbc, "plant-a", "P-1")
	if err != nil || len(all) != 2 || all[0].Label != "A" {
		t.Fatalf("ListByAsset: %v err=%v", all, err)
	}
}

func TestOutboxRepo(t *testing.T) {
	ep := testutil.Endpoint(t, "plant-a", storage.RolePlant)
	repo := NewOutboxRepo(ep, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	mk := func(key string) *types.OutboxEvent {
		return &types.OutboxEvent{
			IdempotencyKey: key,
			EventType:      string(types.EventTypeMeasurementBatch),
			SiteID:         "plant-a",
			AssetCode:      "P-1",
			Payload:        datatypes.JSON([]byte(`{}`)),
		}
	}
	if ok, err := repo.Insert(dbc, mk("a")); err != nil || !ok {
		t.Fatalf("Insert a: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Insert(dbc, mk("a")); err != nil || ok {
		t.Fatalf("Insert duplicate should be ignored: ok=%v err=%v", ok, err)
	}
	if _, err := repo.Insert(dbc, mk("b")); err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	pending, err := repo.Pending(dbc, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("Pending: %d err=%v", len(pending), err)
	}
	if err := repo.MarkFailed(dbc, pending[1].ID, "central unreachable"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := repo.MarkPublished(dbc, pending[0].ID, 42, time.Now().UTC()); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	pending, err = repo.Pending(dbc, 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].IdempotencyKey != "b" || pending[0].Attempts != 1 || pending[0].LastError == "" {
		t.Fatalf("Pending after publish: %+v", pending)
	}
}
