package sitestore

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/measurement"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

// Store is a plant's append-only measurement record. Every append also
// writes the batch's ingestion event to the site outbox in the same
// transaction, so an accepted batch always has an event to deliver.
type Store struct {
	repos repos.Site
	log   *logger.Logger
}

func New(site repos.Site, baseLog *logger.Logger) *Store {
	return &Store{repos: site, log: baseLog.With("component", "SiteEventStore", "site", site.Endpoint.SiteID)}
}

func (s *Store) SiteID() string { return s.repos.Endpoint.SiteID }

func (s *Store) Repos() repos.Site { return s.repos }

// Latest returns the most recent accepted reading of an asset, or nil.
func (s *Store) Latest(ctx context.Context, assetCode string) (*types.LastReading, error) {
	return s.repos.Measurements.Latest(dbctx.New(ctx), s.SiteID(), assetCode)
}

// Append writes an already validated batch and its outbox event atomically.
// It does not retry; a failure leaves nothing behind.
func (s *Store) Append(ctx context.Context, batch *measurement.ValidatedBatch) (int, *types.OutboxEvent, error) {
	var (
		written int
		ev      *types.OutboxEvent
	)
	err := s.repos.Endpoint.Transaction(ctx, storage.OpMeasurementInsertBatch, func(dbc dbctx.Context) error {
		var err error
		written, ev, err = s.write(dbc, batch)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	s.log.Debug("batch appended", "asset_code", batch.AssetCode, "rows", written, "outbox_id", ev.ID)
	return written, ev, nil
}

// Submit validates candidate against the asset's latest reading and appends
// it in the same transaction. Submissions for one asset hold the asset lock
// from that read to commit, so two batches never both extend one reading.
// Validation failures are returned as *measurement.ValidationError.
func (s *Store) Submit(ctx context.Context, assetCode string, candidate []types.Point) (int, *types.OutboxEvent, error) {
	siteID := s.SiteID()
	var (
		written int
		ev      *types.OutboxEvent
	)
	err := s.repos.Endpoint.Transaction(ctx, storage.OpMeasurementInsertBatch, func(dbc dbctx.Context) error {
		if err := s.repos.Measurements.LockAsset(dbc, siteID, assetCode); err != nil {
			return fmt.Errorf("lock asset %s: %w", assetCode, err)
		}
		last, err := s.repos.Measurements.Latest(dbc, siteID, assetCode)
		if err != nil {
			return fmt.Errorf("read latest reading: %w", err)
		}
		batch, err := measurement.Validate(siteID, assetCode, last, candidate)
		if err != nil {
			return err
		}
		written, ev, err = s.write(dbc, batch)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	s.log.Debug("batch submitted", "asset_code", assetCode, "rows", written, "outbox_id", ev.ID)
	return written, ev, nil
}

func (s *Store) write(dbc dbctx.Context, batch *measurement.ValidatedBatch) (int, *types.OutboxEvent, error) {
	if batch == nil || len(batch.Points) == 0 {
		return 0, nil, fmt.Errorf("append: empty batch")
	}
	payload, err := json.Marshal(batch.Delta)
	if err != nil {
		return 0, nil, fmt.Errorf("encode batch delta: %w", err)
	}

	rows := make([]*types.Measurement, 0, len(batch.Points))
	for _, p := range batch.Points {
		rows = append(rows, &types.Measurement{
			SiteID:    batch.SiteID,
			AssetCode: batch.AssetCode,
			Label:     p.Label,
			TakenAt:   p.TakenAt,
			Thickness: p.Thickness,
			Note:      p.Note,
		})
	}
	ev := &types.OutboxEvent{
		IdempotencyKey: batch.Delta.Key(),
		EventType:      string(types.EventTypeMeasurementBatch),
		SiteID:         batch.SiteID,
		AssetCode:      batch.AssetCode,
		Payload:        datatypes.JSON(payload),
	}

	n, err := s.repos.Measurements.InsertBatch(dbc, rows)
	if err != nil {
		return 0, nil, fmt.Errorf("insert measurements: %w", err)
	}
	if _, err := s.repos.Outbox.Insert(dbc, ev); err != nil {
		return 0, nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return int(n), ev, nil
}
