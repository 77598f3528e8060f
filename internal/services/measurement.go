package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/corrowatch-backend/internal/bridge"
	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	"github.com/yungbote/corrowatch-backend/internal/measurement"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/ctxutil"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/sitestore"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

// MeasurementService is the site submission entry point.
type MeasurementService interface {
	// InsertMeasurementBatch validates pointsJSON against the asset's history
	// at siteID and appends it together with its outbox event. Validation and
	// routing errors are returned as is.
	InsertMeasurementBatch(ctx context.Context, assetCode string, pointsJSON []byte, siteID string) (int, error)
}

type measurementService struct {
	router  *storage.Router
	bridge  *bridge.Bridge
	metrics *observability.Metrics
	log     *logger.Logger
}

func NewMeasurementService(router *storage.Router, br *bridge.Bridge, metrics *observability.Metrics, log *logger.Logger) MeasurementService {
	return &measurementService{
		router:  router,
		bridge:  br,
		metrics: metrics,
		log:     log.With("service", "MeasurementService"),
	}
}

func (s *measurementService) InsertMeasurementBatch(ctx context.Context, assetCode string, pointsJSON []byte, siteID string) (int, error) {
	assetCode = strings.TrimSpace(assetCode)
	siteID = storage.NormalizeSiteID(siteID)
	if assetCode == "" {
		return 0, s.rejected(&measurement.ValidationError{
			Kind:   measurement.KindMissingAssetCode,
			Index:  -1,
			Reason: "asset code is required",
		})
	}

	points, err := measurement.ParsePoints(pointsJSON)
	if err != nil {
		return 0, s.rejected(err)
	}

	ep, err := s.router.Resolve(ctx, siteID)
	if err != nil {
		return 0, err
	}
	site := repos.NewSite(ep, s.log)
	store := sitestore.New(site, s.log)

	rows, outbox, err := store.Submit(ctx, assetCode, points)
	if err != nil {
		return 0, s.rejected(err)
	}
	fields := []interface{}{"site", siteID, "asset_code", assetCode, "rows", rows}
	if td := ctxutil.GetTraceData(ctx); td != nil && td.TraceID != "" {
		fields = append(fields, "trace_id", td.TraceID)
	}
	s.log.Info("measurement batch accepted", fields...)

	if s.bridge != nil && outbox != nil {
		// The pump retries whatever this misses.
		if err := s.bridge.Deliver(ctx, site, outbox); err != nil {
			s.log.Warn("eager publish failed, left for pump", "site", siteID, "outbox_id", outbox.ID, "error", err)
		}
	}
	return rows, nil
}

func (s *measurementService) rejected(err error) error {
	var ve *measurement.ValidationError
	if errors.As(err, &ve) {
		s.metrics.IncValidationRejected(string(ve.Kind))
	}
	return err
}
