package handlers

import (
	"errors"
	"net/http"

	"github.com/yungbote/corrowatch-backend/internal/bridge"
	"github.com/yungbote/corrowatch-backend/internal/measurement"
	"github.com/yungbote/corrowatch-backend/internal/platform/apierr"
	"github.com/yungbote/corrowatch-backend/internal/queue"
	"github.com/yungbote/corrowatch-backend/internal/risk"
	"github.com/yungbote/corrowatch-backend/internal/services"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

// classify maps domain errors onto API errors.
func classify(err error, fallbackCode string) error {
	var ve *measurement.ValidationError
	var te *bridge.TransportError
	switch {
	case errors.As(err, &ve):
		return apierr.New(http.StatusUnprocessableEntity, "validation_"+string(ve.Kind), err)
	case errors.Is(err, storage.ErrUnknownSite):
		return apierr.NotFound("unknown_site", err)
	case errors.Is(err, services.ErrAssetNotFound):
		return apierr.NotFound("asset_not_found", err)
	case errors.Is(err, risk.ErrInvertedPolicy):
		return apierr.BadRequest("invalid_policy", err)
	case errors.Is(err, queue.ErrInvalidJSON),
		errors.Is(err, queue.ErrMissingSource),
		errors.Is(err, queue.ErrMissingEventType):
		return apierr.BadRequest("invalid_event", err)
	case errors.As(err, &te):
		return apierr.New(http.StatusBadGateway, "transport_failed", err)
	}
	return apierr.Internal(fallbackCode, err)
}
