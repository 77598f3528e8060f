package measurement

import (
	"strings"
	"time"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
)

// ValidatedBatch is a batch that passed Validate, with timestamps normalised
// to UTC and the prev/last window it leaves behind for its asset.
type ValidatedBatch struct {
	SiteID    string
	AssetCode string
	Points    []types.Point
	Delta     types.BatchDelta
}

// Validate checks candidate against the asset's most recent accepted reading.
// The existing reading followed by the candidate points must be strictly
// increasing in time and non-increasing in thickness. It has no side effects.
func Validate(siteID, assetCode string, existingLast *types.LastReading, candidate []types.Point) (*ValidatedBatch, error) {
	assetCode = strings.TrimSpace(assetCode)
	siteID = strings.TrimSpace(siteID)
	if assetCode == "" {
		return nil, newError(KindMissingAssetCode, -1, "asset code is required")
	}
	if siteID == "" {
		return nil, newError(KindMissingSiteID, -1, "site id is required")
	}
	if len(candidate) == 0 {
		return nil, newError(KindEmptyBatch, -1, "batch has no points")
	}

	points := make([]types.Point, len(candidate))
	var (
		prevAt   time.Time
		prevThk  float64
		havePrev bool
	)
	prevLabel := "existing reading"
	if existingLast != nil {
		prevAt = existingLast.TakenAt.UTC()
		prevThk = existingLast.Thickness
		havePrev = true
	}

	for i, p := range candidate {
		if p.TakenAt.IsZero() {
			return nil, newError(KindMissingTimestamp, i, "taken_at is required")
		}
		if !(p.Thickness > 0) {
			return nil, newError(KindNonPositiveThickness, i, "thickness must be > 0, got %v", p.Thickness)
		}
		at := p.TakenAt.UTC()
		if havePrev {
			if !at.After(prevAt) {
				return nil, newError(KindNonMonotonicTime, i,
					"taken_at %s is not after %s (%s)", at.Format(time.RFC3339), prevAt.Format(time.RFC3339), prevLabel)
			}
			if p.Thickness > prevThk {
				return nil, newError(KindThicknessIncreased, i,
					"thickness %v exceeds %v (%s)", p.Thickness, prevThk, prevLabel)
			}
		}
		p.TakenAt = at
		p.Label = strings.TrimSpace(p.Label)
		points[i] = p
		prevAt, prevThk, havePrev = at, p.Thickness, true
		prevLabel = "previous point in batch"
	}

	last := points[len(points)-1]
	delta := types.BatchDelta{
		AssetCode:     assetCode,
		SiteID:        siteID,
		Label:         last.Label,
		Note:          last.Note,
		LastThickness: last.Thickness,
		LastDate:      last.TakenAt,
	}
	switch {
	case existingLast != nil:
		delta.PrevThickness = existingLast.Thickness
		delta.PrevDate = existingLast.TakenAt.UTC()
	default:
		// No history: the window opens at the batch's first point, which is
		// the last point itself for a single-point batch.
		delta.PrevThickness = points[0].Thickness
		delta.PrevDate = points[0].TakenAt
	}

	return &ValidatedBatch{
		SiteID:    siteID,
		AssetCode: assetCode,
		Points:    points,
		Delta:     delta,
	}, nil
}
