package measurement

import (
	"bytes"
	"encoding/json"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
)

// ParsePoints decodes the JSON array accepted by the site submission entry
// point: [{"label":..,"taken_at":RFC3339,"thickness":..,"note":..}, ...].
func ParsePoints(raw []byte) ([]types.Point, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, newError(KindMalformedPoints, -1, "points must be a JSON array")
	}
	var points []types.Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, newError(KindMalformedPoints, -1, "%v", err)
	}
	return points, nil
}
