// Package risk turns a two-point thickness window into a corrosion rate and
// classifies it against a named policy. Everything here is pure.
package risk

import (
	"errors"
	"math"
	"time"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
)

const ratePrecision = 1e6

var ErrInvertedPolicy = errors.New("risk policy thresholds must satisfy 0 <= low <= med <= high")

// CalcCorrosionRate returns thickness lost per day between two readings,
// rounded to 6 decimals half away from zero. Intervals shorter than a day
// count as one day. Inputs are trusted: a thickness increase yields a
// negative rate.
func CalcCorrosionRate(prevThickness float64, prevDate time.Time, lastThickness float64, lastDate time.Time) float64 {
	days := lastDate.Sub(prevDate).Hours() / 24
	if days < 1 {
		days = 1
	}
	return Round6((prevThickness - lastThickness) / days)
}

// RateForLedger applies CalcCorrosionRate to a ledger row.
func RateForLedger(l types.AssetLedger) float64 {
	return CalcCorrosionRate(l.PrevThickness, l.PrevDate, l.LastThickness, l.LastDate)
}

// Round6 rounds half away from zero at the sixth decimal.
func Round6(v float64) float64 {
	return math.Round(v*ratePrecision) / ratePrecision
}

// EvalRisk buckets rate against policy; ties go to the higher tier. A nil
// rate is UNKNOWN.
func EvalRisk(rate *float64, policy types.RiskPolicy) types.RiskLevel {
	if rate == nil || math.IsNaN(*rate) {
		return types.RiskUnknown
	}
	r := *rate
	switch {
	case r >= policy.ThresholdHigh:
		return types.RiskHigh
	case r >= policy.ThresholdMed:
		return types.RiskMedium
	case r >= policy.ThresholdLow:
		return types.RiskLow
	default:
		return types.RiskOK
	}
}

// ValidatePolicy enforces non-negative, ordered thresholds.
func ValidatePolicy(p types.RiskPolicy) error {
	if p.ThresholdLow < 0 || p.ThresholdMed < 0 || p.ThresholdHigh < 0 {
		return ErrInvertedPolicy
	}
	if p.ThresholdLow > p.ThresholdMed || p.ThresholdMed > p.ThresholdHigh {
		return ErrInvertedPolicy
	}
	return nil
}

// DefaultPolicy is seeded when no policy exists under the active name.
func DefaultPolicy(name string) types.RiskPolicy {
	return types.RiskPolicy{Name: name, ThresholdLow: 0.01, ThresholdMed: 0.05, ThresholdHigh: 0.08}
}
