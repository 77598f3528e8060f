package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	types "github.com/yungbote/corrowatch-backend/internal/domain"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCalcCorrosionRate(t *testing.T) {
	got := CalcCorrosionRate(12.5, t0, 12.3, t0.AddDate(0, 0, 119))
	if got != 0.001681 {
		t.Fatalf("want 0.001681, got %v", got)
	}

	// Same-day re-measurement uses the one day floor.
	if got := CalcCorrosionRate(10, t0, 9.5, t0.Add(3*time.Hour)); got != 0.5 {
		t.Fatalf("same day: want 0.5, got %v", got)
	}
	// Identical dates do not divide by zero.
	if got := CalcCorrosionRate(10, t0, 10, t0); got != 0 {
		t.Fatalf("identical: want 0, got %v", got)
	}
	// Input is trusted; an increase produces a negative rate.
	if got := CalcCorrosionRate(10, t0, 10.2, t0.AddDate(0, 0, 10)); got != -0.02 {
		t.Fatalf("negative: want -0.02, got %v", got)
	}
}

func TestRound6HalfAwayFromZero(t *testing.T) {
	cases := map[float64]float64{
		0.0000026:  0.000003,
		-0.0000026: -0.000003,
		0.0016806:  0.001681,
		0.0016804:  0.00168,
	}
	for in, want := range cases {
		if got := Round6(in); math.Abs(got-want) > 1e-12 {
			t.Fatalf("Round6(%v): want %v got %v", in, want, got)
		}
	}
}

func TestEvalRisk(t *testing.T) {
	policy := types.RiskPolicy{Name: "p", ThresholdLow: 0.01, ThresholdMed: 0.05, ThresholdHigh: 0.08}
	cases := []struct {
		rate float64
		want types.RiskLevel
	}{
		{0, types.RiskOK},
		{0.009999, types.RiskOK},
		{0.01, types.RiskLow},
		{0.049, types.RiskLow},
		{0.05, types.RiskMedium},
		{0.079, types.RiskMedium},
		{0.08, types.RiskHigh},
		{1.2, types.RiskHigh},
		{-0.3, types.RiskOK},
	}
	for _, tc := range cases {
		r := tc.rate
		if got := EvalRisk(&r, policy); got != tc.want {
			t.Fatalf("rate %v: want %s got %s", tc.rate, tc.want, got)
		}
	}
	if got := EvalRisk(nil, policy); got != types.RiskUnknown {
		t.Fatalf("nil rate: want UNKNOWN got %s", got)
	}
	nan := math.NaN()
	if got := EvalRisk(&nan, policy); got != types.RiskUnknown {
		t.Fatalf("NaN rate: want UNKNOWN got %s", got)
	}
}

func TestValidatePolicy(t *testing.T) {
	if err := ValidatePolicy(DefaultPolicy("default")); err != nil {
		t.Fatalf("default policy: %v", err)
	}
	bad := []types.RiskPolicy{
		{ThresholdLow: 0.05, ThresholdMed: 0.01, ThresholdHigh: 0.08},
		{ThresholdLow: 0.01, ThresholdMed: 0.09, ThresholdHigh: 0.08},
		{ThresholdLow: -1, ThresholdMed: 0, ThresholdHigh: 0},
	}
	for _, p := range bad {
		if err := ValidatePolicy(p); !errors.Is(err, ErrInvertedPolicy) {
			t.Fatalf("%+v: want ErrInvertedPolicy, got %v", p, err)
		}
	}
}
