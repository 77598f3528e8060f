package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/risk"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

// Recomputer rederives analytics for every asset under the active policy.
type Recomputer interface {
	ActivePolicy() string
	RecomputeAll(dbc dbctx.Context) (int, error)
}

type PolicyService interface {
	// Upsert overwrites the named policy. Thresholds must be non-negative and
	// ordered low <= med <= high. Changing the active policy recomputes all
	// analytics in the same transaction; the count of recomputed assets is
	// returned.
	Upsert(ctx context.Context, name string, low, med, high float64) (*types.RiskPolicy, int, error)
	Get(ctx context.Context, name string) (*types.RiskPolicy, error)
}

type policyService struct {
	repos     repos.Central
	recompute Recomputer
	log       *logger.Logger
}

func NewPolicyService(central repos.Central, recompute Recomputer, log *logger.Logger) PolicyService {
	return &policyService{
		repos:     central,
		recompute: recompute,
		log:       log.With("service", "PolicyService"),
	}
}

func (s *policyService) Upsert(ctx context.Context, name string, low, med, high float64) (*types.RiskPolicy, int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, 0, fmt.Errorf("policy name is required")
	}
	p := &types.RiskPolicy{Name: name, ThresholdLow: low, ThresholdMed: med, ThresholdHigh: high}
	if err := risk.ValidatePolicy(*p); err != nil {
		return nil, 0, err
	}

	recomputed := 0
	err := s.repos.Endpoint.Transaction(ctx, storage.OpPolicyUpsert, func(dbc dbctx.Context) error {
		if err := s.repos.Policies.Upsert(dbc, p); err != nil {
			return fmt.Errorf("upsert policy: %w", err)
		}
		if s.recompute == nil || s.recompute.ActivePolicy() != name {
			return nil
		}
		n, err := s.recompute.RecomputeAll(dbc)
		if err != nil {
			return err
		}
		recomputed = n
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	s.log.Info("risk policy saved",
		"policy", name,
		"threshold_low", low,
		"threshold_med", med,
		"threshold_high", high,
		"recomputed", recomputed,
	)
	return p, recomputed, nil
}

func (s *policyService) Get(ctx context.Context, name string) (*types.RiskPolicy, error) {
	return s.repos.Policies.Get(dbctx.New(ctx), strings.TrimSpace(name))
}
