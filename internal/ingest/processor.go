package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/platform/dbctx"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/queue"
	"github.com/yungbote/corrowatch-backend/internal/risk"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

// Processor applies MEASUREMENT_BATCH events to the central ledger and
// recomputes the asset's analytics under the active policy.
type Processor struct {
	repos        repos.Central
	activePolicy string
	log          *logger.Logger
	now          func() time.Time
}

func NewProcessor(central repos.Central, activePolicy string, baseLog *logger.Logger) *Processor {
	if strings.TrimSpace(activePolicy) == "" {
		activePolicy = "default"
	}
	return &Processor{
		repos:        central,
		activePolicy: activePolicy,
		log:          baseLog.With("component", "IngestionProcessor"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) ActivePolicy() string { return p.activePolicy }

// DecodeDelta parses and checks an event payload. Any problem is reported as
// malformed.
func DecodeDelta(ev *types.IngestionEvent) (types.BatchDelta, error) {
	var d types.BatchDelta
	if ev.EventType != string(types.EventTypeMeasurementBatch) {
		return d, queue.Malformed(ev.ID, "unsupported event type %q", ev.EventType)
	}
	if err := json.Unmarshal(ev.Payload, &d); err != nil {
		return d, queue.Malformed(ev.ID, "decode batch delta: %v", err)
	}
	d.AssetCode = strings.TrimSpace(d.AssetCode)
	switch {
	case d.AssetCode == "":
		return d, queue.Malformed(ev.ID, "asset_code missing")
	case d.LastDate.IsZero() || d.PrevDate.IsZero():
		return d, queue.Malformed(ev.ID, "prev_date and last_date are required")
	case d.PrevDate.After(d.LastDate):
		return d, queue.Malformed(ev.ID, "prev_date after last_date")
	}
	if strings.TrimSpace(d.SiteID) == "" {
		d.SiteID = ev.SourceSite
	}
	d.PrevDate = d.PrevDate.UTC()
	d.LastDate = d.LastDate.UTC()
	return d, nil
}

// Apply is idempotent per asset: an event whose lastDate is not after the
// ledger's is stale and changes nothing.
func (p *Processor) Apply(dbc dbctx.Context, ev *types.IngestionEvent) (queue.Outcome, error) {
	d, err := DecodeDelta(ev)
	if err != nil {
		return queue.Applied, err
	}

	if err := p.repos.Assets.Ensure(dbc, d.AssetCode, d.SiteID); err != nil {
		return queue.Applied, fmt.Errorf("ensure asset: %w", err)
	}

	current, err := p.repos.Ledger.GetForUpdate(dbc, d.AssetCode)
	if err != nil {
		return queue.Applied, fmt.Errorf("read ledger: %w", err)
	}
	if current != nil && !current.LastDate.Before(d.LastDate) {
		p.log.Debug("stale event ignored",
			"event_id", ev.ID,
			"asset_code", d.AssetCode,
			"ledger_last_date", current.LastDate,
			"event_last_date", d.LastDate,
		)
		return queue.Stale, nil
	}

	row := &types.AssetLedger{
		AssetCode:     d.AssetCode,
		SiteID:        d.SiteID,
		PrevThickness: d.PrevThickness,
		PrevDate:      d.PrevDate,
		LastThickness: d.LastThickness,
		LastDate:      d.LastDate,
		SourceEventID: ev.ID,
	}
	written, err := p.repos.Ledger.Upsert(dbc, row)
	if err != nil {
		return queue.Applied, fmt.Errorf("upsert ledger: %w", err)
	}
	if !written {
		// A concurrent applier committed a newer window after our read.
		p.log.Debug("stale event lost ledger race", "event_id", ev.ID, "asset_code", d.AssetCode)
		return queue.Stale, nil
	}

	policy, err := p.Policy(dbc)
	if err != nil {
		return queue.Applied, err
	}
	if err := p.repos.Analytics.Upsert(dbc, p.Derive(dbc, row, policy)); err != nil {
		return queue.Applied, fmt.Errorf("upsert analytics: %w", err)
	}
	return queue.Applied, nil
}

// Policy loads the active policy, seeding the default thresholds on first
// use.
func (p *Processor) Policy(dbc dbctx.Context) (types.RiskPolicy, error) {
	pol, err := p.repos.Policies.Get(dbc, p.activePolicy)
	if err != nil {
		return types.RiskPolicy{}, fmt.Errorf("load policy %q: %w", p.activePolicy, err)
	}
	if pol != nil {
		return *pol, nil
	}
	seed := risk.DefaultPolicy(p.activePolicy)
	if err := p.repos.Policies.Upsert(dbc, &seed); err != nil {
		return types.RiskPolicy{}, fmt.Errorf("seed policy %q: %w", p.activePolicy, err)
	}
	p.log.Info("seeded default risk policy", "policy", p.activePolicy)
	return seed, nil
}

// Derive computes the analytics row for a ledger row under policy.
func (p *Processor) Derive(dbc dbctx.Context, row *types.AssetLedger, policy types.RiskPolicy) *types.AssetAnalytics {
	var rate float64
	var level types.RiskLevel
	p.repos.Endpoint.Compute(dbc.Ctx, storage.OpCalcCr, func() { rate = risk.RateForLedger(*row) })
	p.repos.Endpoint.Compute(dbc.Ctx, storage.OpEvalRisk, func() { level = risk.EvalRisk(&rate, policy) })
	return &types.AssetAnalytics{
		AssetCode:  row.AssetCode,
		Rate:       rate,
		RiskLevel:  level,
		PolicyName: policy.Name,
		UpdatedAt:  p.now(),
	}
}

// RecomputeAll rederives every asset's analytics from its ledger row, e.g.
// after the active policy changed.
func (p *Processor) RecomputeAll(dbc dbctx.Context) (int, error) {
	policy, err := p.Policy(dbc)
	if err != nil {
		return 0, err
	}
	rows, err := p.repos.Ledger.List(dbc)
	if err != nil {
		return 0, fmt.Errorf("list ledger: %w", err)
	}
	for _, row := range rows {
		if err := p.repos.Analytics.Upsert(dbc, p.Derive(dbc, row, policy)); err != nil {
			return 0, fmt.Errorf("recompute %s: %w", row.AssetCode, err)
		}
	}
	return len(rows), nil
}
