// Package executor runs the rebalance pipeline end to end: snapshot,
// eligibility, plan, validation, order submission, run record.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/eligibility"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/planner"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/settings"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/validator"
)

// SnapshotFetcher is the gateway surface the orchestrator consumes.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, targets domain.TargetAllocations, basePair string, maxRank int) (*domain.Snapshot, error)
}

// SettingsProvider loads the current rebalance configuration.
type SettingsProvider interface {
	GetRebalanceSettings() (*settings.RebalanceSettings, error)
}

// Orchestrator coordinates a full rebalance run. Exactly one run may be in
// flight at a time; concurrent callers are turned away immediately.
type Orchestrator struct {
	gateway  SnapshotFetcher
	settings SettingsProvider
	planner  *planner.Planner
	store    domain.RunStore
	live     domain.OrderSubmitter
	dry      domain.OrderSubmitter
	log      zerolog.Logger
	now      func() time.Time

	runMu sync.Mutex
}

// NewOrchestrator creates a new execution orchestrator.
func NewOrchestrator(
	gateway SnapshotFetcher,
	settingsProvider SettingsProvider,
	plan *planner.Planner,
	store domain.RunStore,
	live domain.OrderSubmitter,
	dry domain.OrderSubmitter,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		gateway:  gateway,
		settings: settingsProvider,
		planner:  plan,
		store:    store,
		live:     live,
		dry:      dry,
		log:      log.With().Str("service", "executor").Logger(),
		now:      time.Now,
	}
}

// RunRebalance executes one rebalance run. dryRunOverride, when non-nil,
// overrides the configured dry-run flag for this run only.
//
// If another run is already in progress, a SKIPPED_LOCKED record is returned
// together with domain.ErrRunInProgress; nothing is fetched, planned,
// submitted or persisted.
func (o *Orchestrator) RunRebalance(ctx context.Context, dryRunOverride *bool) (*domain.RunRecord, error) {
	if !o.runMu.TryLock() {
		now := o.now()
		o.log.Warn().Msg("Rebalance requested while another run is in progress")
		return &domain.RunRecord{
			RunID:        uuid.NewString(),
			StartedAt:    now,
			FinishedAt:   now,
			Status:       domain.StatusSkippedLocked,
			Summary:      "another rebalance run was already in progress",
			TotalFeesUSD: decimal.Zero,
		}, domain.ErrRunInProgress
	}
	defer o.runMu.Unlock()

	record := &domain.RunRecord{
		RunID:        uuid.NewString(),
		StartedAt:    o.now(),
		TotalFeesUSD: decimal.Zero,
	}
	log := o.log.With().Str("run_id", record.RunID).Logger()

	cfg, err := o.settings.GetRebalanceSettings()
	if err != nil {
		return o.finalize(ctx, record, domain.StatusFailed,
			fmt.Sprintf("failed to load settings: %v", err), log), nil
	}

	dryRun := cfg.DryRun
	if dryRunOverride != nil {
		dryRun = *dryRunOverride
	}
	record.Mode = domain.ModeLive
	if dryRun {
		record.Mode = domain.ModeDryRun
	}

	log.Info().Str("mode", string(record.Mode)).Msg("Rebalance run started")

	snap, err := o.gateway.FetchSnapshot(ctx, cfg.TargetAllocations, cfg.BasePair, cfg.MaxRank)
	if err != nil {
		return o.finalize(ctx, record, domain.StatusFailed,
			fmt.Sprintf("failed to fetch portfolio snapshot: %v", err), log), nil
	}

	eligible := eligibility.Filter(snap.Balances, cfg.TargetAllocations, snap.RankedSymbols, cfg.MaxRank, cfg.BasePair)

	plan, err := o.planner.BuildPlan(snap, eligible, planner.Params{
		Targets:          cfg.TargetAllocations,
		BasePair:         cfg.BasePair,
		MinTradeValueUSD: cfg.MinTradeValueUSD,
		TradeFeePct:      cfg.TradeFeePct,
	})
	if err != nil {
		return o.finalize(ctx, record, domain.StatusFailed,
			fmt.Sprintf("failed to build plan: %v", err), log), nil
	}

	record.TotalValueUSDBefore = plan.TotalValueUSD
	record.ProjectedBalances = plan.ProjectedBalances

	accepted := o.validateIntents(record, plan, snap, cfg, log)

	submitter := o.live
	if dryRun {
		submitter = o.dry
	}
	o.submit(ctx, record, accepted, submitter, log)

	record.TotalValueUSDAfter = projectedTotalUSD(plan)

	filled, failed := record.FilledCount(), record.FailedCount()
	status := domain.StatusSuccess
	switch {
	case failed == 0:
		status = domain.StatusSuccess
	case filled > 0:
		status = domain.StatusPartial
	default:
		status = domain.StatusFailed
	}

	summary := fmt.Sprintf("%d filled, %d failed, %d skipped", filled, failed, len(record.Outcomes)-filled-failed)
	return o.finalize(ctx, record, status, summary, log), nil
}

// validateIntents applies the trade validator to every planned intent.
// Rejections become SKIPPED outcomes on the record; accepted intents are
// returned in plan order (SELLs first).
func (o *Orchestrator) validateIntents(record *domain.RunRecord, plan *planner.Plan, snap *domain.Snapshot, cfg *settings.RebalanceSettings, log zerolog.Logger) []domain.TradeIntent {
	baseUSD, _ := planner.USDRate(snap.Prices, cfg.BasePair)

	var accepted []domain.TradeIntent
	for _, intent := range plan.Intents {
		var rule *domain.SymbolRule
		if r, ok := snap.Rules[intent.Symbol]; ok {
			rule = &r
		}

		res := validator.Validate(validator.Input{
			Intent:           intent,
			Rule:             rule,
			FreeBalance:      snap.FreeBalance(intent.Asset),
			MinTradeValueUSD: cfg.MinTradeValueUSD,
			BaseUSDRate:      baseUSD,
		})

		if !res.Accepted {
			log.Info().
				Str("symbol", intent.Symbol).
				Str("side", string(intent.Side)).
				Str("reason", string(res.Reason)).
				Str("detail", res.Detail).
				Msg("Intent rejected by validator")
			record.Outcomes = append(record.Outcomes, domain.TradeOutcome{
				Intent: res.Intent,
				Status: domain.OutcomeSkipped,
				Reason: fmt.Sprintf("%s: %s", res.Reason, res.Detail),
			})
			continue
		}

		accepted = append(accepted, res.Intent)
	}

	return accepted
}

// submit sends the accepted intents sequentially. The plan orders SELLs
// before BUYs, so every sell reaches a terminal outcome before the first buy
// is submitted. A failed order never aborts the remainder of the run.
func (o *Orchestrator) submit(ctx context.Context, record *domain.RunRecord, intents []domain.TradeIntent, submitter domain.OrderSubmitter, log zerolog.Logger) {
	for _, intent := range intents {
		orderID, err := submitter.SubmitMarketOrder(ctx, intent.Symbol, intent.Side, intent.Quantity)
		if err != nil {
			log.Error().
				Err(err).
				Str("symbol", intent.Symbol).
				Str("side", string(intent.Side)).
				Msg("Order submission failed")
			record.Outcomes = append(record.Outcomes, domain.TradeOutcome{
				Intent: intent,
				Status: domain.OutcomeFailed,
				Reason: err.Error(),
			})
			continue
		}

		record.Outcomes = append(record.Outcomes, domain.TradeOutcome{
			Intent:  intent,
			Status:  domain.OutcomeFilled,
			OrderID: orderID,
		})
		record.TotalFeesUSD = record.TotalFeesUSD.Add(intent.FeeUSD)
	}
}

// finalize stamps the record exactly once, persists it and logs the outcome.
// A persistence failure is logged but does not change the run result.
func (o *Orchestrator) finalize(ctx context.Context, record *domain.RunRecord, status domain.RunStatus, summary string, log zerolog.Logger) *domain.RunRecord {
	record.Status = status
	record.Summary = summary
	record.FinishedAt = o.now()

	if err := o.store.SaveRun(ctx, record); err != nil {
		log.Error().Err(err).Msg("Failed to persist run record")
	}

	log.Info().
		Str("status", string(status)).
		Str("summary", summary).
		Dur("elapsed", record.FinishedAt.Sub(record.StartedAt)).
		Msg("Rebalance run finished")

	return record
}

// projectedTotalUSD sums the projected per-asset USD values, when known.
func projectedTotalUSD(plan *planner.Plan) *decimal.Decimal {
	total := decimal.Zero
	for _, pb := range plan.ProjectedBalances {
		if pb.ValueUSD == nil {
			return nil
		}
		total = total.Add(*pb.ValueUSD)
	}
	if len(plan.ProjectedBalances) == 0 {
		return nil
	}
	return &total
}
