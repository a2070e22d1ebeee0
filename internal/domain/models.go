// Package domain contains the core types shared across the rebalancing
// pipeline. The domain layer is pure: no infrastructure dependencies beyond
// the decimal type used for all monetary arithmetic.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of an order
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// RunMode distinguishes simulated runs from runs that place real orders
type RunMode string

const (
	ModeDryRun RunMode = "DRY_RUN"
	ModeLive   RunMode = "LIVE"
)

// RunStatus is the aggregate status of a rebalance run
type RunStatus string

const (
	// StatusSuccess - every accepted intent filled (zero intents also counts)
	StatusSuccess RunStatus = "SUCCESS"
	// StatusPartial - at least one intent filled and at least one failed
	StatusPartial RunStatus = "PARTIAL"
	// StatusFailed - the run aborted before execution, or every intent failed
	StatusFailed RunStatus = "FAILED"
	// StatusSkippedLocked - another run was already in progress; nothing happened
	StatusSkippedLocked RunStatus = "SKIPPED_LOCKED"
)

// OutcomeStatus is the terminal state of a single trade intent
type OutcomeStatus string

const (
	OutcomeFilled  OutcomeStatus = "FILLED"
	OutcomeSkipped OutcomeStatus = "SKIPPED"
	OutcomeFailed  OutcomeStatus = "FAILED"
)

// AssetBalance is an immutable snapshot of one asset's holdings.
// Quantities are captured once per run and never mutated.
type AssetBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// PriceQuote is the price of one unit of Base denominated in Quote.
// Quotes are scoped to a single run and never cached across runs.
type PriceQuote struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Price decimal.Decimal `json:"price"`
}

// SymbolRule holds the exchange trading constraints for one symbol.
// Used only for validation, never mutated.
type SymbolRule struct {
	Symbol      string          `json:"symbol"`
	MinNotional decimal.Decimal `json:"min_notional"`
	StepSize    decimal.Decimal `json:"step_size"`
	MinQty      decimal.Decimal `json:"min_qty"`
}

// Snapshot is the consistent view of the portfolio fetched at the start of a
// run. Either every field is populated from a successful upstream call or the
// fetch fails as a whole; the pipeline never operates on partial data.
type Snapshot struct {
	Balances      []AssetBalance
	Prices        map[string]decimal.Decimal // symbol (e.g. "BTCUSDT") -> last price
	RankedSymbols []string                   // rank-ordered, best first
	Rules         map[string]SymbolRule      // symbol -> trading constraints
	FetchedAt     time.Time
}

// FreeBalance returns the free quantity held for an asset, zero if absent.
func (s *Snapshot) FreeBalance(asset string) decimal.Decimal {
	for _, b := range s.Balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return decimal.Zero
}

// EligibleSet is the set of assets a run may trade. Recomputed every run,
// never persisted.
type EligibleSet map[string]struct{}

// Contains reports whether the asset is in the set.
func (e EligibleSet) Contains(asset string) bool {
	_, ok := e[asset]
	return ok
}

// Symbols returns the members in unspecified order.
func (e EligibleSet) Symbols() []string {
	out := make([]string, 0, len(e))
	for a := range e {
		out = append(out, a)
	}
	return out
}

// TradeIntent is a single trade derived by the planner. Quantity is the raw
// amount needed to close the deviation; lot-size rounding happens in the
// validator, not here.
type TradeIntent struct {
	Asset              string          `json:"asset"`
	Symbol             string          `json:"symbol"`
	Side               TradeSide       `json:"side"`
	Quantity           decimal.Decimal `json:"quantity"`
	Price              decimal.Decimal `json:"price"`
	EstimatedValueBase decimal.Decimal `json:"estimated_value_base"`
	EstimatedValueUSD  decimal.Decimal `json:"estimated_value_usd"`
	FeeUSD             decimal.Decimal `json:"fee_usd"`
	Reason             string          `json:"reason"`
}

// TradeOutcome is the terminal result of one intent. Immutable once appended
// to a run's outcome list.
type TradeOutcome struct {
	Intent  TradeIntent   `json:"intent"`
	Status  OutcomeStatus `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	OrderID string        `json:"order_id,omitempty"`
}

// ProjectedBalance is the simulated post-rebalance holding of one asset.
type ProjectedBalance struct {
	Quantity    decimal.Decimal  `json:"quantity"`
	ValueInBase decimal.Decimal  `json:"value_in_base"`
	ValueUSD    *decimal.Decimal `json:"value_usd,omitempty"`
}

// RunRecord describes one rebalance run end to end. It is created when the
// run starts, finalized exactly once when the run ends, and append-only after
// that.
type RunRecord struct {
	RunID               string                      `json:"run_id"`
	StartedAt           time.Time                   `json:"started_at"`
	FinishedAt          time.Time                   `json:"finished_at"`
	Mode                RunMode                     `json:"mode"`
	Status              RunStatus                   `json:"status"`
	Summary             string                      `json:"summary"`
	Outcomes            []TradeOutcome              `json:"outcomes"`
	TotalValueUSDBefore *decimal.Decimal            `json:"total_value_usd_before,omitempty"`
	TotalValueUSDAfter  *decimal.Decimal            `json:"total_value_usd_after,omitempty"`
	TotalFeesUSD        decimal.Decimal             `json:"total_fees_usd"`
	ProjectedBalances   map[string]ProjectedBalance `json:"projected_balances,omitempty"`
}

// FilledCount returns the number of outcomes with status FILLED.
func (r *RunRecord) FilledCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFilled {
			n++
		}
	}
	return n
}

// FailedCount returns the number of outcomes with status FAILED.
func (r *RunRecord) FailedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			n++
		}
	}
	return n
}

// TargetAllocations maps asset symbol to target weight, expressed as a
// fraction. The full set must sum to 1.0 within WeightSumTolerance.
type TargetAllocations map[string]decimal.Decimal

// WeightSumTolerance is the accepted deviation of the weight sum from 1.0.
var WeightSumTolerance = decimal.RequireFromString("0.005")

// WeightSum returns the sum of all target weights.
func (t TargetAllocations) WeightSum() decimal.Decimal {
	sum := decimal.Zero
	for _, w := range t {
		sum = sum.Add(w)
	}
	return sum
}

// Validate checks that every weight is positive and the sum is 1.0 within
// tolerance. The configuration surface enforces this on write; the planner
// re-checks defensively before deriving trades.
func (t TargetAllocations) Validate() error {
	if len(t) == 0 {
		return ErrEmptyAllocations
	}
	for asset, w := range t {
		if w.IsNegative() {
			return &AllocationError{Asset: asset, Weight: w}
		}
	}
	diff := t.WeightSum().Sub(decimal.NewFromInt(1)).Abs()
	if diff.GreaterThan(WeightSumTolerance) {
		return &WeightSumError{Sum: t.WeightSum()}
	}
	return nil
}
