// Package planner derives trade intents from the portfolio snapshot and the
// target allocations. All value arithmetic is decimal; floats never touch
// monetary quantities.
package planner

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

// Params are the configuration inputs of a single planning pass.
type Params struct {
	Targets          domain.TargetAllocations
	BasePair         string
	MinTradeValueUSD decimal.Decimal
	TradeFeePct      decimal.Decimal
}

// Plan is the output of one planning pass. Intents are ordered SELLs first,
// alphabetically within each side.
type Plan struct {
	Intents           []domain.TradeIntent
	TotalValueBase    decimal.Decimal
	TotalValueUSD     *decimal.Decimal
	EstimatedFeesUSD  decimal.Decimal
	ProjectedBalances map[string]domain.ProjectedBalance
}

// Planner computes rebalance plans.
type Planner struct {
	log zerolog.Logger
}

// New creates a new planner.
func New(log zerolog.Logger) *Planner {
	return &Planner{
		log: log.With().Str("service", "planner").Logger(),
	}
}

// BuildPlan computes the trades needed to move the eligible portion of the
// portfolio toward its target weights.
//
// Target weights are renormalized over the eligible set plus the base pair:
// weights of ineligible assets are simply absent from the divisor, they are
// never redistributed to 100%. Deviations below the minimum trade value are
// left alone. Quantities are raw (deviation / price); lot-size rounding is
// the validator's job.
func (p *Planner) BuildPlan(snap *domain.Snapshot, eligible domain.EligibleSet, params Params) (*Plan, error) {
	if err := params.Targets.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to plan with invalid targets: %w", err)
	}

	base := params.BasePair
	baseUSD, baseUSDKnown := USDRate(snap.Prices, base)

	// Portfolio value covers the eligible assets plus the base pair holding.
	// Ineligible assets are invisible to the plan.
	holdings := map[string]decimal.Decimal{
		base: snap.FreeBalance(base),
	}
	for asset := range eligible {
		holdings[asset] = snap.FreeBalance(asset)
	}

	totalValueBase := holdings[base]
	for asset := range eligible {
		rate, ok := Rate(snap.Prices, asset, base)
		if !ok {
			continue
		}
		totalValueBase = totalValueBase.Add(holdings[asset].Mul(rate))
	}

	// Renormalization divisor: eligible weights plus the base pair weight.
	weightSum := decimal.Zero
	for asset := range eligible {
		weightSum = weightSum.Add(params.Targets[asset])
	}
	if baseWeight, ok := params.Targets[base]; ok && baseWeight.IsPositive() {
		weightSum = weightSum.Add(baseWeight)
	}

	plan := &Plan{
		EstimatedFeesUSD:  decimal.Zero,
		TotalValueBase:    totalValueBase,
		ProjectedBalances: map[string]domain.ProjectedBalance{},
	}
	if baseUSDKnown {
		usd := totalValueBase.Mul(baseUSD)
		plan.TotalValueUSD = &usd
	}

	if weightSum.IsZero() || totalValueBase.IsZero() {
		p.log.Info().Msg("Nothing to plan: no eligible weight or empty portfolio")
		plan.ProjectedBalances = p.project(snap, holdings, nil, params)
		return plan, nil
	}

	var sells, buys []domain.TradeIntent
	for _, asset := range sortedAssets(eligible) {
		price, ok := snap.Prices[asset+base]
		if !ok || !price.IsPositive() {
			p.log.Warn().
				Str("asset", asset).
				Str("base", base).
				Msg("No direct trading pair for eligible asset, skipping")
			continue
		}

		currentValue := holdings[asset].Mul(price)
		targetValue := totalValueBase.Mul(params.Targets[asset]).Div(weightSum)
		delta := currentValue.Sub(targetValue)
		absDelta := delta.Abs()

		deltaUSD := absDelta
		if baseUSDKnown {
			deltaUSD = absDelta.Mul(baseUSD)
		}
		if deltaUSD.LessThan(params.MinTradeValueUSD) {
			p.log.Debug().
				Str("asset", asset).
				Str("deviation_usd", deltaUSD.String()).
				Msg("Deviation below minimum trade value, skipping")
			continue
		}

		side := domain.SideBuy
		reason := "underweight"
		if delta.IsPositive() {
			side = domain.SideSell
			reason = "overweight"
		}

		intent := domain.TradeIntent{
			Asset:              asset,
			Symbol:             asset + base,
			Side:               side,
			Quantity:           absDelta.Div(price),
			Price:              price,
			EstimatedValueBase: absDelta,
			EstimatedValueUSD:  deltaUSD,
			FeeUSD:             deltaUSD.Mul(params.TradeFeePct),
			Reason:             fmt.Sprintf("%s by %s %s", reason, absDelta.StringFixed(8), base),
		}
		plan.EstimatedFeesUSD = plan.EstimatedFeesUSD.Add(intent.FeeUSD)

		if side == domain.SideSell {
			sells = append(sells, intent)
		} else {
			buys = append(buys, intent)
		}
	}

	plan.Intents = append(sells, buys...)
	plan.ProjectedBalances = p.project(snap, holdings, plan.Intents, params)

	p.log.Info().
		Int("sells", len(sells)).
		Int("buys", len(buys)).
		Str("total_value_base", totalValueBase.String()).
		Msg("Plan built")

	return plan, nil
}

// project simulates the post-trade balances: sell proceeds land in the base
// pair minus fees, buys cost the full notional and deliver quantity minus
// fees.
func (p *Planner) project(snap *domain.Snapshot, holdings map[string]decimal.Decimal, intents []domain.TradeIntent, params Params) map[string]domain.ProjectedBalance {
	projected := make(map[string]decimal.Decimal, len(holdings))
	for asset, qty := range holdings {
		projected[asset] = qty
	}

	base := params.BasePair
	feeFactor := one.Sub(params.TradeFeePct)

	for _, intent := range intents {
		notional := intent.Quantity.Mul(intent.Price)
		switch intent.Side {
		case domain.SideSell:
			projected[intent.Asset] = projected[intent.Asset].Sub(intent.Quantity)
			projected[base] = projected[base].Add(notional.Mul(feeFactor))
		case domain.SideBuy:
			projected[intent.Asset] = projected[intent.Asset].Add(intent.Quantity.Mul(feeFactor))
			projected[base] = projected[base].Sub(notional)
		}
	}

	baseUSD, baseUSDKnown := USDRate(snap.Prices, base)

	out := make(map[string]domain.ProjectedBalance, len(projected))
	for asset, qty := range projected {
		pb := domain.ProjectedBalance{Quantity: qty, ValueInBase: qty}
		if asset != base {
			if rate, ok := Rate(snap.Prices, asset, base); ok {
				pb.ValueInBase = qty.Mul(rate)
			}
		}
		if baseUSDKnown {
			usd := pb.ValueInBase.Mul(baseUSD)
			pb.ValueUSD = &usd
		}
		out[asset] = pb
	}

	return out
}

func sortedAssets(eligible domain.EligibleSet) []string {
	assets := eligible.Symbols()
	sort.Strings(assets)
	return assets
}
