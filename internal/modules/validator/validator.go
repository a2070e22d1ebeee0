// Package validator applies exchange trading constraints to planned intents.
// It is pure: no I/O, no clock, no logging side effects on the decision.
package validator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

// Input is everything needed to validate one intent.
type Input struct {
	Intent      domain.TradeIntent
	Rule        *domain.SymbolRule // nil when the exchange does not list the symbol
	FreeBalance decimal.Decimal    // free quantity of the intent's asset

	// MinTradeValueUSD is the configured per-trade floor, checked against
	// the adjusted notional.
	MinTradeValueUSD decimal.Decimal

	// BaseUSDRate converts base-pair notional to USD. Zero means unknown,
	// in which case the notional is compared as-is.
	BaseUSDRate decimal.Decimal
}

// Result is the validation outcome. When Accepted, Intent carries the
// adjusted quantity and recomputed values; otherwise Reason explains the
// rejection.
type Result struct {
	Intent   domain.TradeIntent
	Accepted bool
	Reason   domain.RejectionReason
	Detail   string
}

// Validate applies the exchange constraints to a single intent:
//
//  1. SELL quantities are clamped to the free balance; a zero free balance
//     rejects the intent outright.
//  2. The quantity is floored to the symbol's step size.
//  3. The floored quantity must reach minQty.
//  4. The adjusted notional must reach both the exchange minNotional and the
//     configured minimum trade value.
func Validate(in Input) Result {
	intent := in.Intent

	if in.Rule == nil {
		return reject(intent, domain.RejectMissingSymbolRule,
			fmt.Sprintf("no trading rule for symbol %s", intent.Symbol))
	}

	qty := intent.Quantity

	if intent.Side == domain.SideSell {
		if !in.FreeBalance.IsPositive() {
			return reject(intent, domain.RejectInsufficientBalance,
				fmt.Sprintf("no free %s available to sell", intent.Asset))
		}
		if qty.GreaterThan(in.FreeBalance) {
			qty = in.FreeBalance
		}
	}

	qty = FloorToStep(qty, in.Rule.StepSize)

	if !qty.IsPositive() || qty.LessThan(in.Rule.MinQty) {
		return reject(intent, domain.RejectBelowMinQuantity,
			fmt.Sprintf("quantity %s below minimum %s after step adjustment", qty, in.Rule.MinQty))
	}

	notional := qty.Mul(intent.Price)
	if notional.LessThan(in.Rule.MinNotional) {
		return reject(intent, domain.RejectBelowMinNotional,
			fmt.Sprintf("notional %s below exchange minimum %s", notional, in.Rule.MinNotional))
	}

	notionalUSD := notional
	if in.BaseUSDRate.IsPositive() {
		notionalUSD = notional.Mul(in.BaseUSDRate)
	}
	if notionalUSD.LessThan(in.MinTradeValueUSD) {
		return reject(intent, domain.RejectBelowMinNotional,
			fmt.Sprintf("notional %s USD below configured minimum %s", notionalUSD, in.MinTradeValueUSD))
	}

	adjusted := intent
	adjusted.Quantity = qty
	adjusted.EstimatedValueBase = notional
	adjusted.EstimatedValueUSD = notionalUSD

	return Result{Intent: adjusted, Accepted: true}
}

func reject(intent domain.TradeIntent, reason domain.RejectionReason, detail string) Result {
	return Result{Intent: intent, Reason: reason, Detail: detail}
}

// FloorToStep rounds qty down to an integer multiple of step. A zero step
// leaves the quantity untouched. Mod keeps the computation exact, unlike a
// precision-bounded division.
func FloorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Sub(qty.Mod(step))
}
