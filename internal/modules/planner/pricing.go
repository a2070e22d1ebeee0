package planner

import "github.com/shopspring/decimal"

// Stablecoins treated as 1:1 with USD for valuation purposes.
var stablecoins = map[string]bool{
	"USDT": true,
	"BUSD": true,
	"USDC": true,
	"TUSD": true,
}

// stableOrder is the preference order when probing for a quoted pair.
var stableOrder = []string{"USDT", "BUSD", "USDC", "TUSD"}

var one = decimal.NewFromInt(1)

// Rate returns the price of one unit of from denominated in to, resolving
// direct pairs, inverse pairs, and stablecoin equivalence.
func Rate(prices map[string]decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	if from == to {
		return one, true
	}

	if p, ok := prices[from+to]; ok && p.IsPositive() {
		return p, true
	}

	if p, ok := prices[to+from]; ok && p.IsPositive() {
		return one.Div(p), true
	}

	if stablecoins[from] && stablecoins[to] {
		return one, true
	}

	return decimal.Zero, false
}

// USDRate returns the USD price of one unit of asset, probing stablecoin
// quoted pairs in preference order.
func USDRate(prices map[string]decimal.Decimal, asset string) (decimal.Decimal, bool) {
	if stablecoins[asset] {
		return one, true
	}

	for _, stable := range stableOrder {
		if p, ok := prices[asset+stable]; ok && p.IsPositive() {
			return p, true
		}
	}

	for _, stable := range stableOrder {
		if p, ok := prices[stable+asset]; ok && p.IsPositive() {
			return one.Div(p), true
		}
	}

	return decimal.Zero, false
}
