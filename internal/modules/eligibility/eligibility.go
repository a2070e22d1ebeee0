// Package eligibility decides which assets a rebalance run may trade.
package eligibility

import (
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

// Filter returns the set of tradeable assets. An asset is eligible when it is
// held in positive quantity, has a positive target weight, and sits within
// the top maxRank of the market-cap ranking.
//
// The base pair is never a member: it is the settlement leg of every trade,
// so it is handled implicitly by the planner and never traded directly.
func Filter(
	balances []domain.AssetBalance,
	targets domain.TargetAllocations,
	ranked []string,
	maxRank int,
	basePair string,
) domain.EligibleSet {
	rankOf := make(map[string]int, len(ranked))
	for i, symbol := range ranked {
		if _, seen := rankOf[symbol]; !seen {
			rankOf[symbol] = i + 1
		}
	}

	eligible := make(domain.EligibleSet)
	for _, b := range balances {
		if b.Asset == basePair {
			continue
		}

		held := b.Free.Add(b.Locked)
		if !held.IsPositive() {
			continue
		}

		weight, ok := targets[b.Asset]
		if !ok || !weight.IsPositive() {
			continue
		}

		rank, ok := rankOf[b.Asset]
		if !ok || rank > maxRank {
			continue
		}

		eligible[b.Asset] = struct{}{}
	}

	return eligible
}
