package planner

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snapshot(balances map[string]string, prices map[string]string) *domain.Snapshot {
	snap := &domain.Snapshot{
		Prices:    map[string]decimal.Decimal{},
		FetchedAt: time.Now(),
	}
	for asset, qty := range balances {
		snap.Balances = append(snap.Balances, domain.AssetBalance{
			Asset: asset,
			Free:  dec(qty),
		})
	}
	for symbol, price := range prices {
		snap.Prices[symbol] = dec(price)
	}
	return snap
}

func eligibleSet(assets ...string) domain.EligibleSet {
	e := make(domain.EligibleSet)
	for _, a := range assets {
		e[a] = struct{}{}
	}
	return e
}

func defaultParams(targets map[string]string) Params {
	t := domain.TargetAllocations{}
	for k, v := range targets {
		t[k] = dec(v)
	}
	return Params{
		Targets:          t,
		BasePair:         "USDT",
		MinTradeValueUSD: dec("10"),
		TradeFeePct:      decimal.Zero,
	}
}

// TestFiftyFiftyRebalance tests the canonical two-asset case: BTC 1.0 and
// USDT 5000 at 50000 with equal weights must produce exactly one SELL of
// 0.45 BTC.
func TestFiftyFiftyRebalance(t *testing.T) {
	snap := snapshot(
		map[string]string{"BTC": "1.0", "USDT": "5000"},
		map[string]string{"BTCUSDT": "50000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.5", "USDT": "0.5"})

	plan, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet("BTC"), params)
	require.NoError(t, err)

	require.Len(t, plan.Intents, 1)
	intent := plan.Intents[0]
	assert.Equal(t, domain.SideSell, intent.Side)
	assert.Equal(t, "BTCUSDT", intent.Symbol)
	assert.True(t, intent.Quantity.Equal(dec("0.45")), "got %s", intent.Quantity)
	assert.True(t, plan.TotalValueBase.Equal(dec("55000")))
}

// TestRenormalizationOverEligibleOnly tests that weights of ineligible assets
// vanish from the divisor instead of being redistributed.
func TestRenormalizationOverEligibleOnly(t *testing.T) {
	// ETH is targeted but ineligible (not held). Eligible weight is
	// BTC 0.4 + USDT 0.4 = 0.8, so BTC's target value is
	// 55000 * 0.4/0.8 = 27500, same sell as the 50/50 case.
	snap := snapshot(
		map[string]string{"BTC": "1.0", "USDT": "5000"},
		map[string]string{"BTCUSDT": "50000", "ETHUSDT": "3000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.4", "ETH": "0.2", "USDT": "0.4"})

	plan, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet("BTC"), params)
	require.NoError(t, err)

	require.Len(t, plan.Intents, 1)
	assert.True(t, plan.Intents[0].Quantity.Equal(dec("0.45")), "got %s", plan.Intents[0].Quantity)
}

// TestSellsBeforeBuys tests intent ordering.
func TestSellsBeforeBuys(t *testing.T) {
	snap := snapshot(
		map[string]string{"BTC": "1.0", "ETH": "1.0", "USDT": "0"},
		map[string]string{"BTCUSDT": "50000", "ETHUSDT": "2000"},
	)
	// BTC is heavily overweight, ETH heavily underweight.
	params := defaultParams(map[string]string{"BTC": "0.5", "ETH": "0.5"})

	plan, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet("BTC", "ETH"), params)
	require.NoError(t, err)

	require.Len(t, plan.Intents, 2)
	assert.Equal(t, domain.SideSell, plan.Intents[0].Side)
	assert.Equal(t, "BTC", plan.Intents[0].Asset)
	assert.Equal(t, domain.SideBuy, plan.Intents[1].Side)
	assert.Equal(t, "ETH", plan.Intents[1].Asset)
}

// TestMinTradeValueFloor tests that deviations below the floor produce no
// intent.
func TestMinTradeValueFloor(t *testing.T) {
	// Deviation is 5 USDT, below the 10 USDT floor.
	snap := snapshot(
		map[string]string{"BTC": "0.0001", "USDT": "10000"},
		map[string]string{"BTCUSDT": "50000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.0005", "USDT": "0.9995"})

	plan, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet("BTC"), params)
	require.NoError(t, err)
	assert.Empty(t, plan.Intents)
}

// TestIdempotence tests that applying the projected balances and re-planning
// yields no further intents (with zero fees).
func TestIdempotence(t *testing.T) {
	snap := snapshot(
		map[string]string{"BTC": "1.0", "ETH": "10", "USDT": "5000"},
		map[string]string{"BTCUSDT": "50000", "ETHUSDT": "3000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.4", "ETH": "0.3", "USDT": "0.3"})
	p := New(zerolog.Nop())

	plan, err := p.BuildPlan(snap, eligibleSet("BTC", "ETH"), params)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Intents)

	// Rebuild the snapshot from the projected balances.
	next := &domain.Snapshot{Prices: snap.Prices, FetchedAt: time.Now()}
	for asset, pb := range plan.ProjectedBalances {
		next.Balances = append(next.Balances, domain.AssetBalance{Asset: asset, Free: pb.Quantity})
	}

	replan, err := p.BuildPlan(next, eligibleSet("BTC", "ETH"), params)
	require.NoError(t, err)
	assert.Empty(t, replan.Intents, "a balanced portfolio must produce no trades")
}

// TestEmptyEligibleSet tests that no intents are derived when nothing is
// eligible.
func TestEmptyEligibleSet(t *testing.T) {
	snap := snapshot(
		map[string]string{"USDT": "10000"},
		map[string]string{"BTCUSDT": "50000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.5", "USDT": "0.5"})

	plan, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet(), params)
	require.NoError(t, err)
	assert.Empty(t, plan.Intents)
	assert.True(t, plan.TotalValueBase.Equal(dec("10000")))
}

// TestInvalidTargetsRejected tests the defensive weight-sum check.
func TestInvalidTargetsRejected(t *testing.T) {
	snap := snapshot(
		map[string]string{"BTC": "1.0"},
		map[string]string{"BTCUSDT": "50000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.5", "USDT": "0.2"})

	_, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet("BTC"), params)
	require.Error(t, err)
}

// TestFeeEstimation tests fee accumulation on the plan.
func TestFeeEstimation(t *testing.T) {
	snap := snapshot(
		map[string]string{"BTC": "1.0", "USDT": "5000"},
		map[string]string{"BTCUSDT": "50000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.5", "USDT": "0.5"})
	params.TradeFeePct = dec("0.001")

	plan, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet("BTC"), params)
	require.NoError(t, err)

	require.Len(t, plan.Intents, 1)
	// 22500 USDT notional at 0.1% fee
	assert.True(t, plan.EstimatedFeesUSD.Equal(dec("22.5")), "got %s", plan.EstimatedFeesUSD)
}

// TestProjectedBalances tests the post-trade simulation.
func TestProjectedBalances(t *testing.T) {
	snap := snapshot(
		map[string]string{"BTC": "1.0", "USDT": "5000"},
		map[string]string{"BTCUSDT": "50000"},
	)
	params := defaultParams(map[string]string{"BTC": "0.5", "USDT": "0.5"})

	plan, err := New(zerolog.Nop()).BuildPlan(snap, eligibleSet("BTC"), params)
	require.NoError(t, err)

	btc := plan.ProjectedBalances["BTC"]
	usdt := plan.ProjectedBalances["USDT"]
	assert.True(t, btc.Quantity.Equal(dec("0.55")), "got %s", btc.Quantity)
	assert.True(t, usdt.Quantity.Equal(dec("27500")), "got %s", usdt.Quantity)
	require.NotNil(t, btc.ValueUSD)
	assert.True(t, btc.ValueUSD.Equal(dec("27500")))
}
