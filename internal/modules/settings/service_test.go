package settings

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)
	`)
	require.NoError(t, err)

	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	return NewService(repo, zerolog.Nop())
}

// TestDefaults tests that an empty database yields the default settings.
func TestDefaults(t *testing.T) {
	svc := newTestService(t)

	settings, err := svc.GetRebalanceSettings()
	require.NoError(t, err)

	assert.Equal(t, "USDT", settings.BasePair)
	assert.Equal(t, 100, settings.MaxRank)
	assert.True(t, settings.MinTradeValueUSD.Equal(decimal.NewFromInt(10)))
	assert.True(t, settings.DryRun)
	assert.Empty(t, settings.TargetAllocations)
	assert.Empty(t, settings.RebalanceSchedule)
}

// TestRoundTrip tests that stored settings load back identically.
func TestRoundTrip(t *testing.T) {
	svc := newTestService(t)

	in := &RebalanceSettings{
		TargetAllocations: domain.TargetAllocations{
			"BTC":  decimal.RequireFromString("0.5"),
			"USDT": decimal.RequireFromString("0.5"),
		},
		BasePair:          "USDT",
		MaxRank:           50,
		MinTradeValueUSD:  decimal.RequireFromString("25"),
		TradeFeePct:       decimal.RequireFromString("0.00075"),
		DryRun:            false,
		RebalanceSchedule: "0 3 * * *",
	}
	require.NoError(t, svc.UpdateRebalanceSettings(in))

	out, err := svc.GetRebalanceSettings()
	require.NoError(t, err)

	assert.Equal(t, 50, out.MaxRank)
	assert.False(t, out.DryRun)
	assert.Equal(t, "0 3 * * *", out.RebalanceSchedule)
	assert.True(t, out.MinTradeValueUSD.Equal(decimal.RequireFromString("25")))
	assert.True(t, out.TradeFeePct.Equal(decimal.RequireFromString("0.00075")))
	assert.True(t, out.TargetAllocations["BTC"].Equal(decimal.RequireFromString("0.5")))
}

// TestUpdateRejectsBadWeightSum tests that weights not summing to 1.0 are
// rejected on write.
func TestUpdateRejectsBadWeightSum(t *testing.T) {
	svc := newTestService(t)

	err := svc.UpdateRebalanceSettings(&RebalanceSettings{
		TargetAllocations: domain.TargetAllocations{
			"BTC": decimal.RequireFromString("0.5"),
			"ETH": decimal.RequireFromString("0.3"),
		},
		BasePair:         "USDT",
		MaxRank:          100,
		MinTradeValueUSD: decimal.NewFromInt(10),
		TradeFeePct:      decimal.RequireFromString("0.001"),
	})
	require.Error(t, err)

	var sumErr *domain.WeightSumError
	assert.ErrorAs(t, err, &sumErr)
}

// TestUpdateRejectsNegativeWeight tests negative weight rejection.
func TestUpdateRejectsNegativeWeight(t *testing.T) {
	svc := newTestService(t)

	err := svc.UpdateRebalanceSettings(&RebalanceSettings{
		TargetAllocations: domain.TargetAllocations{
			"BTC": decimal.RequireFromString("1.5"),
			"ETH": decimal.RequireFromString("-0.5"),
		},
		BasePair:         "USDT",
		MaxRank:          100,
		MinTradeValueUSD: decimal.NewFromInt(10),
		TradeFeePct:      decimal.RequireFromString("0.001"),
	})
	require.Error(t, err)

	var allocErr *domain.AllocationError
	assert.ErrorAs(t, err, &allocErr)
}

// TestWeightSumTolerance tests that tiny rounding drift is accepted.
func TestWeightSumTolerance(t *testing.T) {
	svc := newTestService(t)

	err := svc.UpdateRebalanceSettings(&RebalanceSettings{
		TargetAllocations: domain.TargetAllocations{
			"BTC": decimal.RequireFromString("0.333"),
			"ETH": decimal.RequireFromString("0.333"),
			"SOL": decimal.RequireFromString("0.333"),
		},
		BasePair:         "USDT",
		MaxRank:          100,
		MinTradeValueUSD: decimal.NewFromInt(10),
		TradeFeePct:      decimal.RequireFromString("0.001"),
	})
	assert.NoError(t, err)
}

// TestRepositoryGetMissing tests that a missing key returns nil, not an error.
func TestRepositoryGetMissing(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	v, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, v)
}

// TestRepositoryUpsert tests insert-then-update behavior.
func TestRepositoryUpsert(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	require.NoError(t, repo.Set("k", "v1"))
	require.NoError(t, repo.Set("k", "v2"))

	v, err := repo.Get("k")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "v2", *v)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
