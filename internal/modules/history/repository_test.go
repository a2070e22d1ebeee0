package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

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
		CREATE TABLE rebalance_runs (
			run_id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			outcomes TEXT NOT NULL DEFAULT '[]',
			total_value_usd_before TEXT,
			total_value_usd_after TEXT,
			total_fees_usd TEXT NOT NULL DEFAULT '0',
			projected_balances TEXT
		)
	`)
	require.NoError(t, err)

	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleRun(id string, startedAt time.Time) *domain.RunRecord {
	before := dec("55000")
	after := dec("54977.5")
	return &domain.RunRecord{
		RunID:      id,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
		Mode:       domain.ModeDryRun,
		Status:     domain.StatusSuccess,
		Summary:    "1 filled, 0 failed, 0 skipped",
		Outcomes: []domain.TradeOutcome{{
			Intent: domain.TradeIntent{
				Asset:    "BTC",
				Symbol:   "BTCUSDT",
				Side:     domain.SideSell,
				Quantity: dec("0.45"),
				Price:    dec("50000"),
			},
			Status:  domain.OutcomeFilled,
			OrderID: "dry-1",
		}},
		TotalValueUSDBefore: &before,
		TotalValueUSDAfter:  &after,
		TotalFeesUSD:        dec("22.5"),
		ProjectedBalances: map[string]domain.ProjectedBalance{
			"BTC": {Quantity: dec("0.55"), ValueInBase: dec("27500")},
		},
	}
}

// TestSaveAndGetRun tests the full round trip of a run record.
func TestSaveAndGetRun(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	in := sampleRun("run-1", time.Now().Truncate(time.Second))
	require.NoError(t, repo.SaveRun(ctx, in))

	out, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, in.RunID, out.RunID)
	assert.Equal(t, domain.StatusSuccess, out.Status)
	assert.Equal(t, domain.ModeDryRun, out.Mode)
	require.Len(t, out.Outcomes, 1)
	assert.Equal(t, "BTCUSDT", out.Outcomes[0].Intent.Symbol)
	assert.True(t, out.Outcomes[0].Intent.Quantity.Equal(dec("0.45")))
	require.NotNil(t, out.TotalValueUSDBefore)
	assert.True(t, out.TotalValueUSDBefore.Equal(dec("55000")))
	assert.True(t, out.TotalFeesUSD.Equal(dec("22.5")))
	require.Contains(t, out.ProjectedBalances, "BTC")
	assert.True(t, out.ProjectedBalances["BTC"].Quantity.Equal(dec("0.55")))
}

// TestGetRunMissing tests that an unknown id returns nil, not an error.
func TestGetRunMissing(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	out, err := repo.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, out)
}

// TestListRunsReverseChronological tests ordering and the limit.
func TestListRunsReverseChronological(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	base := time.Now().Truncate(time.Second).Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, repo.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)

	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].RunID)
	assert.Equal(t, "run-b", runs[1].RunID)
}

// TestSaveRunIsAppendOnly tests that re-saving the same run id fails instead
// of overwriting the stored record.
func TestSaveRunIsAppendOnly(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	run := sampleRun("run-1", time.Now())
	require.NoError(t, repo.SaveRun(ctx, run))

	run.Summary = "tampered"
	err := repo.SaveRun(ctx, run)
	require.Error(t, err)

	stored, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "1 filled, 0 failed, 0 skipped", stored.Summary)
}

// TestSaveRunWithoutUSDValues tests nullable totals.
func TestSaveRunWithoutUSDValues(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()

	run := sampleRun("run-1", time.Now())
	run.TotalValueUSDBefore = nil
	run.TotalValueUSDAfter = nil
	run.ProjectedBalances = nil
	require.NoError(t, repo.SaveRun(ctx, run))

	out, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, out.TotalValueUSDBefore)
	assert.Nil(t, out.TotalValueUSDAfter)
	assert.Nil(t, out.ProjectedBalances)
}
