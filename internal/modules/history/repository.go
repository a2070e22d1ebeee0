// Package history persists finalized rebalance run records in history.db.
// The table is append-only: records are written once and never updated.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

// Repository handles run record database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "history").Logger(),
	}
}

// SaveRun appends a finalized run record. The run id is the primary key, so
// saving the same run twice fails rather than silently overwriting history.
func (r *Repository) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}

	var projected interface{}
	if run.ProjectedBalances != nil {
		blob, err := json.Marshal(run.ProjectedBalances)
		if err != nil {
			return fmt.Errorf("failed to encode projected balances: %w", err)
		}
		projected = string(blob)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rebalance_runs (
			run_id, started_at, finished_at, mode, status, summary,
			outcomes, total_value_usd_before, total_value_usd_after,
			total_fees_usd, projected_balances
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix(),
		string(run.Mode),
		string(run.Status),
		run.Summary,
		string(outcomes),
		decimalPtr(run.TotalValueUSDBefore),
		decimalPtr(run.TotalValueUSDAfter),
		run.TotalFeesUSD.String(),
		projected,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}

	r.log.Debug().Str("run_id", run.RunID).Str("status", string(run.Status)).Msg("Run record saved")
	return nil
}

// GetRun retrieves a single run by id. Returns nil if not found.
func (r *Repository) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, mode, status, summary,
		       outcomes, total_value_usd_before, total_value_usd_after,
		       total_fees_usd, projected_balances
		FROM rebalance_runs
		WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recent first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, mode, status, summary,
		       outcomes, total_value_usd_before, total_value_usd_after,
		       total_fees_usd, projected_balances
		FROM rebalance_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*domain.RunRecord, error) {
	var (
		run                 domain.RunRecord
		startedAt, finished int64
		mode, status        string
		outcomesJSON        string
		valueBefore, after  sql.NullString
		feesStr             string
		projectedJSON       sql.NullString
	)

	err := s.Scan(
		&run.RunID, &startedAt, &finished, &mode, &status, &run.Summary,
		&outcomesJSON, &valueBefore, &after, &feesStr, &projectedJSON,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.FinishedAt = time.Unix(finished, 0).UTC()
	run.Mode = domain.RunMode(mode)
	run.Status = domain.RunStatus(status)

	if err := json.Unmarshal([]byte(outcomesJSON), &run.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to decode outcomes for %s: %w", run.RunID, err)
	}

	if run.TotalValueUSDBefore, err = parseNullDecimal(valueBefore); err != nil {
		return nil, err
	}
	if run.TotalValueUSDAfter, err = parseNullDecimal(after); err != nil {
		return nil, err
	}

	if run.TotalFeesUSD, err = decimal.NewFromString(feesStr); err != nil {
		return nil, fmt.Errorf("failed to parse fees for %s: %w", run.RunID, err)
	}

	if projectedJSON.Valid {
		if err := json.Unmarshal([]byte(projectedJSON.String), &run.ProjectedBalances); err != nil {
			return nil, fmt.Errorf("failed to decode projected balances for %s: %w", run.RunID, err)
		}
	}

	return &run, nil
}

func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decimal %q: %w", s.String, err)
	}
	return &d, nil
}
