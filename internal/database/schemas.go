package database

// Embedded schemas, one per database. All statements are idempotent so that
// Migrate can run on every startup.
var schemas = map[string]string{
	"config":      configSchema,
	"history":     historySchema,
	"client_data": clientDataSchema,
}

const configSchema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

const historySchema = `
CREATE TABLE IF NOT EXISTS rebalance_runs (
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
);

CREATE INDEX IF NOT EXISTS idx_rebalance_runs_started_at
    ON rebalance_runs(started_at DESC);
`

const clientDataSchema = `
CREATE TABLE IF NOT EXISTS exchange_info (
    cache_key TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cmc_listings (
    cache_key TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);
`
