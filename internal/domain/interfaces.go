package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeClient abstracts the trading venue. The concrete implementation
// lives in internal/clients/binance.
type ExchangeClient interface {
	// GetBalances returns all assets with a positive free or locked quantity.
	GetBalances(ctx context.Context) ([]AssetBalance, error)

	// GetAllPrices returns last prices keyed by symbol, e.g. "BTCUSDT".
	GetAllPrices(ctx context.Context) (map[string]decimal.Decimal, error)

	// GetSymbolRules returns the trading constraints for the given symbols.
	// Symbols unknown to the exchange are absent from the result.
	GetSymbolRules(ctx context.Context, symbols []string) (map[string]SymbolRule, error)

	// Ping verifies connectivity and credential validity.
	Ping(ctx context.Context) error
}

// RankingProvider supplies the market-cap ranking used by the eligibility
// filter. The concrete implementation lives in internal/clients/cmc.
type RankingProvider interface {
	// GetTopRanked returns asset symbols ordered best rank first.
	GetTopRanked(ctx context.Context, limit int) ([]string, error)

	// Ping verifies connectivity and credential validity.
	Ping(ctx context.Context) error
}

// OrderSubmitter places a single market order and returns an order id.
// Two implementations exist: one submits real orders to the exchange, the
// other simulates fills and returns synthetic ids. The orchestrator is
// oblivious to which it holds.
type OrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, symbol string, side TradeSide, quantity decimal.Decimal) (orderID string, err error)
}

// RunStore persists finalized run records. Records are append-only; there is
// no update or delete operation.
type RunStore interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
}
