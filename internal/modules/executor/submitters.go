package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

// OrderPlacer is the slice of the exchange client the live submitter needs.
type OrderPlacer interface {
	CreateMarketOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity decimal.Decimal) (string, error)
}

// OrderTester is the exchange's validation-only endpoint: parameters and
// balances are checked but nothing is placed.
type OrderTester interface {
	TestMarketOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity decimal.Decimal) error
}

// LiveSubmitter places real market orders on the exchange.
type LiveSubmitter struct {
	exchange OrderPlacer
	log      zerolog.Logger
}

// NewLiveSubmitter creates a submitter that places real orders.
func NewLiveSubmitter(exchange OrderPlacer, log zerolog.Logger) *LiveSubmitter {
	return &LiveSubmitter{
		exchange: exchange,
		log:      log.With().Str("component", "live_submitter").Logger(),
	}
}

// SubmitMarketOrder places the order and returns the exchange order id.
func (s *LiveSubmitter) SubmitMarketOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity decimal.Decimal) (string, error) {
	return s.exchange.CreateMarketOrder(ctx, symbol, side, quantity)
}

// DryRunSubmitter simulates fills and returns synthetic order ids. When
// constructed with an OrderTester it additionally round-trips each order
// through the exchange's validation endpoint, so a dry run exercises the
// same parameter checks a live run would.
type DryRunSubmitter struct {
	tester OrderTester // optional
	log    zerolog.Logger
}

// NewDryRunSubmitter creates a simulating submitter. tester may be nil.
func NewDryRunSubmitter(tester OrderTester, log zerolog.Logger) *DryRunSubmitter {
	return &DryRunSubmitter{
		tester: tester,
		log:    log.With().Str("component", "dry_run_submitter").Logger(),
	}
}

// SubmitMarketOrder validates the order if a tester is configured, then
// returns a synthetic id.
func (s *DryRunSubmitter) SubmitMarketOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity decimal.Decimal) (string, error) {
	if s.tester != nil {
		if err := s.tester.TestMarketOrder(ctx, symbol, side, quantity); err != nil {
			return "", err
		}
	}

	orderID := "dry-" + uuid.NewString()
	s.log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("quantity", quantity.String()).
		Str("order_id", orderID).
		Msg("Simulated order")

	return orderID, nil
}
