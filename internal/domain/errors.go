package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrRunInProgress is returned when a rebalance is requested while
	// another run holds the execution lock.
	ErrRunInProgress = errors.New("a rebalance run is already in progress")

	// ErrEmptyAllocations is returned when no target allocations are
	// configured.
	ErrEmptyAllocations = errors.New("no target allocations configured")
)

// RejectionReason explains why the validator refused a trade intent.
type RejectionReason string

const (
	RejectBelowMinQuantity    RejectionReason = "BELOW_MIN_QUANTITY"
	RejectBelowMinNotional    RejectionReason = "BELOW_MIN_NOTIONAL"
	RejectInsufficientBalance RejectionReason = "INSUFFICIENT_BALANCE"
	RejectMissingSymbolRule   RejectionReason = "MISSING_SYMBOL_RULE"
)

// DataSourceError marks a failed upstream fetch. Any single upstream failure
// aborts the whole snapshot, so the source name is carried for diagnostics.
type DataSourceError struct {
	Source string // "binance" or "coinmarketcap"
	Op     string // the upstream operation, e.g. "get account balances"
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s: failed to %s: %v", e.Source, e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// InvalidCredentialsError marks an upstream rejection of the configured API
// keys. Never retried.
type InvalidCredentialsError struct {
	Source string
	Code   int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("%s rejected the configured API credentials (code %d)", e.Source, e.Code)
}

// IsInvalidCredentials reports whether err wraps an InvalidCredentialsError.
func IsInvalidCredentials(err error) bool {
	var ice *InvalidCredentialsError
	return errors.As(err, &ice)
}

// AllocationError reports a negative target weight.
type AllocationError struct {
	Asset  string
	Weight decimal.Decimal
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("invalid target weight %s for %s: weights must be non-negative", e.Weight, e.Asset)
}

// WeightSumError reports target weights that do not sum to 1.0.
type WeightSumError struct {
	Sum decimal.Decimal
}

func (e *WeightSumError) Error() string {
	return fmt.Sprintf("target weights sum to %s, expected 1.0 within tolerance %s", e.Sum, WeightSumTolerance)
}
