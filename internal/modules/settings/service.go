package settings

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

// Setting keys stored in config.db.
const (
	KeyTargetAllocations = "target_allocations"
	KeyBasePair          = "base_pair"
	KeyMaxRank           = "max_rank"
	KeyMinTradeValueUSD  = "min_trade_value_usd"
	KeyTradeFeePct       = "trade_fee_pct"
	KeyDryRun            = "dry_run"
	KeyRebalanceSchedule = "rebalance_schedule"
)

// Defaults applied when a key is absent from the database.
var (
	DefaultBasePair         = "USDT"
	DefaultMaxRank          = 100
	DefaultMinTradeValueUSD = decimal.RequireFromString("10")
	DefaultTradeFeePct      = decimal.RequireFromString("0.001")
)

// RebalanceSettings is the typed view of everything the rebalance pipeline
// reads from configuration.
type RebalanceSettings struct {
	TargetAllocations domain.TargetAllocations `json:"target_allocations"`
	BasePair          string                   `json:"base_pair"`
	MaxRank           int                      `json:"max_rank"`
	MinTradeValueUSD  decimal.Decimal          `json:"min_trade_value_usd"`
	TradeFeePct       decimal.Decimal          `json:"trade_fee_pct"`
	DryRun            bool                     `json:"dry_run"`
	RebalanceSchedule string                   `json:"rebalance_schedule"`
}

// Validate checks the settings for internal consistency.
func (s *RebalanceSettings) Validate() error {
	if err := s.TargetAllocations.Validate(); err != nil {
		return err
	}
	if s.BasePair == "" {
		return fmt.Errorf("base pair must not be empty")
	}
	if s.MaxRank <= 0 {
		return fmt.Errorf("max rank must be positive, got %d", s.MaxRank)
	}
	if s.MinTradeValueUSD.IsNegative() {
		return fmt.Errorf("min trade value must be non-negative, got %s", s.MinTradeValueUSD)
	}
	if s.TradeFeePct.IsNegative() || s.TradeFeePct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("trade fee must be in [0, 1), got %s", s.TradeFeePct)
	}
	return nil
}

// Service provides typed access to rebalance settings on top of the
// key/value repository.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new settings service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// GetRebalanceSettings loads the full settings set, applying defaults for
// absent keys.
func (s *Service) GetRebalanceSettings() (*RebalanceSettings, error) {
	out := &RebalanceSettings{
		TargetAllocations: domain.TargetAllocations{},
		BasePair:          DefaultBasePair,
		MaxRank:           DefaultMaxRank,
		MinTradeValueUSD:  DefaultMinTradeValueUSD,
		TradeFeePct:       DefaultTradeFeePct,
		DryRun:            true,
	}

	raw, err := s.repo.Get(KeyTargetAllocations)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if err := json.Unmarshal([]byte(*raw), &out.TargetAllocations); err != nil {
			return nil, fmt.Errorf("failed to parse stored target allocations: %w", err)
		}
	}

	if v, err := s.repo.Get(KeyBasePair); err != nil {
		return nil, err
	} else if v != nil {
		out.BasePair = *v
	}

	if out.MaxRank, err = s.repo.GetInt(KeyMaxRank, DefaultMaxRank); err != nil {
		return nil, err
	}

	if err := s.getDecimal(KeyMinTradeValueUSD, &out.MinTradeValueUSD); err != nil {
		return nil, err
	}
	if err := s.getDecimal(KeyTradeFeePct, &out.TradeFeePct); err != nil {
		return nil, err
	}

	if out.DryRun, err = s.repo.GetBool(KeyDryRun, true); err != nil {
		return nil, err
	}

	if v, err := s.repo.Get(KeyRebalanceSchedule); err != nil {
		return nil, err
	} else if v != nil {
		out.RebalanceSchedule = *v
	}

	return out, nil
}

// UpdateRebalanceSettings validates and persists the full settings set.
func (s *Service) UpdateRebalanceSettings(settings *RebalanceSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	allocJSON, err := json.Marshal(settings.TargetAllocations)
	if err != nil {
		return fmt.Errorf("failed to encode target allocations: %w", err)
	}

	if err := s.repo.Set(KeyTargetAllocations, string(allocJSON)); err != nil {
		return err
	}
	if err := s.repo.Set(KeyBasePair, settings.BasePair); err != nil {
		return err
	}
	if err := s.repo.SetInt(KeyMaxRank, settings.MaxRank); err != nil {
		return err
	}
	if err := s.repo.Set(KeyMinTradeValueUSD, settings.MinTradeValueUSD.String()); err != nil {
		return err
	}
	if err := s.repo.Set(KeyTradeFeePct, settings.TradeFeePct.String()); err != nil {
		return err
	}
	if err := s.repo.SetBool(KeyDryRun, settings.DryRun); err != nil {
		return err
	}
	if err := s.repo.Set(KeyRebalanceSchedule, settings.RebalanceSchedule); err != nil {
		return err
	}

	s.log.Info().
		Int("assets", len(settings.TargetAllocations)).
		Str("base_pair", settings.BasePair).
		Bool("dry_run", settings.DryRun).
		Msg("Settings updated")

	return nil
}

// getDecimal reads a decimal setting into dest, leaving the default in place
// when the key is absent.
func (s *Service) getDecimal(key string, dest *decimal.Decimal) error {
	v, err := s.repo.Get(key)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	parsed, err := decimal.NewFromString(*v)
	if err != nil {
		s.log.Warn().Str("key", key).Str("value", *v).Msg("Failed to parse decimal setting, using default")
		return nil
	}
	*dest = parsed
	return nil
}
