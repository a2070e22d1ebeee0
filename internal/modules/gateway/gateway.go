// Package gateway assembles the portfolio snapshot from the upstream data
// sources. The snapshot is all-or-nothing: if any upstream fails after its
// retry budget, the whole fetch fails and no partial data escapes.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
)

// Service fetches consistent portfolio snapshots.
type Service struct {
	exchange domain.ExchangeClient
	ranking  domain.RankingProvider
	log      zerolog.Logger
}

// NewService creates a new gateway service.
func NewService(exchange domain.ExchangeClient, ranking domain.RankingProvider, log zerolog.Logger) *Service {
	return &Service{
		exchange: exchange,
		ranking:  ranking,
		log:      log.With().Str("service", "gateway").Logger(),
	}
}

// FetchSnapshot pulls balances, prices, the market-cap ranking and the
// trading rules for every candidate symbol. Retry of transient upstream
// failures happens inside the clients; whatever error surfaces here is final
// for this run.
func (s *Service) FetchSnapshot(ctx context.Context, targets domain.TargetAllocations, basePair string, maxRank int) (*domain.Snapshot, error) {
	started := time.Now()

	balances, err := s.exchange.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances: %w", err)
	}

	prices, err := s.exchange.GetAllPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	ranked, err := s.ranking.GetTopRanked(ctx, maxRank)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market-cap ranking: %w", err)
	}

	symbols := candidateSymbols(balances, targets, prices, basePair)
	rules := map[string]domain.SymbolRule{}
	if len(symbols) > 0 {
		rules, err = s.exchange.GetSymbolRules(ctx, symbols)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch trading rules: %w", err)
		}
	}

	s.log.Info().
		Int("assets", len(balances)).
		Int("prices", len(prices)).
		Int("ranked", len(ranked)).
		Int("rules", len(rules)).
		Dur("elapsed", time.Since(started)).
		Msg("Snapshot fetched")

	return &domain.Snapshot{
		Balances:      balances,
		Prices:        prices,
		RankedSymbols: ranked,
		Rules:         rules,
		FetchedAt:     time.Now(),
	}, nil
}

// candidateSymbols lists every symbol a run could conceivably trade: any
// held or targeted asset paired against the base, restricted to pairs the
// exchange actually quotes.
func candidateSymbols(balances []domain.AssetBalance, targets domain.TargetAllocations, prices map[string]decimal.Decimal, basePair string) []string {
	assets := map[string]struct{}{}
	for _, b := range balances {
		assets[b.Asset] = struct{}{}
	}
	for asset := range targets {
		assets[asset] = struct{}{}
	}
	delete(assets, basePair)

	var symbols []string
	for asset := range assets {
		symbol := asset + basePair
		if _, quoted := prices[symbol]; quoted {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}
