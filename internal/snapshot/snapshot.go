// Package snapshot holds the in-memory view of the trade store that a single
// analysis run works from. It is built once and read-only afterwards, so the
// analysis packages can share it across goroutines.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/storage"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// DefaultCategory is used for markets that arrive without a category label.
const DefaultCategory = "Other"

type Snapshot struct {
	markets     map[string]types.Market
	byTrader    map[string][]types.Trade
	byMarket    map[string][]types.Trade
	tracked     []string
	traders     []string
	firstTrade  map[string]time.Time
	tradeCount  int
	parseErrors int
	latest      time.Time
}

// New builds a snapshot from already-fetched data. Trades for markets missing
// from markets get a market record synthesized from the trade itself. A nil
// tracked list means every trader that has trades.
func New(markets []types.Market, trades []types.Trade, tracked []string) *Snapshot {
	s := &Snapshot{
		markets:    make(map[string]types.Market, len(markets)),
		byTrader:   make(map[string][]types.Trade),
		byMarket:   make(map[string][]types.Trade),
		firstTrade: make(map[string]time.Time),
	}

	for _, m := range markets {
		if m.Category == "" {
			m.Category = DefaultCategory
		}
		s.markets[m.ID] = m
	}

	seen := make(map[string]bool, len(trades))
	for _, t := range trades {
		if t.ID != "" {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
		}

		if _, ok := s.markets[t.MarketID]; !ok {
			category := t.Category
			if category == "" {
				category = DefaultCategory
			}
			s.markets[t.MarketID] = types.Market{ID: t.MarketID, Title: t.MarketTitle, Category: category}
		}
		t.Category = s.markets[t.MarketID].Category

		s.byTrader[t.Trader] = append(s.byTrader[t.Trader], t)
		s.byMarket[t.MarketID] = append(s.byMarket[t.MarketID], t)
		s.tradeCount++

		if !t.HasTimestamp() {
			s.parseErrors++
			continue
		}
		if first, ok := s.firstTrade[t.MarketID]; !ok || t.Timestamp.Before(first) {
			s.firstTrade[t.MarketID] = t.Timestamp
		}
		if t.Timestamp.After(s.latest) {
			s.latest = t.Timestamp
		}
	}

	for trader := range s.byTrader {
		types.SortByTime(s.byTrader[trader])
		s.traders = append(s.traders, trader)
	}
	for market := range s.byMarket {
		types.SortByTime(s.byMarket[market])
	}
	sort.Strings(s.traders)

	if tracked == nil {
		s.tracked = append([]string(nil), s.traders...)
	} else {
		s.tracked = dedupe(tracked)
	}

	return s
}

// Load reads everything a run needs from the store. Resolution lookups that
// fail are logged and the market is treated as unresolved.
func Load(ctx context.Context, store storage.TradeStore) (*Snapshot, error) {
	started := time.Now()

	tracked, err := store.TrackedTraders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked traders: %w", err)
	}
	// An empty watchlist means nobody is tracked, not everybody.
	if tracked == nil {
		tracked = []string{}
	}

	markets, err := store.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load markets: %w", err)
	}

	var trades []types.Trade
	known := make(map[string]bool, len(markets))
	for _, m := range markets {
		known[m.ID] = true
		marketTrades, err := store.TradesForMarket(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load trades for market %s: %w", m.ID, err)
		}
		trades = append(trades, marketTrades...)
	}

	// Tracked traders may hold positions on markets the store never listed.
	for _, trader := range tracked {
		traderTrades, err := store.TradesForTrader(ctx, trader)
		if err != nil {
			return nil, fmt.Errorf("failed to load trades for trader %s: %w", trader, err)
		}
		for _, t := range traderTrades {
			if known[t.MarketID] {
				continue
			}
			known[t.MarketID] = true
			markets = append(markets, types.Market{ID: t.MarketID, Title: t.MarketTitle, Category: t.Category})
			marketTrades, err := store.TradesForMarket(ctx, t.MarketID)
			if err != nil {
				return nil, fmt.Errorf("failed to load trades for market %s: %w", t.MarketID, err)
			}
			trades = append(trades, marketTrades...)
		}
	}

	for i := range markets {
		res, err := store.MarketResolution(ctx, markets[i].ID)
		if err != nil {
			log.Warn().Err(err).Str("market", markets[i].ID).Msg("Resolution lookup failed, treating market as unresolved")
			continue
		}
		markets[i].Resolved = res.Resolved
		markets[i].WinningOutcome = res.WinningOutcome
	}

	snap := New(markets, trades, tracked)

	log.Info().
		Int("markets", len(snap.markets)).
		Int("trades", snap.tradeCount).
		Int("tracked", len(snap.tracked)).
		Int("parse_errors", snap.parseErrors).
		Dur("elapsed", time.Since(started)).
		Msg("Loaded trade snapshot")

	return snap, nil
}

// Tracked returns the trader universe for correlation and copy analysis.
func (s *Snapshot) Tracked() []string {
	return s.tracked
}

// Traders returns every trader with at least one trade.
func (s *Snapshot) Traders() []string {
	return s.traders
}

// TradesForTrader returns the trader's trades, oldest first.
func (s *Snapshot) TradesForTrader(trader string) []types.Trade {
	return s.byTrader[trader]
}

// TradesForMarket returns the market's trades, oldest first.
func (s *Snapshot) TradesForMarket(marketID string) []types.Trade {
	return s.byMarket[marketID]
}

func (s *Snapshot) Market(marketID string) (types.Market, bool) {
	m, ok := s.markets[marketID]
	return m, ok
}

func (s *Snapshot) Resolution(marketID string) types.Resolution {
	m, ok := s.markets[marketID]
	if !ok || !m.Resolved || m.WinningOutcome == "" {
		return types.Resolution{}
	}
	return types.Resolution{Resolved: true, WinningOutcome: m.WinningOutcome}
}

// Markets returns all markets ordered by ID.
func (s *Snapshot) Markets() []types.Market {
	out := make([]types.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolvedMarkets returns markets with a winning outcome, ordered by their
// earliest valid trade. Markets without any valid timestamp come last.
func (s *Snapshot) ResolvedMarkets() []types.Market {
	var out []types.Market
	for _, m := range s.markets {
		if s.Resolution(m.ID).Resolved {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, iok := s.firstTrade[out[i].ID]
		tj, jok := s.firstTrade[out[j].ID]
		switch {
		case iok && jok && !ti.Equal(tj):
			return ti.Before(tj)
		case iok != jok:
			return iok
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveMarkets returns unresolved markets that have trades, ordered by ID.
func (s *Snapshot) ActiveMarkets() []types.Market {
	var out []types.Market
	for _, m := range s.Markets() {
		if s.Resolution(m.ID).Resolved || len(s.byMarket[m.ID]) == 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// TradeCount is the number of distinct trades in the snapshot.
func (s *Snapshot) TradeCount() int {
	return s.tradeCount
}

// ParseErrors is the number of trades whose timestamp could not be parsed.
// Those trades are excluded from every time-sensitive computation.
func (s *Snapshot) ParseErrors() int {
	return s.parseErrors
}

// Latest returns the newest valid trade timestamp, or zero.
func (s *Snapshot) Latest() time.Time {
	return s.latest
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
