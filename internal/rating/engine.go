// Package rating computes ELO-style skill ratings for traders from resolved
// markets. Each resolved market is treated as a contest between the traders
// who held the winning outcome and those who did not.
package rating

import (
	"math"
	"sort"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DefaultRating float64 `yaml:"default_rating"`
	KFactor       float64 `yaml:"k_factor"`
	// BetDivisor and BetCap turn a bet amount into a K multiplier:
	// min(bet/BetDivisor, BetCap).
	BetDivisor float64 `yaml:"bet_divisor"`
	BetCap     float64 `yaml:"bet_cap"`

	EstablishedMarkets int     `yaml:"established_markets"`
	EmergingMarkets    int     `yaml:"emerging_markets"`
	SpecialtyBand      float64 `yaml:"specialty_band"`
}

func DefaultConfig() Config {
	return Config{
		DefaultRating:      1500,
		KFactor:            32,
		BetDivisor:         100,
		BetCap:             2,
		EstablishedMarkets: 10,
		EmergingMarkets:    5,
		SpecialtyBand:      100,
	}
}

// DifficultyFunc returns the K multiplier for a market. The default is 1.
type DifficultyFunc func(market types.Market, trades []types.Trade) float64

// Update is the input of a single rating update.
type Update struct {
	MarketID   string
	Actual     float64 // 1 win, 0 loss
	Opponent   float64
	BetWeight  float64
	Difficulty float64
	Timestamp  time.Time
}

type Engine struct {
	cfg        Config
	store      *Store
	category   bool
	difficulty DifficultyFunc
}

// NewGlobal returns an engine keeping one rating per trader.
func NewGlobal(cfg Config) *Engine {
	return &Engine{cfg: cfg, store: NewStore(cfg.DefaultRating)}
}

// NewCategory returns an engine keeping one rating per (trader, category).
func NewCategory(cfg Config) *Engine {
	return &Engine{cfg: cfg, store: NewStore(cfg.DefaultRating), category: true}
}

func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) IsCategory() bool {
	return e.category
}

func (e *Engine) SetDifficulty(fn DifficultyFunc) {
	e.difficulty = fn
}

// ExpectedScore is the probability that a player rated a beats one rated b.
func ExpectedScore(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// NormalizeBetSize caps the influence of a single large bet.
func (e *Engine) NormalizeBetSize(bet float64) float64 {
	if e.cfg.BetDivisor <= 0 {
		return 1
	}
	w := bet / e.cfg.BetDivisor
	if w < 0 {
		return 0
	}
	return math.Min(w, e.cfg.BetCap)
}

// UpdateRating applies new = old + K·bet·difficulty·(actual − expected),
// records the history entry and returns the new rating.
func (e *Engine) UpdateRating(key Key, u Update) float64 {
	old := e.store.GetOrDefault(key.Trader, key.Category)
	expected := ExpectedScore(old, u.Opponent)
	k := e.cfg.KFactor * u.BetWeight * u.Difficulty
	updated := old + k*(u.Actual-expected)

	e.store.apply(key, HistoryEntry{
		Timestamp: u.Timestamp,
		MarketID:  u.MarketID,
		Old:       old,
		New:       updated,
		Expected:  expected,
		Actual:    u.Actual,
	})

	return updated
}

// scope returns the category a market's updates are recorded under.
func (e *Engine) scope(market types.Market) string {
	if !e.category {
		return GlobalCategory
	}
	if market.Category == "" {
		return snapshot.DefaultCategory
	}
	return market.Category
}

// ProcessMarket rates every trade on a resolved market and returns the number
// of updates. Opponent averages come from ratings before any update in this
// market. A market with no winners or no losers is skipped.
func (e *Engine) ProcessMarket(market types.Market, trades []types.Trade, res types.Resolution) int {
	if !res.Resolved {
		return 0
	}

	var winners, losers []types.Trade
	for _, t := range trades {
		if t.Trader == "" {
			continue
		}
		if res.Wins(t.Outcome) {
			winners = append(winners, t)
		} else {
			losers = append(losers, t)
		}
	}
	if len(winners) == 0 || len(losers) == 0 {
		return 0
	}

	category := e.scope(market)
	avgWinner := e.averageRating(winners, category)
	avgLoser := e.averageRating(losers, category)

	difficulty := 1.0
	if e.difficulty != nil {
		difficulty = e.difficulty(market, trades)
	}

	for _, t := range winners {
		e.UpdateRating(Key{Trader: t.Trader, Category: category}, Update{
			MarketID:   market.ID,
			Actual:     1,
			Opponent:   avgLoser,
			BetWeight:  e.NormalizeBetSize(t.BetSize()),
			Difficulty: difficulty,
			Timestamp:  t.Timestamp,
		})
	}
	for _, t := range losers {
		e.UpdateRating(Key{Trader: t.Trader, Category: category}, Update{
			MarketID:   market.ID,
			Actual:     0,
			Opponent:   avgWinner,
			BetWeight:  e.NormalizeBetSize(t.BetSize()),
			Difficulty: difficulty,
			Timestamp:  t.Timestamp,
		})
	}

	return len(winners) + len(losers)
}

// averageRating is the mean current rating of the distinct traders in trades.
func (e *Engine) averageRating(trades []types.Trade, category string) float64 {
	seen := make(map[string]bool, len(trades))
	var sum float64
	for _, t := range trades {
		if seen[t.Trader] {
			continue
		}
		seen[t.Trader] = true
		sum += e.store.GetOrDefault(t.Trader, category)
	}
	return sum / float64(len(seen))
}

// ProcessStats summarizes a Process call.
type ProcessStats struct {
	ResolvedMarkets int `json:"resolved_markets" yaml:"resolved_markets"`
	RatedMarkets    int `json:"rated_markets" yaml:"rated_markets"`
	Updates         int `json:"updates" yaml:"updates"`
}

// Process replays every resolved market in the snapshot in timestamp order.
func (e *Engine) Process(snap *snapshot.Snapshot) ProcessStats {
	var stats ProcessStats
	for _, m := range snap.ResolvedMarkets() {
		stats.ResolvedMarkets++
		n := e.ProcessMarket(m, snap.TradesForMarket(m.ID), snap.Resolution(m.ID))
		if n > 0 {
			stats.RatedMarkets++
			stats.Updates += n
		}
	}

	log.Debug().
		Bool("category", e.category).
		Int("resolved_markets", stats.ResolvedMarkets).
		Int("rated_markets", stats.RatedMarkets).
		Int("updates", stats.Updates).
		Msg("Ratings processed")

	return stats
}

// Rating is the trader's headline rating: the global value, or for a category
// engine the update-weighted mean of the category ratings.
func (e *Engine) Rating(trader string) float64 {
	if e.category {
		return e.Overall(trader)
	}
	return e.store.GetOrDefault(trader, GlobalCategory)
}

// CategoryRating returns the rating used for a market in the given category.
func (e *Engine) CategoryRating(trader, category string) float64 {
	if !e.category {
		return e.store.GetOrDefault(trader, GlobalCategory)
	}
	if category == "" {
		category = snapshot.DefaultCategory
	}
	return e.store.GetOrDefault(trader, category)
}

// Overall is recomputed from the category ratings on every call, weighted by
// the number of updates in each category.
func (e *Engine) Overall(trader string) float64 {
	var total, weighted float64
	for _, cat := range e.store.Categories(trader) {
		rec, _ := e.store.Get(trader, cat)
		total += float64(rec.Updates)
		weighted += rec.Value * float64(rec.Updates)
	}
	if total == 0 {
		return e.store.Default()
	}
	return weighted / total
}

// Change is the rating movement over history entries at or after asOf-window.
// Entries without a timestamp never fall inside a window.
func (e *Engine) Change(trader, category string, asOf time.Time, window time.Duration) float64 {
	rec, ok := e.store.Get(trader, category)
	if !ok {
		return 0
	}

	cutoff := asOf.Add(-window)
	var first, last *HistoryEntry
	for i := range rec.History {
		h := &rec.History[i]
		if h.Timestamp.IsZero() || h.Timestamp.Before(cutoff) {
			continue
		}
		if first == nil {
			first = h
		}
		last = h
	}
	if first == nil {
		return 0
	}
	return last.New - first.Old
}

// Ranking is one row of the rating leaderboard.
type Ranking struct {
	Rank            int     `json:"rank" yaml:"rank"`
	Trader          string  `json:"trader" yaml:"trader"`
	Rating          float64 `json:"rating" yaml:"rating"`
	Change7d        float64 `json:"change_7d" yaml:"change_7d"`
	Change30d       float64 `json:"change_30d" yaml:"change_30d"`
	ResolvedMarkets int     `json:"resolved_markets" yaml:"resolved_markets"`
	Updates         int     `json:"updates" yaml:"updates"`
	WinRate         float64 `json:"win_rate" yaml:"win_rate"`
}

// Rankings lists every rated trader by rating, highest first.
func (e *Engine) Rankings(asOf time.Time) []Ranking {
	const day = 24 * time.Hour

	var rankings []Ranking
	for _, trader := range e.store.Traders() {
		r := Ranking{
			Trader: trader,
			Rating: e.Rating(trader),
		}

		wins := 0
		for _, cat := range e.store.Categories(trader) {
			rec, _ := e.store.Get(trader, cat)
			r.Change7d += e.Change(trader, cat, asOf, 7*day)
			r.Change30d += e.Change(trader, cat, asOf, 30*day)
			r.ResolvedMarkets += rec.ResolvedMarkets
			r.Updates += rec.Updates
			wins += rec.Wins()
		}
		if r.Updates > 0 {
			r.WinRate = float64(wins) / float64(r.Updates) * 100
		}

		rankings = append(rankings, r)
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Rating > rankings[j].Rating
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	return rankings
}
