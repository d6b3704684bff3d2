package types

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Trade sides as stored by ingestion.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade represents a single position change by a trader on a market
type Trade struct {
	ID          string    `json:"id"`
	Trader      string    `json:"trader"`
	MarketID    string    `json:"market_id"`
	MarketTitle string    `json:"market_title"`
	Category    string    `json:"category"`
	Outcome     string    `json:"outcome"` // yes, no, or a named outcome
	Shares      float64   `json:"shares"`
	Price       float64   `json:"price"`
	Side        string    `json:"side"`      // BUY, SELL
	Timestamp   time.Time `json:"timestamp"` // zero when the stored value could not be parsed
}

// BetSize is the notional amount of the trade.
func (t Trade) BetSize() float64 {
	return t.Shares * t.Price
}

// HasTimestamp reports whether the trade carries a usable timestamp.
func (t Trade) HasTimestamp() bool {
	return !t.Timestamp.IsZero()
}

// SortByTime orders trades oldest first. Trades without a timestamp keep
// their relative order at the end.
func SortByTime(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.HasTimestamp() != b.HasTimestamp() {
			return a.HasTimestamp()
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}

// Market represents a binary-outcome prediction market
type Market struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	Resolved       bool   `json:"resolved"`
	WinningOutcome string `json:"winning_outcome,omitempty"`
}

// Resolution is the settlement state of a market. The zero value is unresolved.
type Resolution struct {
	Resolved       bool   `json:"resolved"`
	WinningOutcome string `json:"winning_outcome,omitempty"`
}

// Wins reports whether outcome matches the winning outcome.
func (r Resolution) Wins(outcome string) bool {
	return r.Resolved && SameOutcome(outcome, r.WinningOutcome)
}

// SameOutcome compares outcome labels case-insensitively.
func SameOutcome(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// OutcomeKey normalizes an outcome label for use as a map key.
func OutcomeKey(outcome string) string {
	return strings.ToLower(strings.TrimSpace(outcome))
}

// Event represents an event on the event bus
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`   // analysis_completed, market_resolved
	Source    string          `json:"source"` // analyzer, resolver
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Event types
const (
	EventAnalysisCompleted = "analysis_completed"
	EventMarketResolved    = "market_resolved"
)
