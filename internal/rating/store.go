package rating

import (
	"sort"
	"time"
)

// GlobalCategory scopes ratings that ignore market categories.
const GlobalCategory = "global"

// Key identifies one rating: a trader within a category (or GlobalCategory).
type Key struct {
	Trader   string
	Category string
}

// HistoryEntry records one rating update.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"` // zero when the trade had no usable timestamp
	MarketID  string    `json:"market_id" yaml:"market_id"`
	Old       float64   `json:"old" yaml:"old"`
	New       float64   `json:"new" yaml:"new"`
	Expected  float64   `json:"expected" yaml:"expected"`
	Actual    float64   `json:"actual" yaml:"actual"`
}

// Change is the rating delta of the entry.
func (h HistoryEntry) Change() float64 {
	return h.New - h.Old
}

// Record is the stored state of one rating.
type Record struct {
	Value           float64
	Updates         int
	ResolvedMarkets int
	History         []HistoryEntry

	markets map[string]bool
}

// Wins counts history entries with a winning actual score.
func (r Record) Wins() int {
	wins := 0
	for _, h := range r.History {
		if h.Actual == 1 {
			wins++
		}
	}
	return wins
}

// Store keeps ratings keyed by (trader, category). Reads never create
// entries; only Engine updates do.
type Store struct {
	defaultRating float64
	records       map[Key]*Record
	byTrader      map[string][]string
}

func NewStore(defaultRating float64) *Store {
	return &Store{
		defaultRating: defaultRating,
		records:       make(map[Key]*Record),
		byTrader:      make(map[string][]string),
	}
}

// Get returns a copy of the record and whether it exists.
func (s *Store) Get(trader, category string) (Record, bool) {
	rec, ok := s.records[Key{Trader: trader, Category: category}]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// GetOrDefault returns the current value, or the default rating when the
// trader has no history in the category.
func (s *Store) GetOrDefault(trader, category string) float64 {
	if rec, ok := s.records[Key{Trader: trader, Category: category}]; ok {
		return rec.Value
	}
	return s.defaultRating
}

func (s *Store) Default() float64 {
	return s.defaultRating
}

// Categories returns the categories the trader has ratings in, sorted.
func (s *Store) Categories(trader string) []string {
	return append([]string(nil), s.byTrader[trader]...)
}

// Traders returns every trader with at least one rating, sorted.
func (s *Store) Traders() []string {
	out := make([]string, 0, len(s.byTrader))
	for trader := range s.byTrader {
		out = append(out, trader)
	}
	sort.Strings(out)
	return out
}

// Len is the number of stored ratings.
func (s *Store) Len() int {
	return len(s.records)
}

func (s *Store) apply(key Key, entry HistoryEntry) {
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{markets: make(map[string]bool)}
		s.records[key] = rec

		cats := append(s.byTrader[key.Trader], key.Category)
		sort.Strings(cats)
		s.byTrader[key.Trader] = cats
	}

	rec.Value = entry.New
	rec.Updates++
	rec.History = append(rec.History, entry)
	if entry.MarketID != "" && !rec.markets[entry.MarketID] {
		rec.markets[entry.MarketID] = true
		rec.ResolvedMarkets++
	}
}
