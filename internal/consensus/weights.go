package consensus

import "github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/rating"

// Weigher turns a trader into a vote weight for a market in the given
// category. The bool reports whether a specialist boost was applied.
type Weigher interface {
	Weight(trader, category string) (float64, bool)
}

// GlobalWeights weighs every vote by the trader's headline rating.
type GlobalWeights struct {
	Ratings *rating.Engine
}

func (w GlobalWeights) Weight(trader, _ string) (float64, bool) {
	return w.Ratings.Rating(trader), false
}

// SpecialistWeights weighs votes by category rating and boosts traders whose
// category rating clearly beats their overall rating.
type SpecialistWeights struct {
	Ratings    *rating.Engine
	Boost      float64
	MarginPct  float64
	MinMarkets int
}

// NewSpecialistWeights takes its boost parameters from cfg.
func NewSpecialistWeights(ratings *rating.Engine, cfg Config) SpecialistWeights {
	return SpecialistWeights{
		Ratings:    ratings,
		Boost:      cfg.SpecialistBoost,
		MarginPct:  cfg.SpecialistMarginPct,
		MinMarkets: cfg.SpecialistMinMarkets,
	}
}

func (w SpecialistWeights) Weight(trader, category string) (float64, bool) {
	base := w.Ratings.CategoryRating(trader, category)
	if w.Ratings.IsSpecialist(trader, category, w.MarginPct, w.MinMarkets) {
		return base * w.Boost, true
	}
	return base, false
}
