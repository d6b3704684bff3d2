package consensus

import (
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// BacktestReport compares the weighted consensus against a simple majority
// of traders and against following the single highest weighted trader.
type BacktestReport struct {
	Markets             int     `json:"markets" yaml:"markets"`
	WeightedCorrect     int     `json:"weighted_correct" yaml:"weighted_correct"`
	WeightedAccuracy    float64 `json:"weighted_accuracy" yaml:"weighted_accuracy"`
	SimpleCorrect       int     `json:"simple_correct" yaml:"simple_correct"`
	SimpleAccuracy      float64 `json:"simple_accuracy" yaml:"simple_accuracy"`
	TopTraderCorrect    int     `json:"top_trader_correct" yaml:"top_trader_correct"`
	TopTraderAccuracy   float64 `json:"top_trader_accuracy" yaml:"top_trader_accuracy"`
	ImprovementVsSimple float64 `json:"improvement_vs_simple" yaml:"improvement_vs_simple"`
	ImprovementVsTop    float64 `json:"improvement_vs_top" yaml:"improvement_vs_top"`
}

// Backtest replays every resolved market in the snapshot. Nothing is cached
// between calls.
func (p *Predictor) Backtest(snap *snapshot.Snapshot) BacktestReport {
	r := p.backtest(snap, snap.ResolvedMarkets())

	log.Debug().
		Int("markets", r.Markets).
		Float64("weighted_accuracy", r.WeightedAccuracy).
		Float64("simple_accuracy", r.SimpleAccuracy).
		Float64("top_trader_accuracy", r.TopTraderAccuracy).
		Msg("Backtest complete")

	return r
}

// BacktestByCategory replays resolved markets separately per category.
// Categories with no scoreable market are left out.
func (p *Predictor) BacktestByCategory(snap *snapshot.Snapshot) map[string]BacktestReport {
	grouped := make(map[string][]types.Market)
	for _, m := range snap.ResolvedMarkets() {
		grouped[m.Category] = append(grouped[m.Category], m)
	}

	out := make(map[string]BacktestReport, len(grouped))
	for category, markets := range grouped {
		if r := p.backtest(snap, markets); r.Markets > 0 {
			out[category] = r
		}
	}
	return out
}

func (p *Predictor) backtest(snap *snapshot.Snapshot, markets []types.Market) BacktestReport {
	var r BacktestReport
	for _, m := range markets {
		res := snap.Resolution(m.ID)
		trades := snap.TradesForMarket(m.ID)

		votes, outcomes, _ := p.tally(m.Category, trades)
		if len(votes) == 0 {
			continue
		}
		r.Markets++

		weighted := p.Predict(m, trades)
		if res.Wins(weighted.PredictedOutcome) {
			r.WeightedCorrect++
		}
		if res.Wins(simpleMajority(outcomes)) {
			r.SimpleCorrect++
		}
		if res.Wins(topTrader(votes, outcomes)) {
			r.TopTraderCorrect++
		}
	}

	if r.Markets > 0 {
		n := float64(r.Markets)
		r.WeightedAccuracy = float64(r.WeightedCorrect) / n * 100
		r.SimpleAccuracy = float64(r.SimpleCorrect) / n * 100
		r.TopTraderAccuracy = float64(r.TopTraderCorrect) / n * 100
	}
	r.ImprovementVsSimple = r.WeightedAccuracy - r.SimpleAccuracy
	r.ImprovementVsTop = r.WeightedAccuracy - r.TopTraderAccuracy
	return r
}

// simpleMajority picks the outcome held by the most traders, first seen on ties.
func simpleMajority(outcomes []OutcomeWeight) string {
	best := -1
	for i, o := range outcomes {
		if best < 0 || o.Traders > outcomes[best].Traders {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return outcomes[best].Outcome
}

// topTrader returns the label of the outcome held by the highest weighted trader.
func topTrader(votes []vote, outcomes []OutcomeWeight) string {
	ranked := byWeight(votes)
	if len(ranked) == 0 {
		return ""
	}
	for _, o := range outcomes {
		if types.OutcomeKey(o.Outcome) == ranked[0].key {
			return o.Outcome
		}
	}
	return ""
}
