// Package consensus turns trader ratings into predictions for open markets and
// measures how well those predictions would have done on resolved ones.
package consensus

import (
	"sort"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// SignalNone is reported when no tier matches.
const SignalNone = "none"

// Tier is one signal band. A prediction matches when its confidence is
// strictly above MinConfidence and at least MinAgree of the TopN highest
// weighted traders hold the predicted outcome. TopN 0 skips the agreement test.
type Tier struct {
	Name          string  `yaml:"name"`
	MinConfidence float64 `yaml:"min_confidence"`
	TopN          int     `yaml:"top_n"`
	MinAgree      int     `yaml:"min_agree"`
}

type Config struct {
	// Tiers are evaluated in order; the first match wins.
	Tiers []Tier `yaml:"tiers"`

	SpecialistBoost      float64 `yaml:"specialist_boost"`
	SpecialistMarginPct  float64 `yaml:"specialist_margin_pct"`
	SpecialistMinMarkets int     `yaml:"specialist_min_markets"`

	// A prediction carries SpecialistConsensus when at least
	// SpecialistQuorumAgree boosted traders back it out of at least
	// SpecialistQuorumTotal boosted traders in the market.
	SpecialistQuorumAgree int `yaml:"specialist_quorum_agree"`
	SpecialistQuorumTotal int `yaml:"specialist_quorum_total"`

	DisagreementTopN int     `yaml:"disagreement_top_n"`
	LargeBet         float64 `yaml:"large_bet"`

	// Disagreement scores below ConsensusBand are a strong consensus,
	// below SplitBand a moderate split, below DisagreementBand high
	// disagreement and anything above maximum uncertainty.
	ConsensusBand    float64 `yaml:"consensus_band"`
	SplitBand        float64 `yaml:"split_band"`
	DisagreementBand float64 `yaml:"disagreement_band"`
}

func DefaultConfig() Config {
	return Config{
		Tiers: []Tier{
			{Name: "strong", MinConfidence: 70, TopN: 10, MinAgree: 7},
			{Name: "moderate", MinConfidence: 50, TopN: 20, MinAgree: 12},
			{Name: "weak", MinConfidence: 30},
		},
		SpecialistBoost:       1.2,
		SpecialistMarginPct:   10,
		SpecialistMinMarkets:  5,
		SpecialistQuorumAgree: 5,
		SpecialistQuorumTotal: 8,
		DisagreementTopN:      20,
		LargeBet:              1000,
		ConsensusBand:         0.30,
		SplitBand:             0.60,
		DisagreementBand:      0.80,
	}
}

type OutcomeWeight struct {
	Outcome string  `json:"outcome" yaml:"outcome"`
	Weight  float64 `json:"weight" yaml:"weight"`
	Traders int     `json:"traders" yaml:"traders"`
}

type Prediction struct {
	MarketID            string          `json:"market_id" yaml:"market_id"`
	MarketTitle         string          `json:"market_title" yaml:"market_title"`
	Category            string          `json:"category" yaml:"category"`
	PredictedOutcome    string          `json:"predicted_outcome" yaml:"predicted_outcome"`
	Confidence          float64         `json:"confidence" yaml:"confidence"`
	ExpectedProbability float64         `json:"expected_probability" yaml:"expected_probability"`
	Signal              string          `json:"signal" yaml:"signal"`
	Outcomes            []OutcomeWeight `json:"outcomes" yaml:"outcomes"`

	// Agreement maps N to how many of the N highest weighted traders hold
	// the predicted outcome, for every N used by a tier.
	Agreement           map[int]int `json:"agreement" yaml:"agreement"`
	TotalTraders        int         `json:"total_traders" yaml:"total_traders"`
	SpecialistVotes     int         `json:"specialist_votes" yaml:"specialist_votes"`
	SpecialistTotal     int         `json:"specialist_total" yaml:"specialist_total"`
	SpecialistConsensus bool        `json:"specialist_consensus" yaml:"specialist_consensus"`
}

type Predictor struct {
	cfg     Config
	weigher Weigher
}

func NewPredictor(cfg Config, weigher Weigher) *Predictor {
	return &Predictor{cfg: cfg, weigher: weigher}
}

// vote is one trader's current stance on a market.
type vote struct {
	trader  string
	key     string
	weight  float64
	boosted bool
}

// positions returns each trader's most recent trade in first-seen trader
// order. Dated trades always win over undated ones.
func positions(trades []types.Trade) []types.Trade {
	index := make(map[string]int)
	var out []types.Trade
	for _, t := range trades {
		if t.Trader == "" {
			continue
		}
		i, ok := index[t.Trader]
		if !ok {
			index[t.Trader] = len(out)
			out = append(out, t)
			continue
		}
		if newer(t, out[i]) {
			out[i] = t
		}
	}
	return out
}

// Backers returns the traders whose current position is outcome, sorted.
func Backers(trades []types.Trade, outcome string) []string {
	var out []string
	for _, t := range positions(trades) {
		if types.SameOutcome(t.Outcome, outcome) {
			out = append(out, t.Trader)
		}
	}
	sort.Strings(out)
	return out
}

func newer(t, than types.Trade) bool {
	switch {
	case t.HasTimestamp() && than.HasTimestamp():
		return !t.Timestamp.Before(than.Timestamp)
	case t.HasTimestamp():
		return true
	case than.HasTimestamp():
		return false
	default:
		return true
	}
}

// tally weighs every current position. Outcome keys are case-insensitive and
// labels keep the first spelling seen.
func (p *Predictor) tally(category string, trades []types.Trade) (votes []vote, outcomes []OutcomeWeight, keys []string) {
	slot := make(map[string]int)
	for _, t := range positions(trades) {
		w, boosted := p.weigher.Weight(t.Trader, category)
		key := types.OutcomeKey(t.Outcome)
		votes = append(votes, vote{trader: t.Trader, key: key, weight: w, boosted: boosted})

		i, ok := slot[key]
		if !ok {
			i = len(outcomes)
			slot[key] = i
			outcomes = append(outcomes, OutcomeWeight{Outcome: t.Outcome})
			keys = append(keys, key)
		}
		outcomes[i].Weight += w
		outcomes[i].Traders++
	}
	return votes, outcomes, keys
}

// byWeight orders votes by weight, highest first, keeping input order on ties.
func byWeight(votes []vote) []vote {
	sorted := append([]vote(nil), votes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].weight > sorted[j].weight })
	return sorted
}

// Predict computes the weighted consensus for one market. A market without
// trades yields a prediction with no outcome and zero confidence.
func (p *Predictor) Predict(market types.Market, trades []types.Trade) Prediction {
	pred := Prediction{
		MarketID:    market.ID,
		MarketTitle: market.Title,
		Category:    market.Category,
		Signal:      SignalNone,
		Agreement:   make(map[int]int),
	}

	votes, outcomes, keys := p.tally(market.Category, trades)
	if len(votes) == 0 {
		return pred
	}
	pred.TotalTraders = len(votes)

	order := make([]int, len(outcomes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return outcomes[order[i]].Weight > outcomes[order[j]].Weight })

	var total float64
	for _, o := range outcomes {
		total += o.Weight
	}
	top := outcomes[order[0]]
	topKey := keys[order[0]]
	second := 0.0
	if len(order) > 1 {
		second = outcomes[order[1]].Weight
	}

	pred.PredictedOutcome = top.Outcome
	if total > 0 {
		pred.Confidence = (top.Weight - second) / total * 100
		pred.ExpectedProbability = top.Weight / total * 100
	}
	for _, i := range order {
		pred.Outcomes = append(pred.Outcomes, outcomes[i])
	}

	ranked := byWeight(votes)
	for _, tier := range p.cfg.Tiers {
		if tier.TopN > 0 {
			pred.Agreement[tier.TopN] = agreeing(ranked, tier.TopN, topKey)
		}
	}

	for _, v := range votes {
		if !v.boosted {
			continue
		}
		pred.SpecialistTotal++
		if v.key == topKey {
			pred.SpecialistVotes++
		}
	}
	pred.SpecialistConsensus = pred.SpecialistTotal > 0 &&
		pred.SpecialistVotes >= p.cfg.SpecialistQuorumAgree &&
		pred.SpecialistTotal >= p.cfg.SpecialistQuorumTotal

	pred.Signal = p.signal(pred)
	return pred
}

func agreeing(ranked []vote, n int, key string) int {
	if n > len(ranked) {
		n = len(ranked)
	}
	count := 0
	for _, v := range ranked[:n] {
		if v.key == key {
			count++
		}
	}
	return count
}

func (p *Predictor) signal(pred Prediction) string {
	for _, tier := range p.cfg.Tiers {
		if pred.Confidence <= tier.MinConfidence {
			continue
		}
		if tier.TopN > 0 && pred.Agreement[tier.TopN] < tier.MinAgree {
			continue
		}
		return tier.Name
	}
	return SignalNone
}

// PredictActive predicts every unresolved market in the snapshot, most
// confident first.
func (p *Predictor) PredictActive(snap *snapshot.Snapshot) []Prediction {
	var out []Prediction
	for _, m := range snap.ActiveMarkets() {
		out = append(out, p.Predict(m, snap.TradesForMarket(m.ID)))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	log.Debug().Int("markets", len(out)).Msg("Consensus predictions computed")
	return out
}
