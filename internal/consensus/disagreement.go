package consensus

import (
	"sort"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

// Disagreement classifications.
const (
	StrongConsensus    = "STRONG CONSENSUS"
	ModerateSplit      = "MODERATE SPLIT"
	HighDisagreement   = "HIGH DISAGREEMENT"
	MaximumUncertainty = "MAXIMUM UNCERTAINTY"
	NoData             = "NO DATA"
)

type OutcomeShare struct {
	Outcome string  `json:"outcome" yaml:"outcome"`
	Traders int     `json:"traders" yaml:"traders"`
	Share   float64 `json:"share" yaml:"share"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// DisagreementReport describes how split the highest weighted traders in a
// market are. Scores run from 0 (everyone agrees) to 1 (an even split).
type DisagreementReport struct {
	MarketID               string         `json:"market_id" yaml:"market_id"`
	Category               string         `json:"category" yaml:"category"`
	TopTraders             []string       `json:"top_traders" yaml:"top_traders"`
	OutcomeSplit           []OutcomeShare `json:"outcome_split" yaml:"outcome_split"`
	Disagreement           float64        `json:"disagreement" yaml:"disagreement"`
	WeightedDisagreement   float64        `json:"weighted_disagreement" yaml:"weighted_disagreement"`
	Specialists            int            `json:"specialists" yaml:"specialists"`
	SpecialistDisagreement float64        `json:"specialist_disagreement" yaml:"specialist_disagreement"`
	BetSizeConflict        int            `json:"bet_size_conflict" yaml:"bet_size_conflict"`
	Classification         string         `json:"classification" yaml:"classification"`
}

// Disagreement measures the split among the DisagreementTopN highest weighted
// traders' current positions.
func (p *Predictor) Disagreement(market types.Market, trades []types.Trade) DisagreementReport {
	report := DisagreementReport{
		MarketID:       market.ID,
		Category:       market.Category,
		Classification: NoData,
	}

	votes, _, _ := p.tally(market.Category, trades)
	if len(votes) == 0 {
		return report
	}

	top := byWeight(votes)
	if n := p.cfg.DisagreementTopN; n > 0 && len(top) > n {
		top = top[:n]
	}

	var keys []string
	labels := make(map[string]string)
	for _, t := range positions(trades) {
		key := types.OutcomeKey(t.Outcome)
		if _, ok := labels[key]; !ok {
			labels[key] = t.Outcome
			keys = append(keys, key)
		}
	}

	inTop := make(map[string]bool, len(top))
	counts := make(map[string]float64)
	weights := make(map[string]float64)
	specialists := make(map[string]float64)
	var totalWeight float64
	for _, v := range top {
		report.TopTraders = append(report.TopTraders, v.trader)
		inTop[v.trader] = true
		counts[v.key]++
		weights[v.key] += v.weight
		totalWeight += v.weight
		if v.boosted {
			specialists[v.key]++
			report.Specialists++
		}
	}

	for _, key := range keys {
		if counts[key] == 0 {
			continue
		}
		report.OutcomeSplit = append(report.OutcomeSplit, OutcomeShare{
			Outcome: labels[key],
			Traders: int(counts[key]),
			Share:   counts[key] / float64(len(top)),
			Weight:  weights[key],
		})
	}
	sort.SliceStable(report.OutcomeSplit, func(i, j int) bool {
		return report.OutcomeSplit[i].Traders > report.OutcomeSplit[j].Traders
	})

	report.Disagreement = split(counts, float64(len(top)))
	report.WeightedDisagreement = split(weights, totalWeight)
	if report.Specialists > 0 {
		report.SpecialistDisagreement = split(specialists, float64(report.Specialists))
	}

	large := make(map[string]int)
	for _, t := range trades {
		if inTop[t.Trader] && t.BetSize() > p.cfg.LargeBet {
			large[types.OutcomeKey(t.Outcome)]++
		}
	}
	if len(report.OutcomeSplit) > 1 {
		a := large[types.OutcomeKey(report.OutcomeSplit[0].Outcome)]
		b := large[types.OutcomeKey(report.OutcomeSplit[1].Outcome)]
		report.BetSizeConflict = min(a, b)
	}

	report.Classification = p.cfg.Classify(report.Disagreement)
	return report
}

// split returns 1 − (p1 − p2) for the two largest shares of total.
func split(amounts map[string]float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	var first, second float64
	for _, v := range amounts {
		switch {
		case v > first:
			first, second = v, first
		case v > second:
			second = v
		}
	}
	return 1 - (first-second)/total
}

// Classify buckets a disagreement score into the configured bands.
func (c Config) Classify(score float64) string {
	switch {
	case score < c.ConsensusBand:
		return StrongConsensus
	case score < c.SplitBand:
		return ModerateSplit
	case score < c.DisagreementBand:
		return HighDisagreement
	default:
		return MaximumUncertainty
	}
}

// DisagreementActive reports on every unresolved market, most split first.
func (p *Predictor) DisagreementActive(snap *snapshot.Snapshot) []DisagreementReport {
	var out []DisagreementReport
	for _, m := range snap.ActiveMarkets() {
		out = append(out, p.Disagreement(m, snap.TradesForMarket(m.ID)))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Disagreement > out[j].Disagreement })
	return out
}
