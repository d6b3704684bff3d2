// Package performance scores traders by the profit their trades realized on
// resolved markets.
package performance

import (
	"sort"
	"strings"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// MinResolvedTrades is the resolved trade count below which a trader's
	// combined score is 0.
	MinResolvedTrades int `yaml:"min_resolved_trades"`
	// QualifiedTrades is the resolved trade count for the leaderboards.
	QualifiedTrades int     `yaml:"qualified_trades"`
	WinRateWeight   float64 `yaml:"win_rate_weight"`
	ROIWeight       float64 `yaml:"roi_weight"`
	TopN            int     `yaml:"top_n"`

	// Window limits the analysis to trades no older than Window before the
	// run's as-of time. Zero means all time.
	Window time.Duration `yaml:"window"`
}

func DefaultConfig() Config {
	return Config{
		MinResolvedTrades: 5,
		QualifiedTrades:   10,
		WinRateWeight:     0.5,
		ROIWeight:         0.5,
		TopN:              10,
	}
}

// TraderPerformance holds realized results. WinRate and ROI are percentages.
type TraderPerformance struct {
	Trader         string  `json:"trader" yaml:"trader"`
	TotalTrades    int     `json:"total_trades" yaml:"total_trades"`
	ResolvedTrades int     `json:"resolved_trades" yaml:"resolved_trades"`
	WinningTrades  int     `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades   int     `json:"losing_trades" yaml:"losing_trades"`
	WinRate        float64 `json:"win_rate" yaml:"win_rate"`
	TotalPnL       float64 `json:"total_pnl" yaml:"total_pnl"`
	TotalInvested  float64 `json:"total_invested" yaml:"total_invested"`
	TotalVolume    float64 `json:"total_volume" yaml:"total_volume"`
	ROI            float64 `json:"roi" yaml:"roi"`
	CombinedScore  float64 `json:"combined_score" yaml:"combined_score"`
}

// Summary aggregates the traders with at least QualifiedTrades resolved trades.
type Summary struct {
	Traders     int                 `json:"traders" yaml:"traders"`
	Qualified   int                 `json:"qualified" yaml:"qualified"`
	AvgWinRate  float64             `json:"avg_win_rate" yaml:"avg_win_rate"`
	MedianROI   float64             `json:"median_roi" yaml:"median_roi"`
	TotalPnL    float64             `json:"total_pnl" yaml:"total_pnl"`
	TopWinRate  []TraderPerformance `json:"top_win_rate" yaml:"top_win_rate"`
	TopROI      []TraderPerformance `json:"top_roi" yaml:"top_roi"`
	TopCombined []TraderPerformance `json:"top_combined" yaml:"top_combined"`
}

type Report struct {
	// Traders is ordered by combined score, best first.
	Traders []TraderPerformance `json:"traders" yaml:"traders"`
	Summary Summary             `json:"summary" yaml:"summary"`
}

// TradePnL returns the realized profit of t. A buy wins when its outcome
// won and a sell wins when it lost; winners pay out one unit per share. ok is
// false while the market has no winner.
func TradePnL(t types.Trade, res types.Resolution) (pnl float64, ok bool) {
	if !res.Resolved || res.WinningOutcome == "" {
		return 0, false
	}

	invested := t.BetSize()
	same := types.SameOutcome(t.Outcome, res.WinningOutcome)

	var won bool
	switch strings.ToUpper(t.Side) {
	case types.SideBuy:
		won = same
	case types.SideSell:
		won = !same
	}

	if won {
		return t.Shares - invested, true
	}
	return -invested, true
}

type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Trader computes one trader's results from trades.
func (a *Analyzer) Trader(trader string, trades []types.Trade, resolution func(marketID string) types.Resolution) TraderPerformance {
	p := TraderPerformance{Trader: trader, TotalTrades: len(trades)}

	for _, t := range trades {
		p.TotalVolume += t.BetSize()

		pnl, ok := TradePnL(t, resolution(t.MarketID))
		if !ok {
			continue
		}
		p.ResolvedTrades++
		p.TotalPnL += pnl
		p.TotalInvested += t.BetSize()
		if pnl > 0 {
			p.WinningTrades++
		}
	}
	p.LosingTrades = p.ResolvedTrades - p.WinningTrades

	if p.ResolvedTrades > 0 {
		p.WinRate = float64(p.WinningTrades) / float64(p.ResolvedTrades) * 100
	}
	if p.TotalInvested > 0 {
		p.ROI = p.TotalPnL / p.TotalInvested * 100
	}
	if p.ResolvedTrades >= a.cfg.MinResolvedTrades {
		p.CombinedScore = a.cfg.WinRateWeight*p.WinRate + a.cfg.ROIWeight*p.ROI
	}
	return p
}

// Analyze scores every trader in snap. With a Window set, undated trades and
// trades before the window are skipped.
func (a *Analyzer) Analyze(snap *snapshot.Snapshot, asOf time.Time) Report {
	var r Report
	for _, trader := range snap.Traders() {
		trades := a.window(snap.TradesForTrader(trader), asOf)
		if len(trades) == 0 {
			continue
		}
		r.Traders = append(r.Traders, a.Trader(trader, trades, snap.Resolution))
	}

	sort.SliceStable(r.Traders, func(i, j int) bool {
		return r.Traders[i].CombinedScore > r.Traders[j].CombinedScore
	})
	r.Summary = a.summarize(r.Traders)

	log.Debug().
		Int("traders", r.Summary.Traders).
		Int("qualified", r.Summary.Qualified).
		Float64("avg_win_rate", r.Summary.AvgWinRate).
		Float64("median_roi", r.Summary.MedianROI).
		Msg("Trader performance computed")

	return r
}

func (a *Analyzer) window(trades []types.Trade, asOf time.Time) []types.Trade {
	if a.cfg.Window <= 0 {
		return trades
	}
	cutoff := asOf.Add(-a.cfg.Window)

	var out []types.Trade
	for _, t := range trades {
		if t.HasTimestamp() && !t.Timestamp.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func (a *Analyzer) summarize(all []TraderPerformance) Summary {
	s := Summary{Traders: len(all)}

	var qualified []TraderPerformance
	for _, p := range all {
		if p.ResolvedTrades >= a.cfg.QualifiedTrades {
			qualified = append(qualified, p)
		}
	}
	s.Qualified = len(qualified)
	if s.Qualified == 0 {
		return s
	}

	rois := make([]float64, 0, len(qualified))
	for _, p := range qualified {
		s.AvgWinRate += p.WinRate
		s.TotalPnL += p.TotalPnL
		rois = append(rois, p.ROI)
	}
	s.AvgWinRate /= float64(s.Qualified)
	sort.Float64s(rois)
	s.MedianROI = rois[len(rois)/2]

	s.TopWinRate = a.top(qualified, func(p TraderPerformance) float64 { return p.WinRate })
	s.TopROI = a.top(qualified, func(p TraderPerformance) float64 { return p.ROI })
	s.TopCombined = a.top(qualified, func(p TraderPerformance) float64 { return p.CombinedScore })
	return s
}

func (a *Analyzer) top(traders []TraderPerformance, key func(TraderPerformance) float64) []TraderPerformance {
	sorted := append([]TraderPerformance(nil), traders...)
	sort.SliceStable(sorted, func(i, j int) bool { return key(sorted[i]) > key(sorted[j]) })
	if a.cfg.TopN > 0 && len(sorted) > a.cfg.TopN {
		sorted = sorted[:a.cfg.TopN]
	}
	return sorted
}
