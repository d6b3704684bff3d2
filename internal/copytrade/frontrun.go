package copytrade

import (
	"math"
	"sort"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

// Opportunity is a market a leader entered recently while most of its
// followers have not yet.
type Opportunity struct {
	MarketID           string    `json:"market_id" yaml:"market_id"`
	MarketTitle        string    `json:"market_title" yaml:"market_title"`
	Leader             string    `json:"leader" yaml:"leader"`
	LeaderOutcome      string    `json:"leader_outcome" yaml:"leader_outcome"`
	LeaderTime         time.Time `json:"leader_time" yaml:"leader_time"`
	Pending            []string  `json:"pending" yaml:"pending"`
	TotalFollowers     int       `json:"total_followers" yaml:"total_followers"`
	HoursSince         float64   `json:"hours_since" yaml:"hours_since"`
	TimeToCascadeHours float64   `json:"time_to_cascade_hours" yaml:"time_to_cascade_hours"`
	Urgency            float64   `json:"urgency" yaml:"urgency"`
	Magnitude          float64   `json:"magnitude" yaml:"magnitude"`
	Score              float64   `json:"score" yaml:"score"`
}

// FrontRun scans each well-followed leader's trades in the lookback window
// before asOf. Only the leader's latest trade per market counts. A follower is
// pending on a market when it has no trade there at or before asOf; undated
// follower trades count as already traded.
func (d *Detector) FrontRun(network *Network, asOf time.Time) []Opportunity {
	cutoff := asOf.Add(-d.cfg.FrontRunLookback)

	var out []Opportunity
	for _, leader := range network.LeaderNames() {
		followers := network.Leaders[leader]
		if len(followers) < d.cfg.FrontRunMinFollowers {
			continue
		}

		var lagSum float64
		for _, f := range followers {
			lagSum += f.AvgLagHours
		}
		avgLag := lagSum / float64(len(followers))

		recent := make(map[string]types.Trade)
		for _, t := range d.snap.TradesForTrader(leader) {
			if !t.HasTimestamp() || t.Timestamp.Before(cutoff) || t.Timestamp.After(asOf) {
				continue
			}
			if prev, ok := recent[t.MarketID]; !ok || !t.Timestamp.Before(prev.Timestamp) {
				recent[t.MarketID] = t
			}
		}

		for market, t := range recent {
			var pending []string
			for _, f := range followers {
				if !d.tradedBy(f.Trader, market, asOf) {
					pending = append(pending, f.Trader)
				}
			}
			if len(pending) < d.cfg.FrontRunMinPending {
				continue
			}

			hoursSince := asOf.Sub(t.Timestamp).Hours()
			urgency := 0.0
			if avgLag > 0 {
				urgency = math.Max(0, 1-hoursSince/avgLag)
			}
			magnitude := float64(len(pending)) / float64(len(followers))
			score := 60*urgency + 40*magnitude
			if score < d.cfg.FrontRunThreshold {
				continue
			}

			title := t.MarketTitle
			if m, ok := d.snap.Market(market); ok && m.Title != "" {
				title = m.Title
			}
			sort.Strings(pending)

			out = append(out, Opportunity{
				MarketID:           market,
				MarketTitle:        title,
				Leader:             leader,
				LeaderOutcome:      t.Outcome,
				LeaderTime:         t.Timestamp,
				Pending:            pending,
				TotalFollowers:     len(followers),
				HoursSince:         hoursSince,
				TimeToCascadeHours: math.Max(0, avgLag-hoursSince),
				Urgency:            urgency,
				Magnitude:          magnitude,
				Score:              score,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Leader != out[j].Leader {
			return out[i].Leader < out[j].Leader
		}
		return out[i].MarketID < out[j].MarketID
	})
	return out
}

func (d *Detector) tradedBy(trader, market string, asOf time.Time) bool {
	for _, t := range d.snap.TradesForTrader(trader) {
		if t.MarketID != market {
			continue
		}
		if !t.HasTimestamp() || !t.Timestamp.After(asOf) {
			return true
		}
	}
	return false
}
