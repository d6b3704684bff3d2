// Package behavior profiles how traders trade: bet sizing, how widely they
// spread across markets, when they are active, and which style that adds up to.
package behavior

import (
	"math"
	"sort"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// Bet size consistency, by coefficient of variation.
const (
	VeryConsistent       = "Very Consistent"
	ModeratelyConsistent = "Moderately Consistent"
	Variable             = "Variable"
	HighlyVariable       = "Highly Variable"
	NotAvailable         = "N/A"
)

// Market concentration, by the share of trades in the busiest market.
const (
	HighlyConcentrated     = "Highly Concentrated"
	ModeratelyConcentrated = "Moderately Concentrated"
	WellDiversified        = "Well Diversified"
)

// Activity trends.
const (
	TrendIncreasing   = "Increasing"
	TrendDecreasing   = "Decreasing"
	TrendStable       = "Stable"
	TrendInsufficient = "Insufficient Data"
)

// Trading styles, checked in this order.
const (
	StylePowerUser            = "Power User"
	StyleHighVolumeSpecialist = "High Volume Specialist"
	StyleBigBettor            = "Big Bettor"
	StyleMicroTrader          = "Micro Trader"
	StyleCautiousDiversifier  = "Cautious Diversifier"
	StyleWeekendWarrior       = "Weekend Warrior"
	StyleActiveTrader         = "Active Trader"
	StyleCasualTrader         = "Casual Trader"
	StyleStrategicExplorer    = "Strategic Explorer"
	StyleMarketSpecialist     = "Market Specialist"
	StyleGeneralTrader        = "General Trader"
)

type Config struct {
	// Coefficient of variation bands, in percent.
	ConsistentCV float64 `yaml:"consistent_cv"`
	ModerateCV   float64 `yaml:"moderate_cv"`
	VariableCV   float64 `yaml:"variable_cv"`

	// Busiest market share bands, in percent.
	ConcentratedPct           float64 `yaml:"concentrated_pct"`
	ModeratelyConcentratedPct float64 `yaml:"moderately_concentrated_pct"`
	TopMarkets                int     `yaml:"top_markets"`

	MinTrendTrades int     `yaml:"min_trend_trades"`
	TrendRise      float64 `yaml:"trend_rise"`
	TrendFall      float64 `yaml:"trend_fall"`

	// Style thresholds. Each metric is high at or above its High value and
	// medium at or above its Medium value.
	HighVolumeTrades      int     `yaml:"high_volume_trades"`
	MediumVolumeTrades    int     `yaml:"medium_volume_trades"`
	HighBet               float64 `yaml:"high_bet"`
	MediumBet             float64 `yaml:"medium_bet"`
	HighDiversification   float64 `yaml:"high_diversification"`
	MediumDiversification float64 `yaml:"medium_diversification"`
	HighFrequency         float64 `yaml:"high_frequency"`
	MediumFrequency       float64 `yaml:"medium_frequency"`

	HotStreakWindow      time.Duration `yaml:"hot_streak_window"`
	HotStreakTrades      int           `yaml:"hot_streak_trades"`
	LowReliabilityTrades int           `yaml:"low_reliability_trades"`

	// Window limits the analysis to trades no older than Window before the
	// run's as-of time. Zero means all time.
	Window time.Duration `yaml:"window"`
}

func DefaultConfig() Config {
	return Config{
		ConsistentCV:              30,
		ModerateCV:                60,
		VariableCV:                100,
		ConcentratedPct:           50,
		ModeratelyConcentratedPct: 30,
		TopMarkets:                3,
		MinTrendTrades:            4,
		TrendRise:                 1.2,
		TrendFall:                 0.8,
		HighVolumeTrades:          50,
		MediumVolumeTrades:        20,
		HighBet:                   100,
		MediumBet:                 20,
		HighDiversification:       60,
		MediumDiversification:     30,
		HighFrequency:             5,
		MediumFrequency:           1,
		HotStreakWindow:           48 * time.Hour,
		HotStreakTrades:           5,
		LowReliabilityTrades:      10,
	}
}

type Betting struct {
	AvgBet      float64 `json:"avg_bet" yaml:"avg_bet"`
	MedianBet   float64 `json:"median_bet" yaml:"median_bet"`
	MinBet      float64 `json:"min_bet" yaml:"min_bet"`
	MaxBet      float64 `json:"max_bet" yaml:"max_bet"`
	StdDev      float64 `json:"std_dev" yaml:"std_dev"`
	TotalVolume float64 `json:"total_volume" yaml:"total_volume"`
	CV          float64 `json:"cv" yaml:"cv"`
	Consistency string  `json:"consistency" yaml:"consistency"`
}

type MarketShare struct {
	MarketID string  `json:"market_id" yaml:"market_id"`
	Title    string  `json:"title" yaml:"title"`
	Trades   int     `json:"trades" yaml:"trades"`
	Pct      float64 `json:"pct" yaml:"pct"`
}

type Diversification struct {
	UniqueMarkets int           `json:"unique_markets" yaml:"unique_markets"`
	Score         float64       `json:"score" yaml:"score"`
	TopMarkets    []MarketShare `json:"top_markets" yaml:"top_markets"`
	Concentration string        `json:"concentration" yaml:"concentration"`
}

// Activity is computed from dated trades only; TradesPerDay still divides
// the full trade count. MostActiveHour is -1 without dated trades.
type Activity struct {
	TotalTrades    int       `json:"total_trades" yaml:"total_trades"`
	TradesPerDay   float64   `json:"trades_per_day" yaml:"trades_per_day"`
	TradesPerWeek  float64   `json:"trades_per_week" yaml:"trades_per_week"`
	MostActiveDay  string    `json:"most_active_day" yaml:"most_active_day"`
	MostActiveHour int       `json:"most_active_hour" yaml:"most_active_hour"`
	Trend          string    `json:"trend" yaml:"trend"`
	FirstTrade     time.Time `json:"first_trade" yaml:"first_trade"`
	LastTrade      time.Time `json:"last_trade" yaml:"last_trade"`
	ActiveDays     int       `json:"active_days" yaml:"active_days"`
	TradingDays    float64   `json:"trading_days" yaml:"trading_days"`
}

type Profile struct {
	Trader          string          `json:"trader" yaml:"trader"`
	Style           string          `json:"style" yaml:"style"`
	Betting         Betting         `json:"betting" yaml:"betting"`
	Diversification Diversification `json:"diversification" yaml:"diversification"`
	Activity        Activity        `json:"activity" yaml:"activity"`
	RecentTrades    int             `json:"recent_trades" yaml:"recent_trades"`
	HotStreak       bool            `json:"hot_streak" yaml:"hot_streak"`
	LowReliability  bool            `json:"low_reliability" yaml:"low_reliability"`
	PowerScore      float64         `json:"power_score" yaml:"power_score"`
}

type Report struct {
	// Profiles is ordered by power score, highest first.
	Profiles []Profile `json:"profiles" yaml:"profiles"`
	// Styles counts the styles of reliable traders only.
	Styles     map[string]int `json:"styles" yaml:"styles"`
	HotStreaks []string       `json:"hot_streaks" yaml:"hot_streaks"`
}

type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Profile describes one trader's trades as of asOf.
func (a *Analyzer) Profile(trader string, trades []types.Trade, asOf time.Time) Profile {
	p := Profile{
		Trader:          trader,
		Betting:         a.betting(trades),
		Diversification: a.diversification(trades),
		Activity:        a.activity(trades),
	}
	p.Style = a.classify(p)

	if !p.Activity.LastTrade.IsZero() {
		cutoff := asOf.Add(-a.cfg.HotStreakWindow)
		for _, t := range trades {
			if t.HasTimestamp() && !t.Timestamp.Before(cutoff) && !t.Timestamp.After(asOf) {
				p.RecentTrades++
			}
		}
	}
	p.HotStreak = p.RecentTrades >= a.cfg.HotStreakTrades
	p.LowReliability = p.Activity.TotalTrades < a.cfg.LowReliabilityTrades
	p.PowerScore = p.Activity.TradesPerDay * (p.Diversification.Score / 10) * (p.Betting.AvgBet / 10)
	return p
}

// Analyze profiles every trader in snap.
func (a *Analyzer) Analyze(snap *snapshot.Snapshot, asOf time.Time) Report {
	r := Report{Styles: make(map[string]int)}
	for _, trader := range snap.Traders() {
		trades := a.window(snap.TradesForTrader(trader), asOf)
		if len(trades) == 0 {
			continue
		}
		p := a.Profile(trader, trades, asOf)
		r.Profiles = append(r.Profiles, p)

		if p.LowReliability {
			continue
		}
		r.Styles[p.Style]++
		if p.HotStreak {
			r.HotStreaks = append(r.HotStreaks, trader)
		}
	}

	sort.SliceStable(r.Profiles, func(i, j int) bool {
		return r.Profiles[i].PowerScore > r.Profiles[j].PowerScore
	})

	log.Debug().
		Int("traders", len(r.Profiles)).
		Int("hot_streaks", len(r.HotStreaks)).
		Msg("Trading behavior profiled")

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

func (a *Analyzer) betting(trades []types.Trade) Betting {
	b := Betting{Consistency: NotAvailable}
	if len(trades) == 0 {
		return b
	}

	sizes := make([]float64, len(trades))
	for i, t := range trades {
		sizes[i] = t.BetSize()
		b.TotalVolume += sizes[i]
	}
	sort.Float64s(sizes)

	n := len(sizes)
	b.AvgBet = b.TotalVolume / float64(n)
	b.MinBet = sizes[0]
	b.MaxBet = sizes[n-1]
	if n%2 == 1 {
		b.MedianBet = sizes[n/2]
	} else {
		b.MedianBet = (sizes[n/2-1] + sizes[n/2]) / 2
	}

	if n > 1 {
		var sq float64
		for _, s := range sizes {
			sq += (s - b.AvgBet) * (s - b.AvgBet)
		}
		b.StdDev = math.Sqrt(sq / float64(n-1))
	}

	if b.AvgBet > 0 {
		b.CV = b.StdDev / b.AvgBet * 100
		switch {
		case b.CV < a.cfg.ConsistentCV:
			b.Consistency = VeryConsistent
		case b.CV < a.cfg.ModerateCV:
			b.Consistency = ModeratelyConsistent
		case b.CV < a.cfg.VariableCV:
			b.Consistency = Variable
		default:
			b.Consistency = HighlyVariable
		}
	}
	return b
}

func (a *Analyzer) diversification(trades []types.Trade) Diversification {
	d := Diversification{Concentration: NotAvailable}
	if len(trades) == 0 {
		return d
	}

	var order []string
	counts := make(map[string]int)
	titles := make(map[string]string)
	for _, t := range trades {
		if _, ok := counts[t.MarketID]; !ok {
			order = append(order, t.MarketID)
		}
		counts[t.MarketID]++
		titles[t.MarketID] = t.MarketTitle
	}

	total := float64(len(trades))
	d.UniqueMarkets = len(counts)
	d.Score = float64(d.UniqueMarkets) / total * 100

	// Ties keep first-traded order.
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	for i, id := range order {
		if i == a.cfg.TopMarkets {
			break
		}
		d.TopMarkets = append(d.TopMarkets, MarketShare{
			MarketID: id,
			Title:    titles[id],
			Trades:   counts[id],
			Pct:      float64(counts[id]) / total * 100,
		})
	}

	switch top := d.TopMarkets[0].Pct; {
	case top > a.cfg.ConcentratedPct:
		d.Concentration = HighlyConcentrated
	case top > a.cfg.ModeratelyConcentratedPct:
		d.Concentration = ModeratelyConcentrated
	default:
		d.Concentration = WellDiversified
	}
	return d
}

func (a *Analyzer) activity(trades []types.Trade) Activity {
	act := Activity{TotalTrades: len(trades), MostActiveHour: -1, Trend: NotAvailable}

	var stamps []time.Time
	for _, t := range trades {
		if t.HasTimestamp() {
			stamps = append(stamps, t.Timestamp.UTC())
		}
	}
	if len(stamps) == 0 {
		act.MostActiveDay = NotAvailable
		return act
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	act.FirstTrade = stamps[0]
	act.LastTrade = stamps[len(stamps)-1]
	act.TradingDays = math.Max(act.LastTrade.Sub(act.FirstTrade).Hours()/24, 1)
	act.TradesPerDay = float64(act.TotalTrades) / act.TradingDays
	act.TradesPerWeek = act.TradesPerDay * 7

	days := make([]int, len(stamps))
	hours := make([]int, len(stamps))
	dates := make(map[string]bool)
	for i, ts := range stamps {
		days[i] = int(ts.Weekday())
		hours[i] = ts.Hour()
		dates[ts.Format("2006-01-02")] = true
	}
	act.MostActiveDay = time.Weekday(mostCommon(days)).String()
	act.MostActiveHour = mostCommon(hours)
	act.ActiveDays = len(dates)

	act.Trend = TrendInsufficient
	if len(stamps) >= a.cfg.MinTrendTrades {
		mid := len(stamps) / 2
		first, second := rate(stamps[:mid]), rate(stamps[mid:])
		switch {
		case second > first*a.cfg.TrendRise:
			act.Trend = TrendIncreasing
		case second < first*a.cfg.TrendFall:
			act.Trend = TrendDecreasing
		default:
			act.Trend = TrendStable
		}
	}
	return act
}

// mostCommon returns the most frequent value in keys, the earliest seen on ties.
func mostCommon(keys []int) int {
	counts := make(map[int]int, len(keys))
	for _, k := range keys {
		counts[k]++
	}
	best := keys[0]
	for _, k := range keys {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best
}

// rate is trades per day over the span of stamps, counting an empty span as one day.
func rate(stamps []time.Time) float64 {
	days := stamps[len(stamps)-1].Sub(stamps[0]).Hours() / 24
	if days == 0 {
		days = 1
	}
	return float64(len(stamps)) / days
}

func (a *Analyzer) classify(p Profile) string {
	c := a.cfg
	trades := p.Activity.TotalTrades
	bet := p.Betting.AvgBet
	div := p.Diversification.Score
	freq := p.Activity.TradesPerDay

	highVolume := trades >= c.HighVolumeTrades
	mediumVolume := trades >= c.MediumVolumeTrades && !highVolume
	lowVolume := trades < c.MediumVolumeTrades

	highBet := bet >= c.HighBet
	mediumBet := bet >= c.MediumBet && !highBet
	lowBet := bet < c.MediumBet

	highDiv := div >= c.HighDiversification
	mediumDiv := div >= c.MediumDiversification && !highDiv
	lowDiv := div < c.MediumDiversification

	highFreq := freq >= c.HighFrequency
	lowFreq := freq < c.MediumFrequency

	weekend := p.Activity.MostActiveDay == time.Saturday.String() || p.Activity.MostActiveDay == time.Sunday.String()

	switch {
	case highVolume && highFreq && highDiv:
		return StylePowerUser
	case highVolume && lowDiv:
		return StyleHighVolumeSpecialist
	case highBet && lowVolume:
		return StyleBigBettor
	case lowBet && highVolume && highDiv:
		return StyleMicroTrader
	case mediumDiv && mediumVolume && p.Betting.Consistency == VeryConsistent:
		return StyleCautiousDiversifier
	case weekend && lowFreq:
		return StyleWeekendWarrior
	case highFreq && mediumDiv:
		return StyleActiveTrader
	case lowFreq && mediumBet:
		return StyleCasualTrader
	case highDiv && lowFreq:
		return StyleStrategicExplorer
	case lowDiv && highBet:
		return StyleMarketSpecialist
	default:
		return StyleGeneralTrader
	}
}
