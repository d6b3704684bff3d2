// Package copytrade finds traders who systematically enter markets shortly
// after another trader and on the same side.
package copytrade

import (
	"context"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/correlation"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Relationship tiers.
const (
	TierPerfect  = "perfect"
	TierStrong   = "strong"
	TierModerate = "moderate"
	TierWeak     = "weak"
)

type Config struct {
	// Lags outside [LagMin, LagMax] are too fast to be a reaction or too
	// slow to be a copy and are dropped.
	LagMin time.Duration `yaml:"lag_min"`
	LagMax time.Duration `yaml:"lag_max"`
	// ConsistencyHorizon is the lag standard deviation at which time
	// consistency reaches 0.
	ConsistencyHorizon time.Duration `yaml:"consistency_horizon"`
	VolumeRatioCap     float64       `yaml:"volume_ratio_cap"`

	TimeWeight    float64 `yaml:"time_weight"`
	OutcomeWeight float64 `yaml:"outcome_weight"`
	OrderWeight   float64 `yaml:"order_weight"`
	VolumeWeight  float64 `yaml:"volume_weight"`

	MinSharedMarkets int     `yaml:"min_shared_markets"`
	MinCopyScore     float64 `yaml:"min_copy_score"`
	PerfectTier      float64 `yaml:"perfect_tier"`
	StrongTier       float64 `yaml:"strong_tier"`
	ModerateTier     float64 `yaml:"moderate_tier"`

	// CandidateThreshold is the correlation a pair needs to be tested.
	CandidateThreshold float64 `yaml:"candidate_threshold"`

	FrontRunMinFollowers int           `yaml:"front_run_min_followers"`
	FrontRunMinPending   int           `yaml:"front_run_min_pending"`
	FrontRunLookback     time.Duration `yaml:"front_run_lookback"`
	FrontRunThreshold    float64       `yaml:"front_run_threshold"`

	// LeaderScoreFollowers is the follower count that earns a leader score of 100.
	LeaderScoreFollowers int     `yaml:"leader_score_followers"`
	ValidRatio           float64 `yaml:"valid_ratio"`
	WarningRatio         float64 `yaml:"warning_ratio"`

	Workers int `yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		LagMin:               15 * time.Minute,
		LagMax:               48 * time.Hour,
		ConsistencyHorizon:   24 * time.Hour,
		VolumeRatioCap:       2,
		TimeWeight:           0.4,
		OutcomeWeight:        0.3,
		OrderWeight:          0.2,
		VolumeWeight:         0.1,
		MinSharedMarkets:     5,
		MinCopyScore:         0.5,
		PerfectTier:          0.9,
		StrongTier:           0.7,
		ModerateTier:         0.5,
		CandidateThreshold:   0.6,
		FrontRunMinFollowers: 3,
		FrontRunMinPending:   3,
		FrontRunLookback:     12 * time.Hour,
		FrontRunThreshold:    50,
		LeaderScoreFollowers: 20,
		ValidRatio:           0.7,
		WarningRatio:         0.4,
	}
}

// Lag is the delay between leader and follower entering one market.
type Lag struct {
	MarketID string  `json:"market_id" yaml:"market_id"`
	Hours    float64 `json:"hours" yaml:"hours"`
}

// CopyScore measures how much follower looks like a copy of leader. Sub-scores
// are computed over retained lags only.
type CopyScore struct {
	Leader            string  `json:"leader" yaml:"leader"`
	Follower          string  `json:"follower" yaml:"follower"`
	SharedMarkets     int     `json:"shared_markets" yaml:"shared_markets"`
	RetainedMarkets   int     `json:"retained_markets" yaml:"retained_markets"`
	Lags              []Lag   `json:"lags" yaml:"lags"`
	AvgLagHours       float64 `json:"avg_lag_hours" yaml:"avg_lag_hours"`
	LagStdDev         float64 `json:"lag_std_dev" yaml:"lag_std_dev"`
	TimeConsistency   float64 `json:"time_consistency" yaml:"time_consistency"`
	OutcomeMatching   float64 `json:"outcome_matching" yaml:"outcome_matching"`
	OrderPreservation float64 `json:"order_preservation" yaml:"order_preservation"`
	VolumeCorrelation float64 `json:"volume_correlation" yaml:"volume_correlation"`
	Score             float64 `json:"score" yaml:"score"`
}

// Relationship is a materialized leader to follower link.
type Relationship struct {
	CopyScore `yaml:",inline"`
	Tier      string `json:"tier" yaml:"tier"`
}

// Pair is an unordered candidate pair; both directions are tested.
type Pair struct {
	A, B string
}

type Detector struct {
	cfg  Config
	snap *snapshot.Snapshot
}

func NewDetector(cfg Config, snap *snapshot.Snapshot) *Detector {
	return &Detector{cfg: cfg, snap: snap}
}

// entry is a trader's footprint in one market: the first dated trade and the
// total shares across all trades.
type entry struct {
	first  types.Trade
	dated  bool
	volume float64
}

func footprint(trades []types.Trade) map[string]entry {
	out := make(map[string]entry)
	for _, t := range trades {
		e := out[t.MarketID]
		e.volume += t.Shares
		if t.HasTimestamp() && (!e.dated || t.Timestamp.Before(e.first.Timestamp)) {
			e.first = t
			e.dated = true
		}
		out[t.MarketID] = e
	}
	return out
}

// Candidates returns the pairs worth testing: the high-correlation pairs of
// matrix, or every pair of tracked traders when matrix is nil.
func (d *Detector) Candidates(matrix *correlation.Matrix) []Pair {
	var out []Pair
	if matrix != nil {
		for _, s := range matrix.HighPairs(d.cfg.CandidateThreshold) {
			out = append(out, Pair{A: s.TraderA, B: s.TraderB})
		}
		return out
	}

	tracked := d.snap.Tracked()
	for i := range tracked {
		for j := i + 1; j < len(tracked); j++ {
			out = append(out, Pair{A: tracked[i], B: tracked[j]})
		}
	}
	return out
}

// Score computes the copy score of follower against leader.
func (d *Detector) Score(leader, follower string) CopyScore {
	return d.score(leader, follower,
		footprint(d.snap.TradesForTrader(leader)),
		footprint(d.snap.TradesForTrader(follower)))
}

func (d *Detector) score(leader, follower string, lf, ff map[string]entry) CopyScore {
	cs := CopyScore{Leader: leader, Follower: follower}

	markets := make([]string, 0, len(lf))
	for market := range lf {
		if _, ok := ff[market]; ok {
			markets = append(markets, market)
		}
	}
	sort.Strings(markets)
	cs.SharedMarkets = len(markets)

	lagMin, lagMax := d.cfg.LagMin.Hours(), d.cfg.LagMax.Hours()
	var matches, ordered int
	var volumeDiffs []float64
	for _, market := range markets {
		l, f := lf[market], ff[market]
		if !l.dated || !f.dated {
			continue
		}
		lag := f.first.Timestamp.Sub(l.first.Timestamp).Hours()
		if lag < lagMin || lag > lagMax {
			continue
		}
		cs.Lags = append(cs.Lags, Lag{MarketID: market, Hours: lag})

		if types.SameOutcome(l.first.Outcome, f.first.Outcome) {
			matches++
		}
		if lag > 0 {
			ordered++
		}
		if l.volume > 0 {
			ratio := math.Min(f.volume/l.volume, d.cfg.VolumeRatioCap)
			volumeDiffs = append(volumeDiffs, math.Abs(1-ratio))
		}
	}

	cs.RetainedMarkets = len(cs.Lags)
	if cs.RetainedMarkets == 0 {
		return cs
	}

	hours := make([]float64, len(cs.Lags))
	for i, l := range cs.Lags {
		hours[i] = l.Hours
	}
	cs.AvgLagHours = mean(hours)
	cs.LagStdDev = sampleStdDev(hours)

	n := float64(cs.RetainedMarkets)
	cs.TimeConsistency = TimeConsistency(cs.LagStdDev, d.cfg.ConsistencyHorizon)
	cs.OutcomeMatching = float64(matches) / n
	cs.OrderPreservation = float64(ordered) / n
	if len(volumeDiffs) > 0 {
		cs.VolumeCorrelation = clamp(1-mean(volumeDiffs), 0, 1)
	}

	cs.Score = d.cfg.TimeWeight*cs.TimeConsistency +
		d.cfg.OutcomeWeight*cs.OutcomeMatching +
		d.cfg.OrderWeight*cs.OrderPreservation +
		d.cfg.VolumeWeight*cs.VolumeCorrelation
	return cs
}

// TimeConsistency maps a lag standard deviation in hours to [0,1].
func TimeConsistency(stdDevHours float64, horizon time.Duration) float64 {
	h := horizon.Hours()
	if h <= 0 {
		h = 24
	}
	return math.Max(0, 1-stdDevHours/h)
}

// Tier names the strength of a copy score.
func (d *Detector) Tier(score float64) string {
	switch {
	case score >= d.cfg.PerfectTier:
		return TierPerfect
	case score >= d.cfg.StrongTier:
		return TierStrong
	case score >= d.cfg.ModerateTier:
		return TierModerate
	default:
		return TierWeak
	}
}

// Detect tests both directions of every candidate and keeps the relationships
// with enough retained markets and a high enough score, strongest first.
func (d *Detector) Detect(ctx context.Context, candidates []Pair) ([]Relationship, error) {
	started := time.Now()

	footprints := make(map[string]map[string]entry)
	for _, p := range candidates {
		for _, trader := range []string{p.A, p.B} {
			if _, ok := footprints[trader]; !ok {
				footprints[trader] = footprint(d.snap.TradesForTrader(trader))
			}
		}
	}

	workers := d.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	slots := make([]*Relationship, 2*len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range candidates {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			directions := [2][2]string{{p.A, p.B}, {p.B, p.A}}
			for k, dir := range directions {
				cs := d.score(dir[0], dir[1], footprints[dir[0]], footprints[dir[1]])
				if cs.RetainedMarkets < d.cfg.MinSharedMarkets || cs.Score < d.cfg.MinCopyScore {
					continue
				}
				slots[2*i+k] = &Relationship{CopyScore: cs, Tier: d.Tier(cs.Score)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Relationship
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Leader != out[j].Leader {
			return out[i].Leader < out[j].Leader
		}
		return out[i].Follower < out[j].Follower
	})

	log.Info().
		Int("candidates", len(candidates)).
		Int("relationships", len(out)).
		Dur("elapsed", time.Since(started)).
		Msg("Copy relationships detected")

	return out, nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev is the n-1 standard deviation; 0 for fewer than two values.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
