// Package correlation scores how alike every pair of tracked traders trade:
// which markets they pick, which side they take and how close together they
// enter.
package correlation

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	MinSharedMarkets int `yaml:"min_shared_markets"`

	OverlapWeight   float64 `yaml:"overlap_weight"`
	AgreementWeight float64 `yaml:"agreement_weight"`
	TimingWeight    float64 `yaml:"timing_weight"`
	// TimingHorizon is the average entry gap at which timing similarity
	// reaches 0.
	TimingHorizon time.Duration `yaml:"timing_horizon"`

	ClusterThreshold      float64 `yaml:"cluster_threshold"`
	SuspiciousCluster     float64 `yaml:"suspicious_cluster"`
	TightCluster          float64 `yaml:"tight_cluster"`
	IndependenceThreshold float64 `yaml:"independence_threshold"`

	// Workers bounds concurrent pair scoring. 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		MinSharedMarkets:      3,
		OverlapWeight:         0.3,
		AgreementWeight:       0.5,
		TimingWeight:          0.2,
		TimingHorizon:         24 * time.Hour,
		ClusterThreshold:      0.6,
		SuspiciousCluster:     0.8,
		TightCluster:          0.7,
		IndependenceThreshold: 0.25,
	}
}

// Score is the correlation between two traders. TraderA sorts before TraderB.
type Score struct {
	TraderA          string  `json:"trader_a" yaml:"trader_a"`
	TraderB          string  `json:"trader_b" yaml:"trader_b"`
	MarketOverlap    float64 `json:"market_overlap" yaml:"market_overlap"`
	OutcomeAgreement float64 `json:"outcome_agreement" yaml:"outcome_agreement"`
	TimingSimilarity float64 `json:"timing_similarity" yaml:"timing_similarity"`
	Composite        float64 `json:"composite" yaml:"composite"`
	SharedMarkets    int     `json:"shared_markets" yaml:"shared_markets"`
	TimedMarkets     int     `json:"timed_markets" yaml:"timed_markets"`
	TotalMarkets     int     `json:"total_markets" yaml:"total_markets"`
}

// Other returns the pair member that is not trader.
func (s Score) Other(trader string) string {
	if s.TraderA == trader {
		return s.TraderB
	}
	return s.TraderA
}

// Engine computes the correlation matrix for a snapshot.
type Engine interface {
	Compute(ctx context.Context, snap *snapshot.Snapshot) (*Matrix, error)
}

// PairwiseEngine scores every pair of tracked traders.
type PairwiseEngine struct {
	cfg Config
}

func NewPairwise(cfg Config) *PairwiseEngine {
	return &PairwiseEngine{cfg: cfg}
}

// position is one trader's footprint in one market.
type position struct {
	outcome  string
	earliest time.Time
}

type profile map[string]position

// buildProfile reduces a trader's trades to the most frequent outcome and the
// earliest valid timestamp per market. Outcome ties go to the first seen.
func buildProfile(trades []types.Trade) profile {
	counts := make(map[string]map[string]int)
	order := make(map[string][]string)
	p := make(profile)

	for _, t := range trades {
		key := types.OutcomeKey(t.Outcome)
		if counts[t.MarketID] == nil {
			counts[t.MarketID] = make(map[string]int)
		}
		if counts[t.MarketID][key] == 0 {
			order[t.MarketID] = append(order[t.MarketID], key)
		}
		counts[t.MarketID][key]++

		pos := p[t.MarketID]
		if t.HasTimestamp() && (pos.earliest.IsZero() || t.Timestamp.Before(pos.earliest)) {
			pos.earliest = t.Timestamp
		}
		p[t.MarketID] = pos
	}

	for market, keys := range order {
		best := keys[0]
		for _, k := range keys[1:] {
			if counts[market][k] > counts[market][best] {
				best = k
			}
		}
		pos := p[market]
		pos.outcome = best
		p[market] = pos
	}
	return p
}

// ScorePair correlates two trade histories. The result is returned even when
// the pair shares fewer than MinSharedMarkets markets.
func (e *PairwiseEngine) ScorePair(a, b string, tradesA, tradesB []types.Trade) Score {
	return e.score(a, b, buildProfile(tradesA), buildProfile(tradesB))
}

func (e *PairwiseEngine) score(a, b string, pa, pb profile) Score {
	if b < a {
		a, b = b, a
		pa, pb = pb, pa
	}
	s := Score{TraderA: a, TraderB: b}

	var agree int
	var gapHours float64
	for market, posA := range pa {
		posB, ok := pb[market]
		if !ok {
			continue
		}
		s.SharedMarkets++
		if posA.outcome == posB.outcome {
			agree++
		}
		if !posA.earliest.IsZero() && !posB.earliest.IsZero() {
			s.TimedMarkets++
			gapHours += math.Abs(posA.earliest.Sub(posB.earliest).Hours())
		}
	}

	s.TotalMarkets = len(pa) + len(pb) - s.SharedMarkets
	if s.TotalMarkets > 0 {
		s.MarketOverlap = float64(s.SharedMarkets) / float64(s.TotalMarkets)
	}
	if s.SharedMarkets > 0 {
		s.OutcomeAgreement = float64(agree) / float64(s.SharedMarkets)
	}
	if s.TimedMarkets > 0 {
		horizon := e.cfg.TimingHorizon.Hours()
		if horizon <= 0 {
			horizon = 24
		}
		avg := gapHours / float64(s.TimedMarkets)
		s.TimingSimilarity = 1 - math.Min(avg/horizon, 1)
	}

	s.Composite = e.cfg.OverlapWeight*s.MarketOverlap +
		e.cfg.AgreementWeight*s.OutcomeAgreement +
		e.cfg.TimingWeight*s.TimingSimilarity
	return s
}

// Compute scores all pairs of tracked traders. Each row of the pair triangle
// runs in its own goroutine and writes only its own result slot.
func (e *PairwiseEngine) Compute(ctx context.Context, snap *snapshot.Snapshot) (*Matrix, error) {
	started := time.Now()
	traders := snap.Tracked()

	profiles := make([]profile, len(traders))
	markets := make(map[string]int, len(traders))
	for i, trader := range traders {
		profiles[i] = buildProfile(snap.TradesForTrader(trader))
		markets[trader] = len(profiles[i])
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rows := make([][]Score, len(traders))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range traders {
		i := i
		g.Go(func() error {
			for j := i + 1; j < len(traders); j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				s := e.score(traders[i], traders[j], profiles[i], profiles[j])
				if s.SharedMarkets < e.cfg.MinSharedMarkets || s.SharedMarkets == 0 {
					continue
				}
				rows[i] = append(rows[i], s)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var scores []Score
	for _, row := range rows {
		scores = append(scores, row...)
	}
	m := newMatrix(e.cfg, traders, markets, scores)

	log.Info().
		Int("traders", len(traders)).
		Int("pairs", len(scores)).
		Dur("elapsed", time.Since(started)).
		Msg("Correlation matrix computed")

	return m, nil
}
