package correlation

import (
	"math"
	"sort"
)

// Cluster types.
const (
	ClusterSuspicious = "suspicious"
	ClusterTight      = "tight"
	ClusterLoose      = "loose"
)

type pairKey struct{ a, b string }

func keyOf(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Matrix holds the scored pairs of one run. Pairs below the shared-market
// minimum are absent, which is not the same as a zero correlation.
type Matrix struct {
	cfg      Config
	traders  []string
	markets  map[string]int
	scores   []Score
	index    map[pairKey]int
	byTrader map[string][]int
}

func newMatrix(cfg Config, traders []string, markets map[string]int, scores []Score) *Matrix {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Composite != scores[j].Composite {
			return scores[i].Composite > scores[j].Composite
		}
		if scores[i].TraderA != scores[j].TraderA {
			return scores[i].TraderA < scores[j].TraderA
		}
		return scores[i].TraderB < scores[j].TraderB
	})

	m := &Matrix{
		cfg:      cfg,
		traders:  traders,
		markets:  markets,
		scores:   scores,
		index:    make(map[pairKey]int, len(scores)),
		byTrader: make(map[string][]int),
	}
	for i, s := range scores {
		m.index[keyOf(s.TraderA, s.TraderB)] = i
		m.byTrader[s.TraderA] = append(m.byTrader[s.TraderA], i)
		m.byTrader[s.TraderB] = append(m.byTrader[s.TraderB], i)
	}
	return m
}

// Traders is the universe the matrix was computed over.
func (m *Matrix) Traders() []string {
	return m.traders
}

// Get returns the score for a pair in either order.
func (m *Matrix) Get(a, b string) (Score, bool) {
	i, ok := m.index[keyOf(a, b)]
	if !ok {
		return Score{}, false
	}
	return m.scores[i], true
}

// Scores returns every scored pair, strongest first.
func (m *Matrix) Scores() []Score {
	return m.scores
}

// HighPairs returns pairs with a composite at or above threshold.
func (m *Matrix) HighPairs(threshold float64) []Score {
	var out []Score
	for _, s := range m.scores {
		if s.Composite >= threshold {
			out = append(out, s)
		}
	}
	return out
}

// MeanCorrelations maps each trader with at least one scored pair to the
// mean composite across those pairs.
func (m *Matrix) MeanCorrelations() map[string]float64 {
	out := make(map[string]float64, len(m.byTrader))
	for trader, idx := range m.byTrader {
		var sum float64
		for _, i := range idx {
			sum += m.scores[i].Composite
		}
		out[trader] = sum / float64(len(idx))
	}
	return out
}

type Cluster struct {
	ID              int      `json:"id" yaml:"id"`
	Traders         []string `json:"traders" yaml:"traders"`
	Size            int      `json:"size" yaml:"size"`
	MeanCorrelation float64  `json:"mean_correlation" yaml:"mean_correlation"`
	Type            string   `json:"type" yaml:"type"`
}

// Clusters groups traders connected by pairs at or above ClusterThreshold.
// Connectivity is transitive: A-B and B-C put A and C together even when
// A-C is weak or unscored. Singletons are dropped.
func (m *Matrix) Clusters() []Cluster {
	adjacency := make(map[string][]string)
	for _, s := range m.scores {
		if s.Composite < m.cfg.ClusterThreshold {
			continue
		}
		adjacency[s.TraderA] = append(adjacency[s.TraderA], s.TraderB)
		adjacency[s.TraderB] = append(adjacency[s.TraderB], s.TraderA)
	}

	starts := make([]string, 0, len(adjacency))
	for trader := range adjacency {
		starts = append(starts, trader)
	}
	sort.Strings(starts)

	visited := make(map[string]bool)
	var clusters []Cluster
	for _, start := range starts {
		if visited[start] {
			continue
		}

		var members []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			members = append(members, current)
			for _, next := range adjacency[current] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)

		var sum float64
		var n int
		for i, a := range members {
			for _, b := range members[i+1:] {
				if s, ok := m.Get(a, b); ok {
					sum += s.Composite
					n++
				}
			}
		}
		mean := 0.0
		if n > 0 {
			mean = sum / float64(n)
		}

		clusters = append(clusters, Cluster{
			Traders:         members,
			Size:            len(members),
			MeanCorrelation: mean,
			Type:            m.clusterType(mean),
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].MeanCorrelation > clusters[j].MeanCorrelation
	})
	for i := range clusters {
		clusters[i].ID = i + 1
	}
	return clusters
}

func (m *Matrix) clusterType(mean float64) string {
	switch {
	case mean >= m.cfg.SuspiciousCluster:
		return ClusterSuspicious
	case mean >= m.cfg.TightCluster:
		return ClusterTight
	default:
		return ClusterLoose
	}
}

// IndependentTrader ranks a trader by how little they resemble anyone else.
// A trader with no scored pairs has ScoredPairs 0 and a mean of 0, so ranks
// as fully independent for lack of evidence.
type IndependentTrader struct {
	Trader          string  `json:"trader" yaml:"trader"`
	MeanCorrelation float64 `json:"mean_correlation" yaml:"mean_correlation"`
	MaxCorrelation  float64 `json:"max_correlation" yaml:"max_correlation"`
	Score           float64 `json:"score" yaml:"score"`
	ScoredPairs     int     `json:"scored_pairs" yaml:"scored_pairs"`
	Markets         int     `json:"markets" yaml:"markets"`
}

// Independent lists tracked traders whose mean correlation is below
// IndependenceThreshold, most independent first.
func (m *Matrix) Independent() []IndependentTrader {
	return m.independentBelow(m.cfg.IndependenceThreshold)
}

func (m *Matrix) independentBelow(threshold float64) []IndependentTrader {
	means := m.MeanCorrelations()

	var out []IndependentTrader
	for _, trader := range m.traders {
		mean := means[trader]
		if mean >= threshold {
			continue
		}
		it := IndependentTrader{
			Trader:          trader,
			MeanCorrelation: mean,
			Score:           (1 - mean) * 100,
			ScoredPairs:     len(m.byTrader[trader]),
			Markets:         m.markets[trader],
		}
		for _, i := range m.byTrader[trader] {
			it.MaxCorrelation = math.Max(it.MaxCorrelation, m.scores[i].Composite)
		}
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

type Peer struct {
	Trader    string  `json:"trader" yaml:"trader"`
	Composite float64 `json:"composite" yaml:"composite"`
}

// Relationship summarizes one trader's place in the matrix.
type Relationship struct {
	Trader           string  `json:"trader" yaml:"trader"`
	MeanCorrelation  float64 `json:"mean_correlation" yaml:"mean_correlation"`
	ScoredPairs      int     `json:"scored_pairs" yaml:"scored_pairs"`
	MostSimilar      []Peer  `json:"most_similar" yaml:"most_similar"`
	LeastSimilar     []Peer  `json:"least_similar" yaml:"least_similar"`
	ClusterID        int     `json:"cluster_id,omitempty" yaml:"cluster_id,omitempty"`
	ClusterType      string  `json:"cluster_type,omitempty" yaml:"cluster_type,omitempty"`
	IndependenceRank int     `json:"independence_rank" yaml:"independence_rank"`
}

// Relationships returns the n most and least similar peers of trader, its
// cluster if any, and its rank among all traders by independence.
func (m *Matrix) Relationships(trader string, n int) Relationship {
	r := Relationship{Trader: trader}

	var peers []Peer
	for _, i := range m.byTrader[trader] {
		s := m.scores[i]
		peers = append(peers, Peer{Trader: s.Other(trader), Composite: s.Composite})
		r.MeanCorrelation += s.Composite
	}
	r.ScoredPairs = len(peers)
	if r.ScoredPairs > 0 {
		r.MeanCorrelation /= float64(r.ScoredPairs)
	}

	// byTrader indexes into scores, which are already strongest first.
	k := max(0, min(n, len(peers)))
	r.MostSimilar = append([]Peer(nil), peers[:k]...)
	for i := len(peers) - 1; i >= len(peers)-k; i-- {
		r.LeastSimilar = append(r.LeastSimilar, peers[i])
	}

	for _, c := range m.Clusters() {
		if i := sort.SearchStrings(c.Traders, trader); i < len(c.Traders) && c.Traders[i] == trader {
			r.ClusterID = c.ID
			r.ClusterType = c.Type
			break
		}
	}

	for i, it := range m.independentBelow(math.Inf(1)) {
		if it.Trader == trader {
			r.IndependenceRank = i + 1
			break
		}
	}

	return r
}
