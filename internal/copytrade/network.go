package copytrade

import (
	"math"
	"sort"
)

// Trader roles in the copy network.
const (
	RoleLeader      = "leader"
	RoleFollower    = "follower"
	RoleMixed       = "mixed"
	RoleIndependent = "independent"
)

// Signal independence flags.
const (
	FlagValid   = "VALID"
	FlagWarning = "WARNING"
	FlagInvalid = "INVALID"
)

// Edge points at the other side of a relationship.
type Edge struct {
	Trader      string  `json:"trader" yaml:"trader"`
	Score       float64 `json:"score" yaml:"score"`
	AvgLagHours float64 `json:"avg_lag_hours" yaml:"avg_lag_hours"`
}

type NetworkStats struct {
	TotalTraders          int     `json:"total_traders" yaml:"total_traders"`
	Leaders               int     `json:"leaders" yaml:"leaders"`
	Followers             int     `json:"followers" yaml:"followers"`
	Independent           int     `json:"independent" yaml:"independent"`
	Relationships         int     `json:"relationships" yaml:"relationships"`
	AvgFollowersPerLeader float64 `json:"avg_followers_per_leader" yaml:"avg_followers_per_leader"`
}

// Network is the leader/follower graph of one run. Leaders maps a leader to
// its followers and Followers maps a follower to the leaders it copies.
type Network struct {
	Leaders     map[string][]Edge `json:"leaders" yaml:"leaders"`
	Followers   map[string][]Edge `json:"followers" yaml:"followers"`
	Independent []string          `json:"independent" yaml:"independent"`
	Stats       NetworkStats      `json:"stats" yaml:"stats"`

	cfg Config
}

// BuildNetwork aggregates relationships into adjacency lists. Tracked traders
// on neither side are independent.
func (d *Detector) BuildNetwork(relationships []Relationship, tracked []string) *Network {
	n := &Network{
		Leaders:   make(map[string][]Edge),
		Followers: make(map[string][]Edge),
		cfg:       d.cfg,
	}

	for _, r := range relationships {
		n.Leaders[r.Leader] = append(n.Leaders[r.Leader], Edge{Trader: r.Follower, Score: r.Score, AvgLagHours: r.AvgLagHours})
		n.Followers[r.Follower] = append(n.Followers[r.Follower], Edge{Trader: r.Leader, Score: r.Score, AvgLagHours: r.AvgLagHours})
	}

	for _, trader := range tracked {
		_, leads := n.Leaders[trader]
		_, follows := n.Followers[trader]
		if !leads && !follows {
			n.Independent = append(n.Independent, trader)
		}
	}
	sort.Strings(n.Independent)

	n.Stats = NetworkStats{
		TotalTraders:  len(tracked),
		Leaders:       len(n.Leaders),
		Followers:     len(n.Followers),
		Independent:   len(n.Independent),
		Relationships: len(relationships),
	}
	if len(n.Leaders) > 0 {
		var edges int
		for _, followers := range n.Leaders {
			edges += len(followers)
		}
		n.Stats.AvgFollowersPerLeader = float64(edges) / float64(len(n.Leaders))
	}

	return n
}

// LeaderNames returns every leader, sorted.
func (n *Network) LeaderNames() []string {
	out := make([]string, 0, len(n.Leaders))
	for leader := range n.Leaders {
		out = append(out, leader)
	}
	sort.Strings(out)
	return out
}

type Classification struct {
	Trader           string  `json:"trader" yaml:"trader"`
	Role             string  `json:"role" yaml:"role"`
	Followers        []Edge  `json:"followers" yaml:"followers"`
	Follows          []Edge  `json:"follows" yaml:"follows"`
	LeaderScore      float64 `json:"leader_score" yaml:"leader_score"`
	AvgReactionHours float64 `json:"avg_reaction_hours" yaml:"avg_reaction_hours"`
}

// Classify describes a trader's role in the network.
func (n *Network) Classify(trader string) Classification {
	c := Classification{
		Trader:    trader,
		Followers: n.Leaders[trader],
		Follows:   n.Followers[trader],
	}

	switch leads, follows := len(c.Followers) > 0, len(c.Follows) > 0; {
	case leads && follows:
		c.Role = RoleMixed
	case leads:
		c.Role = RoleLeader
	case follows:
		c.Role = RoleFollower
	default:
		c.Role = RoleIndependent
	}

	if n.cfg.LeaderScoreFollowers > 0 {
		c.LeaderScore = math.Min(100, float64(len(c.Followers))/float64(n.cfg.LeaderScoreFollowers)*100)
	}
	if len(c.Follows) > 0 {
		var sum float64
		for _, e := range c.Follows {
			sum += e.AvgLagHours
		}
		c.AvgReactionHours = sum / float64(len(c.Follows))
	}

	return c
}

// CopyPair is a leader and follower who both hold a position on the same market.
type CopyPair struct {
	Leader   string `json:"leader" yaml:"leader"`
	Follower string `json:"follower" yaml:"follower"`
}

// SignalIndependence tells whether the traders behind a market signal are
// acting on their own.
type SignalIndependence struct {
	MarketID    string     `json:"market_id" yaml:"market_id"`
	Total       int        `json:"total" yaml:"total"`
	Independent int        `json:"independent" yaml:"independent"`
	Followers   int        `json:"followers" yaml:"followers"`
	Ratio       float64    `json:"ratio" yaml:"ratio"`
	CopyPairs   []CopyPair `json:"copy_pairs" yaml:"copy_pairs"`
	Flag        string     `json:"flag" yaml:"flag"`
}

// CheckIndependence splits traders into followers and everyone else. Leaders
// and traders the network knows nothing about count as independent.
func (n *Network) CheckIndependence(marketID string, traders []string) SignalIndependence {
	si := SignalIndependence{MarketID: marketID, Total: len(traders)}

	present := make(map[string]bool, len(traders))
	for _, t := range traders {
		present[t] = true
	}

	for _, t := range traders {
		leaders, follows := n.Followers[t]
		if !follows {
			si.Independent++
			continue
		}
		si.Followers++
		for _, e := range leaders {
			if present[e.Trader] {
				si.CopyPairs = append(si.CopyPairs, CopyPair{Leader: e.Trader, Follower: t})
			}
		}
	}

	if si.Total > 0 {
		si.Ratio = float64(si.Independent) / float64(si.Total)
	}
	switch {
	case si.Ratio >= n.cfg.ValidRatio:
		si.Flag = FlagValid
	case si.Ratio >= n.cfg.WarningRatio:
		si.Flag = FlagWarning
	default:
		si.Flag = FlagInvalid
	}

	return si
}
