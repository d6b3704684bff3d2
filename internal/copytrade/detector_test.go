package copytrade

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

var t0 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func trade(trader, market, outcome string, shares float64, at time.Time) types.Trade {
	return types.Trade{
		ID:        fmt.Sprintf("%s/%s/%d", trader, market, at.UnixNano()),
		Trader:    trader,
		MarketID:  market,
		Outcome:   outcome,
		Shares:    shares,
		Price:     0.5,
		Side:      types.SideBuy,
		Timestamp: at,
	}
}

// copies returns leader and follower trades over n markets where the follower
// enters each market lag after the leader.
func copies(leader, follower string, n int, lags ...time.Duration) []types.Trade {
	var out []types.Trade
	for i := 0; i < n; i++ {
		market := fmt.Sprintf("m%02d", i)
		at := t0.Add(time.Duration(i) * 72 * time.Hour)
		lag := lags[i%len(lags)]
		out = append(out,
			trade(leader, market, "Yes", 10, at),
			trade(follower, market, "yes", 10, at.Add(lag)),
		)
	}
	return out
}

func TestEndToEndLagScenario(t *testing.T) {
	trades := []types.Trade{
		trade("X", "M1", "Yes", 10, t0),
		trade("Y", "M1", "Yes", 10, t0.Add(2*time.Hour)),
		trade("Y", "M2", "Yes", 10, t0.Add(time.Hour)),
	}

	cfg := DefaultConfig()
	cfg.MinSharedMarkets = 1
	d := NewDetector(cfg, snapshot.New(nil, trades, nil))

	cs := d.Score("X", "Y")
	if len(cs.Lags) != 1 || cs.Lags[0].MarketID != "M1" || math.Abs(cs.Lags[0].Hours-2) > 1e-9 {
		t.Fatalf("Expected exactly one 2h lag on M1, got %+v", cs.Lags)
	}
	if cs.OrderPreservation != 1 || cs.OutcomeMatching != 1 {
		t.Errorf("Expected order and outcome 1.0, got %f and %f", cs.OrderPreservation, cs.OutcomeMatching)
	}
	if cs.SharedMarkets != 1 || cs.RetainedMarkets != 1 {
		t.Errorf("Expected 1 shared and retained market, got %d and %d", cs.SharedMarkets, cs.RetainedMarkets)
	}

	rels, err := d.Detect(context.Background(), d.Candidates(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 1 {
		t.Fatalf("Expected one relationship, got %+v", rels)
	}
	if rels[0].Leader != "X" || rels[0].Follower != "Y" || rels[0].Tier != TierPerfect {
		t.Errorf("Expected X leading Y as perfect, got %+v", rels[0])
	}
}

func TestTimeConsistencyMonotonic(t *testing.T) {
	spreads := [][]float64{
		{2, 4, 6},
		{3, 4, 5},
		{3.5, 4, 4.5},
		{4, 4, 4},
	}

	prev := -1.0
	for _, lags := range spreads {
		tc := TimeConsistency(sampleStdDev(lags), 24*time.Hour)
		if tc < prev {
			t.Errorf("Expected consistency not to drop for tighter lags %v: %f < %f", lags, tc, prev)
		}
		prev = tc
	}
	if prev != 1 {
		t.Errorf("Expected identical lags to score 1, got %f", prev)
	}
	if got := TimeConsistency(48, 24*time.Hour); got != 0 {
		t.Errorf("Expected consistency floored at 0, got %f", got)
	}
}

func TestScoreMonotonicUnderSpread(t *testing.T) {
	wide := copies("L", "W", 3, 2*time.Hour, 4*time.Hour, 6*time.Hour)
	narrow := copies("L", "N", 3, 3*time.Hour, 4*time.Hour, 5*time.Hour)

	var trades []types.Trade
	trades = append(trades, wide...)
	for _, tr := range narrow {
		if tr.Trader == "N" {
			trades = append(trades, tr)
		}
	}
	d := NewDetector(DefaultConfig(), snapshot.New(nil, trades, nil))

	w, n := d.Score("L", "W"), d.Score("L", "N")
	if math.Abs(w.AvgLagHours-n.AvgLagHours) > 1e-9 {
		t.Fatalf("Expected equal mean lags, got %f and %f", w.AvgLagHours, n.AvgLagHours)
	}
	if n.TimeConsistency < w.TimeConsistency || n.Score < w.Score {
		t.Errorf("Expected tighter lags to score at least as high: %+v vs %+v", n, w)
	}
	if math.Abs(w.LagStdDev-2) > 1e-9 {
		t.Errorf("Expected sample std dev 2, got %f", w.LagStdDev)
	}
}

func TestScoreLagWindow(t *testing.T) {
	trades := []types.Trade{
		trade("L", "fast", "Yes", 10, t0),
		trade("F", "fast", "Yes", 10, t0.Add(5*time.Minute)),
		trade("L", "ok", "Yes", 10, t0),
		trade("F", "ok", "No", 30, t0.Add(time.Hour)),
		trade("L", "slow", "Yes", 10, t0),
		trade("F", "slow", "Yes", 10, t0.Add(50*time.Hour)),
		trade("L", "undated", "Yes", 10, t0),
		trade("F", "undated", "Yes", 10, time.Time{}),
		trade("F", "before", "Yes", 10, t0),
		trade("L", "before", "Yes", 10, t0.Add(3*time.Hour)),
	}
	d := NewDetector(DefaultConfig(), snapshot.New(nil, trades, nil))

	cs := d.Score("L", "F")
	if cs.SharedMarkets != 5 {
		t.Errorf("Expected 5 shared markets, got %d", cs.SharedMarkets)
	}
	if cs.RetainedMarkets != 1 || cs.Lags[0].MarketID != "ok" {
		t.Fatalf("Expected only the 1h lag retained, got %+v", cs.Lags)
	}
	if cs.OutcomeMatching != 0 {
		t.Errorf("Expected outcome mismatch, got %f", cs.OutcomeMatching)
	}
	// 30 shares against 10 caps the ratio at 2, a full mismatch.
	if cs.VolumeCorrelation != 0 {
		t.Errorf("Expected volume correlation 0, got %f", cs.VolumeCorrelation)
	}
	if want := 0.4*1 + 0.2*1; math.Abs(cs.Score-want) > 1e-9 {
		t.Errorf("Expected score %f, got %f", want, cs.Score)
	}

	empty := d.Score("L", "Nobody")
	if empty.Score != 0 || empty.RetainedMarkets != 0 {
		t.Errorf("Expected neutral score, got %+v", empty)
	}
}

func TestDetectThresholds(t *testing.T) {
	var trades []types.Trade
	trades = append(trades, copies("A", "B", 5, time.Hour)...)
	trades = append(trades, copies("C", "D", 4, time.Hour)...)

	d := NewDetector(DefaultConfig(), snapshot.New(nil, trades, nil))
	rels, err := d.Detect(context.Background(), []Pair{{A: "A", B: "B"}, {A: "C", B: "D"}})
	if err != nil {
		t.Fatal(err)
	}

	if len(rels) != 1 {
		t.Fatalf("Expected only A leading B, got %+v", rels)
	}
	if rels[0].Leader != "A" || rels[0].RetainedMarkets != 5 || math.Abs(rels[0].Score-1) > 1e-9 {
		t.Errorf("Unexpected relationship %+v", rels[0])
	}
}

func TestTier(t *testing.T) {
	d := NewDetector(DefaultConfig(), snapshot.New(nil, nil, nil))

	tests := []struct {
		score float64
		want  string
	}{
		{0.95, TierPerfect},
		{0.9, TierPerfect},
		{0.75, TierStrong},
		{0.5, TierModerate},
		{0.3, TierWeak},
	}
	for _, tt := range tests {
		if got := d.Tier(tt.score); got != tt.want {
			t.Errorf("Tier(%.2f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestDetectCancelled(t *testing.T) {
	d := NewDetector(DefaultConfig(), snapshot.New(nil, copies("A", "B", 5, time.Hour), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Detect(ctx, []Pair{{A: "A", B: "B"}}); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestCandidatesWithoutMatrix(t *testing.T) {
	d := NewDetector(DefaultConfig(), snapshot.New(nil, nil, []string{"C", "A", "B"}))

	got := d.Candidates(nil)
	want := []Pair{{A: "A", B: "B"}, {A: "A", B: "C"}, {A: "B", B: "C"}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d candidates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Candidate %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
