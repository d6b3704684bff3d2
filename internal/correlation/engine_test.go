package correlation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func trade(trader, market, outcome string, at time.Time) types.Trade {
	return types.Trade{
		ID:        fmt.Sprintf("%s/%s/%s/%d", trader, market, outcome, at.UnixNano()),
		Trader:    trader,
		MarketID:  market,
		Outcome:   outcome,
		Shares:    10,
		Price:     0.5,
		Side:      types.SideBuy,
		Timestamp: at,
	}
}

// history builds one trade per market, all on outcome, spaced an hour apart
// starting at start.
func history(trader, outcome string, start time.Time, markets ...string) []types.Trade {
	var out []types.Trade
	for i, m := range markets {
		out = append(out, trade(trader, m, outcome, start.Add(time.Duration(i)*time.Hour)))
	}
	return out
}

func TestScorePairBounded(t *testing.T) {
	e := NewPairwise(DefaultConfig())

	tests := []struct {
		name string
		a, b []types.Trade
	}{
		{"identical", history("A", "Yes", t0, "m1", "m2", "m3"), history("B", "Yes", t0, "m1", "m2", "m3")},
		{"opposite late", history("A", "Yes", t0, "m1", "m2", "m3"), history("B", "No", t0.Add(72*time.Hour), "m1", "m2", "m3")},
		{"partial", history("A", "Yes", t0, "m1", "m2", "m3", "m4"), history("B", "yes", t0.Add(5*time.Hour), "m2", "m3", "m4", "m5", "m6")},
		{"undated", history("A", "Yes", time.Time{}, "m1", "m2", "m3"), history("B", "Yes", t0, "m1", "m2", "m3")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := e.ScorePair("A", "B", tt.a, tt.b)
			for name, v := range map[string]float64{
				"overlap":   s.MarketOverlap,
				"agreement": s.OutcomeAgreement,
				"timing":    s.TimingSimilarity,
				"composite": s.Composite,
			} {
				if v < 0 || v > 1+1e-9 {
					t.Errorf("Expected %s in [0,1], got %f", name, v)
				}
			}
		})
	}
}

func TestScorePairSelfSimilarity(t *testing.T) {
	e := NewPairwise(DefaultConfig())

	trades := append(history("A", "Yes", t0, "m1", "m2", "m3"), trade("A", "m2", "no", t0.Add(30*time.Hour)))
	var copied []types.Trade
	for _, tr := range trades {
		tr.Trader = "A2"
		copied = append(copied, tr)
	}

	s := e.ScorePair("A", "A2", trades, copied)
	if s.MarketOverlap != 1 || s.OutcomeAgreement != 1 || s.TimingSimilarity != 1 {
		t.Errorf("Expected perfect sub-scores, got %+v", s)
	}
	if math.Abs(s.Composite-1) > 1e-9 {
		t.Errorf("Expected composite 1, got %f", s.Composite)
	}
}

func TestScorePairComponents(t *testing.T) {
	e := NewPairwise(DefaultConfig())

	a := []types.Trade{
		trade("A", "m1", "Yes", t0),
		trade("A", "m2", "Yes", t0),
		trade("A", "m2", "No", t0.Add(time.Hour)),
		trade("A", "m2", "No", t0.Add(2*time.Hour)),
		trade("A", "m3", "Yes", t0),
		trade("A", "m4", "Yes", t0),
	}
	b := []types.Trade{
		trade("B", "m1", "YES", t0.Add(6*time.Hour)),
		trade("B", "m2", "yes", t0.Add(6*time.Hour)),
		trade("B", "m3", "Yes", time.Time{}),
		trade("B", "m5", "Yes", t0),
	}

	s := e.ScorePair("B", "A", b, a)

	if s.TraderA != "A" || s.TraderB != "B" {
		t.Errorf("Expected ordered pair A,B got %s,%s", s.TraderA, s.TraderB)
	}
	if s.SharedMarkets != 3 || s.TotalMarkets != 5 {
		t.Errorf("Expected 3 shared of 5 total, got %d of %d", s.SharedMarkets, s.TotalMarkets)
	}
	if math.Abs(s.MarketOverlap-0.6) > 1e-9 {
		t.Errorf("Expected overlap 0.6, got %f", s.MarketOverlap)
	}
	// m2: A mostly No, B Yes.
	if math.Abs(s.OutcomeAgreement-2.0/3) > 1e-9 {
		t.Errorf("Expected agreement 2/3, got %f", s.OutcomeAgreement)
	}
	// m3 has no usable timestamp for B and is left out of timing.
	if s.TimedMarkets != 2 {
		t.Errorf("Expected 2 timed markets, got %d", s.TimedMarkets)
	}
	if math.Abs(s.TimingSimilarity-0.75) > 1e-9 {
		t.Errorf("Expected timing 0.75, got %f", s.TimingSimilarity)
	}
	want := 0.3*0.6 + 0.5*(2.0/3) + 0.2*0.75
	if math.Abs(s.Composite-want) > 1e-9 {
		t.Errorf("Expected composite %f, got %f", want, s.Composite)
	}
}

func TestScorePairOutcomeTies(t *testing.T) {
	e := NewPairwise(DefaultConfig())

	a := []types.Trade{
		trade("A", "m1", "No", t0),
		trade("A", "m1", "Yes", t0.Add(time.Hour)),
	}
	b := []types.Trade{trade("B", "m1", "no", t0)}

	if s := e.ScorePair("A", "B", a, b); s.OutcomeAgreement != 1 {
		t.Errorf("Expected first-seen outcome to win the tie, got agreement %f", s.OutcomeAgreement)
	}
}

func TestComputeOmitsThinPairs(t *testing.T) {
	var trades []types.Trade
	trades = append(trades, history("A", "Yes", t0, "m1", "m2", "m3")...)
	trades = append(trades, history("B", "Yes", t0, "m1", "m2", "m3")...)
	trades = append(trades, history("C", "No", t0.Add(48*time.Hour), "m1", "m2", "m3")...)
	trades = append(trades, history("D", "Yes", t0, "m1", "m2")...)
	trades = append(trades, history("E", "Yes", t0, "x1", "x2", "x3")...)

	m, err := NewPairwise(DefaultConfig()).Compute(context.Background(), snapshot.New(nil, trades, nil))
	if err != nil {
		t.Fatal(err)
	}

	ab, ok := m.Get("B", "A")
	if !ok || math.Abs(ab.Composite-1) > 1e-9 {
		t.Errorf("Expected A,B composite 1, got %+v ok=%v", ab, ok)
	}
	ac, ok := m.Get("A", "C")
	if !ok || math.Abs(ac.Composite-0.3) > 1e-9 {
		t.Errorf("Expected A,C composite 0.3, got %+v ok=%v", ac, ok)
	}
	if _, ok := m.Get("A", "D"); ok {
		t.Error("Expected pair with 2 shared markets to be omitted")
	}
	if _, ok := m.Get("A", "E"); ok {
		t.Error("Expected disjoint pair to be omitted")
	}
	if s := NewPairwise(DefaultConfig()).ScorePair("A", "E", history("A", "Yes", t0, "m1"), history("E", "Yes", t0, "x1")); s.MarketOverlap != 0 {
		t.Errorf("Expected zero overlap for disjoint traders, got %f", s.MarketOverlap)
	}

	if len(m.Scores()) != 3 {
		t.Errorf("Expected 3 scored pairs (AB, AC, BC), got %d", len(m.Scores()))
	}
	if m.Scores()[0].Composite < m.Scores()[len(m.Scores())-1].Composite {
		t.Error("Expected scores strongest first")
	}
	if got := len(m.HighPairs(0.6)); got != 1 {
		t.Errorf("Expected 1 high pair, got %d", got)
	}
}

func TestComputeWorkersAgree(t *testing.T) {
	var trades []types.Trade
	for i := 0; i < 12; i++ {
		trader := fmt.Sprintf("T%02d", i)
		outcome := "Yes"
		if i%3 == 0 {
			outcome = "No"
		}
		trades = append(trades, history(trader, outcome, t0.Add(time.Duration(i)*time.Hour), "m1", "m2", "m3", fmt.Sprintf("own%d", i%4))...)
	}
	snap := snapshot.New(nil, trades, nil)

	serial := DefaultConfig()
	serial.Workers = 1
	parallel := DefaultConfig()
	parallel.Workers = 8

	a, err := NewPairwise(serial).Compute(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewPairwise(parallel).Compute(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Scores()) != len(b.Scores()) {
		t.Fatalf("Expected equal pair counts, got %d and %d", len(a.Scores()), len(b.Scores()))
	}
	for i := range a.Scores() {
		if a.Scores()[i] != b.Scores()[i] {
			t.Errorf("Pair %d differs: %+v vs %+v", i, a.Scores()[i], b.Scores()[i])
		}
	}
}

func TestComputeCancelled(t *testing.T) {
	var trades []types.Trade
	for _, trader := range []string{"A", "B", "C"} {
		trades = append(trades, history(trader, "Yes", t0, "m1", "m2", "m3")...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPairwise(DefaultConfig()).Compute(ctx, snapshot.New(nil, trades, nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestComputeEmpty(t *testing.T) {
	m, err := NewPairwise(DefaultConfig()).Compute(context.Background(), snapshot.New(nil, nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Scores()) != 0 || len(m.Clusters()) != 0 || len(m.Independent()) != 0 {
		t.Error("Expected empty matrix")
	}
}
