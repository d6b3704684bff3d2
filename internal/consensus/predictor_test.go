package consensus

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/rating"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// fixedWeights assigns each trader a fixed weight; unknown traders weigh 1500.
type fixedWeights struct {
	weights map[string]float64
	boosted map[string]bool
}

func (f fixedWeights) Weight(trader, _ string) (float64, bool) {
	w, ok := f.weights[trader]
	if !ok {
		w = 1500
	}
	return w, f.boosted[trader]
}

func weights(w map[string]float64) fixedWeights {
	return fixedWeights{weights: w}
}

func trade(trader, market, outcome string, at time.Time) types.Trade {
	return types.Trade{
		ID:        fmt.Sprintf("%s-%s-%s-%d", trader, market, outcome, at.Unix()),
		Trader:    trader,
		MarketID:  market,
		Outcome:   outcome,
		Shares:    100,
		Price:     0.5,
		Side:      types.SideBuy,
		Timestamp: at,
	}
}

func TestPredictConsensusScenario(t *testing.T) {
	p := NewPredictor(DefaultConfig(), weights(map[string]float64{
		"0xA": 1800,
		"0xB": 1600,
		"0xC": 1400,
	}))

	trades := []types.Trade{
		trade("0xA", "m3", "Yes", t0),
		trade("0xB", "m3", "No", t0.Add(time.Minute)),
		trade("0xC", "m3", "Yes", t0.Add(2*time.Minute)),
	}

	pred := p.Predict(types.Market{ID: "m3", Title: "M3"}, trades)

	if pred.PredictedOutcome != "Yes" {
		t.Errorf("Expected Yes, got %q", pred.PredictedOutcome)
	}
	if want := (3200.0 - 1600.0) / 4800.0 * 100; math.Abs(pred.Confidence-want) > 1e-9 {
		t.Errorf("Expected confidence %.4f, got %.4f", want, pred.Confidence)
	}
	if math.Abs(pred.ExpectedProbability-200.0/3) > 1e-9 {
		t.Errorf("Expected probability 66.67, got %.4f", pred.ExpectedProbability)
	}
	if pred.Signal != "weak" {
		t.Errorf("Expected weak signal, got %s", pred.Signal)
	}
	if pred.TotalTraders != 3 {
		t.Errorf("Expected 3 traders, got %d", pred.TotalTraders)
	}
	if pred.Agreement[10] != 2 || pred.Agreement[20] != 2 {
		t.Errorf("Expected 2 agreeing top traders, got %v", pred.Agreement)
	}
	if len(pred.Outcomes) != 2 || pred.Outcomes[0].Weight != 3200 || pred.Outcomes[1].Weight != 1600 {
		t.Errorf("Unexpected outcome weights %+v", pred.Outcomes)
	}
}

func TestPredictPositions(t *testing.T) {
	tests := []struct {
		name   string
		trades []types.Trade
		want   string
	}{
		{
			name: "latest position wins",
			trades: []types.Trade{
				trade("0xA", "m", "Yes", t0),
				trade("0xA", "m", "No", t0.Add(time.Hour)),
			},
			want: "No",
		},
		{
			name: "input order does not matter",
			trades: []types.Trade{
				trade("0xA", "m", "No", t0.Add(time.Hour)),
				trade("0xA", "m", "Yes", t0),
			},
			want: "No",
		},
		{
			name: "undated trade never overrides a dated one",
			trades: []types.Trade{
				trade("0xA", "m", "Yes", t0),
				trade("0xA", "m", "No", time.Time{}),
			},
			want: "Yes",
		},
		{
			name: "outcomes are case-insensitive and keep the first label",
			trades: []types.Trade{
				trade("0xA", "m", "yes", t0),
				trade("0xB", "m", "YES", t0),
				trade("0xC", "m", "No", t0),
			},
			want: "yes",
		},
		{
			name: "ties go to the first outcome seen",
			trades: []types.Trade{
				trade("0xA", "m", "No", t0),
				trade("0xB", "m", "Yes", t0),
			},
			want: "No",
		},
	}

	p := NewPredictor(DefaultConfig(), weights(nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := p.Predict(types.Market{ID: "m"}, tt.trades)
			if pred.PredictedOutcome != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, pred.PredictedOutcome)
			}
		})
	}
}

func TestBackers(t *testing.T) {
	trades := []types.Trade{
		trade("0xC", "m", "Yes", t0),
		trade("0xA", "m", "No", t0),
		trade("0xA", "m", "yes", t0.Add(time.Hour)),
		trade("0xB", "m", "Yes", t0),
		trade("0xB", "m", "No", t0.Add(time.Hour)),
	}

	got := Backers(trades, "YES")
	if len(got) != 2 || got[0] != "0xA" || got[1] != "0xC" {
		t.Errorf("Expected 0xA and 0xC backing Yes, got %v", got)
	}
	if got := Backers(nil, "Yes"); len(got) != 0 {
		t.Errorf("Expected no backers, got %v", got)
	}
}

func TestPredictTies(t *testing.T) {
	p := NewPredictor(DefaultConfig(), weights(nil))
	trades := []types.Trade{
		trade("0xA", "m", "No", t0),
		trade("0xB", "m", "Yes", t0),
	}

	first := p.Predict(types.Market{ID: "m"}, trades)
	second := p.Predict(types.Market{ID: "m"}, trades)
	if first.PredictedOutcome != second.PredictedOutcome {
		t.Error("Expected deterministic tie-break")
	}
	if first.Confidence != 0 || first.Signal != SignalNone {
		t.Errorf("Expected zero confidence and no signal, got %.2f %s", first.Confidence, first.Signal)
	}
}

func TestPredictEmpty(t *testing.T) {
	p := NewPredictor(DefaultConfig(), weights(nil))
	pred := p.Predict(types.Market{ID: "m"}, nil)

	if pred.PredictedOutcome != "" || pred.Confidence != 0 || pred.Signal != SignalNone || pred.TotalTraders != 0 {
		t.Errorf("Expected neutral prediction, got %+v", pred)
	}
}

func TestPredictTiers(t *testing.T) {
	var trades []types.Trade
	w := map[string]float64{"0xNo": 100}
	for i := 0; i < 10; i++ {
		trader := fmt.Sprintf("0x%02d", i)
		w[trader] = 1600
		trades = append(trades, trade(trader, "m", "Yes", t0))
	}
	trades = append(trades, trade("0xNo", "m", "No", t0))

	t.Run("strong", func(t *testing.T) {
		pred := NewPredictor(DefaultConfig(), weights(w)).Predict(types.Market{ID: "m"}, trades)
		if pred.Signal != "strong" {
			t.Errorf("Expected strong signal, got %s (confidence %.2f, agreement %v)", pred.Signal, pred.Confidence, pred.Agreement)
		}
		if pred.Agreement[10] != 10 {
			t.Errorf("Expected all top 10 to agree, got %d", pred.Agreement[10])
		}
	})

	t.Run("agreement gate", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tiers = []Tier{
			{Name: "unanimous", MinConfidence: 0, TopN: 11, MinAgree: 11},
			{Name: "fallback", MinConfidence: 0},
		}
		pred := NewPredictor(cfg, weights(w)).Predict(types.Market{ID: "m"}, trades)
		if pred.Signal != "fallback" {
			t.Errorf("Expected fallback signal, got %s", pred.Signal)
		}
	})

	t.Run("confidence is strict", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tiers = []Tier{{Name: "exact", MinConfidence: 100}}
		pred := NewPredictor(cfg, weights(nil)).Predict(types.Market{ID: "m"}, []types.Trade{trade("0xA", "m", "Yes", t0)})
		if pred.Confidence != 100 {
			t.Fatalf("Expected 100 confidence, got %.2f", pred.Confidence)
		}
		if pred.Signal != SignalNone {
			t.Errorf("Expected no signal at the boundary, got %s", pred.Signal)
		}
	})
}

func TestPredictSpecialistVotes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpecialistQuorumAgree = 2
	cfg.SpecialistQuorumTotal = 3

	fw := fixedWeights{
		weights: map[string]float64{},
		boosted: map[string]bool{"0xA": true, "0xB": true, "0xC": true},
	}
	trades := []types.Trade{
		trade("0xA", "m", "Yes", t0),
		trade("0xB", "m", "Yes", t0),
		trade("0xC", "m", "No", t0),
		trade("0xD", "m", "Yes", t0),
	}

	pred := NewPredictor(cfg, fw).Predict(types.Market{ID: "m"}, trades)
	if pred.SpecialistVotes != 2 || pred.SpecialistTotal != 3 {
		t.Errorf("Expected 2 of 3 specialist votes, got %d of %d", pred.SpecialistVotes, pred.SpecialistTotal)
	}
	if !pred.SpecialistConsensus {
		t.Error("Expected specialist consensus")
	}
}

func TestSpecialistWeights(t *testing.T) {
	eng := rating.NewCategory(rating.DefaultConfig())
	for i := 0; i < 5; i++ {
		eng.UpdateRating(rating.Key{Trader: "0xS", Category: "Politics"}, rating.Update{
			MarketID: fmt.Sprintf("p%d", i), Actual: 1, Opponent: 1500, BetWeight: 1, Difficulty: 10,
		})
		eng.UpdateRating(rating.Key{Trader: "0xS", Category: "Sports"}, rating.Update{
			MarketID: fmt.Sprintf("s%d", i), Actual: 0, Opponent: 1500, BetWeight: 1, Difficulty: 10,
		})
	}

	sw := NewSpecialistWeights(eng, DefaultConfig())

	w, boosted := sw.Weight("0xS", "Politics")
	if !boosted {
		t.Fatal("Expected Politics boost")
	}
	if want := eng.CategoryRating("0xS", "Politics") * 1.2; math.Abs(w-want) > 1e-9 {
		t.Errorf("Expected boosted weight %.2f, got %.2f", want, w)
	}

	w, boosted = sw.Weight("0xS", "Sports")
	if boosted || w != eng.CategoryRating("0xS", "Sports") {
		t.Errorf("Expected unboosted Sports weight, got %.2f boosted=%v", w, boosted)
	}

	w, boosted = sw.Weight("0xNew", "Politics")
	if boosted || w != 1500 {
		t.Errorf("Expected default weight for unknown trader, got %.2f boosted=%v", w, boosted)
	}

	g, _ := GlobalWeights{Ratings: eng}.Weight("0xS", "Politics")
	if g != eng.Overall("0xS") {
		t.Errorf("Expected overall rating as global weight, got %.2f", g)
	}
}

func TestPredictActive(t *testing.T) {
	markets := []types.Market{
		{ID: "close"},
		{ID: "clear"},
		{ID: "done", Resolved: true, WinningOutcome: "yes"},
	}
	trades := []types.Trade{
		trade("0xA", "close", "Yes", t0),
		trade("0xB", "close", "No", t0),
		trade("0xA", "clear", "Yes", t0),
		trade("0xA", "done", "Yes", t0),
	}

	p := NewPredictor(DefaultConfig(), weights(map[string]float64{"0xA": 1600, "0xB": 1400}))
	preds := p.PredictActive(snapshot.New(markets, trades, nil))

	if len(preds) != 2 {
		t.Fatalf("Expected 2 predictions, got %d", len(preds))
	}
	if preds[0].MarketID != "clear" || preds[1].MarketID != "close" {
		t.Errorf("Expected clear before close, got %s, %s", preds[0].MarketID, preds[1].MarketID)
	}
}

func TestBacktest(t *testing.T) {
	markets := []types.Market{
		{ID: "m1", Resolved: true, WinningOutcome: "yes"},
		{ID: "m2", Resolved: true, WinningOutcome: "no"},
		{ID: "m3"},
	}
	trades := []types.Trade{
		trade("0xA", "m1", "Yes", t0),
		trade("0xB", "m1", "No", t0),
		trade("0xC", "m1", "No", t0),
		trade("0xA", "m2", "No", t0.Add(time.Hour)),
		trade("0xB", "m2", "No", t0.Add(time.Hour)),
		trade("0xC", "m2", "Yes", t0.Add(time.Hour)),
		trade("0xA", "m3", "Yes", t0),
	}

	p := NewPredictor(DefaultConfig(), weights(map[string]float64{"0xA": 1800, "0xB": 1000, "0xC": 1000}))
	snap := snapshot.New(markets, trades, nil)
	report := p.Backtest(snap)

	if report.Markets != 2 {
		t.Fatalf("Expected 2 markets, got %d", report.Markets)
	}
	if report.WeightedCorrect != 1 || report.SimpleCorrect != 1 || report.TopTraderCorrect != 2 {
		t.Errorf("Unexpected hit counts %+v", report)
	}
	if report.WeightedAccuracy != 50 || report.TopTraderAccuracy != 100 {
		t.Errorf("Unexpected accuracies %+v", report)
	}
	if report.ImprovementVsSimple != 0 || report.ImprovementVsTop != -50 {
		t.Errorf("Unexpected improvements %+v", report)
	}

	if again := p.Backtest(snap); again != report {
		t.Errorf("Expected repeatable backtest, got %+v then %+v", report, again)
	}

	empty := p.Backtest(snapshot.New(nil, nil, nil))
	if empty != (BacktestReport{}) {
		t.Errorf("Expected zero report, got %+v", empty)
	}
}

func TestBacktestByCategory(t *testing.T) {
	markets := []types.Market{
		{ID: "p1", Category: "Politics", Resolved: true, WinningOutcome: "Yes"},
		{ID: "p2", Category: "Politics", Resolved: true, WinningOutcome: "Yes"},
		{ID: "s1", Category: "Sports", Resolved: true, WinningOutcome: "No"},
		{ID: "c1", Category: "Crypto", Resolved: true, WinningOutcome: "Yes"},
	}
	trades := []types.Trade{
		trade("0xA", "p1", "Yes", t0),
		trade("0xA", "p2", "Yes", t0),
		trade("0xA", "s1", "Yes", t0),
	}

	p := NewPredictor(DefaultConfig(), weights(map[string]float64{"0xA": 1600}))
	got := p.BacktestByCategory(snapshot.New(markets, trades, nil))

	if len(got) != 2 {
		t.Fatalf("Expected Politics and Sports only, got %+v", got)
	}
	if r := got["Politics"]; r.Markets != 2 || r.WeightedAccuracy != 100 {
		t.Errorf("Expected 2/2 in Politics, got %+v", r)
	}
	if r := got["Sports"]; r.Markets != 1 || r.WeightedAccuracy != 0 {
		t.Errorf("Expected 0/1 in Sports, got %+v", r)
	}
}
