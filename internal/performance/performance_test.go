package performance

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

var t0 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func TestTradePnL(t *testing.T) {
	won := types.Resolution{Resolved: true, WinningOutcome: "Yes"}

	tests := []struct {
		name   string
		trade  types.Trade
		res    types.Resolution
		want   float64
		wantOK bool
	}{
		{"buy winner", types.Trade{Outcome: "yes", Side: types.SideBuy, Shares: 100, Price: 0.4}, won, 60, true},
		{"buy loser", types.Trade{Outcome: "No", Side: types.SideBuy, Shares: 100, Price: 0.4}, won, -40, true},
		{"sell loser outcome", types.Trade{Outcome: "No", Side: types.SideSell, Shares: 10, Price: 0.3}, won, 7, true},
		{"sell winner outcome", types.Trade{Outcome: "Yes", Side: "sell", Shares: 10, Price: 0.3}, won, -3, true},
		{"unknown side", types.Trade{Outcome: "Yes", Shares: 10, Price: 0.5}, won, -5, true},
		{"unresolved", types.Trade{Outcome: "Yes", Side: types.SideBuy, Shares: 10, Price: 0.5}, types.Resolution{}, 0, false},
		{"no winner", types.Trade{Outcome: "Yes", Side: types.SideBuy, Shares: 10, Price: 0.5}, types.Resolution{Resolved: true}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TradePnL(tt.trade, tt.res)
			if ok != tt.wantOK || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected %.2f/%v, got %.2f/%v", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func buy(trader, market, outcome string, shares, price float64, at time.Time) types.Trade {
	return types.Trade{
		ID:        fmt.Sprintf("%s-%s-%d", trader, market, at.Unix()),
		Trader:    trader,
		MarketID:  market,
		Outcome:   outcome,
		Shares:    shares,
		Price:     price,
		Side:      types.SideBuy,
		Timestamp: at,
	}
}

// record gives trader wins winning and losses losing trades on resolved
// markets, each risking 50 on 100 shares.
func record(trader string, wins, losses int) ([]types.Market, []types.Trade) {
	var markets []types.Market
	var trades []types.Trade
	for i := 0; i < wins+losses; i++ {
		id := fmt.Sprintf("%s-m%d", trader, i)
		markets = append(markets, types.Market{ID: id, Resolved: true, WinningOutcome: "Yes"})
		outcome := "Yes"
		if i >= wins {
			outcome = "No"
		}
		trades = append(trades, buy(trader, id, outcome, 100, 0.5, t0.Add(time.Duration(i)*time.Hour)))
	}
	return markets, trades
}

func TestAnalyzerTrader(t *testing.T) {
	markets, trades := record("0xA", 4, 1)
	trades = append(trades, buy("0xA", "open", "Yes", 10, 0.5, t0))

	snap := snapshot.New(markets, trades, nil)
	p := NewAnalyzer(DefaultConfig()).Trader("0xA", snap.TradesForTrader("0xA"), snap.Resolution)

	if p.TotalTrades != 6 || p.ResolvedTrades != 5 || p.WinningTrades != 4 || p.LosingTrades != 1 {
		t.Errorf("Unexpected counts %+v", p)
	}
	// 4 × +50 and 1 × -50 on 250 invested.
	if p.TotalPnL != 150 || p.TotalInvested != 250 || p.TotalVolume != 255 {
		t.Errorf("Unexpected money totals %+v", p)
	}
	if p.WinRate != 80 || p.ROI != 60 {
		t.Errorf("Expected 80%% win rate and 60%% ROI, got %.1f and %.1f", p.WinRate, p.ROI)
	}
	if p.CombinedScore != 70 {
		t.Errorf("Expected combined score 70, got %.1f", p.CombinedScore)
	}
}

func TestCombinedScoreNeedsResolvedTrades(t *testing.T) {
	markets, trades := record("0xA", 4, 0)
	snap := snapshot.New(markets, trades, nil)

	p := NewAnalyzer(DefaultConfig()).Trader("0xA", snap.TradesForTrader("0xA"), snap.Resolution)
	if p.WinRate != 100 || p.CombinedScore != 0 {
		t.Errorf("Expected no combined score below 5 resolved trades, got %+v", p)
	}
}

func TestAnalyze(t *testing.T) {
	var markets []types.Market
	var trades []types.Trade
	for _, r := range []struct {
		trader       string
		wins, losses int
	}{
		{"0xA", 10, 0},
		{"0xB", 6, 4},
		{"0xC", 2, 0},
	} {
		m, tr := record(r.trader, r.wins, r.losses)
		markets = append(markets, m...)
		trades = append(trades, tr...)
	}

	cfg := DefaultConfig()
	cfg.TopN = 1
	report := NewAnalyzer(cfg).Analyze(snapshot.New(markets, trades, nil), t0.Add(24*time.Hour))

	if len(report.Traders) != 3 || report.Traders[0].Trader != "0xA" || report.Traders[2].Trader != "0xC" {
		t.Fatalf("Expected A, B, C by combined score, got %+v", report.Traders)
	}

	s := report.Summary
	if s.Traders != 3 || s.Qualified != 2 {
		t.Errorf("Expected 2 of 3 traders qualified, got %+v", s)
	}
	if s.AvgWinRate != 80 {
		t.Errorf("Expected average win rate 80, got %.1f", s.AvgWinRate)
	}
	// ROIs 100 and 20; the upper middle is taken.
	if s.MedianROI != 100 {
		t.Errorf("Expected median ROI 100, got %.1f", s.MedianROI)
	}
	if s.TotalPnL != 600 {
		t.Errorf("Expected total PnL 600, got %.1f", s.TotalPnL)
	}
	if len(s.TopROI) != 1 || s.TopROI[0].Trader != "0xA" {
		t.Errorf("Expected top ROI capped at A, got %+v", s.TopROI)
	}
}

func TestAnalyzeWindow(t *testing.T) {
	markets := []types.Market{{ID: "m1", Resolved: true, WinningOutcome: "Yes"}}
	trades := []types.Trade{
		buy("0xA", "m1", "Yes", 10, 0.5, t0),
		buy("0xA", "m1", "Yes", 10, 0.5, t0.Add(-10*24*time.Hour)),
		{ID: "undated", Trader: "0xA", MarketID: "m1", Outcome: "Yes", Shares: 10, Price: 0.5, Side: types.SideBuy},
		buy("0xB", "m1", "Yes", 10, 0.5, t0.Add(-30*24*time.Hour)),
	}

	cfg := DefaultConfig()
	cfg.Window = 7 * 24 * time.Hour
	report := NewAnalyzer(cfg).Analyze(snapshot.New(markets, trades, nil), t0)

	if len(report.Traders) != 1 || report.Traders[0].Trader != "0xA" || report.Traders[0].TotalTrades != 1 {
		t.Errorf("Expected only A's recent trade in the window, got %+v", report.Traders)
	}
}
