package exporters

import (
	"context"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/copytrade"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/engine"
	"github.com/rs/zerolog/log"
)

// summaryLimit caps how many rows of each list are logged.
const summaryLimit = 5

// Summary logs a digest of the report.
func Summary(_ context.Context, r *engine.Report) error {
	log.Info().
		Str("run_id", r.RunID).
		Time("as_of", r.AsOf).
		Int("markets", r.Stats.Markets).
		Int("resolved_markets", r.Stats.ResolvedMarkets).
		Int("traders", r.Stats.Traders).
		Int("trades", r.Stats.Trades).
		Int("parse_errors", r.Stats.ParseErrors).
		Msg("Analysis summary")

	for i, rk := range r.Ratings.Rankings {
		if i == summaryLimit {
			break
		}
		log.Info().
			Int("rank", rk.Rank).
			Str("trader", rk.Trader).
			Float64("rating", rk.Rating).
			Float64("change_7d", rk.Change7d).
			Float64("win_rate", rk.WinRate).
			Msg("Top trader")
	}

	for i, p := range r.Performance.Summary.TopCombined {
		if i == summaryLimit {
			break
		}
		log.Info().
			Str("trader", p.Trader).
			Float64("combined_score", p.CombinedScore).
			Float64("win_rate", p.WinRate).
			Float64("roi", p.ROI).
			Float64("pnl", p.TotalPnL).
			Msg("Top performer")
	}

	if len(r.Behavior.HotStreaks) > 0 {
		log.Info().Strs("traders", r.Behavior.HotStreaks).Msg("Traders on a hot streak")
	}

	log.Info().
		Int("markets", r.Backtest.Markets).
		Float64("weighted_accuracy", r.Backtest.WeightedAccuracy).
		Float64("simple_accuracy", r.Backtest.SimpleAccuracy).
		Float64("top_trader_accuracy", r.Backtest.TopTraderAccuracy).
		Float64("specialist_accuracy", r.SpecialistBacktest.WeightedAccuracy).
		Msg("Consensus backtest")

	for i, p := range r.Predictions {
		if i == summaryLimit {
			break
		}
		log.Info().
			Str("market", p.MarketID).
			Str("title", p.MarketTitle).
			Str("outcome", p.PredictedOutcome).
			Float64("confidence", p.Confidence).
			Str("signal", p.Signal).
			Msg("Prediction")
	}

	for i, c := range r.Confidence {
		if i == summaryLimit {
			break
		}
		log.Info().
			Str("market", c.MarketID).
			Str("outcome", c.PredictedOutcome).
			Float64("score", c.Score).
			Str("grade", c.Classification).
			Strs("flags", c.Flags).
			Msg("Market confidence")
	}

	for _, c := range r.Clusters {
		log.Info().
			Int("cluster", c.ID).
			Strs("traders", c.Traders).
			Float64("mean_correlation", c.MeanCorrelation).
			Str("type", c.Type).
			Msg("Correlated cluster")
	}

	for i, rel := range r.CopyTrades {
		if i == summaryLimit {
			break
		}
		log.Info().
			Str("leader", rel.Leader).
			Str("follower", rel.Follower).
			Float64("score", rel.Score).
			Float64("avg_lag_hours", rel.AvgLagHours).
			Str("tier", rel.Tier).
			Msg("Copy relationship")
	}

	for _, o := range r.FrontRun {
		log.Info().
			Str("market", o.MarketID).
			Str("leader", o.Leader).
			Str("outcome", o.LeaderOutcome).
			Int("pending", len(o.Pending)).
			Float64("score", o.Score).
			Msg("Front-run opportunity")
	}

	for _, si := range r.SignalChecks {
		if si.Flag == copytrade.FlagValid {
			continue
		}
		log.Warn().
			Str("market", si.MarketID).
			Float64("independence", si.Ratio).
			Int("copy_pairs", len(si.CopyPairs)).
			Str("flag", si.Flag).
			Msg("Signal driven by copy traders")
	}

	return nil
}
