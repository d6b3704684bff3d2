package engine

import (
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/behavior"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/confidence"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/consensus"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/copytrade"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/correlation"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/performance"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/rating"
)

type Stats struct {
	Markets         int `json:"markets" yaml:"markets"`
	ResolvedMarkets int `json:"resolved_markets" yaml:"resolved_markets"`
	ActiveMarkets   int `json:"active_markets" yaml:"active_markets"`
	Traders         int `json:"traders" yaml:"traders"`
	Tracked         int `json:"tracked" yaml:"tracked"`
	Trades          int `json:"trades" yaml:"trades"`
	ParseErrors     int `json:"parse_errors" yaml:"parse_errors"`
}

type Ratings struct {
	Global   rating.ProcessStats `json:"global" yaml:"global"`
	Category rating.ProcessStats `json:"category" yaml:"category"`
	Rankings []rating.Ranking    `json:"rankings" yaml:"rankings"`
	Profiles []rating.Profile    `json:"profiles" yaml:"profiles"`
}

// Report is everything one analysis run produced.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	AsOf        time.Time `json:"as_of" yaml:"as_of"`
	Stats       Stats     `json:"stats" yaml:"stats"`
	Warnings    []string  `json:"warnings" yaml:"warnings"`

	Ratings     Ratings            `json:"ratings" yaml:"ratings"`
	Performance performance.Report `json:"performance" yaml:"performance"`
	Behavior    behavior.Report    `json:"behavior" yaml:"behavior"`

	Predictions           []consensus.Prediction              `json:"predictions" yaml:"predictions"`
	SpecialistPredictions []consensus.Prediction              `json:"specialist_predictions" yaml:"specialist_predictions"`
	Backtest              consensus.BacktestReport            `json:"backtest" yaml:"backtest"`
	SpecialistBacktest    consensus.BacktestReport            `json:"specialist_backtest" yaml:"specialist_backtest"`
	CategoryBacktest      map[string]consensus.BacktestReport `json:"category_backtest" yaml:"category_backtest"`
	Disagreements         []consensus.DisagreementReport      `json:"disagreements" yaml:"disagreements"`
	Confidence            []confidence.Score                  `json:"confidence" yaml:"confidence"`

	// Correlations is every scored pair; HighCorrelations keeps those at or
	// above the cluster threshold.
	Correlations     []correlation.Score             `json:"correlations" yaml:"correlations"`
	HighCorrelations []correlation.Score             `json:"high_correlations" yaml:"high_correlations"`
	Clusters         []correlation.Cluster           `json:"clusters" yaml:"clusters"`
	Independent      []correlation.IndependentTrader `json:"independent" yaml:"independent"`

	CopyTrades   []copytrade.Relationship       `json:"copy_trades" yaml:"copy_trades"`
	Network      *copytrade.Network             `json:"network" yaml:"network"`
	FrontRun     []copytrade.Opportunity        `json:"front_run" yaml:"front_run"`
	SignalChecks []copytrade.SignalIndependence `json:"signal_checks" yaml:"signal_checks"`
}
