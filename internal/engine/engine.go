// Package engine runs the full analysis pipeline over one snapshot of the
// trade store and hands the result to the registered exporters.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/behavior"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/confidence"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/consensus"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/copytrade"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/correlation"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/performance"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/rating"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/snapshot"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/storage"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// Sufficiency holds the data volumes below which a run still completes but
// its results are flagged as unreliable.
type Sufficiency struct {
	MinResolvedMarkets int `yaml:"min_resolved_markets"`
	MinTraders         int `yaml:"min_traders"`
	MinTrades          int `yaml:"min_trades"`
	MinSharedMarkets   int `yaml:"min_shared_markets"`
}

type Config struct {
	Rating      rating.Config      `yaml:"rating"`
	Consensus   consensus.Config   `yaml:"consensus"`
	Correlation correlation.Config `yaml:"correlation"`
	CopyTrade   copytrade.Config   `yaml:"copytrade"`
	Performance performance.Config `yaml:"performance"`
	Behavior    behavior.Config    `yaml:"behavior"`
	Confidence  confidence.Config  `yaml:"confidence"`
	Sufficiency Sufficiency        `yaml:"sufficiency"`

	// AsOf pins the reference time for rating changes and front-running.
	// Zero means the newest trade in the snapshot.
	AsOf time.Time `yaml:"as_of"`
}

func DefaultConfig() Config {
	return Config{
		Rating:      rating.DefaultConfig(),
		Consensus:   consensus.DefaultConfig(),
		Correlation: correlation.DefaultConfig(),
		CopyTrade:   copytrade.DefaultConfig(),
		Performance: performance.DefaultConfig(),
		Behavior:    behavior.DefaultConfig(),
		Confidence:  confidence.DefaultConfig(),
		Sufficiency: Sufficiency{
			MinResolvedMarkets: 10,
			MinTraders:         20,
			MinTrades:          100,
			MinSharedMarkets:   5,
		},
	}
}

// Exporter delivers a finished report somewhere.
type Exporter func(ctx context.Context, report *Report) error

// Subscriber is the part of the event bus Watch needs.
type Subscriber interface {
	Subscribe(ctx context.Context, streams []string, handler func(types.Event) error) error
}

type Engine struct {
	store     storage.TradeStore
	cfg       Config
	exporters map[string]Exporter
	mu        sync.RWMutex
}

func NewEngine(store storage.TradeStore, cfg Config) *Engine {
	return &Engine{
		store:     store,
		cfg:       cfg,
		exporters: make(map[string]Exporter),
	}
}

func (e *Engine) RegisterExporter(name string, exporter Exporter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.exporters[name] = exporter
	log.Info().Str("exporter", name).Msg("Registered report exporter")
}

// Run loads a fresh snapshot, analyzes it and exports the report. Exporter
// failures are logged and do not fail the run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	runID := uuid.New().String()
	started := time.Now()

	log.Info().Str("run_id", runID).Msg("Starting analysis run")

	snap, err := snapshot.Load(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	report, err := e.Analyze(ctx, snap)
	if err != nil {
		return nil, err
	}
	report.RunID = runID

	e.export(ctx, report)

	log.Info().
		Str("run_id", runID).
		Int("predictions", len(report.Predictions)).
		Int("clusters", len(report.Clusters)).
		Int("copy_relationships", len(report.CopyTrades)).
		Int("warnings", len(report.Warnings)).
		Dur("elapsed", time.Since(started)).
		Msg("Analysis run completed")

	return report, nil
}

// Analyze runs every analysis over snap. Missing data produces empty sections,
// never an error; only cancellation fails.
func (e *Engine) Analyze(ctx context.Context, snap *snapshot.Snapshot) (*Report, error) {
	asOf := e.cfg.AsOf
	if asOf.IsZero() {
		asOf = snap.Latest()
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	r := &Report{
		GeneratedAt: time.Now().UTC(),
		AsOf:        asOf,
		Stats: Stats{
			Markets:         len(snap.Markets()),
			ResolvedMarkets: len(snap.ResolvedMarkets()),
			ActiveMarkets:   len(snap.ActiveMarkets()),
			Traders:         len(snap.Traders()),
			Tracked:         len(snap.Tracked()),
			Trades:          snap.TradeCount(),
			ParseErrors:     snap.ParseErrors(),
		},
	}

	global := rating.NewGlobal(e.cfg.Rating)
	category := rating.NewCategory(e.cfg.Rating)
	r.Ratings = Ratings{
		Global:   global.Process(snap),
		Category: category.Process(snap),
	}
	r.Ratings.Rankings = global.Rankings(asOf)
	r.Ratings.Profiles = category.Profiles()
	r.Performance = performance.NewAnalyzer(e.cfg.Performance).Analyze(snap, asOf)
	r.Behavior = behavior.NewAnalyzer(e.cfg.Behavior).Analyze(snap, asOf)

	globalPredictor := consensus.NewPredictor(e.cfg.Consensus, consensus.GlobalWeights{Ratings: global})
	specialistPredictor := consensus.NewPredictor(e.cfg.Consensus, consensus.NewSpecialistWeights(category, e.cfg.Consensus))
	r.Predictions = globalPredictor.PredictActive(snap)
	r.SpecialistPredictions = specialistPredictor.PredictActive(snap)
	r.Backtest = globalPredictor.Backtest(snap)
	r.SpecialistBacktest = specialistPredictor.Backtest(snap)
	r.CategoryBacktest = globalPredictor.BacktestByCategory(snap)
	r.Disagreements = specialistPredictor.DisagreementActive(snap)

	matrix, err := correlation.NewPairwise(e.cfg.Correlation).Compute(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to compute correlations: %w", err)
	}
	r.Correlations = matrix.Scores()
	r.HighCorrelations = matrix.HighPairs(e.cfg.Correlation.ClusterThreshold)
	r.Clusters = matrix.Clusters()
	r.Independent = matrix.Independent()

	detector := copytrade.NewDetector(e.cfg.CopyTrade, snap)
	relationships, err := detector.Detect(ctx, detector.Candidates(matrix))
	if err != nil {
		return nil, fmt.Errorf("failed to detect copy trading: %w", err)
	}
	r.CopyTrades = relationships
	r.Network = detector.BuildNetwork(relationships, snap.Tracked())
	r.FrontRun = detector.FrontRun(r.Network, asOf)

	for _, p := range r.Predictions {
		if p.PredictedOutcome == "" {
			continue
		}
		backers := consensus.Backers(snap.TradesForMarket(p.MarketID), p.PredictedOutcome)
		r.SignalChecks = append(r.SignalChecks, r.Network.CheckIndependence(p.MarketID, backers))
	}

	meter := confidence.NewMeter(e.cfg.Confidence, r.Backtest, r.CategoryBacktest)
	r.Confidence = meter.ScoreAll(confidenceInputs(snap, r))

	r.Warnings = e.sufficiency(r.Stats, matrix)
	for _, w := range r.Warnings {
		log.Warn().Msg(w)
	}

	return r, nil
}

// confidenceInputs pairs each active market with its predictions and, when
// the market got one, its signal check.
func confidenceInputs(snap *snapshot.Snapshot, r *Report) []confidence.Input {
	global := make(map[string]*consensus.Prediction, len(r.Predictions))
	for i := range r.Predictions {
		global[r.Predictions[i].MarketID] = &r.Predictions[i]
	}
	specialist := make(map[string]*consensus.Prediction, len(r.SpecialistPredictions))
	for i := range r.SpecialistPredictions {
		specialist[r.SpecialistPredictions[i].MarketID] = &r.SpecialistPredictions[i]
	}
	checks := make(map[string]*copytrade.SignalIndependence, len(r.SignalChecks))
	for i := range r.SignalChecks {
		checks[r.SignalChecks[i].MarketID] = &r.SignalChecks[i]
	}

	var inputs []confidence.Input
	for _, m := range snap.ActiveMarkets() {
		inputs = append(inputs, confidence.Input{
			Market:       m,
			Trades:       snap.TradesForMarket(m.ID),
			Consensus:    global[m.ID],
			Specialist:   specialist[m.ID],
			Independence: checks[m.ID],
		})
	}
	return inputs
}

// sufficiency lists the thresholds this run's data falls short of.
func (e *Engine) sufficiency(stats Stats, matrix *correlation.Matrix) []string {
	s := e.cfg.Sufficiency

	var warnings []string
	if stats.ResolvedMarkets < s.MinResolvedMarkets {
		warnings = append(warnings, fmt.Sprintf("Only %d resolved markets, ratings need at least %d", stats.ResolvedMarkets, s.MinResolvedMarkets))
	}
	if stats.Traders < s.MinTraders {
		warnings = append(warnings, fmt.Sprintf("Only %d traders, rankings need at least %d", stats.Traders, s.MinTraders))
	}
	if stats.Trades < s.MinTrades {
		warnings = append(warnings, fmt.Sprintf("Only %d trades, analysis needs at least %d", stats.Trades, s.MinTrades))
	}

	maxShared := 0
	for _, sc := range matrix.Scores() {
		if sc.SharedMarkets > maxShared {
			maxShared = sc.SharedMarkets
		}
	}
	if maxShared < s.MinSharedMarkets {
		warnings = append(warnings, fmt.Sprintf("No trader pair shares %d markets, correlations are unreliable", s.MinSharedMarkets))
	}

	return warnings
}

func (e *Engine) export(ctx context.Context, report *Report) {
	e.mu.RLock()
	names := make([]string, 0, len(e.exporters))
	for name := range e.exporters {
		names = append(names, name)
	}
	e.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		e.mu.RLock()
		exporter := e.exporters[name]
		e.mu.RUnlock()

		if err := exporter(ctx, report); err != nil {
			log.Error().
				Err(err).
				Str("exporter", name).
				Str("run_id", report.RunID).
				Msg("Report exporter failed")
		}
	}
}

// Watch runs once, then again every time a market resolves, until ctx is done.
func (e *Engine) Watch(ctx context.Context, bus Subscriber, streams []string) error {
	if _, err := e.Run(ctx); err != nil {
		return err
	}

	return bus.Subscribe(ctx, streams, func(event types.Event) error {
		if event.Type != types.EventMarketResolved {
			return nil
		}

		log.Info().
			Str("event_id", event.ID).
			Str("source", event.Source).
			Msg("Market resolved, re-running analysis")

		_, err := e.Run(ctx)
		return err
	})
}
