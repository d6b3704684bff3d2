// Package confidence grades each open market's signal by combining the
// weighted consensus, specialist agreement, trader quality, market liquidity
// and how accurate past predictions in the category were.
package confidence

import (
	"math"
	"sort"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/consensus"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/copytrade"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// InsufficientData grades markets with no votes in either prediction.
const InsufficientData = "INSUFFICIENT DATA"

// Quality flags.
const (
	FlagNoData               = "NO ANALYSIS DATA"
	FlagSpecialistConsensus  = "SPECIALIST CONSENSUS"
	FlagHighVolume           = "HIGH VOLUME"
	FlagStrongConsensus      = "STRONG CONSENSUS"
	FlagLowLiquidity         = "LOW LIQUIDITY"
	FlagLimitedParticipation = "LIMITED PARTICIPATION"
	FlagToolDisagreement     = "TOOL DISAGREEMENT"
	FlagCopyDriven           = "COPY DRIVEN"
)

// Grade is one classification band; a score at or above MinScore earns it.
type Grade struct {
	Name           string  `yaml:"name"`
	MinScore       float64 `yaml:"min_score"`
	Recommendation string  `yaml:"recommendation"`
}

type Config struct {
	ConsensusWeight  float64 `yaml:"consensus_weight"`
	SpecialistWeight float64 `yaml:"specialist_weight"`
	QualityWeight    float64 `yaml:"quality_weight"`
	VolumeWeight     float64 `yaml:"volume_weight"`
	HistoricalWeight float64 `yaml:"historical_weight"`

	// Market volume bands, in the same units as Trade.BetSize.
	HighVolume   float64 `yaml:"high_volume"`
	MediumVolume float64 `yaml:"medium_volume"`
	LowVolume    float64 `yaml:"low_volume"`

	MinTraders       int     `yaml:"min_traders"`
	StrongConsensus  float64 `yaml:"strong_consensus"`
	ToolDisagreement float64 `yaml:"tool_disagreement"`

	// A category's own backtest is used once it covers MinCategoryMarkets;
	// otherwise the overall backtest, or DefaultAccuracy without one.
	MinCategoryMarkets int     `yaml:"min_category_markets"`
	DefaultAccuracy    float64 `yaml:"default_accuracy"`

	// CopyPenalty multiplies the score of a signal that failed the
	// independence check.
	CopyPenalty float64 `yaml:"copy_penalty"`

	// Grades are evaluated in order; the first match wins.
	Grades []Grade `yaml:"grades"`
	// Fallback applies when no grade matches.
	Fallback Grade `yaml:"fallback"`
}

func DefaultConfig() Config {
	return Config{
		ConsensusWeight:    0.30,
		SpecialistWeight:   0.25,
		QualityWeight:      0.20,
		VolumeWeight:       0.15,
		HistoricalWeight:   0.10,
		HighVolume:         50000,
		MediumVolume:       20000,
		LowVolume:          5000,
		MinTraders:         5,
		StrongConsensus:    75,
		ToolDisagreement:   30,
		MinCategoryMarkets: 5,
		DefaultAccuracy:    60,
		CopyPenalty:        0.8,
		Grades: []Grade{
			{Name: "STRONG BUY", MinScore: 80, Recommendation: "High confidence signal"},
			{Name: "MODERATE BUY", MinScore: 70, Recommendation: "Good signal quality"},
			{Name: "WEAK BUY", MinScore: 60, Recommendation: "Proceed with caution"},
			{Name: "UNCERTAIN", MinScore: 50, Recommendation: "High risk, consider passing"},
			{Name: "WEAK SIGNAL", MinScore: 40, Recommendation: "Likely pass"},
		},
		Fallback: Grade{Name: "AVOID", Recommendation: "Low confidence"},
	}
}

// Components are the 0-100 sub-scores before weighting.
type Components struct {
	Consensus     float64 `json:"consensus" yaml:"consensus"`
	Specialist    float64 `json:"specialist" yaml:"specialist"`
	TraderQuality float64 `json:"trader_quality" yaml:"trader_quality"`
	Volume        float64 `json:"volume" yaml:"volume"`
	Historical    float64 `json:"historical" yaml:"historical"`
}

type Score struct {
	MarketID         string     `json:"market_id" yaml:"market_id"`
	MarketTitle      string     `json:"market_title" yaml:"market_title"`
	Category         string     `json:"category" yaml:"category"`
	PredictedOutcome string     `json:"predicted_outcome" yaml:"predicted_outcome"`
	Score            float64    `json:"score" yaml:"score"`
	Classification   string     `json:"classification" yaml:"classification"`
	Recommendation   string     `json:"recommendation" yaml:"recommendation"`
	Components       Components `json:"components" yaml:"components"`

	ConsensusConfidence float64 `json:"consensus_confidence" yaml:"consensus_confidence"`
	SpecialistVotes     int     `json:"specialist_votes" yaml:"specialist_votes"`
	SpecialistTotal     int     `json:"specialist_total" yaml:"specialist_total"`
	Volume              float64 `json:"volume" yaml:"volume"`
	Traders             int     `json:"traders" yaml:"traders"`
	CategoryAccuracy    float64 `json:"category_accuracy" yaml:"category_accuracy"`

	Flags        []string `json:"flags" yaml:"flags"`
	Disagreement bool     `json:"disagreement" yaml:"disagreement"`
}

// Input is everything known about one market. Nil predictions and a nil
// independence check are treated as missing.
type Input struct {
	Market       types.Market
	Trades       []types.Trade
	Consensus    *consensus.Prediction
	Specialist   *consensus.Prediction
	Independence *copytrade.SignalIndependence
}

type Meter struct {
	cfg        Config
	overall    consensus.BacktestReport
	byCategory map[string]consensus.BacktestReport
}

func NewMeter(cfg Config, overall consensus.BacktestReport, byCategory map[string]consensus.BacktestReport) *Meter {
	return &Meter{cfg: cfg, overall: overall, byCategory: byCategory}
}

// Score grades one market.
func (m *Meter) Score(in Input) Score {
	s := Score{
		MarketID:    in.Market.ID,
		MarketTitle: in.Market.Title,
		Category:    in.Market.Category,
	}

	global := voted(in.Consensus)
	specialist := voted(in.Specialist)
	if global == nil && specialist == nil {
		s.Classification = InsufficientData
		s.Recommendation = m.cfg.Fallback.Recommendation
		s.Flags = []string{FlagNoData}
		return s
	}

	if global != nil {
		s.PredictedOutcome = global.PredictedOutcome
		s.ConsensusConfidence = global.Confidence
	} else {
		s.PredictedOutcome = specialist.PredictedOutcome
	}

	c := &s.Components
	c.Consensus = consensusScore(s.ConsensusConfidence)

	c.Specialist = 25
	if specialist != nil {
		s.SpecialistVotes = specialist.SpecialistVotes
		s.SpecialistTotal = specialist.SpecialistTotal
		c.Specialist = specialistScore(specialist.SpecialistVotes)
		if specialist.SpecialistConsensus {
			c.Specialist = math.Min(100, c.Specialist+10)
			s.Flags = append(s.Flags, FlagSpecialistConsensus)
		}
	}

	c.TraderQuality = 50
	if global != nil {
		c.TraderQuality = qualityScore(global.ExpectedProbability / 100)
	}

	traders := make(map[string]bool)
	for _, t := range in.Trades {
		s.Volume += t.BetSize()
		traders[t.Trader] = true
	}
	s.Traders = len(traders)
	c.Volume = m.volumeScore(s.Volume)

	s.CategoryAccuracy = m.accuracy(s.Category)
	c.Historical = historicalScore(s.CategoryAccuracy)

	score := c.Consensus*m.cfg.ConsensusWeight +
		c.Specialist*m.cfg.SpecialistWeight +
		c.TraderQuality*m.cfg.QualityWeight +
		c.Volume*m.cfg.VolumeWeight +
		c.Historical*m.cfg.HistoricalWeight

	copied := in.Independence != nil && in.Independence.Flag != copytrade.FlagValid
	if copied && in.Independence.Flag == copytrade.FlagInvalid {
		score *= m.cfg.CopyPenalty
	}

	grade := m.grade(score)
	s.Classification = grade.Name
	s.Recommendation = grade.Recommendation
	s.Score = math.Round(score*10) / 10

	if s.Volume > m.cfg.HighVolume {
		s.Flags = append(s.Flags, FlagHighVolume)
	}
	if global != nil && s.ConsensusConfidence > m.cfg.StrongConsensus {
		s.Flags = append(s.Flags, FlagStrongConsensus)
	}
	if s.Volume < m.cfg.LowVolume {
		s.Flags = append(s.Flags, FlagLowLiquidity)
	}
	if s.Traders < m.cfg.MinTraders {
		s.Flags = append(s.Flags, FlagLimitedParticipation)
	}
	if global != nil && specialist != nil && math.Abs(global.Confidence-specialist.Confidence) > m.cfg.ToolDisagreement {
		s.Flags = append(s.Flags, FlagToolDisagreement)
		s.Disagreement = true
	}
	if copied {
		s.Flags = append(s.Flags, FlagCopyDriven)
	}

	return s
}

// ScoreAll grades every input, highest score first.
func (m *Meter) ScoreAll(inputs []Input) []Score {
	out := make([]Score, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, m.Score(in))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	log.Debug().Int("markets", len(out)).Msg("Market confidence scored")
	return out
}

func (m *Meter) grade(score float64) Grade {
	for _, g := range m.cfg.Grades {
		if score >= g.MinScore {
			return g
		}
	}
	return m.cfg.Fallback
}

func (m *Meter) accuracy(category string) float64 {
	if r, ok := m.byCategory[category]; ok && r.Markets >= m.cfg.MinCategoryMarkets {
		return r.WeightedAccuracy
	}
	if m.overall.Markets > 0 {
		return m.overall.WeightedAccuracy
	}
	return m.cfg.DefaultAccuracy
}

func (m *Meter) volumeScore(volume float64) float64 {
	switch {
	case volume > m.cfg.HighVolume:
		return 100
	case volume > m.cfg.MediumVolume:
		return 75
	case volume > m.cfg.LowVolume:
		return 50
	default:
		return 25
	}
}

func voted(p *consensus.Prediction) *consensus.Prediction {
	if p == nil || p.TotalTraders == 0 {
		return nil
	}
	return p
}

// consensusScore stretches the middle of the confidence range.
func consensusScore(confidence float64) float64 {
	switch {
	case confidence > 70:
		return 90 + (confidence-70)/3
	case confidence > 50:
		return 60 + (confidence-50)*1.5
	case confidence > 30:
		return 30 + (confidence-30)*1.5
	default:
		return confidence
	}
}

func specialistScore(votes int) float64 {
	switch {
	case votes >= 8:
		return 100
	case votes >= 5:
		return 75
	case votes >= 3:
		return 50
	default:
		return 25
	}
}

// qualityScore maps the predicted outcome's share of total weight onto a
// rating scale centred on 1500.
func qualityScore(share float64) float64 {
	implied := 1500 + (share-0.5)*500
	switch {
	case implied > 1750:
		return 100
	case implied > 1650:
		return 75
	case implied > 1550:
		return 50
	default:
		return 25
	}
}

func historicalScore(accuracy float64) float64 {
	switch {
	case accuracy > 75:
		return 100
	case accuracy > 65:
		return 75
	case accuracy > 55:
		return 50
	default:
		return 25
	}
}
