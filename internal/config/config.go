// Package config loads runtime settings from the environment and analysis
// thresholds from an optional YAML file.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/engine"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	StoreDriver string
	PostgresURL string
	SQLitePath  string

	// RedisHost empty disables the event bus.
	RedisHost string
	RedisPort int

	// GammaURL empty disables upstream resolution lookups.
	GammaURL       string
	ResolveTimeout time.Duration

	AnalysisPath string
	ReportPath   string
	Watch        bool
	LogLevel     string

	Analysis engine.Config
}

// Load reads .env (if present), then the environment, then the analysis file
// named by ANALYZER_CONFIG over the built-in defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreDriver:    getEnv("STORE_DRIVER", DriverPostgres),
		PostgresURL:    getEnv("POSTGRES_URL", buildPostgresURL()),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/trades.db"),
		RedisHost:      getEnv("REDIS_HOST", ""),
		RedisPort:      getEnvInt("REDIS_PORT", 6379),
		GammaURL:       getEnv("GAMMA_URL", ""),
		ResolveTimeout: time.Duration(getEnvInt("RESOLVE_TIMEOUT_SECONDS", 10)) * time.Second,
		AnalysisPath:   getEnv("ANALYZER_CONFIG", ""),
		ReportPath:     getEnv("REPORT_PATH", ""),
		Watch:          getEnvBool("ANALYZER_WATCH", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Analysis:       engine.DefaultConfig(),
	}

	if cfg.AnalysisPath != "" {
		if err := loadAnalysis(cfg.AnalysisPath, &cfg.Analysis); err != nil {
			return nil, err
		}
	}

	if workers := getEnvInt("ANALYZER_WORKERS", 0); workers > 0 {
		cfg.Analysis.Correlation.Workers = workers
		cfg.Analysis.CopyTrade.Workers = workers
	}
	cfg.Analysis.CopyTrade.CandidateThreshold = getEnvFloat("COPY_CANDIDATE_THRESHOLD", cfg.Analysis.CopyTrade.CandidateThreshold)

	if v := os.Getenv("ANALYZER_AS_OF"); v != "" {
		asOf, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid ANALYZER_AS_OF: %w", err)
		}
		cfg.Analysis.AsOf = asOf
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadAnalysis overlays the YAML file at path onto dst. Keys missing from the
// file keep their current values.
func loadAnalysis(path string, dst *engine.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read analysis config: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse analysis config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.Watch && c.RedisHost == "" {
		return fmt.Errorf("ANALYZER_WATCH requires REDIS_HOST")
	}
	if c.RedisPort < 1 || c.RedisPort > 65535 {
		return fmt.Errorf("REDIS_PORT must be between 1 and 65535")
	}

	a := c.Analysis
	if a.Rating.KFactor <= 0 {
		return fmt.Errorf("rating.k_factor must be positive")
	}
	if a.Rating.BetCap <= 0 {
		return fmt.Errorf("rating.bet_cap must be positive")
	}
	if !sumsToOne(a.Correlation.OverlapWeight, a.Correlation.AgreementWeight, a.Correlation.TimingWeight) {
		return fmt.Errorf("correlation weights must sum to 1")
	}
	if !sumsToOne(a.CopyTrade.TimeWeight, a.CopyTrade.OutcomeWeight, a.CopyTrade.OrderWeight, a.CopyTrade.VolumeWeight) {
		return fmt.Errorf("copytrade weights must sum to 1")
	}
	if a.CopyTrade.LagMin >= a.CopyTrade.LagMax {
		return fmt.Errorf("copytrade.lag_min must be below copytrade.lag_max")
	}
	if a.Correlation.MinSharedMarkets < 1 || a.CopyTrade.MinSharedMarkets < 1 {
		return fmt.Errorf("min_shared_markets must be at least 1")
	}
	if !(a.Consensus.ConsensusBand < a.Consensus.SplitBand && a.Consensus.SplitBand < a.Consensus.DisagreementBand) {
		return fmt.Errorf("consensus disagreement bands must be ascending")
	}
	cw := a.Confidence
	if !sumsToOne(cw.ConsensusWeight, cw.SpecialistWeight, cw.QualityWeight, cw.VolumeWeight, cw.HistoricalWeight) {
		return fmt.Errorf("confidence weights must sum to 1")
	}
	for i := 1; i < len(cw.Grades); i++ {
		if cw.Grades[i].MinScore > cw.Grades[i-1].MinScore {
			return fmt.Errorf("confidence grades must be ordered by min_score descending")
		}
	}
	if !sumsToOne(a.Performance.WinRateWeight, a.Performance.ROIWeight) {
		return fmt.Errorf("performance weights must sum to 1")
	}
	for i := 1; i < len(a.Consensus.Tiers); i++ {
		if a.Consensus.Tiers[i].MinConfidence > a.Consensus.Tiers[i-1].MinConfidence {
			return fmt.Errorf("consensus tiers must be ordered by min_confidence descending")
		}
	}

	return nil
}

func sumsToOne(weights ...float64) bool {
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return false
		}
		sum += w
	}
	return math.Abs(sum-1) < 1e-6
}

func buildPostgresURL() string {
	host := getEnv("POSTGRES_HOST", "postgres")
	db := getEnv("POSTGRES_DB", "trading_system")
	user := getEnv("POSTGRES_USER", "trading")
	pass := getEnv("POSTGRES_PASSWORD", "changeme123")

	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", user, pass, host, db)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
