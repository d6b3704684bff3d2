package exporters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/engine"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// YAMLFile writes the report to path, replacing the previous one only once
// the new file is complete.
func YAMLFile(path string) engine.Exporter {
	return func(_ context.Context, r *engine.Report) error {
		data, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report dir: %w", err)
		}

		tmp, err := os.CreateTemp(dir, ".report-*.yaml")
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			return fmt.Errorf("failed to replace report: %w", err)
		}

		log.Info().Str("path", path).Int("bytes", len(data)).Msg("Report written")
		return nil
	}
}
