package exporters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/engine"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

// Source tags events this service publishes.
const Source = "analyzer"

// Stream publishes an analysis_completed event carrying the JSON report.
func Stream(bus Publisher, stream string) engine.Exporter {
	return func(ctx context.Context, r *engine.Report) error {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}

		return bus.Publish(ctx, stream, types.Event{
			ID:        r.RunID,
			Type:      types.EventAnalysisCompleted,
			Source:    Source,
			Timestamp: r.GeneratedAt,
			Data:      data,
		})
	}
}
