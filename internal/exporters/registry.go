// Package exporters delivers finished analysis reports.
package exporters

import (
	"context"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/engine"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
)

// Publisher is the part of the event bus the stream exporter needs.
type Publisher interface {
	Publish(ctx context.Context, stream string, event types.Event) error
}

type Deps struct {
	// Bus nil skips the stream exporter.
	Bus    Publisher
	Stream string
	// ReportPath empty skips the YAML exporter.
	ReportPath string
}

// RegisterAll registers every exporter deps can support.
func RegisterAll(eng *engine.Engine, deps Deps) {
	eng.RegisterExporter("summary", Summary)

	if deps.Bus != nil {
		eng.RegisterExporter("stream", Stream(deps.Bus, deps.Stream))
	}
	if deps.ReportPath != "" {
		eng.RegisterExporter("yaml", YAMLFile(deps.ReportPath))
	}
}
