package metrics

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/docflow/internal/application/workflow"
)

const namespace = "docflow"

// Registry provides access to all metric implementations.
// It centralizes the creation and management of metrics instances.
type Registry struct {
	Runner workflow.RunnerMetrics
	Engine workflow.EngineMetrics
}

// NewRegistry creates and initializes all metrics implementations.
// It uses a single meter provider to ensure consistent configuration.
func NewRegistry(mp metric.MeterProvider) (*Registry, error) {
	pm, err := newPipelineMetrics(mp)
	if err != nil {
		return nil, err
	}

	return &Registry{Runner: pm, Engine: pm}, nil
}
