package metrics

import (
	"time"

	"github.com/ahrav/docflow/internal/application/workflow"
)

var (
	_ workflow.RunnerMetrics = Noop{}
	_ workflow.EngineMetrics = Noop{}
)

// Noop discards all observations. Useful for tests and tooling that does not
// export metrics.
type Noop struct{}

func (Noop) ObserveStepDuration(string, time.Duration)     {}
func (Noop) IncStepRetry(string)                           {}
func (Noop) IncStepFailure(string, string)                 {}
func (Noop) IncWorkflowStarted(string)                     {}
func (Noop) IncWorkflowFinished(string, string)            {}
func (Noop) ObserveWorkflowDuration(string, time.Duration) {}
