package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/docflow/internal/application/workflow"
)

var (
	_ workflow.RunnerMetrics = (*pipelineMetrics)(nil)
	_ workflow.EngineMetrics = (*pipelineMetrics)(nil)
)

type pipelineMetrics struct {
	stepDuration metric.Float64Histogram
	stepRetries  metric.Int64Counter
	stepFailures metric.Int64Counter

	workflowsStarted  metric.Int64Counter
	workflowsFinished metric.Int64Counter
	workflowDuration  metric.Float64Histogram
}

func newPipelineMetrics(mp metric.MeterProvider) (*pipelineMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(pipelineMetrics)
	var err error

	if m.stepDuration, err = meter.Float64Histogram(
		"pipeline_step_duration_seconds",
		metric.WithDescription("Duration of pipeline step executions in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.stepRetries, err = meter.Int64Counter(
		"pipeline_step_retries_total",
		metric.WithDescription("Total number of pipeline step retry attempts"),
	); err != nil {
		return nil, err
	}

	if m.stepFailures, err = meter.Int64Counter(
		"pipeline_step_failures_total",
		metric.WithDescription("Total number of failed pipeline step executions"),
	); err != nil {
		return nil, err
	}

	if m.workflowsStarted, err = meter.Int64Counter(
		"pipeline_workflows_started_total",
		metric.WithDescription("Total number of workflows launched"),
	); err != nil {
		return nil, err
	}

	if m.workflowsFinished, err = meter.Int64Counter(
		"pipeline_workflows_finished_total",
		metric.WithDescription("Total number of workflows reaching a terminal state"),
	); err != nil {
		return nil, err
	}

	if m.workflowDuration, err = meter.Float64Histogram(
		"pipeline_workflow_duration_seconds",
		metric.WithDescription("End-to-end workflow duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *pipelineMetrics) ObserveStepDuration(category string, d time.Duration) {
	m.stepDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(
		attribute.String("category", category),
	))
}

func (m *pipelineMetrics) IncStepRetry(category string) {
	m.stepRetries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

func (m *pipelineMetrics) IncStepFailure(category string, class string) {
	m.stepFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("class", class),
	))
}

func (m *pipelineMetrics) IncWorkflowStarted(tenant string) {
	m.workflowsStarted.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
	))
}

func (m *pipelineMetrics) IncWorkflowFinished(tenant, state string) {
	m.workflowsFinished.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("state", state),
	))
}

func (m *pipelineMetrics) ObserveWorkflowDuration(tenant string, d time.Duration) {
	m.workflowDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(
		attribute.String("tenant", tenant),
	))
}
