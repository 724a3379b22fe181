package otel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestEndpointExcluderDropsConfiguredEndpoints(t *testing.T) {
	sampler := newEndpointExcluder(map[string]struct{}{
		"/v1/health":    {},
		"/v1/readiness": {},
	}, 1)

	res := sampler.ShouldSample(sdktrace.SamplingParameters{
		TraceID: trace.TraceID{0x01},
		Attributes: []attribute.KeyValue{
			attribute.String("http.target", "/v1/health"),
		},
	})
	assert.Equal(t, sdktrace.Drop, res.Decision)
}

func TestEndpointExcluderSamplesOtherEndpoints(t *testing.T) {
	sampler := newEndpointExcluder(map[string]struct{}{
		"/v1/health": {},
	}, 1)

	res := sampler.ShouldSample(sdktrace.SamplingParameters{
		TraceID: trace.TraceID{0x01},
		Attributes: []attribute.KeyValue{
			attribute.String("http.target", "/v1/jobs/abc"),
		},
	})
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
}
