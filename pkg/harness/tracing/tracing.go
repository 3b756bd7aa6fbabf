// Package tracing wires a run's activations into OpenTelemetry spans.
// It is grounded on the teacher's internal/tracing.OTelProvider, pared
// down from that package's full OTLP/Prometheus dual-exporter setup
// (the spec carries no remote collector, §1 non-goal on distributed
// deployment) to the stdout exporter alone, which is enough to make
// every run's span tree inspectable without standing up collector
// infrastructure.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider is a run-scoped tracer backed by the OpenTelemetry SDK.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Config configures a Provider.
type Config struct {
	// ServiceName identifies this process in exported spans.
	ServiceName string

	// Writer receives the exported span JSON. Defaults to io.Discard so
	// tracing can be wired unconditionally without printing to stdout
	// when nobody is watching.
	Writer io.Writer
}

// New builds a Provider whose spans are exported via stdouttrace.
func New(cfg Config) (*Provider, error) {
	writer := cfg.Writer
	if writer == nil {
		writer = io.Discard
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer))
	if err != nil {
		return nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &Provider{tp: tp}, nil
}

// Shutdown flushes any pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Tracer returns the named tracer used to start spans.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// StartRun starts the root span for one harness run.
func (p *Provider) StartRun(ctx context.Context, runID string) (context.Context, trace.Span) {
	return p.Tracer("openharness/harness").Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("run_id", runID)))
}

// StartActivation starts a child span for one agent activation.
func (p *Provider) StartActivation(ctx context.Context, agentName string, triggeringSignalID int64) (context.Context, trace.Span) {
	return p.Tracer("openharness/harness").Start(ctx, "agent.activation",
		trace.WithAttributes(
			attribute.String("agent", agentName),
			attribute.Int64("triggering_signal_id", triggeringSignalID),
		))
}
