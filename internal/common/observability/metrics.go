package observability

import (
	"context"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Options configures New. Zero values give a Prometheus-only setup on the default registry.
type Options struct {
	ServiceName    string
	JaegerEndpoint string
	TimingBuffer   int
	Registerer     promclient.Registerer
}

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	toolDuration   otelmetric.Float64Histogram

	Timings *ToolTimings
}

// New wires OpenTelemetry metrics to a Prometheus exporter and sets up tracing.
// Exporter failures degrade to no-op instruments instead of failing startup.
func New(opts Options, log Logger) *Observability {
	if log == nil {
		log = nopLogger{}
	}

	o := &Observability{
		Timings: NewToolTimings(opts.TimingBuffer),
	}

	o.tracerProvider = newTracerProvider(opts.ServiceName, opts.JaegerEndpoint, log)
	o.tracer = o.tracerProvider.Tracer(opts.ServiceName)

	exporterOpts := []prometheus.Option{}
	if opts.Registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(opts.Registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err.Error()})
		return o
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(o.meterProvider)
	o.meter = o.meterProvider.Meter(opts.ServiceName)

	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.toolDuration, _ = o.meter.Float64Histogram(
		"tool.duration",
		otelmetric.WithDescription("Duration of a single engine tool call"),
		otelmetric.WithUnit("ms"),
	)

	return o
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

// RecordTool stores a timing record and feeds the tool.duration histogram.
func (o *Observability) RecordTool(ctx context.Context, conversationID, tool string, started time.Time, err error) {
	elapsed := time.Since(started)
	o.Timings.Add(ToolTiming{
		ConversationID: conversationID,
		Tool:           tool,
		Duration:       elapsed,
		Failed:         err != nil,
		At:             started,
	})

	if o.toolDuration != nil {
		o.toolDuration.Record(ctx, float64(elapsed.Microseconds())/1000, otelmetric.WithAttributes(
			attribute.String("tool", tool),
			attribute.Bool("failed", err != nil),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Warn(string, map[string]interface{}) {}
