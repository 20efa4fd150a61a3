// internal/common/observability/observability.go
package observability

import (
	"context"
	"errors"
	"time"

	"notification-dispatch/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the OpenTelemetry meter and tracer for the service.
// A zero value is usable and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	dispatchCounter  otelmetric.Int64Counter
	dispatchDuration otelmetric.Float64Histogram
	deliveryDuration otelmetric.Float64Histogram
}

// Options configures New.
type Options struct {
	ServiceName    string
	JaegerEndpoint string // empty disables trace export
}

// New wires the Prometheus metric exporter and, when an endpoint is given,
// a Jaeger span exporter. Setup failures degrade to no-op instruments.
func New(opts Options, log logger.Logger) *Observability {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(opts.ServiceName)}

	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err.Error()})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
		otel.SetMeterProvider(o.meterProvider)
		o.initInstruments(o.meterProvider.Meter(opts.ServiceName))
	}

	if opts.JaegerEndpoint != "" {
		traceExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
		if err != nil {
			log.Warn("failed to create jaeger exporter", map[string]interface{}{"error": err.Error()})
		} else {
			o.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(traceExporter),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(o.tracerProvider)
			o.tracer = o.tracerProvider.Tracer(opts.ServiceName)
		}
	}

	return o
}

func (o *Observability) initInstruments(meter otelmetric.Meter) {
	o.dispatchCounter, _ = meter.Int64Counter(
		"dispatch.runs",
		otelmetric.WithDescription("Number of message dispatches"),
	)
	o.dispatchDuration, _ = meter.Float64Histogram(
		"dispatch.duration",
		otelmetric.WithDescription("Message dispatch duration"),
		otelmetric.WithUnit("ms"),
	)
	o.deliveryDuration, _ = meter.Float64Histogram(
		"delivery.duration",
		otelmetric.WithDescription("Single channel delivery duration"),
		otelmetric.WithUnit("ms"),
	)
}

// StartSpan opens a span named name. The returned end function must be called.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	tracer := o.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// RecordDispatch records one completed dispatch with its terminal state.
func (o *Observability) RecordDispatch(ctx context.Context, state string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("state", state))
	if o.dispatchCounter != nil {
		o.dispatchCounter.Add(ctx, 1, attrs)
	}
	if o.dispatchDuration != nil {
		o.dispatchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordDelivery records the duration of one send attempt.
func (o *Observability) RecordDelivery(ctx context.Context, kind, outcome string, duration time.Duration) {
	if o.deliveryDuration != nil {
		o.deliveryDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error
	if o.tracerProvider != nil {
		errs = append(errs, o.tracerProvider.Shutdown(ctx))
	}
	if o.meterProvider != nil {
		errs = append(errs, o.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
