// Package telemetry wires OpenTelemetry metrics and traces for the
// emergency response server. Ledger events arrive through Recorder, HTTP
// traffic through Middleware and case access through RecordAccess.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ers/ers/internal/domain/emergency"
	"github.com/ers/ers/internal/platform/middleware"
)

const instrumentationName = "github.com/ers/ers"

// Config holds telemetry settings. An empty OTLPEndpoint keeps all data
// in-process (useful for tests and local runs).
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	ExportInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "ers-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = 15 * time.Second
	}
}

// Option customizes a Provider.
type Option func(*options)

type options struct {
	readers    []sdkmetric.Reader
	processors []sdktrace.SpanProcessor
}

// WithReader attaches an extra metric reader (e.g. a ManualReader in tests).
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.readers = append(o.readers, r) }
}

// WithSpanProcessor attaches an extra span processor.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processors = append(o.processors, p) }
}

// Provider owns the SDK meter and tracer providers and the instruments the
// server records into. It implements emergency.Recorder.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	casesCreated    metric.Int64Counter
	transitions     metric.Int64Counter
	caseAccess      metric.Int64Counter
}

// NewProvider builds the SDK providers. When cfg.OTLPEndpoint is set, metrics
// and spans are exported over OTLP/gRPC.
func NewProvider(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	cfg.applyDefaults()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	res := resource.NewSchemaless(attrs...)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		metricExp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating otlp metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(cfg.ExportInterval)),
		))

		traceExp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExp))
	}
	for _, r := range o.readers {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}
	for _, p := range o.processors {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(p))
	}

	p := &Provider{
		meterProvider:  sdkmetric.NewMeterProvider(meterOpts...),
		tracerProvider: sdktrace.NewTracerProvider(traceOpts...),
	}
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) initInstruments() error {
	meter := p.meterProvider.Meter(instrumentationName)
	var err error

	p.requestCount, err = meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return err
	}

	p.requestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.casesCreated, err = meter.Int64Counter(
		"ers.cases.created",
		metric.WithDescription("Cases added to the ledger"),
	)
	if err != nil {
		return err
	}

	p.transitions, err = meter.Int64Counter(
		"ers.case.transitions",
		metric.WithDescription("Case status changes, including no-op changes"),
	)
	if err != nil {
		return err
	}

	p.caseAccess, err = meter.Int64Counter(
		"ers.case_access",
		metric.WithDescription("Audited API requests by resource, action and dashboard"),
	)
	return err
}

// ObserveLedger registers gauges that report the ledger's metrics snapshot
// on every collection.
func (p *Provider) ObserveLedger(src interface {
	Metrics(ctx context.Context) emergency.Metrics
}) error {
	meter := p.meterProvider.Meter(instrumentationName)

	arriving, err := meter.Int64ObservableGauge("ers.emergencies.arriving",
		metric.WithDescription("Active emergencies arriving"))
	if err != nil {
		return err
	}
	critical, err := meter.Int64ObservableGauge("ers.cases.critical",
		metric.WithDescription("Critical cases reported by the ledger"))
	if err != nil {
		return err
	}
	beds, err := meter.Int64ObservableGauge("ers.beds.available",
		metric.WithDescription("Available beds"))
	if err != nil {
		return err
	}
	response, err := meter.Float64ObservableGauge("ers.response_time.avg",
		metric.WithDescription("Average response time"),
		metric.WithUnit("min"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		m := src.Metrics(ctx)
		o.ObserveInt64(arriving, int64(m.ActiveEmergenciesArriving))
		o.ObserveInt64(critical, int64(m.CriticalCases))
		o.ObserveInt64(beds, int64(m.AvailableBeds))
		o.ObserveFloat64(response, m.AvgResponseTime)
		return nil
	}, arriving, critical, beds, response)
	return err
}

// CaseCreated implements emergency.Recorder.
func (p *Provider) CaseCreated(ctx context.Context, critical bool) {
	p.casesCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("critical", critical)))
}

// StatusChanged implements emergency.Recorder. delta is false for
// transitions that left the counters untouched.
func (p *Provider) StatusChanged(ctx context.Context, t emergency.Transition) {
	p.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(t.From)),
		attribute.String("to", string(t.To)),
		attribute.Bool("delta", t.WritesHistory),
	))
	trace.SpanFromContext(ctx).AddEvent("case.status_changed", trace.WithAttributes(
		attribute.String("from", string(t.From)),
		attribute.String("to", string(t.To)),
	))
}

// RecordAccess implements middleware.AuditRecorder.
func (p *Provider) RecordAccess(entry middleware.AuditEntry) error {
	dashboard := entry.Dashboard
	if dashboard == "" {
		dashboard = "unknown"
	}
	p.caseAccess.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("resource", entry.Resource),
		attribute.String("action", entry.Action),
		attribute.String("dashboard", dashboard),
		attribute.Int("http.status_code", entry.StatusCode),
	))
	return nil
}

// Middleware starts a server span per request and records request count and
// duration keyed by route, not raw path.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = middleware.RedactPath(req.URL.Path)
			}

			ctx, span := p.tracer.Start(req.Context(), req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.user_agent", req.UserAgent()),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			if err != nil {
				span.RecordError(err)
			}
			span.SetAttributes(attribute.Int("http.status_code", status))

			attrs := metric.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.route", route),
				attribute.String("http.status_code", strconv.Itoa(status)),
			)
			p.requestCount.Add(ctx, 1, attrs)
			p.requestDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

			return err
		}
	}
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.meterProvider.Shutdown(ctx),
		p.tracerProvider.Shutdown(ctx),
	)
}
