package observability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

const instrumentationName = "evidentia.custody"

const metricInterval = 15 * time.Second

// Config configures the OTLP exporters.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC host:port
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
	CertFile       string
	KeyFile        string
	CAFile         string
}

// DefaultConfig exports everything to a local collector over TLS.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "evidentia",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
	}
}

// instruments are the custody metrics. Every field is nil on a disabled
// provider and each recorder checks before use.
type instruments struct {
	operations metric.Int64Counter
	failures   metric.Int64Counter
	duration   metric.Float64Histogram
	inFlight   metric.Int64UpDownCounter
	commits    metric.Int64Counter
	denials    metric.Int64Counter
	conflicts  metric.Int64Counter
	integrity  metric.Int64Counter
}

// Provider owns the trace and metric pipelines for the custody engine.
// A nil *Provider is valid and records nothing.
type Provider struct {
	config *Config
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	tracer trace.Tracer
	meter  metric.Meter
	logger *slog.Logger
	m      instruments
}

// New builds a provider. With telemetry disabled it returns a provider
// whose tracer and meter are the global no-ops.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{config: cfg, logger: slog.Default().With("component", "observability")}
	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("evidentia.component", "custody"),
	))
	if err != nil {
		return nil, fmt.Errorf("observability resource: %w", err)
	}
	tlsCfg, err := p.transportCredentials()
	if err != nil {
		return nil, err
	}
	if err := p.startTracing(ctx, res, tlsCfg); err != nil {
		return nil, fmt.Errorf("observability traces: %w", err)
	}
	if err := p.startMetrics(ctx, res, tlsCfg); err != nil {
		return nil, fmt.Errorf("observability metrics: %w", err)
	}

	p.tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	if p.m, err = newInstruments(p.meter); err != nil {
		return nil, fmt.Errorf("observability instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"endpoint", cfg.OTLPEndpoint,
		"sample_rate", cfg.SampleRate,
		"insecure", cfg.Insecure,
	)
	return p, nil
}

func (p *Provider) sampler() sdktrace.Sampler {
	switch r := p.config.SampleRate; {
	case r >= 1:
		return sdktrace.AlwaysSample()
	case r <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))
	}
}

func (p *Provider) startTracing(ctx context.Context, res *resource.Resource, tlsCfg *tls.Config) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	switch {
	case p.config.Insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case tlsCfg != nil:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(p.sampler()),
	)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) startMetrics(ctx context.Context, res *resource.Resource, tlsCfg *tls.Config) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	switch {
	case p.config.Insecure:
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	case tlsCfg != nil:
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	p.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval))),
	)
	otel.SetMeterProvider(p.mp)
	return nil
}

func newInstruments(m metric.Meter) (instruments, error) {
	var (
		in   instruments
		errs []error
		err  error
	)
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, e := m.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, e)
		return c
	}
	in.operations = counter("evidentia.custody.operations", "Custody operations started", "{operation}")
	in.failures = counter("evidentia.custody.failures", "Custody operations that returned an error", "{operation}")
	in.commits = counter("evidentia.custody.commits", "Ledger commits accepted", "{commit}")
	in.denials = counter("evidentia.custody.denials", "Operations refused by permission or custody rules", "{operation}")
	in.conflicts = counter("evidentia.custody.conflicts", "Commits lost to a concurrent writer", "{operation}")
	in.integrity = counter("evidentia.integrity.checks", "Integrity verifications by outcome", "{check}")

	in.duration, err = m.Float64Histogram("evidentia.custody.duration",
		metric.WithDescription("Custody operation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	errs = append(errs, err)
	in.inFlight, err = m.Int64UpDownCounter("evidentia.custody.in_flight",
		metric.WithDescription("Custody operations currently running"),
		metric.WithUnit("{operation}"),
	)
	errs = append(errs, err)
	return in, errors.Join(errs...)
}

// Shutdown flushes and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.ErrorContext(ctx, "observability shutdown", "error", err)
		return err
	}
	return nil
}

// Tracer returns the provider's tracer, or the global one.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// Meter returns the provider's meter, or the global one.
func (p *Provider) Meter() metric.Meter {
	if p == nil || p.meter == nil {
		return otel.Meter(instrumentationName)
	}
	return p.meter
}

// StartSpan starts an internal span.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// TrackOperation opens a span for one custody operation and counts it.
// The returned func closes the span and records latency and failure.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if p == nil {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, span := p.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	set := metric.WithAttributes(attrs...)
	add(ctx, p.m.operations, 1, set)
	if p.m.inFlight != nil {
		p.m.inFlight.Add(ctx, 1, set)
	}

	return ctx, func(err error) {
		if p.m.inFlight != nil {
			p.m.inFlight.Add(ctx, -1, set)
		}
		if p.m.duration != nil {
			p.m.duration.Record(ctx, time.Since(start).Seconds(), set)
		}
		if err != nil {
			span.RecordError(err)
			failed := append(append([]attribute.KeyValue(nil), attrs...), AttrErrorType.String(fmt.Sprintf("%T", err)))
			add(ctx, p.m.failures, 1, metric.WithAttributes(failed...))
		}
		span.End()
	}
}

// RecordCommit counts an accepted ledger commit.
func (p *Provider) RecordCommit(ctx context.Context, op string) {
	if p == nil {
		return
	}
	add(ctx, p.m.commits, 1, metric.WithAttributes(AttrOperation.String(op)))
}

// RecordDenial counts an operation refused by authorization or custody rules.
func (p *Provider) RecordDenial(ctx context.Context, op string) {
	if p == nil {
		return
	}
	add(ctx, p.m.denials, 1, metric.WithAttributes(AttrOperation.String(op)))
}

// RecordConflict counts a commit that lost a compare-and-swap race.
func (p *Provider) RecordConflict(ctx context.Context, op string) {
	if p == nil {
		return
	}
	add(ctx, p.m.conflicts, 1, metric.WithAttributes(AttrOperation.String(op)))
}

// RecordIntegrity counts an integrity verification and marks the current span.
func (p *Provider) RecordIntegrity(ctx context.Context, evidenceID string, match bool) {
	AddSpanEvent(ctx, "integrity.verified", AttrEvidenceID.String(evidenceID), AttrIntegrityOK.Bool(match))
	if p == nil {
		return
	}
	add(ctx, p.m.integrity, 1, metric.WithAttributes(AttrIntegrityOK.Bool(match)))
}

func add(ctx context.Context, c metric.Int64Counter, n int64, opt metric.AddOption) {
	if c != nil {
		c.Add(ctx, n, opt)
	}
}

// transportCredentials loads the exporter TLS material. Nil means the
// system roots with no client certificate.
func (p *Provider) transportCredentials() (*tls.Config, error) {
	if p.config.CertFile == "" && p.config.KeyFile == "" && p.config.CAFile == "" {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if p.config.CAFile != "" {
		pem, err := os.ReadFile(p.config.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", p.config.CAFile)
		}
		cfg.RootCAs = pool
	}
	if p.config.CertFile != "" || p.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(p.config.CertFile, p.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
