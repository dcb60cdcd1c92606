package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "flagcache"
	tracerName = "flagcache"
)

// OTelProvider implements Provider using OpenTelemetry
type OTelProvider struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	batchFlushes    metric.Int64Counter
	batchSize       metric.Int64Histogram
	fetchDuration   metric.Float64Histogram
	fetchFailures   metric.Int64Counter
	revalidations   metric.Int64Counter
	storageFailures metric.Int64Counter
	cacheSize       metric.Int64ObservableGauge

	// last reported size, read by the gauge callback
	currentCacheSize atomic.Int64
}

// NewOTel creates a provider bound to the global OpenTelemetry providers
func NewOTel() (*OTelProvider, error) {
	return NewOTelWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewOTelWithProviders creates a provider bound to explicit providers
func NewOTelWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*OTelProvider, error) {
	provider := &OTelProvider{
		tracer: tp.Tracer(tracerName),
		meter:  mp.Meter(meterName),
	}

	if err := provider.initMetrics(); err != nil {
		return nil, err
	}

	return provider, nil
}

// initMetrics initializes all metrics
func (o *OTelProvider) initMetrics() error {
	var err error

	o.cacheHits, err = o.meter.Int64Counter(
		"flagcache.cache.hits",
		metric.WithDescription("Number of cache hits, stale hits included"),
	)
	if err != nil {
		return err
	}

	o.cacheMisses, err = o.meter.Int64Counter(
		"flagcache.cache.misses",
		metric.WithDescription("Number of cache misses"),
	)
	if err != nil {
		return err
	}

	o.batchFlushes, err = o.meter.Int64Counter(
		"flagcache.batch.flushes",
		metric.WithDescription("Number of batch windows flushed"),
	)
	if err != nil {
		return err
	}

	o.batchSize, err = o.meter.Int64Histogram(
		"flagcache.batch.size",
		metric.WithDescription("Distinct flag keys per flushed batch window"),
	)
	if err != nil {
		return err
	}

	o.fetchDuration, err = o.meter.Float64Histogram(
		"flagcache.fetch.duration",
		metric.WithDescription("Duration of transport fetches"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	o.fetchFailures, err = o.meter.Int64Counter(
		"flagcache.fetch.failures",
		metric.WithDescription("Number of failed transport fetches"),
	)
	if err != nil {
		return err
	}

	o.revalidations, err = o.meter.Int64Counter(
		"flagcache.revalidations",
		metric.WithDescription("Number of background revalidations scheduled"),
	)
	if err != nil {
		return err
	}

	o.storageFailures, err = o.meter.Int64Counter(
		"flagcache.storage.failures",
		metric.WithDescription("Number of swallowed persistent storage failures"),
	)
	if err != nil {
		return err
	}

	o.cacheSize, err = o.meter.Int64ObservableGauge(
		"flagcache.cache.size",
		metric.WithDescription("Number of entries in the cache store"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(o.currentCacheSize.Load())
			return nil
		}),
	)
	if err != nil {
		return err
	}

	return nil
}

// StartSpan creates a new trace span
func (o *OTelProvider) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	config := &SpanConfig{}
	for _, opt := range opts {
		opt(config)
	}

	otelAttrs := make([]attribute.KeyValue, len(config.Attributes))
	for i, attr := range config.Attributes {
		otelAttrs[i] = o.convertAttribute(attr)
	}

	ctx, otelSpan := o.tracer.Start(ctx, name, trace.WithAttributes(otelAttrs...))

	return ctx, &OTelSpan{span: otelSpan, provider: o}
}

// convertAttribute converts our Attribute to OTel attribute
func (o *OTelProvider) convertAttribute(attr Attribute) attribute.KeyValue {
	switch v := attr.Value.(type) {
	case string:
		return attribute.String(attr.Key, v)
	case []string:
		return attribute.StringSlice(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case bool:
		return attribute.Bool(attr.Key, v)
	case float64:
		return attribute.Float64(attr.Key, v)
	default:
		return attribute.String(attr.Key, "")
	}
}

// RecordCacheHit records a cache hit
func (o *OTelProvider) RecordCacheHit(ctx context.Context, flagKey string, stale bool) {
	o.cacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flag.key", flagKey),
		attribute.Bool("cache.stale", stale),
	))
}

// RecordCacheMiss records a cache miss
func (o *OTelProvider) RecordCacheMiss(ctx context.Context, flagKey string) {
	o.cacheMisses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flag.key", flagKey),
	))
}

// RecordCacheSize updates the value reported by the cache size gauge
func (o *OTelProvider) RecordCacheSize(ctx context.Context, size int) {
	o.currentCacheSize.Store(int64(size))
}

// RecordBatchFlush records one flushed batch window
func (o *OTelProvider) RecordBatchFlush(ctx context.Context, size int, success bool, duration time.Duration) {
	o.batchFlushes.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
	o.batchSize.Record(ctx, int64(size))
	o.RecordFetch(ctx, "batch", success, duration, size)
}

// RecordFetch records a transport fetch
func (o *OTelProvider) RecordFetch(ctx context.Context, kind string, success bool, duration time.Duration, flagCount int) {
	o.fetchDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(
			attribute.String("fetch.kind", kind),
			attribute.Bool("success", success),
		))

	if !success {
		o.fetchFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("fetch.kind", kind),
		))
	}
}

// RecordRevalidation records background revalidations
func (o *OTelProvider) RecordRevalidation(ctx context.Context, trigger string, count int) {
	o.revalidations.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("trigger", trigger),
	))
}

// RecordStorageFailure records a swallowed storage failure
func (o *OTelProvider) RecordStorageFailure(ctx context.Context, op string) {
	o.storageFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("storage.op", op),
	))
}

// Shutdown shuts down the provider
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	// SDK shutdown is owned by whoever installed the providers
	return nil
}

// OTelSpan wraps an OpenTelemetry span
type OTelSpan struct {
	span     trace.Span
	provider *OTelProvider
}

// End completes the span
func (s *OTelSpan) End() {
	s.span.End()
}

// SetAttributes sets attributes on the span
func (s *OTelSpan) SetAttributes(attrs ...Attribute) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		otelAttrs[i] = s.provider.convertAttribute(attr)
	}
	s.span.SetAttributes(otelAttrs...)
}

// RecordError records an error on the span
func (s *OTelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// AddEvent adds an event to the span
func (s *OTelSpan) AddEvent(name string, attrs ...Attribute) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		otelAttrs[i] = s.provider.convertAttribute(attr)
	}
	s.span.AddEvent(name, trace.WithAttributes(otelAttrs...))
}
