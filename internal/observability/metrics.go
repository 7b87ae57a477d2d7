package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the job monitor
type MetricsCollector struct {
	meter metric.Meter

	// Engine client metrics
	engineRequests metric.Int64Counter
	engineLatency  metric.Float64Histogram

	// Stream metrics
	streamEvents     metric.Int64Counter
	streamReconnects metric.Int64Counter

	// Monitor metrics
	refreshes      metric.Int64Counter
	monitorsActive metric.Int64UpDownCounter
	updatesDropped metric.Int64Counter

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	// Create meter provider
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("netmig")

	engineRequests, err := meter.Int64Counter(
		"netmig.engine.requests.total",
		metric.WithDescription("Total number of requests to the job engine"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine_requests counter: %w", err)
	}

	engineLatency, err := meter.Float64Histogram(
		"netmig.engine.request.latency",
		metric.WithDescription("Job engine request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine_latency histogram: %w", err)
	}

	streamEvents, err := meter.Int64Counter(
		"netmig.stream.events.total",
		metric.WithDescription("Total number of SSE events received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream_events counter: %w", err)
	}

	streamReconnects, err := meter.Int64Counter(
		"netmig.stream.reconnects.total",
		metric.WithDescription("Total number of stream reconnect attempts"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream_reconnects counter: %w", err)
	}

	refreshes, err := meter.Int64Counter(
		"netmig.monitor.refreshes.total",
		metric.WithDescription("Total number of snapshot refresh fetches by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refreshes counter: %w", err)
	}

	monitorsActive, err := meter.Int64UpDownCounter(
		"netmig.monitor.active",
		metric.WithDescription("Number of jobs currently being monitored"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitors_active gauge: %w", err)
	}

	updatesDropped, err := meter.Int64Counter(
		"netmig.monitor.updates.dropped.total",
		metric.WithDescription("Subscriber updates dropped due to full channels"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create updates_dropped counter: %w", err)
	}

	collector := &MetricsCollector{
		meter:            meter,
		engineRequests:   engineRequests,
		engineLatency:    engineLatency,
		streamEvents:     streamEvents,
		streamReconnects: streamReconnects,
		refreshes:        refreshes,
		monitorsActive:   monitorsActive,
		updatesDropped:   updatesDropped,
	}

	// Start Prometheus HTTP server
	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// StartPrometheusServer starts the Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordEngineRequest records a request to the job engine
func (m *MetricsCollector) RecordEngineRequest(ctx context.Context, route string, status string, latency time.Duration) {
	if m.engineRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("route", route),
		attribute.String("status", status),
	}

	m.engineRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.engineLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordStreamEvent records a received SSE event by name
func (m *MetricsCollector) RecordStreamEvent(ctx context.Context, event string) {
	if m.streamEvents == nil {
		return
	}
	m.streamEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordStreamReconnect records a stream reconnect attempt
func (m *MetricsCollector) RecordStreamReconnect(ctx context.Context) {
	if m.streamReconnects == nil {
		return
	}
	m.streamReconnects.Add(ctx, 1)
}

// RecordRefresh records a snapshot refresh with its store outcome
// (applied, duplicate, stale, error)
func (m *MetricsCollector) RecordRefresh(ctx context.Context, outcome string) {
	if m.refreshes == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// IncrementActiveMonitors increments the active monitor counter
func (m *MetricsCollector) IncrementActiveMonitors(ctx context.Context) {
	if m.monitorsActive == nil {
		return
	}
	m.monitorsActive.Add(ctx, 1)
}

// DecrementActiveMonitors decrements the active monitor counter
func (m *MetricsCollector) DecrementActiveMonitors(ctx context.Context) {
	if m.monitorsActive == nil {
		return
	}
	m.monitorsActive.Add(ctx, -1)
}

// RecordDroppedUpdate records a subscriber update dropped on a full channel
func (m *MetricsCollector) RecordDroppedUpdate(ctx context.Context) {
	if m.updatesDropped == nil {
		return
	}
	m.updatesDropped.Add(ctx, 1)
}
