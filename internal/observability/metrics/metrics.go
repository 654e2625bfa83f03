package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments for the payment processing
// pipeline: workflow throughput, match outcomes, ERP retries, extractor
// tier usage, and notification dispatch.
type Metrics struct {
	workflowsStarted metric.Int64Counter
	matchOutcomes    metric.Int64Counter
	erpPostRetries   metric.Int64Counter
	extractorTier    metric.Int64Counter
	notifyDispatched metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "cashapp"
	}
	meter := provider.Meter(name)

	workflowsStarted, err := meter.Int64Counter("cashapp_workflows_started_total")
	if err != nil {
		return nil, err
	}
	matchOutcomes, err := meter.Int64Counter("cashapp_match_outcome_total")
	if err != nil {
		return nil, err
	}
	erpPostRetries, err := meter.Int64Counter("cashapp_erp_post_retries_total")
	if err != nil {
		return nil, err
	}
	extractorTier, err := meter.Int64Counter("cashapp_extractor_tier_used_total")
	if err != nil {
		return nil, err
	}
	notifyDispatched, err := meter.Int64Counter("cashapp_notifications_dispatched_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		workflowsStarted: workflowsStarted,
		matchOutcomes:    matchOutcomes,
		erpPostRetries:   erpPostRetries,
		extractorTier:    extractorTier,
		notifyDispatched: notifyDispatched,
	}, nil
}

// RecordWorkflowStarted increments the workflow start counter.
func (m *Metrics) RecordWorkflowStarted(ctx context.Context, sourceAccountRef string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_account_ref", strings.TrimSpace(sourceAccountRef)))
	m.workflowsStarted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMatchOutcome increments the match outcome counter by status and
// discrepancy code.
func (m *Metrics) RecordMatchOutcome(ctx context.Context, status, discrepancyCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.String("discrepancy_code", strings.TrimSpace(discrepancyCode)),
	)
	m.matchOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordERPPostRetry increments the ERP post retry counter for the given
// erp_system.
func (m *Metrics) RecordERPPostRetry(ctx context.Context, erpSystem string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("erp_system", strings.TrimSpace(erpSystem)))
	m.erpPostRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExtractorTier increments the extractor tier usage counter.
func (m *Metrics) RecordExtractorTier(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("tier", strings.TrimSpace(tier)))
	m.extractorTier.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotificationDispatched increments the notification dispatch counter.
func (m *Metrics) RecordNotificationDispatched(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.notifyDispatched.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source_account_ref": {},
	"status":             {},
	"discrepancy_code":   {},
	"erp_system":         {},
	"tier":               {},
	"kind":               {},
	"method":             {},
	"route":              {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// HTTPMetrics exposes Prometheus request counters for the gin HTTP surface.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers and returns Prometheus HTTP metrics.
func NewHTTPMetrics() *HTTPMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cashapp_http_requests_total",
		Help: "Counts HTTP requests by method, route, and status.",
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cashapp_http_duration_seconds",
		Help:    "HTTP request latency per method/route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	prometheus.MustRegister(requests, duration)
	return &HTTPMetrics{Requests: requests, Duration: duration}
}
