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

// Metrics exposes application-level instruments.
type Metrics struct {
	aiOperations    metric.Int64Counter
	modelTokens     metric.Int64Counter
	creditsDebited  metric.Int64Counter
	creditsRefunded metric.Int64Counter
	syntheticRuns   metric.Int64Counter
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
		name = "pulseform"
	}
	meter := provider.Meter(name)

	aiOperations, err := meter.Int64Counter("pulseform_ai_operations_total")
	if err != nil {
		return nil, err
	}
	modelTokens, err := meter.Int64Counter("pulseform_model_tokens_total")
	if err != nil {
		return nil, err
	}
	creditsDebited, err := meter.Int64Counter("pulseform_credits_debited_total")
	if err != nil {
		return nil, err
	}
	creditsRefunded, err := meter.Int64Counter("pulseform_credits_refunded_total")
	if err != nil {
		return nil, err
	}
	syntheticRuns, err := meter.Int64Counter("pulseform_synthetic_respondents_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		aiOperations:    aiOperations,
		modelTokens:     modelTokens,
		creditsDebited:  creditsDebited,
		creditsRefunded: creditsRefunded,
		syntheticRuns:   syntheticRuns,
	}, nil
}

// RecordOperation increments AI operation counts by outcome.
func (m *Metrics) RecordOperation(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.aiOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordModelTokens adds estimated token usage by model and direction.
func (m *Metrics) RecordModelTokens(ctx context.Context, model string, input, output int64) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if input > 0 {
		attrs := FilterAttributes(attribute.String("model", model), attribute.String("direction", "input"))
		m.modelTokens.Add(ctx, input, metric.WithAttributes(attrs...))
	}
	if output > 0 {
		attrs := FilterAttributes(attribute.String("model", model), attribute.String("direction", "output"))
		m.modelTokens.Add(ctx, output, metric.WithAttributes(attrs...))
	}
}

// RecordCreditsDebited adds debited credits by operation.
func (m *Metrics) RecordCreditsDebited(ctx context.Context, operation string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.creditsDebited.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordCreditsRefunded adds refunded credits by operation.
func (m *Metrics) RecordCreditsRefunded(ctx context.Context, operation string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.creditsRefunded.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordSyntheticRespondents adds simulated respondent counts by outcome.
func (m *Metrics) RecordSyntheticRespondents(ctx context.Context, outcome string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.syntheticRuns.Add(ctx, count, metric.WithAttributes(attrs...))
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
	"operation":   {},
	"outcome":     {},
	"model":       {},
	"direction":   {},
	"endpoint":    {},
	"status_code": {},
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
