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

// Outcome values shared by the ledger and batch instruments.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
	OutcomeDenied  = "denied"
)

// Metrics exposes the provenance pipeline instruments.
type Metrics struct {
	stepsRecorded     metric.Int64Counter
	ledgerSubmissions metric.Int64Counter
	batchRuns         metric.Int64Counter
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

// New builds the domain instruments from provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tracechain"
	}
	meter := provider.Meter(name)

	stepsRecorded, err := meter.Int64Counter("tracechain_steps_recorded_total",
		metric.WithDescription("Supply chain steps persisted after ledger confirmation."))
	if err != nil {
		return nil, err
	}
	ledgerSubmissions, err := meter.Int64Counter("tracechain_ledger_submissions_total",
		metric.WithDescription("Ledger submissions by outcome."))
	if err != nil {
		return nil, err
	}
	batchRuns, err := meter.Int64Counter("tracechain_batch_runs_total",
		metric.WithDescription("Batch step operations by outcome."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		stepsRecorded:     stepsRecorded,
		ledgerSubmissions: ledgerSubmissions,
		batchRuns:         batchRuns,
	}, nil
}

// RecordStep counts a persisted step. mode is "single" or "batch".
func (m *Metrics) RecordStep(ctx context.Context, stage, mode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("stage", strings.TrimSpace(stage)),
		attribute.String("mode", strings.TrimSpace(mode)),
	)
	m.stepsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordLedgerSubmission(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", outcome))
	m.ledgerSubmissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordBatchRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", outcome))
	m.batchRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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

// Product, batch and actor ids are unbounded and never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"stage":       {},
	"mode":        {},
	"outcome":     {},
	"reason":      {},
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
