package metrics

import (
	"context"
	"fmt"
	"strconv"
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
	settlements        metric.Int64Counter
	certifications     metric.Int64Counter
	gateNotifyAttempts metric.Int64Counter
	voucherRedemptions metric.Int64Counter
	manualOpens        metric.Int64Counter
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
		name = "zkt-sub000"
	}
	meter := provider.Meter(name)

	settlements, err := meter.Int64Counter("parking_settlements_total")
	if err != nil {
		return nil, err
	}
	certifications, err := meter.Int64Counter("parking_certifications_total")
	if err != nil {
		return nil, err
	}
	gateNotifyAttempts, err := meter.Int64Counter("parking_gate_notify_attempts_total")
	if err != nil {
		return nil, err
	}
	voucherRedemptions, err := meter.Int64Counter("parking_voucher_redemptions_total")
	if err != nil {
		return nil, err
	}
	manualOpens, err := meter.Int64Counter("parking_manual_opens_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		settlements:        settlements,
		certifications:     certifications,
		gateNotifyAttempts: gateNotifyAttempts,
		voucherRedemptions: voucherRedemptions,
		manualOpens:        manualOpens,
	}, nil
}

// RecordSettlement increments settlement counts per billing mode and outcome.
func (m *Metrics) RecordSettlement(ctx context.Context, mode, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("billing_mode", strings.TrimSpace(mode)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.settlements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCertification increments fiscal certification counts.
func (m *Metrics) RecordCertification(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	status := "certified"
	if !ok {
		status = "failed"
	}
	attrs := FilterAttributes(attribute.String("status", status))
	m.certifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGateNotifyAttempt increments gate notification attempt counts.
func (m *Metrics) RecordGateNotifyAttempt(ctx context.Context, attempt int, acknowledged bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("attempt", strconv.Itoa(attempt)),
		attribute.String("acknowledged", strconv.FormatBool(acknowledged)),
	)
	m.gateNotifyAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordVoucherRedemption increments voucher redemption counts.
func (m *Metrics) RecordVoucherRedemption(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.voucherRedemptions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordManualOpen increments manual gate open counts.
func (m *Metrics) RecordManualOpen(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.manualOpens.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"billing_mode": {},
	"status":       {},
	"attempt":      {},
	"acknowledged": {},
	"outcome":      {},
	"reason":       {},
	"endpoint":     {},
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
