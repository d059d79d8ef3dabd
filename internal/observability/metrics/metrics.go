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
	eventsAdmitted   metric.Int64Counter
	eventsDuplicate  metric.Int64Counter
	eventsParked     metric.Int64Counter
	eventsThrottled  metric.Int64Counter
	ledgerEntries    metric.Int64Counter
	debitsRejected   metric.Int64Counter
	invoicesIssued   metric.Int64Counter
	alertsRaised     metric.Int64Counter
	gatingDispatched metric.Int64Counter
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
		name = "tollgate"
	}
	meter := provider.Meter(name)

	eventsAdmitted, err := meter.Int64Counter("tollgate_events_admitted_total")
	if err != nil {
		return nil, err
	}
	eventsDuplicate, err := meter.Int64Counter("tollgate_events_duplicate_total")
	if err != nil {
		return nil, err
	}
	eventsParked, err := meter.Int64Counter("tollgate_events_parked_total")
	if err != nil {
		return nil, err
	}
	eventsThrottled, err := meter.Int64Counter("tollgate_events_throttled_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("tollgate_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	debitsRejected, err := meter.Int64Counter("tollgate_debits_rejected_total")
	if err != nil {
		return nil, err
	}
	invoicesIssued, err := meter.Int64Counter("tollgate_invoices_issued_total")
	if err != nil {
		return nil, err
	}
	alertsRaised, err := meter.Int64Counter("tollgate_alerts_raised_total")
	if err != nil {
		return nil, err
	}
	gatingDispatched, err := meter.Int64Counter("tollgate_gating_dispatched_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsAdmitted:   eventsAdmitted,
		eventsDuplicate:  eventsDuplicate,
		eventsParked:     eventsParked,
		eventsThrottled:  eventsThrottled,
		ledgerEntries:    ledgerEntries,
		debitsRejected:   debitsRejected,
		invoicesIssued:   invoicesIssued,
		alertsRaised:     alertsRaised,
		gatingDispatched: gatingDispatched,
	}, nil
}

// RecordEventAdmitted increments admitted event counts.
func (m *Metrics) RecordEventAdmitted(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.eventsAdmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventDuplicate increments duplicate event counts.
func (m *Metrics) RecordEventDuplicate(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.eventsDuplicate.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventParked increments parked event counts.
func (m *Metrics) RecordEventParked(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.eventsParked.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventThrottled increments rate limited event counts.
func (m *Metrics) RecordEventThrottled(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.eventsThrottled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, entryType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("entry_type", strings.TrimSpace(entryType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDebitRejected increments rejected debit counts.
func (m *Metrics) RecordDebitRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.debitsRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceIssued increments issued invoice counts.
func (m *Metrics) RecordInvoiceIssued(ctx context.Context, jurisdiction string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("jurisdiction", strings.TrimSpace(jurisdiction)))
	m.invoicesIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAlertRaised increments raised alert counts.
func (m *Metrics) RecordAlertRaised(ctx context.Context, alertType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("alert_type", strings.TrimSpace(alertType)))
	m.alertsRaised.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGatingDispatched increments gating signal counts.
func (m *Metrics) RecordGatingDispatched(ctx context.Context, signal, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("signal", strings.TrimSpace(signal)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.gatingDispatched.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"endpoint":     {},
	"status_code":  {},
	"event_type":   {},
	"entry_type":   {},
	"alert_type":   {},
	"jurisdiction": {},
	"signal":       {},
	"outcome":      {},
	"reason":       {},
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
