package notify

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics counts dispatcher outcomes per channel and event kind.
type Metrics struct {
	delivered metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
}

// NewMetrics registers the dispatcher instruments on the given meter
// provider. Pass nil to disable metrics.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter("storefront.notify")

	delivered, err := meter.Int64Counter("notify.delivered",
		metric.WithDescription("Notifications delivered successfully"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("notify.failed",
		metric.WithDescription("Notification deliveries that failed after retries"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("notify.dropped",
		metric.WithDescription("Events dropped because the queue was full"))
	if err != nil {
		return nil, err
	}

	return &Metrics{delivered: delivered, failed: failed, dropped: dropped}, nil
}

func (m *Metrics) recordDelivery(ctx context.Context, channel string, kind Kind, err error) {
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("kind", string(kind)),
	)
	if err != nil {
		m.failed.Add(ctx, 1, attrs)
		return
	}
	m.delivered.Add(ctx, 1, attrs)
}

func (m *Metrics) recordDrop(ctx context.Context, kind Kind) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
