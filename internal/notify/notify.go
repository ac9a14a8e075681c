// Package notify delivers order events to external channels. Delivery is
// best-effort and fully detached from the request path: events are queued
// to an in-process worker that owns retries and failure logging, and a
// delivery failure is never visible to the code that placed the order.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voltstore/storefront/internal/domain/order"
)

// Kind is the trigger that produced an event.
type Kind string

const (
	// KindOrderCreated fires once when an order is placed.
	KindOrderCreated Kind = "order_created"
	// KindOrderConfirmed fires when an order first reaches confirmed.
	KindOrderConfirmed Kind = "order_confirmed"
	// KindStatusChanged fires on every status transition.
	KindStatusChanged Kind = "status_changed"
)

// Event is an order snapshot plus the trigger that produced it. It is
// never persisted and never retried beyond the channels' own policy.
type Event struct {
	Kind      Kind
	Order     order.Order
	OldStatus order.Status
	NewStatus order.Status
}

// Channel delivers one event to one destination. Send is called from the
// dispatcher worker; an unconfigured channel must return nil, not an
// error.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// sendTimeout bounds a single event's delivery across retries.
const sendTimeout = 30 * time.Second

// queueSize bounds the in-process event queue. Overflow drops the event
// with a log line rather than blocking a request.
const queueSize = 256

// Dispatcher fans events out to all channels from a single worker
// goroutine. It implements order.EventPublisher.
type Dispatcher struct {
	channels []Channel
	queue    chan Event
	lg       *zap.Logger
	metrics  *Metrics
}

var _ order.EventPublisher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher over the given channels. Pass nil
// metrics to count nothing.
func NewDispatcher(lg *zap.Logger, metrics *Metrics, channels ...Channel) *Dispatcher {
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	return &Dispatcher{
		channels: channels,
		queue:    make(chan Event, queueSize),
		lg:       lg,
		metrics:  metrics,
	}
}

// Run consumes the queue until ctx is cancelled. It always returns nil so
// it can sit in an errgroup without taking the process down.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.queue:
			d.deliver(ev)
		}
	}
}

// deliver sends one event to every channel sequentially. Failures are
// logged and swallowed.
func (d *Dispatcher) deliver(ev Event) {
	// The request that produced the event has already returned; the
	// timeout here only bounds the worker, not any caller.
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	for _, ch := range d.channels {
		err := ch.Send(ctx, ev)
		d.metrics.recordDelivery(ctx, ch.Name(), ev.Kind, err)
		if err != nil {
			d.lg.Error("notification delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("kind", string(ev.Kind)),
				zap.Int64("order_id", ev.Order.ID),
				zap.Error(err),
			)
		}
	}
}

// publish enqueues without blocking. A full queue drops the event.
func (d *Dispatcher) publish(ev Event) {
	select {
	case d.queue <- ev:
	default:
		d.metrics.recordDrop(context.Background(), ev.Kind)
		d.lg.Warn("notification queue full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.Int64("order_id", ev.Order.ID),
		)
	}
}

// OrderCreated publishes the order-placed event.
func (d *Dispatcher) OrderCreated(o *order.Order) {
	d.publish(Event{Kind: KindOrderCreated, Order: *o})
}

// OrderConfirmed publishes the confirmation milestone event.
func (d *Dispatcher) OrderConfirmed(o *order.Order) {
	d.publish(Event{Kind: KindOrderConfirmed, Order: *o})
}

// StatusChanged publishes a status transition event.
func (d *Dispatcher) StatusChanged(o *order.Order, from, to order.Status) {
	d.publish(Event{Kind: KindStatusChanged, Order: *o, OldStatus: from, NewStatus: to})
}
