package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voltstore/storefront/internal/domain/order"
)

type recordingChannel struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *recordingChannel) recorded() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestDispatcher_FansOutToAllChannels(t *testing.T) {
	a := &recordingChannel{name: "a"}
	b := &recordingChannel{name: "b"}
	d := NewDispatcher(zaptest.NewLogger(t), nil, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.OrderCreated(&order.Order{ID: 1})
	d.StatusChanged(&order.Order{ID: 1}, order.StatusPending, order.StatusConfirmed)

	waitFor(t, func() bool { return len(a.recorded()) == 2 && len(b.recorded()) == 2 })

	got := a.recorded()
	assert.Equal(t, KindOrderCreated, got[0].Kind)
	assert.Equal(t, KindStatusChanged, got[1].Kind)
	assert.Equal(t, order.StatusPending, got[1].OldStatus)
	assert.Equal(t, order.StatusConfirmed, got[1].NewStatus)
}

func TestDispatcher_ChannelFailureDoesNotBlockOthers(t *testing.T) {
	failing := &recordingChannel{name: "failing", err: errors.New("boom")}
	ok := &recordingChannel{name: "ok"}
	d := NewDispatcher(zaptest.NewLogger(t), nil, failing, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.OrderConfirmed(&order.Order{ID: 3})

	waitFor(t, func() bool { return len(ok.recorded()) == 1 })
	assert.Equal(t, KindOrderConfirmed, ok.recorded()[0].Kind)
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	// No worker running: the queue fills up and overflow is dropped.
	d := NewDispatcher(zaptest.NewLogger(t), nil, &recordingChannel{name: "a"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueSize*2; i++ {
			d.OrderCreated(&order.Order{ID: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t), nil, &recordingChannel{name: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
