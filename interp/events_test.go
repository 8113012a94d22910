package interp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusWaitReturnsOnEmit(t *testing.T) {
	bus := NewEventBus()
	go func() {
		time.Sleep(10 * time.Millisecond)
		bus.Emit("ready", 42)
	}()

	payload, ok := bus.Wait(context.Background(), RealClock(), "ready", time.Second, nil)
	require.True(t, ok)
	assert.Equal(t, 42, payload)
}

func TestEventBusFiredEventsAreSticky(t *testing.T) {
	bus := NewEventBus()
	bus.Emit("ready", "first")
	bus.Emit("ready", "second")

	payload, ok := bus.Wait(context.Background(), RealClock(), "ready", time.Millisecond, nil)
	require.True(t, ok)
	assert.Equal(t, "second", payload)
	assert.True(t, bus.Fired("ready"))
	assert.Equal(t, 2, bus.Count("ready"))
	assert.False(t, bus.Fired("other"))
}

func TestEventBusWaitTimesOut(t *testing.T) {
	bus := NewEventBus()
	start := time.Now()
	_, ok := bus.Wait(context.Background(), RealClock(), "never", 20*time.Millisecond, nil)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEventBusWaitStops(t *testing.T) {
	bus := NewEventBus()
	stop := make(chan struct{})
	close(stop)
	_, ok := bus.Wait(context.Background(), nil, "never", 0, stop)
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = bus.Wait(ctx, nil, "never", 0, nil)
	assert.False(t, ok)
}

func TestEventBusListenersInOrder(t *testing.T) {
	bus := NewEventBus()
	var order []string
	bus.Subscribe("hit", func(any) { order = append(order, "a") })
	unsubscribe := bus.Subscribe("hit", func(any) { order = append(order, "b") })
	bus.Subscribe("hit", func(p any) { order = append(order, p.(string)) })

	bus.Emit("hit", "c")
	unsubscribe()
	bus.Emit("hit", "d")

	assert.Equal(t, []string{"a", "b", "c", "a", "d"}, order)
}
