package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offerchain/core/types"
)

type testEvent struct{ name string }

func (e testEvent) EventType() string { return e.name }

type typedTestEvent struct{}

func (typedTestEvent) EventType() string { return "typed" }
func (typedTestEvent) Event() *types.Event {
	return &types.Event{Type: "typed", Attributes: map[string]string{"k": "v"}}
}

func TestBufferAndFlatten(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{name: "plain"})
	buf.Emit(nil)
	buf.Emit(typedTestEvent{})

	flat := Flatten(buf.Events())
	require.Len(t, flat, 2)
	require.Equal(t, "plain", flat[0].Type)
	require.Equal(t, "v", flat[1].Attributes["k"])

	buf.Reset()
	require.Empty(t, buf.Events())
}

func TestBrokerDeliversAndBacklogs(t *testing.T) {
	broker := NewBroker()
	broker.Publish(Record{Sequence: 1, Type: "a"}, Record{Sequence: 2, Type: "b"})

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	updates, cancel, backlog := broker.Subscribe(ctx, 1)
	defer cancel()

	require.Len(t, backlog, 1)
	require.Equal(t, uint64(2), backlog[0].Sequence)

	broker.Publish(Record{Sequence: 3, Type: "c", Attributes: map[string]string{"x": "y"}})
	select {
	case rec := <-updates:
		require.Equal(t, uint64(3), rec.Sequence)
		require.Equal(t, "y", rec.Attributes["x"])
	case <-time.After(time.Second):
		t.Fatal("record not delivered")
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	broker := NewBroker()
	_, cancel, _ := broker.Subscribe(context.Background(), 0)
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		broker.Publish(Record{Sequence: uint64(i + 1)})
	}
	// Publish returned without a reader, so delivery did not block.
	require.Equal(t, 1, broker.Subscribers())
}

func TestBrokerCancelOnContext(t *testing.T) {
	broker := NewBroker()
	ctx, cancelCtx := context.WithCancel(context.Background())
	updates, _, _ := broker.Subscribe(ctx, 0)
	cancelCtx()

	require.Eventually(t, func() bool { return broker.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
	_, ok := <-updates
	require.False(t, ok)
}
