package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversPublishedEventToSubscriber(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.SubscribeStatusChange(ctx)
	require.NoError(t, err)

	ev := StatusChangeEvent{InstanceID: "inst-1", OldStatus: "creating", NewStatus: "running", Streak: 3}
	require.NoError(t, bus.PublishStatusChange(ctx, ev))

	select {
	case got := <-sub:
		assert.Equal(t, ev.InstanceID, got.InstanceID)
		assert.Equal(t, ev.NewStatus, got.NewStatus)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestMemoryBusReturnsErrorWhenFull(t *testing.T) {
	bus := &memoryBus{ch: make(chan StatusChangeEvent, 1)}
	ctx := context.Background()

	require.NoError(t, bus.PublishStatusChange(ctx, StatusChangeEvent{InstanceID: "a"}))
	err := bus.PublishStatusChange(ctx, StatusChangeEvent{InstanceID: "b"})
	assert.Error(t, err)
}

func TestMemoryBusCloseIsANoOp(t *testing.T) {
	bus := NewMemoryBus()
	assert.NoError(t, bus.Close())
}
