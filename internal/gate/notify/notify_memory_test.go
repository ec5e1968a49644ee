package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allowgate/internal/gate/models"
)

func TestMemoryNotifierDeliversToAllSubscribers(t *testing.T) {
	n := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := n.Subscribe(ctx)
	require.NoError(t, err)
	second, err := n.Subscribe(ctx)
	require.NoError(t, err)

	change := models.Change{Kind: models.ChangeAdded, Address: "0xabc"}
	require.NoError(t, n.Publish(ctx, change))

	for _, sub := range []<-chan models.Change{first, second} {
		select {
		case got := <-sub:
			assert.Equal(t, change, got)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the change")
		}
	}
}

func TestMemoryNotifierClosesOnCancel(t *testing.T) {
	n := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := n.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-sub:
		assert.False(t, open, "channel should close after cancellation")
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancellation")
	}
}

func TestMemoryNotifierDropsWhenSubscriberLags(t *testing.T) {
	n := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := n.Subscribe(ctx)
	require.NoError(t, err)

	// Publishing past the buffer must never block the publisher.
	for i := 0; i < subscribeBuffer*2; i++ {
		require.NoError(t, n.Publish(ctx, models.Change{Kind: models.ChangeAdded, Address: "0xabc"}))
	}
}
