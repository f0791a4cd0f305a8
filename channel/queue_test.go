package channel

import (
	"context"
	"testing"
	"time"

	"github.com/glimte/integrationbus/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueChannelFIFO(t *testing.T) {
	ch := NewQueueChannel("q")
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		sent, err := ch.Send(ctx, envelope.Build(p, nil), 0)
		require.NoError(t, err)
		require.True(t, sent)
	}

	for _, want := range []string{"a", "b", "c"} {
		e, ok := ch.Receive(ctx, 0)
		require.True(t, ok)
		assert.Equal(t, want, e.Payload())
	}
}

func TestQueueChannelReceiveTimeout(t *testing.T) {
	ch := NewQueueChannel("q")
	_, ok := ch.Receive(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
}

func TestQueueChannelBoundedBlocksUntilCapacity(t *testing.T) {
	ch := NewQueueChannel("q", WithCapacity(1))
	ctx := context.Background()

	sent, err := ch.Send(ctx, envelope.Build("a", nil), 0)
	require.NoError(t, err)
	require.True(t, sent)

	sent, err = ch.Send(ctx, envelope.Build("b", nil), 0)
	require.NoError(t, err)
	assert.False(t, sent, "bounded queue is full, non-blocking send should fail")

	go func() {
		time.Sleep(10 * time.Millisecond)
		ch.Receive(ctx, 0)
	}()

	sent, err = ch.Send(ctx, envelope.Build("b", nil), 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, sent, "send should succeed once capacity frees up within timeout")
}

func TestQueueChannelClose(t *testing.T) {
	ch := NewQueueChannel("q")
	ch.Close()

	_, ok := ch.Receive(context.Background(), 0)
	assert.False(t, ok)

	_, err := ch.Send(context.Background(), envelope.Build("a", nil), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueChannelConcurrentProducersConsumers(t *testing.T) {
	ch := NewQueueChannel("q")
	ctx := context.Background()
	const n = 50

	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			ch.Send(ctx, envelope.Build(i, nil), 0)
		}
		close(done)
	}()

	received := 0
	for received < n {
		if _, ok := ch.Receive(ctx, 100*time.Millisecond); ok {
			received++
		}
	}
	<-done
	assert.Equal(t, n, received)
}
