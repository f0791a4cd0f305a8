package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/glimte/integrationbus/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectChannelSend(t *testing.T) {
	t.Run("dispatches to a single subscriber", func(t *testing.T) {
		ch := NewDirectChannel("test")
		var received *envelope.Envelope
		ch.Subscribe(HandlerFunc(func(_ context.Context, e *envelope.Envelope) error {
			received = e
			return nil
		}))

		e := envelope.Build("hello", nil)
		sent, err := ch.Send(context.Background(), e, 0)

		require.NoError(t, err)
		assert.True(t, sent)
		assert.Same(t, e, received)
	})

	t.Run("broadcast-until-success tries subsequent subscribers on failure", func(t *testing.T) {
		ch := NewDirectChannel("test")
		var order []int
		ch.Subscribe(HandlerFunc(func(_ context.Context, _ *envelope.Envelope) error {
			order = append(order, 1)
			return errors.New("boom")
		}))
		ch.Subscribe(HandlerFunc(func(_ context.Context, _ *envelope.Envelope) error {
			order = append(order, 2)
			return nil
		}))

		sent, err := ch.Send(context.Background(), envelope.Build("p", nil), 0)

		require.NoError(t, err)
		assert.True(t, sent)
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("fails when every subscriber fails", func(t *testing.T) {
		ch := NewDirectChannel("test")
		ch.Subscribe(HandlerFunc(func(_ context.Context, _ *envelope.Envelope) error {
			return errors.New("boom")
		}))

		sent, err := ch.Send(context.Background(), envelope.Build("p", nil), 0)

		assert.False(t, sent)
		assert.Error(t, err)
	})

	t.Run("fails with no subscribers", func(t *testing.T) {
		ch := NewDirectChannel("test")

		sent, err := ch.Send(context.Background(), envelope.Build("p", nil), 0)

		assert.False(t, sent)
		assert.Error(t, err)
	})

	t.Run("unsubscribe removes the handler", func(t *testing.T) {
		ch := NewDirectChannel("test")
		called := false
		sub := ch.Subscribe(HandlerFunc(func(_ context.Context, _ *envelope.Envelope) error {
			called = true
			return nil
		}))
		sub.Unsubscribe()

		sent, _ := ch.Send(context.Background(), envelope.Build("p", nil), 0)

		assert.False(t, sent)
		assert.False(t, called)
	})
}

func TestDirectChannelRoundRobin(t *testing.T) {
	ch := NewDirectChannel("test", WithDispatchPolicy(RoundRobin()))
	var starts []int
	for i := 0; i < 3; i++ {
		idx := i
		ch.Subscribe(HandlerFunc(func(_ context.Context, _ *envelope.Envelope) error {
			starts = append(starts, idx)
			return nil
		}))
	}

	for i := 0; i < 3; i++ {
		starts = nil
		ch.Send(context.Background(), envelope.Build("p", nil), 0)
		assert.Equal(t, []int{i}, starts, "send %d should start at subscriber %d", i, i)
	}
}
