package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Run("assigns id and timestamp when absent", func(t *testing.T) {
		e := Build("payload", nil)

		assert.Equal(t, "payload", e.Payload())
		assert.NotEmpty(t, e.ID())
		assert.False(t, e.Timestamp().IsZero())
	})

	t.Run("two envelopes never share an id", func(t *testing.T) {
		a := Build("a", nil)
		b := Build("b", nil)

		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("preserves caller-supplied headers", func(t *testing.T) {
		e := Build("p", Headers{"priority": 5})

		v, ok := e.Header("priority")
		require.True(t, ok)
		assert.Equal(t, 5, v)
	})
}

func TestBuilderWithHeader(t *testing.T) {
	t.Run("rejects reserved header overwrites silently", func(t *testing.T) {
		b := NewBuilder("p")
		b.WithHeader(HeaderID, "forged")
		b.WithHeader(HeaderReplyChannel, "forged")
		e := b.Finish()

		assert.NotEqual(t, "forged", e.ID())
		_, ok := e.Header(HeaderReplyChannel)
		assert.False(t, ok)
	})

	t.Run("withHeadersIfAbsent keeps existing values", func(t *testing.T) {
		b := NewBuilder("p").WithHeader("k", "original")
		b.WithHeadersIfAbsent(Headers{"k": "overwrite", "other": "set"})
		e := b.Finish()

		v, _ := e.Header("k")
		assert.Equal(t, "original", v)
		v, _ = e.Header("other")
		assert.Equal(t, "set", v)
	})

	t.Run("removeHeader drops a header", func(t *testing.T) {
		b := NewBuilder("p").WithHeader("k", "v")
		b.RemoveHeader("k")
		e := b.Finish()

		_, ok := e.Header("k")
		assert.False(t, ok)
	})
}

func TestDerive(t *testing.T) {
	t.Run("reuses payload by reference and regenerates id/timestamp", func(t *testing.T) {
		type payload struct{ N int }
		p := &payload{N: 1}
		source := Build(p, Headers{"custom": "x"})
		time.Sleep(time.Millisecond)

		derived := Derive(source).Finish()

		assert.Same(t, p, derived.Payload())
		assert.NotEqual(t, source.ID(), derived.ID())
		assert.NotEqual(t, source.Timestamp(), derived.Timestamp())
		v, ok := derived.Header("custom")
		assert.True(t, ok)
		assert.Equal(t, "x", v)
	})

	t.Run("drops transient headers from the source", func(t *testing.T) {
		source := Build("p", Headers{HeaderReplyChannel: "rc"})

		derived := Derive(source).Finish()

		_, ok := derived.Header(HeaderReplyChannel)
		assert.False(t, ok)
	})

	t.Run("earlier envelopes are unchanged by later builder calls", func(t *testing.T) {
		b := NewBuilder("p").WithHeader("k", "v1")
		first := b.Finish()
		b.WithHeader("k", "v2")
		second := b.Finish()

		v, _ := first.Header("k")
		assert.Equal(t, "v1", v)
		v, _ = second.Header("k")
		assert.Equal(t, "v2", v)
	})
}

func TestPushSequenceDetails(t *testing.T) {
	e := NewBuilder("p").PushSequenceDetails("corr-1", 2, 3).Finish()

	v, _ := e.Header(HeaderCorrelationID)
	assert.Equal(t, "corr-1", v)
	v, _ = e.Header(HeaderSequenceNumber)
	assert.Equal(t, 2, v)
	v, _ = e.Header(HeaderSequenceSize)
	assert.Equal(t, 3, v)
}

func TestSequenceHook(t *testing.T) {
	t.Run("stamp and strip round trip", func(t *testing.T) {
		e := Build("p", nil)
		StampSequence(e, 7)

		n, ok := Sequence(e)
		require.True(t, ok)
		assert.EqualValues(t, 7, n)

		StripSequence(e)
		_, ok = Sequence(e)
		assert.False(t, ok)
	})
}

func TestPriority(t *testing.T) {
	t.Run("defaults to zero when absent", func(t *testing.T) {
		e := Build("p", nil)
		assert.Equal(t, 0, Priority(e))
	})

	t.Run("reads an int header", func(t *testing.T) {
		e := Build("p", Headers{HeaderPriority: 9})
		assert.Equal(t, 9, Priority(e))
	})
}

func TestIsTransient(t *testing.T) {
	for _, name := range []string{HeaderID, HeaderTimestamp, HeaderReplyChannel, HeaderErrorChannel} {
		assert.True(t, IsTransient(name), name)
	}
	assert.False(t, IsTransient(HeaderPriority))
}
