// Package channel implements the transport primitives envelopes move
// through: direct synchronous dispatch, a bounded/unbounded FIFO queue, and
// a priority queue built on top of it.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glimte/integrationbus/envelope"
)

// Sentinel errors shared across channel kinds.
var (
	// ErrClosed is returned by Send on a closed channel. A Receive on a
	// closed channel returns (nil, false) instead, matching spec.md
	// §5's "receive on a closed channel returns none".
	ErrClosed = errors.New("channel: closed")
)

// CapabilityError reports that an operation was attempted on a Channel
// subtype that does not support it (spec.md §7's CapabilityError), e.g.
// calling Receive on a channel that only implements Subscribable.
type CapabilityError struct {
	Channel    string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("channel %q does not support %s", e.Channel, e.Capability)
}

// NoTimeout blocks indefinitely. Zero means "don't wait at all" (a single
// non-blocking attempt), matching spec.md §5's timeout semantics.
const NoTimeout time.Duration = -1

// Channel is the base capability: a named conduit that accepts envelopes.
type Channel interface {
	// Name returns the name the channel was constructed with.
	Name() string
	// Send delivers e, blocking up to timeout (NoTimeout blocks
	// indefinitely, zero attempts once without blocking). It returns
	// whether delivery succeeded; a non-nil error is only returned for a
	// genuine failure distinct from "timed out" (e.g. ErrClosed).
	Send(ctx context.Context, e *envelope.Envelope, timeout time.Duration) (bool, error)
}

// Subscribable is the push capability: handlers registered via Subscribe
// are invoked synchronously, in subscription order, on the sender's
// goroutine.
type Subscribable interface {
	Channel
	Subscribe(h Handler) Subscription
}

// Pollable is the pull capability: producers deposit envelopes, consumers
// block or poll for receipt.
type Pollable interface {
	Channel
	// Receive blocks up to timeout for an envelope. ok is false if the
	// timeout elapsed or the channel is closed with nothing pending.
	Receive(ctx context.Context, timeout time.Duration) (e *envelope.Envelope, ok bool)
}

// Handler is a unit of work over an envelope. Returning a non-nil error
// marks the delivery as failed for that subscriber.
type Handler interface {
	Handle(ctx context.Context, e *envelope.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e *envelope.Envelope) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, e *envelope.Envelope) error {
	return f(ctx, e)
}

// Subscription represents a single Subscribe registration; Unsubscribe
// removes the handler from the channel's dispatch list.
type Subscription interface {
	Unsubscribe()
}

// AsSubscribable asserts c supports the push capability, returning
// CapabilityError if it doesn't (e.g. a QueueChannel, which is Pollable
// only).
func AsSubscribable(c Channel) (Subscribable, error) {
	s, ok := c.(Subscribable)
	if !ok {
		return nil, &CapabilityError{Channel: c.Name(), Capability: "subscribe"}
	}
	return s, nil
}

// AsPollable asserts c supports the pull capability, returning
// CapabilityError if it doesn't (e.g. a DirectChannel, which is
// Subscribable only).
func AsPollable(c Channel) (Pollable, error) {
	p, ok := c.(Pollable)
	if !ok {
		return nil, &CapabilityError{Channel: c.Name(), Capability: "receive"}
	}
	return p, nil
}
