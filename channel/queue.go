package channel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/integrationbus/envelope"
)

// QueueChannel is a Pollable FIFO channel. A capacity of 0 or less means
// unbounded; Send on a bounded, full queue blocks up to the requested
// timeout. Grounded on spec.md §4.2; the bounded case uses a buffered Go
// channel directly (the idiomatic fit for a bounded blocking FIFO with
// timeout semantics expressible via select+time.After), the unbounded case
// a mutex-guarded slice with a condition signal, since a Go channel cannot
// be resized once created.
type QueueChannel struct {
	name   string
	logger *slog.Logger

	interceptors chain

	capacity int
	bounded  chan *envelope.Envelope // used when capacity > 0

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []*envelope.Envelope // used when capacity <= 0
	closed atomic.Bool
}

// QueueChannelOption configures a QueueChannel at construction.
type QueueChannelOption func(*QueueChannel)

// WithCapacity bounds the queue. A non-positive value (the default) leaves
// it unbounded.
func WithCapacity(n int) QueueChannelOption {
	return func(c *QueueChannel) { c.capacity = n }
}

// WithQueueLogger overrides the default slog.Default() logger.
func WithQueueLogger(l *slog.Logger) QueueChannelOption {
	return func(c *QueueChannel) { c.logger = l }
}

// WithQueueInterceptors attaches an ordered interceptor chain.
func WithQueueInterceptors(interceptors ...Interceptor) QueueChannelOption {
	return func(c *QueueChannel) { c.interceptors = chain{interceptors} }
}

// NewQueueChannel creates a QueueChannel named name.
func NewQueueChannel(name string, opts ...QueueChannelOption) *QueueChannel {
	c := &QueueChannel{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.capacity > 0 {
		c.bounded = make(chan *envelope.Envelope, c.capacity)
	} else {
		c.cond = sync.NewCond(&c.mu)
	}
	return c
}

// Name implements Channel.
func (c *QueueChannel) Name() string { return c.name }

// AddInterceptor appends i to the channel's interceptor chain after
// construction, for registry.ChannelRegistry.Tap.
func (c *QueueChannel) AddInterceptor(i Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = withInterceptor(c.interceptors, i)
}

// Send implements Channel: enqueues e, blocking up to timeout if the queue
// is bounded and full. NoTimeout blocks indefinitely; zero attempts once.
func (c *QueueChannel) Send(ctx context.Context, e *envelope.Envelope, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	interceptors := c.interceptors
	c.mu.Unlock()

	ctx, err := interceptors.preSend(ctx, e)
	if err != nil {
		return false, err
	}
	sent, err := c.send(ctx, e, timeout)
	interceptors.postSend(ctx, e, sent, err)
	return sent, err
}

func (c *QueueChannel) send(ctx context.Context, e *envelope.Envelope, timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	if c.bounded != nil {
		return c.sendBounded(ctx, e, timeout)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return false, ErrClosed
	}
	c.buf = append(c.buf, e)
	c.cond.Signal()
	return true, nil
}

func (c *QueueChannel) sendBounded(ctx context.Context, e *envelope.Envelope, timeout time.Duration) (bool, error) {
	select {
	case c.bounded <- e:
		return true, nil
	default:
	}
	if timeout == 0 {
		return false, nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case c.bounded <- e:
		return true, nil
	case <-timer:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Receive implements Pollable: dequeues the oldest envelope, blocking up to
// timeout. NoTimeout blocks indefinitely; zero polls once without blocking.
func (c *QueueChannel) Receive(ctx context.Context, timeout time.Duration) (*envelope.Envelope, bool) {
	c.mu.Lock()
	interceptors := c.interceptors
	c.mu.Unlock()

	if err := interceptors.preReceive(ctx); err != nil {
		return nil, false
	}
	e, ok := c.receive(ctx, timeout)
	interceptors.postReceive(ctx, e, ok)
	return e, ok
}

func (c *QueueChannel) receive(ctx context.Context, timeout time.Duration) (*envelope.Envelope, bool) {
	if c.bounded != nil {
		return c.receiveBounded(ctx, timeout)
	}
	return c.receiveUnbounded(timeout)
}

func (c *QueueChannel) receiveBounded(ctx context.Context, timeout time.Duration) (*envelope.Envelope, bool) {
	select {
	case e := <-c.bounded:
		return e, true
	default:
	}
	if c.closed.Load() {
		return nil, false
	}
	if timeout == 0 {
		return nil, false
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case e := <-c.bounded:
		return e, true
	case <-timer:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (c *QueueChannel) receiveUnbounded(timeout time.Duration) (*envelope.Envelope, bool) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.buf) == 0 {
		if c.closed.Load() {
			return nil, false
		}
		if timeout == 0 {
			return nil, false
		}
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, false
			}
			timedWait(c.cond, remaining)
			continue
		}
		c.cond.Wait()
	}
	e := c.buf[0]
	c.buf = c.buf[1:]
	return e, true
}

// timedWait waits on cond for up to d, using a timer goroutine to wake it
// since sync.Cond has no native timeout. The caller re-checks its own
// deadline after this returns, so a spurious extra wakeup is harmless.
func timedWait(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}

// Close marks the channel closed; further Send calls fail with ErrClosed,
// and a Receive that finds nothing pending returns (nil, false), matching
// spec.md §5's "receive on a closed channel returns none". On an unbounded
// queue, Receive calls already waiting are woken and return (nil, false); on
// a bounded queue they are not woken and keep waiting until their timeout
// elapses or their context ends. The underlying Go channel in
// the bounded case is deliberately not closed: a concurrent Send racing the
// close would panic on a closed channel, and the atomic closed flag already
// gives Send and Receive a consistent view.
func (c *QueueChannel) Close() {
	c.closed.Store(true)
	if c.bounded == nil {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}
