package channel

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/integrationbus/envelope"
)

// Comparator orders two envelopes for delivery from a PriorityChannel: it
// should return true if a must come out before b, ignoring the FIFO
// tiebreak the channel itself applies. The default compares the priority
// header descending.
type Comparator func(a, b *envelope.Envelope) bool

// DefaultComparator compares the priority header in descending order
// (missing defaults to 0), matching spec.md §4.2.
func DefaultComparator(a, b *envelope.Envelope) bool {
	return envelope.Priority(a) > envelope.Priority(b)
}

// PriorityChannel is a Pollable channel backed by a heap ordered by a
// Comparator, with a monotonic sequence tiebreak for equal-priority
// envelopes and a capacity semaphore. Grounded directly on
// original_source/.../channel/PriorityChannel.java: container/heap stands
// in for PriorityBlockingQueue, a sync/atomic counter for AtomicLong, and a
// buffered chan struct{} semaphore for UpperBound.
type PriorityChannel struct {
	name         string
	logger       *slog.Logger
	interceptors chain
	comparator   Comparator

	counter atomic.Int64
	sem     chan struct{} // capacity semaphore; nil means unbounded

	mu   sync.Mutex
	cond *sync.Cond
	h    priorityHeap
}

// PriorityChannelOption configures a PriorityChannel at construction.
type PriorityChannelOption func(*PriorityChannel)

// WithPriorityCapacity bounds the channel. A non-positive value (the
// default) leaves it unbounded.
func WithPriorityCapacity(n int) PriorityChannelOption {
	return func(c *PriorityChannel) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

// WithComparator overrides DefaultComparator.
func WithComparator(cmp Comparator) PriorityChannelOption {
	return func(c *PriorityChannel) { c.comparator = cmp }
}

// WithPriorityLogger overrides the default slog.Default() logger.
func WithPriorityLogger(l *slog.Logger) PriorityChannelOption {
	return func(c *PriorityChannel) { c.logger = l }
}

// WithPriorityInterceptors attaches an ordered interceptor chain.
func WithPriorityInterceptors(interceptors ...Interceptor) PriorityChannelOption {
	return func(c *PriorityChannel) { c.interceptors = chain{interceptors} }
}

// NewPriorityChannel creates a PriorityChannel named name.
func NewPriorityChannel(name string, opts ...PriorityChannelOption) *PriorityChannel {
	c := &PriorityChannel{
		name:       name,
		logger:     slog.Default(),
		comparator: DefaultComparator,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Name implements Channel.
func (c *PriorityChannel) Name() string { return c.name }

// AddInterceptor appends i to the channel's interceptor chain after
// construction, for registry.ChannelRegistry.Tap.
func (c *PriorityChannel) AddInterceptor(i Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = withInterceptor(c.interceptors, i)
}

// Send implements Channel. It acquires the capacity semaphore (blocking up
// to timeout if bounded and full), stamps the internal sequence header
// (invariant I2's sanctioned hook), and pushes onto the heap.
func (c *PriorityChannel) Send(ctx context.Context, e *envelope.Envelope, timeout time.Duration) (bool, error) {
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

func (c *PriorityChannel) send(ctx context.Context, e *envelope.Envelope, timeout time.Duration) (bool, error) {
	if !c.acquire(ctx, timeout) {
		return false, nil
	}

	envelope.StampSequence(e, c.counter.Add(1))

	c.mu.Lock()
	heap.Push(&c.h, &priorityItem{e: e, cmp: c.comparator})
	c.cond.Signal()
	c.mu.Unlock()
	return true, nil
}

func (c *PriorityChannel) acquire(ctx context.Context, timeout time.Duration) bool {
	if c.sem == nil {
		return true
	}
	select {
	case c.sem <- struct{}{}:
		return true
	default:
	}
	if timeout == 0 {
		return false
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case c.sem <- struct{}{}:
		return true
	case <-timer:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *PriorityChannel) release() {
	if c.sem == nil {
		return
	}
	select {
	case <-c.sem:
	default:
	}
}

// Receive implements Pollable: pops the highest-priority envelope (FIFO
// within equal priority), strips the internal sequence header before
// returning it (invariant I3), and releases the capacity semaphore.
func (c *PriorityChannel) Receive(ctx context.Context, timeout time.Duration) (*envelope.Envelope, bool) {
	c.mu.Lock()
	interceptors := c.interceptors
	c.mu.Unlock()

	if err := interceptors.preReceive(ctx); err != nil {
		return nil, false
	}
	e, ok := c.receive(timeout)
	interceptors.postReceive(ctx, e, ok)
	return e, ok
}

func (c *PriorityChannel) receive(timeout time.Duration) (*envelope.Envelope, bool) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	c.mu.Lock()
	for c.h.Len() == 0 {
		if timeout == 0 {
			c.mu.Unlock()
			return nil, false
		}
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				c.mu.Unlock()
				return nil, false
			}
			timedWait(c.cond, remaining)
			continue
		}
		c.cond.Wait()
	}
	item := heap.Pop(&c.h).(*priorityItem)
	c.mu.Unlock()

	envelope.StripSequence(item.e)
	c.release()
	return item.e, true
}

// priorityItem wraps an envelope for the heap, carrying the comparator so
// Less can apply the priority-then-sequence ordering.
type priorityItem struct {
	e   *envelope.Envelope
	cmp Comparator
}

// priorityHeap implements container/heap.Interface. Less applies the
// channel's comparator first, falling back to the monotonic sequence
// header ascending, mirroring PriorityChannel.java's
// SequenceFallbackComparator.
type priorityHeap []*priorityItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.cmp(a.e, b.e) {
		return true
	}
	if b.cmp(b.e, a.e) {
		return false
	}
	seqA, _ := envelope.Sequence(a.e)
	seqB, _ := envelope.Sequence(b.e)
	return seqA < seqB
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) { *h = append(*h, x.(*priorityItem)) }

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
