package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glimte/integrationbus/envelope"
)

// DispatchPolicy selects which subscriber(s) a DirectChannel offers an
// envelope to and in what order. spec.md §4.2 permits this as an extension
// over the default broadcast-until-success behavior.
type DispatchPolicy interface {
	// Order returns the subscriber indices to try, in the order to try
	// them, given the current subscriber count.
	Order(n int) []int
}

// broadcastPolicy is the default: try every subscriber in subscription
// order until one accepts without failure.
type broadcastPolicy struct{}

func (broadcastPolicy) Order(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// Broadcast is the default DispatchPolicy: iterate subscribers in
// subscription order until one accepts without failure.
func Broadcast() DispatchPolicy { return broadcastPolicy{} }

// roundRobinPolicy starts at the subscriber after the last one tried and
// wraps around, still falling through to the rest on failure.
type roundRobinPolicy struct {
	next atomic.Int64
}

func (p *roundRobinPolicy) Order(n int) []int {
	if n == 0 {
		return nil
	}
	start := int(p.next.Add(1)-1) % n
	order := make([]int, n)
	for i := 0; i < n; i++ {
		order[i] = (start + i) % n
	}
	return order
}

// RoundRobin cycles the starting subscriber on each send, still falling
// through the remaining subscribers on failure (spec.md §4.2's permitted
// load-balancing extension).
func RoundRobin() DispatchPolicy { return &roundRobinPolicy{} }

// DirectChannel is a Subscribable channel that dispatches synchronously on
// the sender's goroutine: Send invokes subscribers per its DispatchPolicy
// until one accepts without error, propagating the last failure if none
// do. Grounded on spec.md §4.2 and the teacher's dispatcher.go bookkeeping
// (RWMutex-guarded handler list, structured logging on failure).
type DirectChannel struct {
	name   string
	logger *slog.Logger
	policy DispatchPolicy

	mu           sync.RWMutex
	subscribers  []*directSubscription
	interceptors chain
}

// DirectChannelOption configures a DirectChannel at construction.
type DirectChannelOption func(*DirectChannel)

// WithDispatchPolicy overrides the default broadcast-until-success policy.
func WithDispatchPolicy(p DispatchPolicy) DirectChannelOption {
	return func(c *DirectChannel) { c.policy = p }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) DirectChannelOption {
	return func(c *DirectChannel) { c.logger = l }
}

// WithInterceptors attaches an ordered interceptor chain.
func WithInterceptors(interceptors ...Interceptor) DirectChannelOption {
	return func(c *DirectChannel) { c.interceptors = chain{interceptors} }
}

// NewDirectChannel creates a DirectChannel named name.
func NewDirectChannel(name string, opts ...DirectChannelOption) *DirectChannel {
	c := &DirectChannel{
		name:   name,
		logger: slog.Default(),
		policy: Broadcast(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Channel.
func (c *DirectChannel) Name() string { return c.name }

// AddInterceptor appends i to the channel's interceptor chain after
// construction. registry.ChannelRegistry.Tap uses this to wire a wiretap
// onto an already-bound inbound channel, so every sender — whether it
// holds the channel directly or reaches it through the registry — is
// observed.
func (c *DirectChannel) AddInterceptor(i Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = withInterceptor(c.interceptors, i)
}

type directSubscription struct {
	channel *DirectChannel
	handler Handler
}

func (s *directSubscription) Unsubscribe() {
	c := s.channel
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subscribers {
		if sub == s {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// Subscribe implements Subscribable. Handlers are invoked in subscription
// order (or per DispatchPolicy) on the calling goroutine of Send.
func (c *DirectChannel) Subscribe(h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &directSubscription{channel: c, handler: h}
	c.subscribers = append(c.subscribers, sub)
	return sub
}

// Send implements Channel. It tries subscribers per the channel's
// DispatchPolicy on the calling goroutine; the first one that returns a
// nil error stops the iteration and Send reports success. If every
// subscriber fails (or there are none), Send reports failure and returns
// the last handler error, if any. timeout is accepted for interface
// symmetry with Pollable channels but DirectChannel only ever blocks as
// long as handlers block (spec.md §5).
func (c *DirectChannel) Send(ctx context.Context, e *envelope.Envelope, _ time.Duration) (bool, error) {
	c.mu.RLock()
	interceptors := c.interceptors
	subs := make([]*directSubscription, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.RUnlock()

	ctx, err := interceptors.preSend(ctx, e)
	if err != nil {
		return false, err
	}

	order := c.policy.Order(len(subs))
	var lastErr error
	for _, idx := range order {
		if err := subs[idx].handler.Handle(ctx, e); err != nil {
			lastErr = err
			c.logger.Warn("direct channel subscriber failed", "channel", c.name, "messageId", e.ID(), "error", err)
			continue
		}
		interceptors.postSend(ctx, e, true, nil)
		return true, nil
	}
	if lastErr == nil && len(subs) == 0 {
		lastErr = fmt.Errorf("direct channel %q: no subscribers", c.name)
	}
	interceptors.postSend(ctx, e, false, lastErr)
	return false, lastErr
}
