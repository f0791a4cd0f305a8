// Package registry implements the name-indexed channel bindings described
// by spec.md §4.5, generalized from the bridge package's pendingRequests
// bookkeeping (github.com/glimte/mmate-go/bridge) and from
// HeaderChannelRegistry-shaped reply interning in the wider Spring
// Integration source tree.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glimte/integrationbus/channel"
	"github.com/glimte/integrationbus/envelope"
)

// ArgumentError reports registry misuse, such as tapping a name that has
// no inbound binding.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("registry: %s", e.Reason)
}

// binding is the per-name state the registry tracks. Invariant R1 (at most
// one inbound and one outbound per name) is enforced by Inbound/Outbound
// rejecting a second call for the same name and direction.
type binding struct {
	inbound  channel.Channel
	outbound channel.Channel
	taps     []channel.Channel
	bridge   channel.Subscription
}

// ChannelRegistry is a name-indexed directory of channel bindings. It
// satisfies router.ChannelResolver, so a Router can resolve destination
// names straight through a registry.
type ChannelRegistry struct {
	mu       sync.RWMutex
	bindings map[string]*binding

	pending       map[string]*pendingReply
	sweepStop     chan struct{}
	sweepStopOnce sync.Once
}

// pendingReply is an interned reply destination awaiting resolution,
// mirroring bridge.PendingRequest: an id, an expiry, and the channel a
// correlated reply should be delivered to.
type pendingReply struct {
	channel channel.Channel
	expires time.Time
}

// New creates an empty ChannelRegistry. sweepInterval controls how often
// expired interned reply channels are swept; zero disables the background
// sweep (ResolveInternedChannel still treats expired entries as missing).
func New(sweepInterval time.Duration) *ChannelRegistry {
	r := &ChannelRegistry{
		bindings: make(map[string]*binding),
		pending:  make(map[string]*pendingReply),
	}
	if sweepInterval > 0 {
		r.sweepStop = make(chan struct{})
		go r.sweepLoop(sweepInterval)
	}
	return r
}

// Inbound registers ch as the inbound endpoint for name. Returns
// ArgumentError if name already has an inbound binding (R1).
func (r *ChannelRegistry) Inbound(name string, ch channel.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bindingLocked(name)
	if b.inbound != nil {
		return &ArgumentError{Reason: fmt.Sprintf("%q already has an inbound binding", name)}
	}
	b.inbound = ch
	return r.bridgeLocked(b)
}

// Outbound registers ch as the outbound endpoint for name: external
// publishers resolve name and send to it, and ch is what receives those
// sends. Returns ArgumentError if name already has an outbound binding (R1).
func (r *ChannelRegistry) Outbound(name string, ch channel.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bindingLocked(name)
	if b.outbound != nil {
		return &ArgumentError{Reason: fmt.Sprintf("%q already has an outbound binding", name)}
	}
	b.outbound = ch
	return r.bridgeLocked(b)
}

// interceptable is implemented by every channel type in the channel
// package: it lets Tap wire a wiretap onto a channel that is already
// bound and possibly already in use, rather than requiring taps to be
// attached at construction time.
type interceptable interface {
	AddInterceptor(channel.Interceptor)
}

// tapInterceptor forwards every successfully sent envelope to target,
// the wiretap implementation Tap installs. Using PostSend rather than a
// second Subscribe means the tap sees every send regardless of the tapped
// channel's own dispatch semantics — including a DirectChannel, whose
// broadcast-until-success Send would otherwise only ever reach one of two
// competing subscribers.
type tapInterceptor struct {
	channel.NopInterceptor
	target channel.Channel
}

func (t *tapInterceptor) PostSend(ctx context.Context, e *envelope.Envelope, sent bool, _ error) {
	if !sent {
		return
	}
	t.target.Send(ctx, e, channel.NoTimeout)
}

// Tap attaches tapChannel as an observer of name's inbound binding: every
// envelope delivered to that inbound is also delivered to tapChannel.
// Tapping a name with no inbound binding (including an outbound-only
// binding) fails with ArgumentError, per spec.md §4.5 and scenario 6.
func (r *ChannelRegistry) Tap(name string, tapChannel channel.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[name]
	if !ok || b.inbound == nil {
		return &ArgumentError{Reason: fmt.Sprintf("%q has no inbound binding to tap", name)}
	}

	ic, ok := b.inbound.(interceptable)
	if !ok {
		return &ArgumentError{Reason: fmt.Sprintf("%q's inbound channel does not support tapping", name)}
	}
	ic.AddInterceptor(&tapInterceptor{target: tapChannel})
	b.taps = append(b.taps, tapChannel)
	return nil
}

// Resolve implements router.ChannelResolver: it returns name's outbound
// binding if one exists, else its inbound binding, else a resolution
// failure. An outbound binding is preferred because it is the endpoint
// external senders are meant to use.
func (r *ChannelRegistry) Resolve(name string) (channel.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[name]
	if !ok {
		return nil, fmt.Errorf("registry: no binding for %q", name)
	}
	if b.outbound != nil {
		return b.outbound, nil
	}
	if b.inbound != nil {
		return b.inbound, nil
	}
	return nil, fmt.Errorf("registry: %q has no bound channel", name)
}

// ResolveSubscribable resolves name and asserts the result is Subscribable,
// returning channel.CapabilityError if the bound channel only supports
// Pollable.
func (r *ChannelRegistry) ResolveSubscribable(name string) (channel.Subscribable, error) {
	ch, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return channel.AsSubscribable(ch)
}

// ResolvePollable resolves name and asserts the result is Pollable,
// returning channel.CapabilityError if the bound channel only supports
// Subscribable.
func (r *ChannelRegistry) ResolvePollable(name string) (channel.Pollable, error) {
	ch, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return channel.AsPollable(ch)
}

// Unregister removes all bindings for name. The underlying channel's own
// Close (for a queue) or subscriber removal (for a direct channel) remains
// the caller's responsibility: the registry only owns its own name index.
func (r *ChannelRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, name)
}

// Shutdown stops the interned-reply sweep goroutine, if one was started,
// and clears all bindings.
func (r *ChannelRegistry) Shutdown() {
	if r.sweepStop != nil {
		r.sweepStopOnce.Do(func() { close(r.sweepStop) })
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = make(map[string]*binding)
	r.pending = make(map[string]*pendingReply)
}

func (r *ChannelRegistry) bindingLocked(name string) *binding {
	b, ok := r.bindings[name]
	if !ok {
		b = &binding{}
		r.bindings[name] = b
	}
	return b
}

// bridgeLocked implements invariant R2: once a name carries both an
// inbound and an outbound binding, it becomes a bridge — sends to the
// outbound channel are forwarded to the inbound side. It wires the bridge
// at most once per binding, and picks the forwarding strategy by the
// outbound channel's capability: a Subscribable outbound forwards
// synchronously from its own Subscribe callback, a Pollable outbound is
// drained by a dedicated goroutine since nothing else would ever call
// Receive on it. A channel that is neither (not possible for any type in
// the channel package today, but not guaranteed by the Channel interface
// itself) surfaces channel.CapabilityError rather than silently never
// bridging.
func (r *ChannelRegistry) bridgeLocked(b *binding) error {
	if b.inbound == nil || b.outbound == nil || b.bridge != nil {
		return nil
	}
	if sub, err := channel.AsSubscribable(b.outbound); err == nil {
		b.bridge = sub.Subscribe(channel.HandlerFunc(func(ctx context.Context, e *envelope.Envelope) error {
			_, err := b.inbound.Send(ctx, e, channel.NoTimeout)
			return err
		}))
		return nil
	}
	pollable, err := channel.AsPollable(b.outbound)
	if err != nil {
		return err
	}
	go pumpBridge(pollable, b.inbound)
	return nil
}

// pumpBridge drains a Pollable outbound channel and forwards every
// envelope to the bridged inbound channel, for the bridge direction where
// the outbound side has no Subscribe capability (e.g. a QueueChannel).
func pumpBridge(from channel.Pollable, to channel.Channel) {
	ctx := context.Background()
	for {
		e, ok := from.Receive(ctx, channel.NoTimeout)
		if !ok {
			return
		}
		to.Send(ctx, e, channel.NoTimeout)
	}
}

// InternReplyChannel records ch as the destination a correlated reply with
// id should be delivered to, expiring after ttl. This generalizes
// bridge.SyncAsyncBridge's pendingRequests map: a request-reply caller
// interns its own reply channel under a correlation id instead of blocking
// a channel registration for the lifetime of the whole bus.
func (r *ChannelRegistry) InternReplyChannel(id string, ch channel.Channel, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = &pendingReply{channel: ch, expires: time.Now().Add(ttl)}
}

// ResolveInternedChannel returns the channel interned under id, removing
// it so a reply is delivered at most once. Returns ok=false if id was
// never interned or has expired.
func (r *ChannelRegistry) ResolveInternedChannel(id string) (channel.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	if time.Now().After(p.expires) {
		return nil, false
	}
	return p.channel, true
}

// sweepLoop periodically evicts expired interned reply channels, mirroring
// SyncAsyncBridge.cleanupExpiredRequests.
func (r *ChannelRegistry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepExpired()
		case <-r.sweepStop:
			return
		}
	}
}

func (r *ChannelRegistry) sweepExpired() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		if now.After(p.expires) {
			delete(r.pending, id)
		}
	}
}
