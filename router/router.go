// Package router implements the destination-resolution and forwarding
// handler described by spec.md §4.4, generalized from
// AbstractMessageRouter.java and AbstractMappingMessageRouter.java in the
// source tree's org.springframework.integration.router package.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glimte/integrationbus/channel"
	"github.com/glimte/integrationbus/envelope"
)

// ChannelResolver is the name → channel lookup capability a Router depends
// on. A registry.ChannelRegistry satisfies this.
type ChannelResolver interface {
	Resolve(name string) (channel.Channel, error)
}

// KeyFunc computes zero or more routing keys for an envelope. Each element
// is interpreted by the resolution pipeline described in spec.md §4.4:
// a channel.Channel, a []channel.Channel, a string (possibly
// comma-delimited), a []string, a nested []any, or (with a Converter
// configured) anything coercible to a string.
type KeyFunc func(e *envelope.Envelope) []any

// Converter coerces an arbitrary key into a channel name, reporting false
// if it cannot. It stands in for the source's ConversionService.
type Converter func(v any) (string, bool)

// FailureClassifier observes a per-destination send failure before
// ignoreSendFailures policy is applied. It never changes the outcome; it
// exists so callers can route failures to metrics or a dead-letter path
// without the router itself knowing about either, mirroring the
// ErrorAction hook in the teacher's subscriber.
type FailureClassifier func(ctx context.Context, destination string, err error)

// Option configures a Router at construction.
type Option func(*Router)

// WithChannelMappings seeds the key → channel-name dictionary.
func WithChannelMappings(m map[string]string) Option {
	return func(r *Router) {
		for k, v := range m {
			r.channelMappings[k] = v
		}
	}
}

// WithAffixes sets the prefix and suffix applied to a resolved channel name
// before it reaches the resolver.
func WithAffixes(prefix, suffix string) Option {
	return func(r *Router) { r.prefix, r.suffix = prefix, suffix }
}

// WithDefaultOutputChannel sets the fallback destination used when no key
// resolves to anything.
func WithDefaultOutputChannel(ch channel.Channel) Option {
	return func(r *Router) { r.defaultOutputChannel = ch }
}

// WithResolutionRequired overrides the default (true): when false, a name
// that fails to resolve is dropped instead of failing the whole handle.
func WithResolutionRequired(required bool) Option {
	return func(r *Router) { r.resolutionRequired = required }
}

// WithIgnoreSendFailures overrides the default (false): when true, a failed
// destination send is logged and the router continues to the next
// destination instead of aborting.
func WithIgnoreSendFailures(ignore bool) Option {
	return func(r *Router) { r.ignoreSendFailures = ignore }
}

// WithApplySequence overrides the default (false): when true, each
// destination envelope is stamped with correlationId/sequenceNumber/
// sequenceSize per spec.md §4.4.
func WithApplySequence(apply bool) Option {
	return func(r *Router) { r.applySequence = apply }
}

// WithSendTimeout bounds each destination send. The zero value means
// channel.NoTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d == 0 {
			d = channel.NoTimeout
		}
		r.sendTimeout = d
	}
}

// WithMaxDestinations caps the number of resolved destinations. A negative
// value (the default) means unbounded.
func WithMaxDestinations(n int) Option {
	return func(r *Router) { r.maxDestinations = n }
}

// WithFallbackToDirectChannelLookup overrides the default (true). When
// false, a string key absent from the channel-mapping dictionary is
// dropped instead of being tried as a literal channel name — the strict
// mode PayloadTypeRouter uses.
func WithFallbackToDirectChannelLookup(fallback bool) Option {
	return func(r *Router) { r.fallbackToDirectChannelLookup = fallback }
}

// WithStopAtFirstMatch changes how MaxDestinations is enforced. The default
// (false) treats the keys as independent destinations: once accumulated
// resolutions would exceed the cap, Handle fails with AmbiguityError.  When
// true, the keys are treated as an ordered list of alternatives for the
// same decision: resolution stops as soon as the cap is reached, and keys
// past that point are never even examined. PayloadTypeRouter enables this —
// spec.md §4.4.1's ordered class/interface candidate list is exactly this
// kind of alternative list, not a set of simultaneous destinations.
func WithStopAtFirstMatch(stop bool) Option {
	return func(r *Router) { r.stopAtFirstMatch = stop }
}

// WithConverter installs the coercion hook used for step 6 of the
// resolution pipeline: keys that are neither channels, strings, nor
// collections of either.
func WithConverter(c Converter) Option {
	return func(r *Router) { r.converter = c }
}

// WithFailureClassifier installs an observer invoked on every per-destination
// send failure, before ignoreSendFailures policy runs.
func WithFailureClassifier(fn FailureClassifier) Option {
	return func(r *Router) { r.failureClassifier = fn }
}

// WithLogger overrides the router's slog.Logger. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// Router resolves destination channels for each envelope it handles and
// forwards to them. It is the generalized base spec.md §4.4 describes;
// PayloadTypeRouter configures one with a type-hierarchy KeyFunc.
type Router struct {
	resolver ChannelResolver
	keyFunc  KeyFunc

	channelMappings map[string]string
	prefix, suffix  string

	defaultOutputChannel channel.Channel
	resolutionRequired   bool
	ignoreSendFailures   bool
	applySequence        bool
	sendTimeout          time.Duration
	maxDestinations      int
	fallbackToDirectChannelLookup bool
	stopAtFirstMatch              bool

	converter         Converter
	failureClassifier FailureClassifier
	logger            *slog.Logger
}

// New builds a Router that resolves channels through resolver and computes
// per-envelope destination keys with keyFunc.
func New(resolver ChannelResolver, keyFunc KeyFunc, opts ...Option) *Router {
	r := &Router{
		resolver:                      resolver,
		keyFunc:                       keyFunc,
		channelMappings:                map[string]string{},
		resolutionRequired:             true,
		ignoreSendFailures:             false,
		applySequence:                  false,
		sendTimeout:                    channel.NoTimeout,
		maxDestinations:                -1,
		fallbackToDirectChannelLookup:  true,
		logger:                         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// candidate is one unresolved step of the pipeline: either a concrete
// channel (step 1/2) or a name still awaiting resolver lookup (step 3+).
type candidate struct {
	ch   channel.Channel
	name string
}

// Handle implements channel.Handler: it resolves e's destinations and
// forwards to each, per spec.md §4.4.
func (r *Router) Handle(ctx context.Context, e *envelope.Envelope) error {
	keys := r.keyFunc(e)

	destinations, err := r.resolveKeys(keys)
	if err != nil {
		return err
	}

	if len(destinations) == 0 {
		return r.sendDefault(ctx, e, nil)
	}

	n := len(destinations)
	anySucceeded := false
	for i, dest := range destinations {
		out := e
		if r.applySequence {
			out = envelope.Derive(e).PushSequenceDetails(e.ID(), i+1, n).Finish()
		}
		ok, sendErr := dest.Send(ctx, out, r.sendTimeout)
		if sendErr != nil || !ok {
			if sendErr == nil {
				sendErr = fmt.Errorf("send to %q timed out or was rejected", dest.Name())
			}
			if r.failureClassifier != nil {
				r.failureClassifier(ctx, dest.Name(), sendErr)
			}
			if r.ignoreSendFailures {
				r.logger.Warn("router: ignoring destination send failure",
					"channel", dest.Name(), "error", sendErr)
				continue
			}
			return &DeliveryError{Reason: fmt.Sprintf("send to %q failed", dest.Name()), Err: sendErr}
		}
		anySucceeded = true
	}

	if !anySucceeded {
		return r.sendDefault(ctx, e, &DeliveryError{Reason: "all destination sends failed"})
	}
	return nil
}

func (r *Router) sendDefault(ctx context.Context, e *envelope.Envelope, onMissing error) error {
	if r.defaultOutputChannel == nil {
		if onMissing != nil {
			return onMissing
		}
		return &DeliveryError{Reason: "no destination resolved and no default output channel configured"}
	}
	ok, err := r.defaultOutputChannel.Send(ctx, e, r.sendTimeout)
	if err != nil {
		return &DeliveryError{Reason: "default output channel send failed", Err: err}
	}
	if !ok {
		return &DeliveryError{Reason: "default output channel send timed out or was rejected"}
	}
	return nil
}

// resolveKeys runs the resolution pipeline's structural steps (1-6) over
// every key and resolves each resulting candidate to a channel, applying
// the ambiguity cap as resolutions accumulate — counted before resolution,
// per spec.md §9 open question (b). When stopAtFirstMatch is set, it stops
// examining further keys as soon as the cap is reached instead of treating
// a later key's candidates as an ambiguity violation.
func (r *Router) resolveKeys(keys []any) ([]channel.Channel, error) {
	var resolved []channel.Channel
	for _, k := range keys {
		if r.stopAtFirstMatch && r.maxDestinations >= 0 && len(resolved) >= r.maxDestinations {
			break
		}

		expanded, err := r.expandKey(k)
		if err != nil {
			return nil, err
		}
		if len(expanded) == 0 {
			continue
		}

		if !r.stopAtFirstMatch && r.maxDestinations >= 0 && len(resolved)+len(expanded) > r.maxDestinations {
			return nil, &AmbiguityError{MaxDestinations: r.maxDestinations, Candidates: candidateNames(expanded)}
		}

		for _, c := range expanded {
			if r.stopAtFirstMatch && r.maxDestinations >= 0 && len(resolved) >= r.maxDestinations {
				break
			}
			ch, err := r.resolveCandidate(c)
			if err != nil {
				return nil, err
			}
			if ch == nil {
				continue
			}
			resolved = append(resolved, ch)
		}
	}
	return resolved, nil
}

func (r *Router) resolveCandidate(c candidate) (channel.Channel, error) {
	if c.ch != nil {
		return c.ch, nil
	}
	ch, err := r.resolver.Resolve(c.name)
	if err != nil {
		if r.resolutionRequired {
			return nil, &ResolutionError{Name: c.name, Err: err}
		}
		r.logger.Debug("router: dropping unresolved destination", "name", c.name, "error", err)
		return nil, nil
	}
	return ch, nil
}

func (r *Router) expandKey(k any) ([]candidate, error) {
	switch v := k.(type) {
	case nil:
		return nil, nil
	case channel.Channel:
		return []candidate{{ch: v}}, nil
	case []channel.Channel:
		out := make([]candidate, 0, len(v))
		for _, ch := range v {
			out = append(out, candidate{ch: ch})
		}
		return out, nil
	case string:
		return r.expandString(v)
	case []string:
		var out []candidate
		for _, s := range v {
			expanded, err := r.expandString(s)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		}
		return out, nil
	case []any:
		var out []candidate
		for _, item := range v {
			expanded, err := r.expandKey(item)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		}
		return out, nil
	default:
		if r.converter != nil {
			if s, ok := r.converter(v); ok {
				return r.expandString(s)
			}
		}
		return nil, &ConversionError{Key: v}
	}
}

func (r *Router) expandString(s string) ([]candidate, error) {
	if strings.Contains(s, ",") {
		var out []candidate
		for _, tok := range strings.Split(s, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			expanded, err := r.expandString(tok)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		}
		return out, nil
	}

	name, ok := r.channelMappings[s]
	if !ok {
		if !r.fallbackToDirectChannelLookup {
			return nil, nil
		}
		name = s
	}
	return []candidate{{name: r.prefix + name + r.suffix}}, nil
}

func candidateNames(candidates []candidate) []string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.ch != nil {
			names = append(names, c.ch.Name())
			continue
		}
		names = append(names, c.name)
	}
	return names
}
