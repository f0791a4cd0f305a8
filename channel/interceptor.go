package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/integrationbus/envelope"
)

// Interceptor wraps channel send/receive operations with before/after
// hooks, generalizing the teacher's handler-wrapping InterceptorChain
// (interceptors/interceptor.go) to the four points spec.md's design notes
// call out for a channel: PreSend/PostSend on the producer side,
// PreReceive/PostReceive on the consumer side. PreSend and PreReceive may
// return a non-nil error to abort the operation; a hook that doesn't care about a
// given point embeds NopInterceptor and overrides only what it needs.
// PreSend returns the context PostSend for the same operation will
// observe, so a hook that needs to carry per-operation state between the
// two (a start timestamp, a span) stashes it on the context instead of a
// struct field shared by every concurrent Send on the channel.
type Interceptor interface {
	PreSend(ctx context.Context, e *envelope.Envelope) (context.Context, error)
	PostSend(ctx context.Context, e *envelope.Envelope, sent bool, err error)
	PreReceive(ctx context.Context) error
	PostReceive(ctx context.Context, e *envelope.Envelope, ok bool)
}

// NopInterceptor is a no-op Interceptor meant to be embedded by types that
// only implement a subset of the four hooks.
type NopInterceptor struct{}

func (NopInterceptor) PreSend(ctx context.Context, _ *envelope.Envelope) (context.Context, error) {
	return ctx, nil
}
func (NopInterceptor) PostSend(context.Context, *envelope.Envelope, bool, error) {}
func (NopInterceptor) PreReceive(context.Context) error                         { return nil }
func (NopInterceptor) PostReceive(context.Context, *envelope.Envelope, bool)     {}

// chain runs an ordered list of interceptors around a send or receive,
// mirroring interceptors.InterceptorChain.Execute's wrap-and-call-next
// shape but specialized to channel operations instead of a handler chain.
type chain struct {
	interceptors []Interceptor
}

func (c chain) preSend(ctx context.Context, e *envelope.Envelope) (context.Context, error) {
	for _, ic := range c.interceptors {
		var err error
		ctx, err = ic.PreSend(ctx, e)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

func (c chain) postSend(ctx context.Context, e *envelope.Envelope, sent bool, err error) {
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		c.interceptors[i].PostSend(ctx, e, sent, err)
	}
}

func (c chain) preReceive(ctx context.Context) error {
	for _, ic := range c.interceptors {
		if err := ic.PreReceive(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c chain) postReceive(ctx context.Context, e *envelope.Envelope, ok bool) {
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		c.interceptors[i].PostReceive(ctx, e, ok)
	}
}

// withInterceptor returns a new chain with i appended, copying the backing
// slice so a concurrently-held snapshot of the old chain is never mutated
// out from under a reader. registry.ChannelRegistry.Tap uses this through
// each channel type's AddInterceptor to wire a tap after construction.
func withInterceptor(c chain, i Interceptor) chain {
	next := make([]Interceptor, len(c.interceptors)+1)
	copy(next, c.interceptors)
	next[len(c.interceptors)] = i
	return chain{next}
}

// LoggingInterceptor logs send/receive outcomes, grounded on the teacher's
// interceptors.LoggingInterceptor.
type LoggingInterceptor struct {
	NopInterceptor
	logger  *slog.Logger
	channel string
}

// NewLoggingInterceptor creates a logging interceptor for a channel named
// channelName; logger defaults to slog.Default() when nil.
func NewLoggingInterceptor(channelName string, logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger, channel: channelName}
}

func (i *LoggingInterceptor) PreSend(ctx context.Context, e *envelope.Envelope) (context.Context, error) {
	i.logger.Debug("channel send", "channel", i.channel, "messageId", e.ID())
	return ctx, nil
}

func (i *LoggingInterceptor) PostSend(_ context.Context, e *envelope.Envelope, sent bool, err error) {
	if err != nil {
		i.logger.Error("channel send failed", "channel", i.channel, "messageId", e.ID(), "error", err)
		return
	}
	i.logger.Debug("channel send complete", "channel", i.channel, "messageId", e.ID(), "sent", sent)
}

// MetricsInterceptor records send/receive counts and latencies, grounded on
// the teacher's interceptors.MetricsInterceptor / MetricsCollector.
type MetricsInterceptor struct {
	NopInterceptor
	collector MetricsCollector
	channel   string
}

// metricsStartKey is the context key PreSend uses to hand its start
// timestamp to the PostSend call for the same operation, so concurrent
// Sends on a channel sharing one MetricsInterceptor don't race over a
// struct field.
type metricsStartKey struct{}

// MetricsCollector is the metrics sink an Interceptor reports to.
type MetricsCollector interface {
	IncrementSendCount(channel string)
	RecordSendDuration(channel string, d time.Duration)
	IncrementSendFailureCount(channel string)
}

// NewMetricsInterceptor creates a metrics interceptor for channelName.
func NewMetricsInterceptor(channelName string, collector MetricsCollector) *MetricsInterceptor {
	return &MetricsInterceptor{collector: collector, channel: channelName}
}

func (i *MetricsInterceptor) PreSend(ctx context.Context, _ *envelope.Envelope) (context.Context, error) {
	return context.WithValue(ctx, metricsStartKey{}, time.Now()), nil
}

func (i *MetricsInterceptor) PostSend(ctx context.Context, _ *envelope.Envelope, sent bool, err error) {
	i.collector.IncrementSendCount(i.channel)
	if start, ok := ctx.Value(metricsStartKey{}).(time.Time); ok {
		i.collector.RecordSendDuration(i.channel, time.Since(start))
	}
	if err != nil || !sent {
		i.collector.IncrementSendFailureCount(i.channel)
	}
}
