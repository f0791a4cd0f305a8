// Package envelope implements the immutable message envelope that carries a
// payload and a header map through the bus: channels, routers, and header
// mappers all operate on *Envelope.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Reserved header names. The first four are transient: they are never copied
// to an external transport by a HeaderMapper and callers cannot overwrite
// them through the builder. The rest are ordinary headers with a reserved
// meaning.
const (
	HeaderID           = "id"
	HeaderTimestamp    = "timestamp"
	HeaderReplyChannel = "replyChannel"
	HeaderErrorChannel = "errorChannel"

	HeaderPriority       = "priority"
	HeaderCorrelationID  = "correlationId"
	HeaderSequenceNumber = "sequenceNumber"
	HeaderSequenceSize   = "sequenceSize"

	// internalSequenceHeader stamps FIFO tiebreak order inside a
	// PriorityChannel. It is never observed outside the channel package:
	// the channel strips it before an Envelope reaches any handler.
	internalSequenceHeader = "__priorityChannelSequence__"
)

// transientHeaders are stripped from a derived Envelope's seed headers and
// never mapped by a HeaderMapper regardless of configuration.
var transientHeaders = map[string]bool{
	HeaderID:           true,
	HeaderTimestamp:    true,
	HeaderReplyChannel: true,
	HeaderErrorChannel: true,
}

// IsTransient reports whether name is one of the four reserved transient
// header names (id, timestamp, replyChannel, errorChannel).
func IsTransient(name string) bool {
	return transientHeaders[name]
}

// IsInternal reports whether name is the priority-channel's internal
// sequence header, which must never be visible to a handler or mapper.
func IsInternal(name string) bool {
	return name == internalSequenceHeader
}

// Headers is a header map. Callers receiving one from Envelope.Headers()
// must treat it as read-only; Builder is the only supported way to derive a
// modified copy.
type Headers map[string]any

// Clone returns a shallow copy of h.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Envelope is an immutable payload plus header map. The zero value is not
// usable; construct one with Build or a Builder.
type Envelope struct {
	payload any
	headers Headers
}

// Payload returns the envelope's opaque payload.
func (e *Envelope) Payload() any {
	return e.payload
}

// Headers returns the envelope's header map. The returned map must not be
// mutated by the caller; use Builder to derive a modified envelope.
func (e *Envelope) Headers() Headers {
	return e.headers
}

// Header returns a single header value and whether it was present.
func (e *Envelope) Header(name string) (any, bool) {
	v, ok := e.headers[name]
	return v, ok
}

// ID returns the envelope's id header.
func (e *Envelope) ID() string {
	v, _ := e.headers[HeaderID].(string)
	return v
}

// Timestamp returns the envelope's timestamp header.
func (e *Envelope) Timestamp() time.Time {
	v, _ := e.headers[HeaderTimestamp].(time.Time)
	return v
}

// Build creates a new Envelope from payload and an optional seed header map.
// A fresh id and timestamp are generated unless already present in headers;
// reserved headers supplied by the caller for id/timestamp are honored here
// only because Build is the single place construction-time seeding is
// permitted — once built, overwrites of those two through withHeader are
// rejected silently, matching derive's regeneration rule.
func Build(payload any, headers Headers) *Envelope {
	h := make(Headers, len(headers)+2)
	for k, v := range headers {
		h[k] = v
	}
	if _, ok := h[HeaderID]; !ok {
		h[HeaderID] = uuid.New().String()
	}
	if _, ok := h[HeaderTimestamp]; !ok {
		h[HeaderTimestamp] = time.Now().UTC()
	}
	return &Envelope{payload: payload, headers: h}
}

// Builder derives new envelopes from a seed payload and header set. Builder
// values are not safe for concurrent use; each call returns the same
// *Builder for chaining, and the builder stays usable after Finish.
type Builder struct {
	payload any
	headers Headers
}

// NewBuilder starts a builder for a brand-new envelope carrying payload.
func NewBuilder(payload any) *Builder {
	return &Builder{payload: payload, headers: Headers{}}
}

// Derive seeds a builder from source: the payload is reused by reference,
// non-reserved headers are copied, and a fresh id/timestamp will be
// generated on Finish.
func Derive(source *Envelope) *Builder {
	h := Headers{}
	for k, v := range source.headers {
		if IsTransient(k) || IsInternal(k) {
			continue
		}
		h[k] = v
	}
	return &Builder{payload: source.payload, headers: h}
}

// WithHeader sets a header, overwriting any existing value. Reserved
// (transient) header names are rejected silently: the call is a no-op.
func (b *Builder) WithHeader(name string, value any) *Builder {
	if IsTransient(name) || IsInternal(name) {
		return b
	}
	b.headers[name] = value
	return b
}

// WithHeaders merges m into the builder's headers, overwriting existing
// values. Reserved names in m are ignored.
func (b *Builder) WithHeaders(m Headers) *Builder {
	for k, v := range m {
		b.WithHeader(k, v)
	}
	return b
}

// WithHeadersIfAbsent merges m into the builder's headers, keeping any
// value already present. Reserved names in m are ignored.
func (b *Builder) WithHeadersIfAbsent(m Headers) *Builder {
	for k, v := range m {
		if IsTransient(k) || IsInternal(k) {
			continue
		}
		if _, exists := b.headers[k]; exists {
			continue
		}
		b.headers[k] = v
	}
	return b
}

// RemoveHeader drops a header from the builder.
func (b *Builder) RemoveHeader(name string) *Builder {
	delete(b.headers, name)
	return b
}

// PushSequenceDetails stamps correlationId, sequenceNumber, and
// sequenceSize, as a Router does on each destination envelope when
// applySequence is enabled.
func (b *Builder) PushSequenceDetails(correlationID string, number, size int) *Builder {
	b.headers[HeaderCorrelationID] = correlationID
	b.headers[HeaderSequenceNumber] = number
	b.headers[HeaderSequenceSize] = size
	return b
}

// Finish builds a fresh, immutable Envelope. The builder may be reused for
// further derivation after Finish; earlier envelopes produced by this
// builder are unaffected by later calls because Finish copies the header
// map.
func (b *Builder) Finish() *Envelope {
	return Build(b.payload, b.headers)
}

// StampSequence is the one sanctioned hook for mutating an Envelope after
// construction (invariant I2). Only channel.PriorityChannel calls this, to
// stamp the monotonic enqueue sequence used for its FIFO tiebreak. It
// mutates e's header map in place rather than deriving a copy because the
// stamp must never be observable as a new envelope identity.
func StampSequence(e *Envelope, n int64) {
	e.headers[internalSequenceHeader] = n
}

// StripSequence removes the internal sequence header. Only
// channel.PriorityChannel calls this, immediately after dequeue and before
// the envelope is handed to any consumer (invariant I3).
func StripSequence(e *Envelope) {
	delete(e.headers, internalSequenceHeader)
}

// Sequence returns the internal sequence header stamped by a
// PriorityChannel, for use only by that channel's comparator.
func Sequence(e *Envelope) (int64, bool) {
	v, ok := e.headers[internalSequenceHeader].(int64)
	return v, ok
}

// Priority returns the priority header as an int, defaulting to 0 when
// absent, matching PriorityChannel's default comparator (spec.md §4.2).
func Priority(e *Envelope) int {
	switch v := e.headers[HeaderPriority].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
