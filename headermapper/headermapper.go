// Package headermapper implements bidirectional translation between an
// Envelope's header map and a transport's native header model, generic over
// the native type T. Concrete adapters for AMQP, Kafka, and NATS live in
// the headermapper/amqp, headermapper/kafka, and headermapper/nats
// subpackages.
package headermapper

import (
	"log/slog"
	"strings"

	"github.com/glimte/integrationbus/envelope"
)

// Pattern tokens recognized in inboundHeaderNames/outboundHeaderNames,
// matching spec.md §4.3/§6.
const (
	StandardRequestHeaders = "STANDARD_REQUEST_HEADERS"
	StandardReplyHeaders   = "STANDARD_REPLY_HEADERS"
)

// Descriptor enumerates a protocol's standard (reserved) header names and
// its namespace prefix, handed to a Mapper at construction time instead of
// discovering them by reflection (spec.md §9's design note: "adapters hand
// the mapper a static list... at construction").
type Descriptor struct {
	// Prefix namespaces the protocol's own reserved header names, e.g.
	// "amqp_" or "kafka_".
	Prefix string
	// StandardRequestHeaderNames are matched against the
	// STANDARD_REQUEST_HEADERS token.
	StandardRequestHeaderNames []string
	// StandardReplyHeaderNames are matched against the
	// STANDARD_REPLY_HEADERS token.
	StandardReplyHeaderNames []string
}

// Adapter is the pair of hooks a concrete transport implements to extract
// and populate its native header type T, mirroring
// original_source/.../mapping/AbstractHeaderMapper.java's abstract
// extractStandardHeaders/extractUserDefinedHeaders/populateStandardHeaders/
// populateUserDefinedHeader hooks.
type Adapter[T any] interface {
	// ExtractStandardHeaders pulls the protocol's own reserved headers out
	// of source into envelope-shaped headers.
	ExtractStandardHeaders(source T) envelope.Headers
	// ExtractUserDefinedHeaders pulls everything else out of source.
	ExtractUserDefinedHeaders(source T) envelope.Headers
	// PopulateStandardHeaders writes the protocol's own reserved headers
	// from headers onto target.
	PopulateStandardHeaders(headers envelope.Headers, target T)
	// PopulateUserDefinedHeader writes a single non-standard header onto
	// target, with name already carrying userDefinedHeaderPrefix if one
	// is configured.
	PopulateUserDefinedHeader(name string, value any, target T)
}

// Mapper translates between envelope.Headers and a transport-native header
// type T. Grounded on
// original_source/.../mapping/AbstractHeaderMapper.java: the transient
// exclusion, glob pattern matching, and STANDARD_REQUEST/REPLY_HEADERS
// token matching in shouldMapHeader below reproduce its algorithm exactly.
type Mapper[T any] struct {
	adapter    Adapter[T]
	descriptor Descriptor

	inboundPatterns  []string
	outboundPatterns []string
	userPrefix       string
	logger           *slog.Logger
}

// Option configures a Mapper at construction.
type Option[T any] func(*Mapper[T])

// WithInboundHeaderNames sets the glob-pattern/token list controlling which
// headers may be mapped inbound (toHeaders).
func WithInboundHeaderNames[T any](patterns ...string) Option[T] {
	return func(m *Mapper[T]) { m.inboundPatterns = patterns }
}

// WithOutboundHeaderNames sets the glob-pattern/token list controlling
// which headers may be mapped outbound (fromHeaders).
func WithOutboundHeaderNames[T any](patterns ...string) Option[T] {
	return func(m *Mapper[T]) { m.outboundPatterns = patterns }
}

// WithUserDefinedHeaderPrefix sets the prefix applied to non-standard
// header names (default empty).
func WithUserDefinedHeaderPrefix[T any](prefix string) Option[T] {
	return func(m *Mapper[T]) { m.userPrefix = prefix }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(m *Mapper[T]) { m.logger = l }
}

// New creates a Mapper for native header type T, given the adapter hooks
// and the protocol's standard-header descriptor.
func New[T any](adapter Adapter[T], descriptor Descriptor, opts ...Option[T]) *Mapper[T] {
	m := &Mapper[T]{
		adapter:    adapter,
		descriptor: descriptor,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ToHeaders extracts standard and user-defined headers from source,
// applying the inbound prefix to user-defined names, dropping transient
// names, and returning an envelope-ready header map. Per-header failures
// are logged and skipped; ToHeaders itself never fails (spec.md §4.3's
// failure policy, §7's HeaderMappingError "always recovered locally").
func (m *Mapper[T]) ToHeaders(source T) envelope.Headers {
	out := envelope.Headers{}

	for name, value := range m.adapter.ExtractStandardHeaders(source) {
		m.mapHeader(m.inboundPatterns, name, value, out)
	}
	for name, value := range m.adapter.ExtractUserDefinedHeaders(source) {
		mapped := name
		if m.userPrefix != "" {
			mapped = m.userPrefix + name
		}
		m.mapHeader(m.inboundPatterns, mapped, value, out)
	}
	return out
}

func (m *Mapper[T]) mapHeader(patterns []string, name string, value any, out envelope.Headers) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("header mapping failed, skipping", "header", name, "panic", r)
		}
	}()
	if !m.shouldMapHeader(patterns, name) {
		return
	}
	out[name] = value
}

// FromHeaders populates target's standard headers from headers, then
// writes each user-defined header (subject to the same filtering and the
// outbound prefix) via PopulateUserDefinedHeader.
func (m *Mapper[T]) FromHeaders(headers envelope.Headers, target T) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Warn("populating standard headers failed, skipping", "panic", r)
			}
		}()
		m.adapter.PopulateStandardHeaders(headers, target)
	}()

	for name, value := range headers {
		if !m.shouldMapHeader(m.outboundPatterns, name) {
			continue
		}
		if matchesAny(m.descriptor.StandardRequestHeaderNames, name) || matchesAny(m.descriptor.StandardReplyHeaderNames, name) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("header mapping failed, skipping", "header", name, "panic", r)
				}
			}()
			mapped := name
			if m.userPrefix != "" {
				mapped = m.userPrefix + name
			}
			m.adapter.PopulateUserDefinedHeader(mapped, value, target)
		}()
	}
}

// MergeIfAbsent merges headers extracted from source into existing,
// keeping any header existing already carries. Grounded on
// original_source/.../amqp/outbound/AmqpOutboundEndpoint.java's
// sendAndReceive: builder.copyHeadersIfAbsent(headers) on the reply leg of
// a gateway round trip (SPEC_FULL.md §3).
func (m *Mapper[T]) MergeIfAbsent(existing envelope.Headers, source T) envelope.Headers {
	incoming := m.ToHeaders(source)
	out := existing.Clone()
	for name, value := range incoming {
		if _, present := out[name]; present {
			continue
		}
		out[name] = value
	}
	return out
}

// shouldMapHeader reproduces AbstractHeaderMapper.shouldMapHeader's
// ordering exactly: transient exclusion, then wildcard pattern, then
// STANDARD_REQUEST_HEADERS, then STANDARD_REPLY_HEADERS, else exclude.
// patterns is the caller's own direction-specific list: ToHeaders always
// passes inboundPatterns, FromHeaders always passes outboundPatterns —
// each method is keyed to its own list rather than a shared flag.
func (m *Mapper[T]) shouldMapHeader(patterns []string, name string) bool {
	if name == "" || envelope.IsTransient(name) || envelope.IsInternal(name) {
		return false
	}


	for _, p := range patterns {
		switch p {
		case StandardRequestHeaders, StandardReplyHeaders:
			continue
		default:
			if globMatch(p, name) {
				return true
			}
		}
	}
	if containsToken(patterns, StandardRequestHeaders) && matchesAny(m.descriptor.StandardRequestHeaderNames, name) {
		return true
	}
	if containsToken(patterns, StandardReplyHeaders) && matchesAny(m.descriptor.StandardReplyHeaderNames, name) {
		return true
	}
	return false
}

func containsToken(patterns []string, token string) bool {
	for _, p := range patterns {
		if p == token {
			return true
		}
	}
	return false
}

func matchesAny(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// globMatch implements the pattern forms spec.md §6 requires: exact names,
// "prefix*", "*suffix", "*mid*", case-insensitive. path.Match doesn't
// support the bare infix "*mid*" form (it treats '*' as matching within a
// single path element but anchors differently for this grammar), so this
// small rune-based matcher stands in; no pack library supplies simpleMatch
// glob semantics for header-name filtering (documented in DESIGN.md).
func globMatch(pattern, name string) bool {
	pattern = strings.ToLower(pattern)
	name = strings.ToLower(name)

	switch {
	case pattern == "":
		return false
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	default:
		return pattern == name
	}
}
