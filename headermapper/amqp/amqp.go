// Package amqp adapts headermapper.Mapper to github.com/rabbitmq/amqp091-go's
// amqp.Table, the teacher's own transport dependency (wired through
// contracts/messaging/internal/rabbitmq in glimte/mmate-go).
package amqp

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/integrationbus/envelope"
	"github.com/glimte/integrationbus/headermapper"
)

// Standard header names this adapter treats as AMQP's own, matching the
// x-message-type/x-correlation-id/x-reply-to constants
// messaging/envelope_factory.go stamps on every published envelope.
const (
	HeaderMessageType  = "x-message-type"
	HeaderMessageID    = "x-message-id"
	HeaderCorrelation  = "x-correlation-id"
	HeaderReplyTo      = "x-reply-to"
	HeaderMessageKind  = "x-message-kind"
)

// StandardHeaderNames is the descriptor handed to headermapper.New,
// reproducing spec.md §9's "adapters hand the mapper a static list" design
// note.
var StandardHeaderNames = []string{
	HeaderMessageType, HeaderMessageID, HeaderCorrelation, HeaderReplyTo, HeaderMessageKind,
}

// Descriptor is the AMQP standard-header descriptor: the same names serve
// both request and reply legs, split by direction at mapper construction,
// matching original_source/.../mapping/AbstractHeaderMapper.java's
// constructor (one introspected list assigned into both
// standardRequestHeaderNames/standardReplyHeaderNames).
var Descriptor = headermapper.Descriptor{
	Prefix:                     "x-",
	StandardRequestHeaderNames: StandardHeaderNames,
	StandardReplyHeaderNames:   StandardHeaderNames,
}

// adapter implements headermapper.Adapter[amqp.Table].
type adapter struct{}

func (adapter) ExtractStandardHeaders(source amqp.Table) envelope.Headers {
	out := envelope.Headers{}
	for _, name := range StandardHeaderNames {
		if v, ok := source[name]; ok {
			out[name] = v
		}
	}
	return out
}

func (adapter) ExtractUserDefinedHeaders(source amqp.Table) envelope.Headers {
	out := envelope.Headers{}
	standard := make(map[string]bool, len(StandardHeaderNames))
	for _, n := range StandardHeaderNames {
		standard[n] = true
	}
	for k, v := range source {
		if !standard[k] {
			out[k] = v
		}
	}
	return out
}

func (adapter) PopulateStandardHeaders(headers envelope.Headers, target amqp.Table) {
	for _, name := range StandardHeaderNames {
		if v, ok := headers[name]; ok {
			target[name] = v
		}
	}
}

func (adapter) PopulateUserDefinedHeader(name string, value any, target amqp.Table) {
	target[name] = value
}

// New creates a headermapper.Mapper[amqp.Table] for the AMQP transport.
func New(opts ...headermapper.Option[amqp.Table]) *headermapper.Mapper[amqp.Table] {
	return headermapper.New[amqp.Table](adapter{}, Descriptor, opts...)
}
