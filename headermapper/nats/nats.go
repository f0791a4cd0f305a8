// Package nats adapts headermapper.Mapper to github.com/nats-io/nats.go's
// nats.Header, pulled from the rest of the example pack
// (smilad-Event-MUX/plugins/nats, DrBlury-protoflow/transport/nats).
package nats

import (
	natsgo "github.com/nats-io/nats.go"

	"github.com/glimte/integrationbus/envelope"
	"github.com/glimte/integrationbus/headermapper"
)

// StandardHeaderNames are NATS's own reserved header names this adapter
// treats as standard, exercising the "standard header discovery from a
// descriptor" design note (spec.md §9) against a second real protocol.
var StandardHeaderNames = []string{
	"Nats-Msg-Id",
	"Nats-Expected-Stream",
	"Nats-Expected-Last-Sequence",
}

// Descriptor is the NATS standard-header descriptor.
var Descriptor = headermapper.Descriptor{
	Prefix:                     "Nats-",
	StandardRequestHeaderNames: StandardHeaderNames,
	StandardReplyHeaderNames:   StandardHeaderNames,
}

type adapter struct{}

func (adapter) ExtractStandardHeaders(source natsgo.Header) envelope.Headers {
	out := envelope.Headers{}
	for _, name := range StandardHeaderNames {
		if v := source.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

func (adapter) ExtractUserDefinedHeaders(source natsgo.Header) envelope.Headers {
	out := envelope.Headers{}
	standard := make(map[string]bool, len(StandardHeaderNames))
	for _, n := range StandardHeaderNames {
		standard[n] = true
	}
	for name, values := range source {
		if standard[name] || len(values) == 0 {
			continue
		}
		out[name] = values[0]
	}
	return out
}

func (adapter) PopulateStandardHeaders(headers envelope.Headers, target natsgo.Header) {
	for _, name := range StandardHeaderNames {
		if v, ok := headers[name]; ok {
			target.Set(name, toString(v))
		}
	}
}

func (adapter) PopulateUserDefinedHeader(name string, value any, target natsgo.Header) {
	target.Set(name, toString(value))
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// New creates a headermapper.Mapper[nats.Header] for the NATS transport.
func New(opts ...headermapper.Option[natsgo.Header]) *headermapper.Mapper[natsgo.Header] {
	return headermapper.New[natsgo.Header](adapter{}, Descriptor, opts...)
}
