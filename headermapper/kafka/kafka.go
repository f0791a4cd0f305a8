// Package kafka adapts headermapper.Mapper to github.com/segmentio/kafka-go's
// []kafka.Header, pulled from the example pack's smilad-Event-MUX Kafka
// plugin. Unlike amqp.Table and nats.Header, kafka-go's native header model
// is an ordered slice rather than a map, so this adapter merges it into a
// map (last header with a given key wins, matching kafka-go's own
// Message.Headers.Get semantics) on the read side and appends on the write
// side, round-tripping through the real wire type rather than a map proxy.
package kafka

import (
	kafkago "github.com/segmentio/kafka-go"

	"github.com/glimte/integrationbus/envelope"
	"github.com/glimte/integrationbus/headermapper"
)

// StandardHeaderNames are the reserved names this adapter treats as
// standard for a Kafka-carried envelope.
var StandardHeaderNames = []string{
	"kafka_messageKey",
	"kafka_partition",
	"kafka_offset",
}

// Descriptor is the Kafka standard-header descriptor.
var Descriptor = headermapper.Descriptor{
	Prefix:                     "kafka_",
	StandardRequestHeaderNames: StandardHeaderNames,
	StandardReplyHeaderNames:   StandardHeaderNames,
}

// Headers is the native type this adapter maps: kafka-go's ordered header
// slice. The Mapper is parameterized over *Headers rather than Headers
// because FromHeaders appends new entries, and that growth must be visible
// to the caller after the call returns.
type Headers = []kafkago.Header

type adapter struct{}

func asMap(source *Headers) map[string]string {
	m := make(map[string]string, len(*source))
	for _, h := range *source {
		m[h.Key] = string(h.Value)
	}
	return m
}

func (adapter) ExtractStandardHeaders(source *Headers) envelope.Headers {
	merged := asMap(source)
	out := envelope.Headers{}
	for _, name := range StandardHeaderNames {
		if v, ok := merged[name]; ok {
			out[name] = v
		}
	}
	return out
}

func (adapter) ExtractUserDefinedHeaders(source *Headers) envelope.Headers {
	merged := asMap(source)
	standard := make(map[string]bool, len(StandardHeaderNames))
	for _, n := range StandardHeaderNames {
		standard[n] = true
	}
	out := envelope.Headers{}
	for k, v := range merged {
		if !standard[k] {
			out[k] = v
		}
	}
	return out
}

func (adapter) PopulateStandardHeaders(headers envelope.Headers, target *Headers) {
	for _, name := range StandardHeaderNames {
		if v, ok := headers[name]; ok {
			appendHeader(target, name, v)
		}
	}
}

func (adapter) PopulateUserDefinedHeader(name string, value any, target *Headers) {
	appendHeader(target, name, value)
}

func appendHeader(target *Headers, name string, value any) {
	s, ok := value.(string)
	if !ok {
		return
	}
	*target = append(*target, kafkago.Header{Key: name, Value: []byte(s)})
}

// New creates a headermapper.Mapper for Kafka's native header slice.
func New(opts ...headermapper.Option[*Headers]) *headermapper.Mapper[*Headers] {
	return headermapper.New[*Headers](adapter{}, Descriptor, opts...)
}
