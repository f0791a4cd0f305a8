package kafka

import (
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/glimte/integrationbus/envelope"
	"github.com/glimte/integrationbus/headermapper"
)

func TestKafkaToHeaders(t *testing.T) {
	m := New(
		headermapper.WithInboundHeaderNames[*Headers](headermapper.StandardRequestHeaders, "app-*"),
	)

	native := Headers{
		{Key: "kafka_messageKey", Value: []byte("k-1")},
		{Key: "app-tenant", Value: []byte("acme")},
		{Key: "unrelated", Value: []byte("drop")},
	}

	out := m.ToHeaders(&native)

	assert.Equal(t, "k-1", out["kafka_messageKey"])
	assert.Equal(t, "acme", out["app-tenant"])
	_, ok := out["unrelated"]
	assert.False(t, ok)
}

func TestKafkaFromHeadersAppends(t *testing.T) {
	m := New(headermapper.WithOutboundHeaderNames[*Headers]("*"))

	var native Headers
	m.FromHeaders(envelope.Headers{"app-tenant": "acme"}, &native)

	assert.Len(t, native, 1)
	assert.Equal(t, kafkago.Header{Key: "app-tenant", Value: []byte("acme")}, native[0])
}
