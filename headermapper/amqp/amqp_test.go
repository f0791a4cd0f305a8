package amqp

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"github.com/glimte/integrationbus/envelope"
	"github.com/glimte/integrationbus/headermapper"
)

func TestAmqpRoundTrip(t *testing.T) {
	m := New(
		headermapper.WithInboundHeaderNames[amqp.Table](headermapper.StandardRequestHeaders, "app-*"),
		headermapper.WithOutboundHeaderNames[amqp.Table](headermapper.StandardRequestHeaders, "app-*"),
	)

	native := amqp.Table{
		HeaderMessageType: "OrderPlaced",
		"app-tenant":      "acme",
		"unrelated":        "dropped",
	}

	headers := m.ToHeaders(native)

	assert.Equal(t, "OrderPlaced", headers[HeaderMessageType])
	assert.Equal(t, "acme", headers["app-tenant"])
	_, ok := headers["unrelated"]
	assert.False(t, ok)
}

func TestAmqpFromHeaders(t *testing.T) {
	m := New(headermapper.WithOutboundHeaderNames[amqp.Table]("*"))

	target := amqp.Table{}
	m.FromHeaders(envelope.Headers{HeaderCorrelation: "c-1", "app-tenant": "acme"}, target)

	assert.Equal(t, "c-1", target[HeaderCorrelation])
	assert.Equal(t, "acme", target["app-tenant"])
}
