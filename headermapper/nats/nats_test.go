package nats

import (
	"testing"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/glimte/integrationbus/envelope"
	"github.com/glimte/integrationbus/headermapper"
)

func TestNatsToHeaders(t *testing.T) {
	m := New(
		headermapper.WithInboundHeaderNames[natsgo.Header](headermapper.StandardRequestHeaders, "App-*"),
	)

	native := natsgo.Header{}
	native.Set("Nats-Msg-Id", "abc")
	native.Set("App-Tenant", "acme")
	native.Set("Unrelated", "drop")

	out := m.ToHeaders(native)

	assert.Equal(t, "abc", out["Nats-Msg-Id"])
	assert.Equal(t, "acme", out["App-Tenant"])
	_, ok := out["Unrelated"]
	assert.False(t, ok)
}

func TestNatsFromHeaders(t *testing.T) {
	m := New(headermapper.WithOutboundHeaderNames[natsgo.Header]("*"))

	target := natsgo.Header{}
	m.FromHeaders(envelope.Headers{"App-Tenant": "acme"}, target)

	assert.Equal(t, "acme", target.Get("App-Tenant"))
}
