package router

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/integrationbus/contracts"
	"github.com/glimte/integrationbus/envelope"
)

func TestPayloadTypeRouterDirectMatch(t *testing.T) {
	strCh := &fakeChannel{name: "strCh"}
	numCh := &fakeChannel{name: "numCh"}
	resolver := newFakeResolver(strCh, numCh)

	mappings := map[string]string{
		reflect.TypeOf("").String(): "strCh",
		reflect.TypeOf(0).String():  "numCh",
	}
	r := NewPayloadTypeRouter(resolver, mappings, nil)

	require.NoError(t, r.Handle(context.Background(), envelope.Build("hi", nil)))
	require.NoError(t, r.Handle(context.Background(), envelope.Build(42, nil)))

	assert.Equal(t, []any{"hi"}, strCh.received)
	assert.Equal(t, []any{42}, numCh.received)
}

// Animal and Dog stand in for the source's java.lang.Object/java.util.List
// scenario: Dog embeds Animal (the Go analogue of a superclass), and
// implements fmt.Stringer directly, the way ArrayList implements
// java.util.List directly while Object does not.
type Animal struct{}

type Dog struct {
	Animal
}

func (Dog) String() string { return "dog" }

func TestPayloadTypeRouterInterfaceBeatsSuperclass(t *testing.T) {
	animalCh := &fakeChannel{name: "animalCh"}
	stringerCh := &fakeChannel{name: "stringerCh"}
	resolver := newFakeResolver(animalCh, stringerCh)

	stringerType := reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	mappings := map[string]string{
		reflect.TypeOf(Animal{}).String(): "animalCh",
		stringerType.String():             "stringerCh",
	}
	probes := []ProbeInterface{{Name: stringerType.String(), Type: stringerType}}

	r := NewPayloadTypeRouter(resolver, mappings, probes)

	require.NoError(t, r.Handle(context.Background(), envelope.Build(Dog{}, nil)))

	assert.Equal(t, []any{Dog{}}, stringerCh.received)
	assert.Empty(t, animalCh.received)
}

func TestPayloadTypeRouterFallsBackToDefault(t *testing.T) {
	def := &fakeChannel{name: "default"}
	resolver := newFakeResolver(def)

	r := NewPayloadTypeRouter(resolver, map[string]string{}, nil,
		WithDefaultOutputChannel(def))

	require.NoError(t, r.Handle(context.Background(), envelope.Build(Dog{}, nil)))

	assert.Equal(t, []any{Dog{}}, def.received)
}

func TestPayloadTypeRouterResolvesByAncestorClassChain(t *testing.T) {
	// contracts.BaseCommand and contracts.BaseEvent both embed
	// contracts.BaseMessage one level deep; neither is mapped directly, so
	// both must resolve through that shared ancestor, the same way the
	// mapping exercised in TestPayloadTypeRouterInterfaceBeatsSuperclass
	// resolves a mapped interface rather than a mapped concrete type.
	messageCh := &fakeChannel{name: "messageCh"}
	resolver := newFakeResolver(messageCh)

	mappings := map[string]string{
		reflect.TypeOf(contracts.BaseMessage{}).String(): "messageCh",
	}
	r := NewPayloadTypeRouter(resolver, mappings, nil)

	cmd := contracts.NewBaseCommand("PlaceOrder")
	evt := contracts.NewBaseEvent("OrderPlaced", "order-1", 1)

	require.NoError(t, r.Handle(context.Background(), envelope.Build(cmd, nil)))
	require.NoError(t, r.Handle(context.Background(), envelope.Build(evt, nil)))

	assert.Equal(t, []any{cmd, evt}, messageCh.received)
}

func TestPayloadTypeRouterResolvesTwoLevelsDeep(t *testing.T) {
	// contracts.ErrorReply embeds contracts.BaseReply, which embeds
	// contracts.BaseMessage: two levels deep. Mapping only BaseMessage must
	// still catch an ErrorReply payload, since classChain walks every
	// ancestor, not just the immediate one.
	replyCh := &fakeChannel{name: "replyCh"}
	resolver := newFakeResolver(replyCh)

	mappings := map[string]string{
		reflect.TypeOf(contracts.BaseMessage{}).String(): "replyCh",
	}
	r := NewPayloadTypeRouter(resolver, mappings, nil)

	errReply := contracts.NewErrorReply("OrderRejected", "corr-1", "INSUFFICIENT_FUNDS", "balance too low")

	require.NoError(t, r.Handle(context.Background(), envelope.Build(errReply, nil)))

	assert.Equal(t, []any{errReply}, replyCh.received)
}

func TestPayloadTypeRouterHasNoDirectChannelNameFallback(t *testing.T) {
	// Dog{} is never in the mapping, and NewPayloadTypeRouter disables
	// fallbackToDirectChannelLookup, so every candidate is dropped rather
	// than tried as a literal channel name — DeliveryError, not a send to
	// a channel named "router.Dog".
	resolver := newFakeResolver()
	r := NewPayloadTypeRouter(resolver, map[string]string{}, nil)

	err := r.Handle(context.Background(), envelope.Build(Dog{}, nil))

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
}
