package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseCommandSatisfiesCommand(t *testing.T) {
	cmd := NewBaseCommand("PlaceOrder")
	cmd.TargetService = "orders"

	var c Command = &cmd
	assert.Equal(t, "orders", c.GetTargetService())
	assert.NotEmpty(t, c.GetID())
	assert.Equal(t, "PlaceOrder", c.GetType())
}

func TestBaseEventSatisfiesEvent(t *testing.T) {
	evt := NewBaseEvent("OrderPlaced", "order-1", 3)

	var e Event = &evt
	assert.Equal(t, "order-1", e.GetAggregateID())
	assert.Equal(t, int64(3), e.GetSequence())
}

func TestBaseReplyDefaultsToSuccess(t *testing.T) {
	reply := NewBaseReply("corr-1")

	var r Reply = &reply
	assert.True(t, r.IsSuccess())
	assert.NoError(t, r.GetError())
	assert.Equal(t, "corr-1", r.GetCorrelationID())
}

func TestErrorReplyReportsFailure(t *testing.T) {
	reply := NewErrorReply("OrderRejected", "corr-2", "INSUFFICIENT_FUNDS", "balance too low")

	var r Reply = reply
	assert.False(t, r.IsSuccess())
	assert.ErrorContains(t, r.GetError(), "INSUFFICIENT_FUNDS")
	assert.Equal(t, "corr-2", r.GetCorrelationID())
}

func TestSetCorrelationIDMutatesThroughEmbedding(t *testing.T) {
	q := BaseQuery{BaseMessage: NewBaseMessage("FindOrder"), ReplyTo: "orders.replies"}
	q.SetCorrelationID("corr-3")

	assert.Equal(t, "corr-3", q.GetCorrelationID())
	assert.Equal(t, "orders.replies", q.GetReplyTo())
}
