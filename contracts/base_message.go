package contracts

import (
	"time"

	"github.com/google/uuid"
)

// BaseMessage is the common embedding every Base* type starts from, the
// shallowest level of the embedded-struct chain router.PayloadTypeRouter
// walks in place of a class hierarchy.
type BaseMessage struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// NewBaseMessage creates a BaseMessage with a generated ID and the current
// timestamp.
func NewBaseMessage(messageType string) BaseMessage {
	return BaseMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      messageType,
	}
}

func (m BaseMessage) GetID() string            { return m.ID }
func (m BaseMessage) GetTimestamp() time.Time  { return m.Timestamp }
func (m BaseMessage) GetType() string          { return m.Type }
func (m BaseMessage) GetCorrelationID() string  { return m.CorrelationID }
func (m *BaseMessage) SetCorrelationID(id string) { m.CorrelationID = id }

// BaseCommand embeds BaseMessage one level deep; *BaseCommand satisfies
// Command (SetCorrelationID has a pointer receiver).
type BaseCommand struct {
	BaseMessage
	TargetService string `json:"targetService"`
	ReplyTo       string `json:"replyTo,omitempty"`
}

func (c BaseCommand) GetTargetService() string { return c.TargetService }

// NewBaseCommand creates a BaseCommand with a generated ID and the current
// timestamp.
func NewBaseCommand(messageType string) BaseCommand {
	return BaseCommand{BaseMessage: NewBaseMessage(messageType)}
}

// BaseEvent embeds BaseMessage one level deep; *BaseEvent satisfies Event.
type BaseEvent struct {
	BaseMessage
	AggregateID string `json:"aggregateId"`
	Sequence    int64  `json:"sequence"`
	Source      string `json:"source,omitempty"`
}

func (e BaseEvent) GetAggregateID() string { return e.AggregateID }
func (e BaseEvent) GetSequence() int64     { return e.Sequence }

// NewBaseEvent creates a BaseEvent with a generated ID and the current
// timestamp.
func NewBaseEvent(messageType, aggregateID string, sequence int64) BaseEvent {
	e := BaseEvent{BaseMessage: NewBaseMessage(messageType), AggregateID: aggregateID, Sequence: sequence}
	return e
}

// BaseQuery embeds BaseMessage one level deep; *BaseQuery satisfies Query.
type BaseQuery struct {
	BaseMessage
	ReplyTo string `json:"replyTo"`
}

func (q BaseQuery) GetReplyTo() string { return q.ReplyTo }

// BaseReply embeds BaseMessage one level deep; *BaseReply satisfies Reply.
type BaseReply struct {
	BaseMessage
	Success bool `json:"success"`
}

func (r BaseReply) IsSuccess() bool { return r.Success }
func (r BaseReply) GetError() error { return nil }

// NewBaseReply creates a successful BaseReply correlated to correlationID.
func NewBaseReply(correlationID string) BaseReply {
	reply := BaseReply{BaseMessage: NewBaseMessage("Reply"), Success: true}
	reply.SetCorrelationID(correlationID)
	return reply
}
