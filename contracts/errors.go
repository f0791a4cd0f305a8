package contracts

import "fmt"

// ErrorReply embeds BaseReply, which embeds BaseMessage: two levels deep,
// the chain router.PayloadTypeRouter's classChain walk is meant to resolve
// against a mapping keyed on an ancestor type rather than ErrorReply
// itself.
type ErrorReply struct {
	BaseReply
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// NewErrorReply creates a failed *ErrorReply carrying errorCode/errorMessage.
func NewErrorReply(messageType, correlationID, errorCode, errorMessage string) *ErrorReply {
	reply := &ErrorReply{
		BaseReply:    BaseReply{BaseMessage: NewBaseMessage(messageType), Success: false},
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
	}
	reply.SetCorrelationID(correlationID)
	return reply
}

func (e ErrorReply) IsSuccess() bool { return false }
func (e ErrorReply) GetError() error { return fmt.Errorf("%s: %s", e.ErrorCode, e.ErrorMessage) }
