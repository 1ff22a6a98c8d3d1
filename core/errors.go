package convai

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("convai: invalid argument")
	ErrAlreadyActive   = errors.New("convai: session already active")
	ErrNotConnected    = errors.New("convai: session not connected")
	// ErrFeedbackUnavailable is reported when feedback was already given
	// for the latest agent response.
	ErrFeedbackUnavailable = errors.New("convai: feedback not available")
	ErrTokenFetch          = errors.New("convai: token fetch failed")
	ErrTransport           = errors.New("convai: transport failure")
	ErrParse               = errors.New("convai: malformed inbound message")
	ErrToolExecution       = errors.New("convai: client tool execution failed")
	ErrConnectionLost      = errors.New("convai: connection lost")
)

// ParseError is reported for inbound messages that could not be decoded.
// The message is dropped, the session carries on.
type ParseError struct {
	Payload []byte
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrParse, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

type ToolExecutionError struct {
	ToolName   string
	ToolCallID string
	Err        error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%v: tool %q (call %s): %v", ErrToolExecution, e.ToolName, e.ToolCallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() []error { return []error{ErrToolExecution, e.Err} }
