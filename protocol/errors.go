package protocol

import "fmt"

// ProtocolFsmError signals an invalid FSM transition (e.g. a send attempted
// while the FSM is not idle). It is fatal to the current command, not to the
// gateway.
type ProtocolFsmError struct{ Msg string }

func (e *ProtocolFsmError) Error() string { return e.Msg }

// ProtocolSendFailed is raised when retries are exhausted or the global
// send timeout expires.
type ProtocolSendFailed struct{ Msg string }

func (e *ProtocolSendFailed) Error() string { return e.Msg }

// TransportError wraps a transport-layer failure (serial open failure, MQTT
// publish failure, unexpected close).
type TransportError struct{ Msg string; Cause error }

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}
func (e *TransportError) Unwrap() error { return e.Cause }

// FilterRejected signals a command's src/dst was filtered by the allow/block
// list; raised synchronously, before enqueue.
type FilterRejected struct{ Msg string }

func (e *FilterRejected) Error() string { return e.Msg }

// CommandInvalid signals the caller supplied malformed inputs.
type CommandInvalid struct{ Msg string }

func (e *CommandInvalid) Error() string { return e.Msg }
