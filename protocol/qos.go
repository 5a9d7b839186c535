// Package protocol implements the RAMSES-II protocol finite state machine
// (command queue, send/echo/reply tracking, retries, timeouts) and the
// address-based filter/identity layer.
package protocol

import "time"

// Priority orders entries in the FSM's send queue: lower values sort first.
type Priority int

const (
	PriorityHigh    Priority = 0
	PriorityDefault Priority = 1
	PriorityLow     Priority = 2
)

// Defaults and hard caps for send quality-of-service.
const (
	DefaultMaxRetries = 3
	MaxRetryLimit     = 5

	DefaultTimeout = 3 * time.Second
	MaxSendTimeout = 30 * time.Second

	DefaultEchoTimeout  = 50 * time.Millisecond
	DefaultReplyTimeout = 200 * time.Millisecond

	DefaultBufferSize = 5

	maxMultiplier = 3
)

// WaitForReply is a tri-state: the zero value is WaitAuto.
type WaitForReply int

const (
	WaitAuto WaitForReply = iota
	WaitTrue
	WaitFalse
)

// QosParams are the send-quality parameters attached to each command.
type QosParams struct {
	MaxRetries   int
	Timeout      time.Duration
	WaitForReply WaitForReply
}

// DefaultQos returns the package defaults.
func DefaultQos() QosParams {
	return QosParams{
		MaxRetries:   DefaultMaxRetries,
		Timeout:      DefaultTimeout,
		WaitForReply: WaitAuto,
	}
}

// Normalize replaces a non-positive Timeout with DefaultTimeout and applies
// hard caps: 0 <= max_retries <= MaxRetryLimit, timeout <= MaxSendTimeout.
// A MaxRetries of 0 is kept: the command is transmitted once.
func (q QosParams) Normalize() QosParams {
	if q.MaxRetries < 0 {
		q.MaxRetries = 0
	}
	if q.MaxRetries > MaxRetryLimit {
		q.MaxRetries = MaxRetryLimit
	}
	if q.Timeout <= 0 {
		q.Timeout = DefaultTimeout
	}
	if q.Timeout > MaxSendTimeout {
		q.Timeout = MaxSendTimeout
	}
	return q
}

// ResolveWaitForReply returns true iff a reply should be awaited: the
// explicit value, or (if auto) whether cmd carries an rx_header.
func (q QosParams) ResolveWaitForReply(hasRxHeader bool) bool {
	switch q.WaitForReply {
	case WaitTrue:
		return true
	case WaitFalse:
		return false
	default:
		return hasRxHeader
	}
}
