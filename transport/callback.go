package transport

import (
	"context"
	"log/slog"

	"github.com/ramses-go/ramses-go/frame"
)

// CallbackTransport is the in-process carrier for embedding hosts and tests:
// nothing reads or writes a wire, the host injects packets via InjectFrame
// and observes sends via a WriteHook.
type CallbackTransport struct {
	base

	// WriteHook, if set, is invoked for every WriteFrame call in place of
	// any real transmission; a nil hook accepts every write silently.
	WriteHook func(text string) error
}

// NewCallbackTransport builds a CallbackTransport. It starts paused: no
// injected packet reaches the receiver until Start or Resume is called.
func NewCallbackTransport(logger *slog.Logger) *CallbackTransport {
	t := &CallbackTransport{base: newBase(logger)}
	t.reading = false
	return t
}

// Start resumes delivery of injected packets.
func (t *CallbackTransport) Start(ctx context.Context) error {
	t.Resume()
	return nil
}

// Close pauses delivery and invokes the connection-lost callback.
func (t *CallbackTransport) Close() error {
	t.Pause()
	t.connectionLost(nil)
	return nil
}

// WriteFrame runs WriteHook, if any, else succeeds unconditionally.
func (t *CallbackTransport) WriteFrame(ctx context.Context, text string) error {
	if t.WriteHook != nil {
		return t.WriteHook(text)
	}
	return nil
}

// InjectFrame delivers pkt to the receiver as though it had arrived over
// the air, for host code or tests driving the protocol/gateway layer
// directly.
func (t *CallbackTransport) InjectFrame(pkt frame.Packet) {
	t.deliver(pkt)
}

// InjectConnectionLost simulates the carrier dropping, for tests exercising
// reconnect/recovery behaviour.
func (t *CallbackTransport) InjectConnectionLost(err error) {
	t.connectionLost(err)
}
