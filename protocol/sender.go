package protocol

import (
	"context"

	"github.com/ramses-go/ramses-go/frame"
)

// FrameSender is the minimal transport surface the FSM needs to transmit a
// frame. transport.Transport satisfies this interface.
type FrameSender interface {
	WriteFrame(ctx context.Context, text string) error
}

// SyncAvoider reports whether a send should currently be delayed to avoid a
// controller's broadcast sync cycle (populated from observed 1F09 packets).
// The value transport.SerialTransport.SyncAvoider returns satisfies this
// interface; a nil SyncAvoider disables the check.
type SyncAvoider interface {
	SyncCycleImminent() bool
}

// IdentityRewriter rewrites a command's sender address immediately before
// transmission (evofw3 sentinel substitution). A nil
// IdentityRewriter disables rewriting.
type IdentityRewriter interface {
	RewriteSender(f frame.Frame) frame.Frame
}
