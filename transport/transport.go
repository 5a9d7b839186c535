// Package transport implements the RAMSES-II wire carriers: a live serial
// gateway, an MQTT-bridged gateway, read-only packet-log/dict replay, and an
// in-process callback carrier for tests and embedding hosts.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

// ReceiveFunc is invoked for every packet a Transport receives.
type ReceiveFunc func(frame.Packet)

// LostFunc is invoked once, when the Transport's connection ends (cleanly or
// otherwise); err is nil for a clean close.
type LostFunc func(err error)

// Transport is the carrier abstraction the protocol FSM and gateway drive.
// A Transport owns exactly one of: a live serial port, an MQTT broker
// connection, a read-only packet source, or an in-process callback.
type Transport interface {
	// WriteFrame transmits text (an already-formatted frame line). Read-only
	// transports return ErrReadOnly.
	WriteFrame(ctx context.Context, text string) error

	// SetReceiver registers the callback invoked for every inbound packet.
	// Must be called before Start.
	SetReceiver(ReceiveFunc)
	// SetConnectionLost registers the callback invoked when the carrier's
	// connection ends.
	SetConnectionLost(LostFunc)

	// Start begins reading (opens the port / connects / starts replay).
	Start(ctx context.Context) error
	// Close shuts the carrier down, invoking the connection-lost callback.
	Close() error

	// Pause/Resume suspend and resume delivery of received packets, without
	// closing the underlying carrier.
	Pause()
	Resume()

	// ExtraInfo exposes carrier-specific metadata (e.g. "active_hgi_id",
	// "is_evofw3") for the gateway/config layer to query.
	ExtraInfo(name string) (any, bool)
}

// ErrReadOnly is returned by WriteFrame on a replay-only transport.
var ErrReadOnly = fmt.Errorf("transport: this carrier is read-only")

// base holds the fields and behaviour common to every Transport
// implementation: receiver/lost callbacks, pause/reading state, extra-info
// bag. Concrete transports embed it.
type base struct {
	receiver ReceiveFunc
	lost     LostFunc
	reading  bool
	extra    map[string]any
	logger   *slog.Logger
	hacks    *regexPipeline
}

func newBase(logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{reading: true, extra: make(map[string]any), logger: logger}
}

func (b *base) SetReceiver(f ReceiveFunc)      { b.receiver = f }
func (b *base) SetConnectionLost(f LostFunc)   { b.lost = f }
func (b *base) Pause()                        { b.reading = false }
func (b *base) Resume()                        { b.reading = true }
func (b *base) ExtraInfo(name string) (any, bool) {
	v, ok := b.extra[name]
	return v, ok
}

func (b *base) deliver(pkt frame.Packet) {
	if b.reading && b.receiver != nil {
		b.receiver(pkt)
	}
}

func (b *base) connectionLost(err error) {
	if b.lost != nil {
		b.lost(err)
	}
}

// dtmNow is overridable for deterministic tests.
var dtmNow = time.Now
