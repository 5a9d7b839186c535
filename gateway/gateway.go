// Package gateway implements the orchestrator binding transport, protocol,
// payload, index, device and system together: the public surface a host
// program drives.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramses-go/ramses-go/config"
	"github.com/ramses-go/ramses-go/device"
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
	"github.com/ramses-go/ramses-go/payload"
	"github.com/ramses-go/ramses-go/protocol"
	"github.com/ramses-go/ramses-go/system"
	"github.com/ramses-go/ramses-go/transport"
)

// MsgHandler receives every Message the dispatcher admits, in dispatch
// order (after filtering, before FSM/index/device routing).
type MsgHandler func(index.Message)

// MsgFilter optionally narrows which Messages reach a handler; nil admits
// every Message.
type MsgFilter func(index.Message) bool

type subscription struct {
	id      uuid.UUID
	handler MsgHandler
	filter  MsgFilter
}

// identitySource is implemented by transports that expose a gateway
// identity tracker (currently only *transport.SerialTransport).
type identitySource interface {
	Identity() *protocol.Identity
}

// syncAvoiderSource is implemented by transports that expose a sync-cycle
// tracker.
type syncAvoiderSource interface {
	SyncAvoider() protocol.SyncAvoider
}

// Gateway is the orchestrator: it owns the device/system arena, binds a
// protocol Context (FSM) to a Transport, and fans out every received
// Message to subscribed handlers, the FSM, the message index, and device/
// system state, in that order.
type Gateway struct {
	cfg    config.Config
	logger *slog.Logger

	registry *payload.Registry
	idx      *index.Index
	fsm      *protocol.Context
	filter   *protocol.Filter
	identity *protocol.Identity
	tr       transport.Transport

	factory *device.Factory
	stats   *transport.StatsRegistry

	mu       sync.RWMutex
	systems  map[frame.Address]*system.System
	handlers []subscription

	discoveryCancel context.CancelFunc
	wg              sync.WaitGroup
	started         bool
}

// New builds a Gateway from cfg, constructing its registry, index, filter,
// transport and FSM, but does not Start it.
func New(cfg config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr, err := transport.New(transport.Config{
		PortName:      cfg.PortName,
		PacketLog:     packetLogPath(cfg),
		PacketDict:    cfg.PacketDict,
		EvofwFlag:     cfg.EvofwFlag,
		InboundRegex:  cfg.UseRegex.Inbound,
		OutboundRegex: cfg.UseRegex.Outbound,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("gateway: build transport: %w", err)
	}

	known := make([]frame.Address, 0, len(cfg.KnownList))
	for a := range cfg.KnownList {
		known = append(known, a)
	}
	filter := protocol.NewFilter(known, cfg.BlockList, cfg.EnforceKnownList, logger)

	var identity *protocol.Identity
	fsmOpts := []protocol.Option{protocol.WithLogger(logger)}
	if is, ok := tr.(identitySource); ok {
		identity = is.Identity()
		fsmOpts = append(fsmOpts, protocol.WithIdentityRewriter(identity))
	}
	if sa, ok := tr.(syncAvoiderSource); ok {
		fsmOpts = append(fsmOpts, protocol.WithSyncAvoider(sa.SyncAvoider()))
	}

	fsm := protocol.NewContext(tr, fsmOpts...)

	idx := index.New(logger)
	factory := device.NewFactory(idx, logger)

	knownTraits := make(map[frame.Address]device.Traits, len(cfg.KnownList))
	for addr, kd := range cfg.KnownList {
		knownTraits[addr] = device.Traits{Class: kd.Class, Faked: kd.Faked, Alias: kd.Alias}
	}
	factory.SetKnownTraits(knownTraits)

	gw := &Gateway{
		cfg:      cfg,
		logger:   logger,
		registry: payload.NewRegistry(),
		idx:      idx,
		fsm:      fsm,
		filter:   filter,
		identity: identity,
		tr:       tr,
		factory:  factory,
		stats:    transport.NewStatsRegistry(),
		systems:  make(map[frame.Address]*system.System),
	}

	if err := gw.mergeSchema(cfg.Schema); err != nil {
		idx.Stop()
		fsm.Close()
		return nil, fmt.Errorf("gateway: merge schema: %w", err)
	}
	return gw, nil
}

// packetLogPath extracts a replay path from cfg's packet_log setting, if
// it names a single file (the transport factory doesn't support the
// rotation settings of the object form: those govern the host's own
// logging, not replay).
func packetLogPath(cfg config.Config) string {
	if cfg.PacketLog == nil {
		return ""
	}
	return cfg.PacketLog.FileName
}

// StartOptions configures a Start call.
type StartOptions struct {
	// StartDiscovery enables periodic background discovery polling of
	// known devices (disabled when cfg.DisableDiscovery/DisableSending is set).
	StartDiscovery bool
	// CachedPackets seeds the index with previously captured messages
	// (e.g. from a prior GetState) before the transport starts.
	CachedPackets []index.Message
}

// Start wires the transport's receiver/connection-lost callbacks, starts
// it, and transitions the FSM to active.
func (gw *Gateway) Start(ctx context.Context, opts StartOptions) error {
	gw.mu.Lock()
	if gw.started {
		gw.mu.Unlock()
		return fmt.Errorf("gateway: already started")
	}
	gw.started = true
	gw.mu.Unlock()

	gw.tr.SetReceiver(gw.onPacket)
	gw.tr.SetConnectionLost(gw.onConnectionLost)

	for _, m := range opts.CachedPackets {
		gw.idx.Add(m)
	}

	if err := gw.tr.Start(ctx); err != nil {
		return fmt.Errorf("gateway: start transport: %w", err)
	}
	gw.fsm.ConnectionMade()

	if opts.StartDiscovery && !gw.cfg.DisableDiscovery && !gw.cfg.DisableSending {
		dctx, cancel := context.WithCancel(ctx)
		gw.mu.Lock()
		gw.discoveryCancel = cancel
		gw.mu.Unlock()
		gw.wg.Add(1)
		go gw.discoveryLoop(dctx)
	}
	return nil
}

// Stop halts background discovery, disconnects the transport and FSM, and
// stops the index's housekeeping goroutine.
func (gw *Gateway) Stop() error {
	gw.mu.Lock()
	if !gw.started {
		gw.mu.Unlock()
		return nil
	}
	gw.started = false
	cancel := gw.discoveryCancel
	gw.discoveryCancel = nil
	gw.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	gw.wg.Wait()

	gw.fsm.ConnectionLost(nil)
	gw.fsm.Close()
	gw.idx.Stop()
	return gw.tr.Close()
}

func (gw *Gateway) onConnectionLost(err error) {
	gw.fsm.ConnectionLost(err)
	if err != nil {
		gw.logger.Warn("transport connection lost", "err", err)
	}
}

// SendOptions configures a SendCmd call.
type SendOptions struct {
	Priority protocol.Priority
	Qos      protocol.QosParams

	// NumRepeats re-airs the frame this many additional times after the
	// first settled send, GapDuration apart, without echo/reply tracking
	// (used for binding and broadcast traffic that benefits from
	// repetition on a lossy medium).
	NumRepeats  int
	GapDuration time.Duration
}

// SendCmd transmits cmd through the protocol FSM, subject to disable_sending
// and the address filter, blocking until the FSM resolves or fails it. If
// cmd's sender differs from the gateway's active HGI id, a PUZZ diagnostic
// packet is emitted immediately beforehand (impersonation marker).
func (gw *Gateway) SendCmd(ctx context.Context, cmd protocol.Command, opts SendOptions) (frame.Packet, error) {
	if gw.cfg.DisableSending {
		return frame.Packet{}, fmt.Errorf("gateway: sending is disabled")
	}

	if !gw.filter.Allow(frame.NewHostPacket(time.Now(), cmd.Frame)) {
		return frame.Packet{}, &protocol.FilterRejected{Msg: "command src/dst rejected by filter"}
	}

	addrs, err := cmd.Frame.Addresses()
	if err != nil {
		return frame.Packet{}, &protocol.CommandInvalid{Msg: err.Error()}
	}
	if gw.identity != nil && addrs.Sender != gw.identity.ActiveHGI() {
		gw.emitPuzzlePacket(ctx, cmd)
	}

	qos := opts.Qos
	if gw.cfg.DisableQos {
		qos.MaxRetries = 0
		qos.WaitForReply = protocol.WaitFalse
	}

	started := time.Now()
	pkt, err := gw.fsm.SendCmd(ctx, cmd, opts.Priority, qos.Normalize())
	gw.stats.Sample(cmd.Frame.Code, time.Since(started))
	if err != nil {
		return pkt, err
	}

	gap := opts.GapDuration
	if gap <= 0 {
		gap = 25 * time.Millisecond
	}
	for i := 0; i < opts.NumRepeats; i++ {
		select {
		case <-ctx.Done():
			return pkt, ctx.Err()
		case <-time.After(gap):
		}
		if werr := gw.tr.WriteFrame(ctx, cmd.Frame.Format()); werr != nil {
			gw.logger.Debug("send repeat failed", "attempt", i+1, "err", werr)
			break
		}
	}
	return pkt, nil
}

// Stats returns the gateway's per-code send_cmd latency tracker, useful for
// an operator watching for a slow or flaky device class.
func (gw *Gateway) Stats() *transport.StatsRegistry { return gw.stats }

// emitPuzzlePacket writes a PUZZ diagnostic frame carrying cmd's tx_header
// hex-encoded, flagging that the following command impersonates a sender
// other than this gateway's own id.
func (gw *Gateway) emitPuzzlePacket(ctx context.Context, cmd protocol.Command) {
	hdrHex := fmt.Sprintf("%x", []byte(cmd.TxHeader))
	text := fmt.Sprintf(" I --- 18:000730 --:------ 18:000730 PUZZ %03d 11%s", len(hdrHex)/2+1, hdrHex)
	if err := gw.tr.WriteFrame(ctx, text); err != nil {
		gw.logger.Debug("failed to emit puzzle packet", "err", err)
	}
}

// AddMsgHandler subscribes h to every dispatched Message passing filter
// (nil filter admits all), returning an unsubscribe function.
func (gw *Gateway) AddMsgHandler(h MsgHandler, filter MsgFilter) (unsubscribe func()) {
	id := uuid.New()
	gw.mu.Lock()
	gw.handlers = append(gw.handlers, subscription{id: id, handler: h, filter: filter})
	gw.mu.Unlock()

	return func() {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		for i, s := range gw.handlers {
			if s.id == id {
				gw.handlers = append(gw.handlers[:i], gw.handlers[i+1:]...)
				return
			}
		}
	}
}

func (gw *Gateway) snapshotHandlers() []subscription {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	out := make([]subscription, len(gw.handlers))
	copy(out, gw.handlers)
	return out
}

// HGI returns the gateway's own active address (the unconfigured sentinel
// until identity resolution completes, or always the sentinel for
// non-serial transports).
func (gw *Gateway) HGI() frame.Address {
	if gw.identity == nil {
		return frame.AddrSentinel
	}
	return gw.identity.ActiveHGI()
}

// KnownList returns the configured known_list.
func (gw *Gateway) KnownList() map[frame.Address]config.KnownDevice {
	return gw.cfg.KnownList
}

// Devices returns every device the factory has created so far.
func (gw *Gateway) Devices() []*device.Device { return gw.factory.All() }

// Device returns the device for addr, if known.
func (gw *Gateway) Device(addr frame.Address) (*device.Device, bool) { return gw.factory.Get(addr) }

// Systems returns every TCS the gateway has created so far.
func (gw *Gateway) Systems() []*system.System {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	out := make([]*system.System, 0, len(gw.systems))
	for _, s := range gw.systems {
		out = append(out, s)
	}
	return out
}

// TCS returns the System for controller ctl, if known.
func (gw *Gateway) TCS(ctl frame.Address) (*system.System, bool) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	s, ok := gw.systems[ctl]
	return s, ok
}

// Registry exposes the payload registry, for callers that need to Encode a
// command (e.g. a host building a 2309 setpoint write).
func (gw *Gateway) Registry() *payload.Registry { return gw.registry }

// Index exposes the message index, for callers querying historical traffic
// directly.
func (gw *Gateway) Index() *index.Index { return gw.idx }
