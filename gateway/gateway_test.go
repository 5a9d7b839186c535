package gateway

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/config"
	"github.com/ramses-go/ramses-go/device"
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
	"github.com/ramses-go/ramses-go/payload"
	"github.com/ramses-go/ramses-go/protocol"
	"github.com/ramses-go/ramses-go/system"
	"github.com/ramses-go/ramses-go/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway builds a Gateway wired to an in-process CallbackTransport,
// bypassing New (which only selects carriers transport.Config can build).
func newTestGateway(t *testing.T) (*Gateway, *transport.CallbackTransport) {
	t.Helper()
	logger := discardLogger()
	cb := transport.NewCallbackTransport(logger)

	idx := index.New(logger)
	t.Cleanup(idx.Stop)

	gw := &Gateway{
		cfg:      config.Config{}.Normalized(),
		logger:   logger,
		registry: payload.NewRegistry(),
		idx:      idx,
		fsm:      protocol.NewContext(cb, protocol.WithLogger(logger)),
		filter:   protocol.NewFilter(nil, nil, false, logger),
		tr:       cb,
		factory:  device.NewFactory(idx, logger),
		stats:    transport.NewStatsRegistry(),
		systems:  make(map[frame.Address]*system.System),
	}
	return gw, cb
}

func newFrameLine(text string) frame.Packet {
	pkt, err := frame.NewPacket(time.Now(), text)
	if err != nil {
		panic(err)
	}
	return pkt
}

func TestDispatchZoneTemperatureUpdatesSystem(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.tr.SetReceiver(gw.onPacket)
	cb.Start(context.Background())

	cb.InjectFrame(newFrameLine(" I --- 01:145038 --:------ 01:145038 30C9 003 0007D0"))

	sys, ok := gw.TCS("01:145038")
	if !ok {
		t.Fatalf("expected a system to be created for controller 01:145038")
	}
	z := sys.GetHtgZone("00")
	temp, valid := z.Temperature()
	if !valid || temp != 20.0 {
		t.Fatalf("expected zone temperature 20.0 (valid), got %v (valid=%v)", temp, valid)
	}
}

func TestAddMsgHandlerReceivesDispatchedMessages(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.tr.SetReceiver(gw.onPacket)
	cb.Start(context.Background())

	var mu sync.Mutex
	var seen []index.Message
	unsub := gw.AddMsgHandler(func(m index.Message) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m)
	}, nil)
	defer unsub()

	cb.InjectFrame(newFrameLine(" I --- 01:145038 --:------ 01:145038 30C9 003 0007D0"))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Code != "30C9" {
		t.Fatalf("expected handler to observe the dispatched 30C9 message, got %+v", seen)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.tr.SetReceiver(gw.onPacket)
	cb.Start(context.Background())

	calls := 0
	unsub := gw.AddMsgHandler(func(m index.Message) { calls++ }, nil)
	unsub()

	cb.InjectFrame(newFrameLine(" I --- 01:145038 --:------ 01:145038 30C9 003 0007D0"))

	if calls != 0 {
		t.Fatalf("expected no handler calls after unsubscribe, got %d", calls)
	}
}

func TestSendCmdRejectedWhenSendingDisabled(t *testing.T) {
	gw, _ := newTestGateway(t)
	gw.cfg.DisableSending = true

	f := frame.Frame{
		Verb:    frame.VerbInfo,
		Addrs:   [3]frame.Address{"18:000730", frame.AddrBroadcast, "18:000730"},
		Code:    "10E0",
		Length:  1,
		Payload: "00",
	}
	cmd, err := protocol.NewCommandNoReply(f)
	if err != nil {
		t.Fatalf("NewCommandNoReply: %v", err)
	}
	if _, err := gw.SendCmd(context.Background(), cmd, SendOptions{}); err == nil {
		t.Fatalf("expected SendCmd to fail when disable_sending is set")
	}
}

func TestSendCmdEmitsPuzzlePacketForForeignSender(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.identity = protocol.NewIdentity()
	gw.identity.SetActiveHGI("18:111111")
	gw.fsm = protocol.NewContext(cb, protocol.WithLogger(gw.logger), protocol.WithIdentityRewriter(gw.identity))
	cb.Start(context.Background())
	gw.fsm.ConnectionMade()

	var writes []string
	var mu sync.Mutex
	cb.WriteHook = func(text string) error {
		mu.Lock()
		writes = append(writes, text)
		mu.Unlock()
		// Loop every parseable (non-PUZZ) write back as its own echo so the
		// FSM can settle the send.
		if f, err := frame.Parse(text); err == nil && f.Code != "PUZZ" {
			gw.fsm.PacketReceived(frame.NewHostPacket(time.Now(), f))
		}
		return nil
	}

	f := frame.Frame{
		Verb:    frame.VerbInfo,
		Addrs:   [3]frame.Address{"18:222222", frame.AddrBroadcast, "18:222222"},
		Code:    "10E0",
		Length:  1,
		Payload: "00",
	}
	cmd, err := protocol.NewCommandNoReply(f)
	if err != nil {
		t.Fatalf("NewCommandNoReply: %v", err)
	}
	if _, err := gw.SendCmd(context.Background(), cmd, SendOptions{Qos: protocol.DefaultQos()}); err != nil {
		t.Fatalf("SendCmd: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(writes) < 1 || !strings.Contains(writes[0], "PUZZ") {
		t.Fatalf("expected a PUZZ diagnostic write before the impersonated command, got %v", writes)
	}
}
