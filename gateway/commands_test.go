package gateway

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/device"
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/transport"
)

// echoingWrites wires cb to loop every parseable write back into the FSM as
// its own echo, returning a getter for the captured lines.
func echoingWrites(gw *Gateway, cb *transport.CallbackTransport) func() []string {
	var mu sync.Mutex
	var writes []string
	cb.WriteHook = func(text string) error {
		mu.Lock()
		writes = append(writes, text)
		mu.Unlock()
		if f, err := frame.Parse(text); err == nil && f.Code != "PUZZ" {
			gw.fsm.PacketReceived(frame.NewHostPacket(time.Now(), f))
		}
		return nil
	}
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string{}, writes...)
	}
}

func TestSetDhwModeTemporaryPayload(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.cfg.DisableQos = true
	cb.Start(context.Background())
	gw.fsm.ConnectionMade()
	getWrites := echoingWrites(gw, cb)

	until := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, err := gw.SetDhwMode(context.Background(), "01:145038", true, &until); err != nil {
		t.Fatalf("SetDhwMode: %v", err)
	}

	writes := getWrites()
	if len(writes) == 0 {
		t.Fatal("expected a transmitted frame")
	}
	sent, err := frame.Parse(writes[len(writes)-1])
	if err != nil {
		t.Fatalf("reparse sent frame: %v", err)
	}
	if sent.Verb != frame.VerbWrite || sent.Code != "1F41" {
		t.Fatalf("expected W|1F41, got %s|%s", sent.Verb, sent.Code)
	}
	// dhw_idx=00, active=01, mode=04 (TEMPORARY), then the duration
	// placeholder and the packed until datetime.
	if !strings.HasPrefix(sent.Payload, "000104FFFFFF") {
		t.Fatalf("unexpected payload prefix: %s", sent.Payload)
	}
	// Packed 2024-01-01T12:00:00: E8 07 (year LE) 01 01 0C 00 00.
	if !strings.Contains(sent.Payload, "E80701010C0000") {
		t.Fatalf("expected packed datetime in payload, got %s", sent.Payload)
	}
}

func TestSetFanParamRequiresBoundRem(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.cfg.DisableQos = true
	cb.Start(context.Background())
	gw.fsm.ConnectionMade()

	gw.factory.GetOrCreate("37:155000", device.Traits{Class: "FAN"})
	if _, err := gw.SetFanParam(context.Background(), "37:155000", "75", 21.5); err == nil {
		t.Fatal("expected an error with no bound REM/DIS")
	}
}

func TestSetFanParamSendsFromBoundRem(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.cfg.DisableQos = true
	cb.Start(context.Background())
	gw.fsm.ConnectionMade()
	getWrites := echoingWrites(gw, cb)

	fan := gw.factory.GetOrCreate("37:155000", device.Traits{Class: "FAN"})
	fan.AddBoundDevice("37:168270")

	if _, err := gw.SetFanParam(context.Background(), "37:155000", "75", 21.5); err != nil {
		t.Fatalf("SetFanParam: %v", err)
	}

	writes := getWrites()
	if len(writes) == 0 {
		t.Fatal("expected a transmitted frame")
	}
	sent, err := frame.Parse(writes[len(writes)-1])
	if err != nil {
		t.Fatalf("reparse sent frame: %v", err)
	}
	addrs, err := sent.Addresses()
	if err != nil {
		t.Fatal(err)
	}
	if addrs.Sender != "37:168270" || addrs.Receiver != "37:155000" {
		t.Fatalf("expected send from bound REM to fan, got %s -> %s", addrs.Sender, addrs.Receiver)
	}
	if sent.Verb != frame.VerbWrite || sent.Code != "2411" {
		t.Fatalf("expected W|2411, got %s|%s", sent.Verb, sent.Code)
	}
	if !strings.HasPrefix(sent.Payload, "0000750092") {
		t.Fatalf("unexpected payload prefix: %s", sent.Payload)
	}
	if sent.Payload[10:18] != "00000866" {
		t.Fatalf("expected 21.5 scaled to 00000866, got %s", sent.Payload[10:18])
	}
	if !strings.HasSuffix(sent.Payload, "0001") {
		t.Fatalf("expected temperature trailer 0001, got %s", sent.Payload)
	}
}

func TestSyncCycleUpdatesSystemRemainingSeconds(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.tr.SetReceiver(gw.onPacket)
	cb.Start(context.Background())

	cb.InjectFrame(newFrameLine("RP --- 01:145038 18:000730 --:------ 1F09 003 FF0A04"))

	sys, ok := gw.TCS("01:145038")
	if !ok {
		t.Fatal("expected system 01:145038 to exist")
	}
	// 0x0A04 tenths of a second.
	if secs, _ := sys.RemainingSeconds(); secs != 256.4 {
		t.Fatalf("remaining seconds = %v, want 256.4", secs)
	}
}

func TestZoneCreationFromZoneTypesAndDevices(t *testing.T) {
	gw, cb := newTestGateway(t)
	gw.tr.SetReceiver(gw.onPacket)
	cb.Start(context.Background())

	// Zone-type bitmap: zone 00 configured as a radiator zone (type 08).
	cb.InjectFrame(newFrameLine("RP --- 01:145038 18:000730 --:------ 0005 004 00080100"))
	// Zone device list: zone 00 bound to BDR 13:050123 (packed 13<<18|50123 = 0x34C3CB).
	cb.InjectFrame(newFrameLine(" I --- 01:145038 --:------ 01:145038 000C 006 00080034C3CB"))

	sys, ok := gw.TCS("01:145038")
	if !ok {
		t.Fatal("expected system 01:145038 to exist")
	}
	z := sys.GetHtgZone("00")
	if z.Class.String() != "radiator" {
		t.Fatalf("expected zone 00 class radiator, got %s", z.Class)
	}
	if len(z.Actuators()) != 1 {
		t.Fatalf("expected one actuator bound to zone 00, got %v", z.Actuators())
	}
}
