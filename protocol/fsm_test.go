package protocol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

// recordingSender captures every frame written, and optionally echoes it
// back into an FSM via PacketReceived, simulating a serial loopback.
type recordingSender struct {
	mu     sync.Mutex
	writes []string
	echo   func(text string)
}

func (s *recordingSender) WriteFrame(_ context.Context, text string) error {
	s.mu.Lock()
	s.writes = append(s.writes, text)
	echo := s.echo
	s.mu.Unlock()
	if echo != nil {
		echo(text)
	}
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func mustParse(t *testing.T, text string) frame.Frame {
	t.Helper()
	f, err := frame.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return f
}

func TestFsmEchoOnlyCompletesOnOwnEcho(t *testing.T) {
	sender := &recordingSender{}
	ctx := NewContext(sender, WithEchoTimeout(20*time.Millisecond), WithReplyTimeout(20*time.Millisecond))
	defer ctx.Close()

	f := mustParse(t, " I --- 01:145038 --:------ 01:145038 000C 006 000014012345")
	cmd, err := NewCommandNoReply(f)
	if err != nil {
		t.Fatal(err)
	}

	sender.echo = func(text string) {
		f, err := frame.Parse(text)
		if err != nil {
			t.Errorf("echo reparse: %v", err)
			return
		}
		ctx.PacketReceived(frame.NewHostPacket(time.Now(), f))
	}

	ctx.ConnectionMade()

	pkt, err := ctx.SendCmd(context.Background(), cmd, PriorityDefault, DefaultQos())
	if err != nil {
		t.Fatalf("SendCmd: %v", err)
	}
	if pkt.Frame.Code != "000C" {
		t.Errorf("got echo packet with code %q", pkt.Frame.Code)
	}
	if sender.count() != 1 {
		t.Errorf("expected exactly 1 write (no retry on prompt echo), got %d", sender.count())
	}
}

func TestFsmWaitsForReplyAfterEcho(t *testing.T) {
	sender := &recordingSender{}
	ctx := NewContext(sender, WithEchoTimeout(20*time.Millisecond), WithReplyTimeout(50*time.Millisecond))
	defer ctx.Close()

	f := mustParse(t, "RQ --- 18:000730 01:145038 --:------ 1F09 001 00")
	cmd, err := NewCommand(f)
	if err != nil {
		t.Fatal(err)
	}

	reply := mustParse(t, "RP --- 01:145038 18:000730 --:------ 1F09 003 FF0A04")

	sender.echo = func(text string) {
		f, err := frame.Parse(text)
		if err != nil {
			t.Errorf("echo reparse: %v", err)
			return
		}
		ctx.PacketReceived(frame.NewHostPacket(time.Now(), f))
		go func() {
			time.Sleep(5 * time.Millisecond)
			ctx.PacketReceived(frame.Packet{Dtm: time.Now(), Frame: reply})
		}()
	}

	ctx.ConnectionMade()

	pkt, err := ctx.SendCmd(context.Background(), cmd, PriorityDefault, DefaultQos())
	if err != nil {
		t.Fatalf("SendCmd: %v", err)
	}
	if pkt.Frame.Code != "1F09" || pkt.Frame.Verb != frame.VerbReply {
		t.Errorf("expected the 1F09 reply frame, got %+v", pkt.Frame)
	}
}

func TestFsmRetriesThenFails(t *testing.T) {
	sender := &recordingSender{} // never echoes: every attempt times out
	ctx := NewContext(sender, WithEchoTimeout(5*time.Millisecond))
	defer ctx.Close()

	f := mustParse(t, " I --- 01:145038 --:------ 01:145038 000C 006 000014012345")
	cmd, err := NewCommandNoReply(f)
	if err != nil {
		t.Fatal(err)
	}

	ctx.ConnectionMade()

	qos := QosParams{MaxRetries: 2, Timeout: 2 * time.Second}
	_, err = ctx.SendCmd(context.Background(), cmd, PriorityDefault, qos)
	if err == nil {
		t.Fatal("expected send_failed after exhausting retries")
	}

	// tx_limit = min(max_retries, MAX_RETRY_LIMIT) + 1: one initial send plus
	// two retries.
	if got := sender.count(); got != 3 {
		t.Errorf("expected 3 transmissions (1 + 2 retries), got %d", got)
	}
}

func TestFsmAtMostOneInFlight(t *testing.T) {
	sender := &recordingSender{}
	ctx := NewContext(sender, WithEchoTimeout(10*time.Millisecond), WithBufferSize(4))
	defer ctx.Close()

	var echoedMu sync.Mutex
	var echoed []string
	sender.echo = func(text string) {
		echoedMu.Lock()
		echoed = append(echoed, text)
		echoedMu.Unlock()
		f, err := frame.Parse(text)
		if err == nil {
			ctx.PacketReceived(frame.NewHostPacket(time.Now(), f))
		}
	}
	ctx.ConnectionMade()

	f := mustParse(t, " I --- 01:145038 --:------ 01:145038 000C 006 000014012345")
	cmd, _ := NewCommandNoReply(f)

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := ctx.SendCmd(context.Background(), cmd, PriorityDefault, DefaultQos())
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("send %d failed: %v", i, err)
		}
	}
	// Each send's echo arrives only after its own transmission (by
	// construction), so out-of-order completion would mean a future resolved
	// with someone else's echo - it doesn't, because only one command is
	// ever in WantEcho/WantRply at a time.
	echoedMu.Lock()
	defer echoedMu.Unlock()
	if len(echoed) != n {
		t.Errorf("expected %d transmissions, got %d", n, len(echoed))
	}
}

// TestFsmMatchesEchoAfterIdentityRewrite exercises the evofw3 sentinel
// substitution path end-to-end through the FSM: a command built with
// src=18:000730 is rewritten to the fingerprinted active HGI id immediately
// before transmission, so the echo's header carries the real id, not the
// sentinel. The FSM must compare against the header the wire actually saw,
// or it can never recognise its own echo.
func TestFsmMatchesEchoAfterIdentityRewrite(t *testing.T) {
	sender := &recordingSender{}
	id := NewIdentity()
	id.SetFirmware(FirmwareEvofw3)
	id.SetActiveHGI(frame.Address("18:123456"))

	ctx := NewContext(sender,
		WithEchoTimeout(20*time.Millisecond),
		WithReplyTimeout(50*time.Millisecond),
		WithIdentityRewriter(id),
	)
	defer ctx.Close()

	sender.echo = func(text string) {
		f, err := frame.Parse(text)
		if err != nil {
			t.Errorf("echo reparse: %v", err)
			return
		}
		ctx.PacketReceived(frame.NewHostPacket(time.Now(), f))
	}

	f := mustParse(t, "RQ --- 18:000730 01:145038 --:------ 1F09 001 00")
	cmd, err := NewCommand(f)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.TxHeader != "1F09|RQ|18:000730" {
		t.Fatalf("unexpected tx_header: %s", cmd.TxHeader)
	}

	ctx.ConnectionMade()

	reply := frame.NewHostPacket(time.Now(), mustParse(t, "RP --- 01:145038 18:123456 --:------ 1F09 003 FF0A04"))
	go func() {
		time.Sleep(5 * time.Millisecond)
		ctx.PacketReceived(reply)
	}()

	pkt, err := ctx.SendCmd(context.Background(), cmd, PriorityDefault, DefaultQos())
	if err != nil {
		t.Fatalf("SendCmd: %v (identity rewrite likely not honoured for echo/reply matching)", err)
	}
	if pkt.Frame.Code != "1F09" {
		t.Errorf("got reply packet with code %q", pkt.Frame.Code)
	}
	if sender.count() != 1 {
		t.Errorf("expected exactly 1 write (no retry), got %d", sender.count())
	}

	sender.mu.Lock()
	wrote := sender.writes[0]
	sender.mu.Unlock()
	wroteFrame, err := frame.Parse(wrote)
	if err != nil {
		t.Fatalf("reparse transmitted frame: %v", err)
	}
	addrs, err := wroteFrame.Addresses()
	if err != nil {
		t.Fatal(err)
	}
	if addrs.Sender != frame.Address("18:123456") {
		t.Errorf("transmitted frame sender = %s, want rewritten 18:123456", addrs.Sender)
	}
}
