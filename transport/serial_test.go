package transport

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

// linePort is a fake signaturePort that queues whatever text its Write calls
// push onto a buffered channel, replayed back through a bufio.Reader — a
// deterministic stand-in for a dongle that echoes its own transmissions
// without the timing hazards of a real io.Pipe.
type linePort struct {
	lines chan string
	onWrite func(b []byte, lines chan<- string)
}

func newLinePort(capacity int, onWrite func(b []byte, lines chan<- string)) *linePort {
	return &linePort{lines: make(chan string, capacity), onWrite: onWrite}
}

func (p *linePort) Write(b []byte) (int, error) {
	p.onWrite(b, p.lines)
	return len(b), nil
}

func (p *linePort) SetReadTimeout(time.Duration) error { return nil }

func (p *linePort) reader() *bufio.Reader {
	return bufio.NewReader(&lineReader{lines: p.lines})
}

// lineReader adapts a channel of already-formatted lines to io.Reader.
type lineReader struct {
	lines chan string
	buf   []byte
}

func (r *lineReader) Read(out []byte) (int, error) {
	if len(r.buf) == 0 {
		r.buf = []byte(<-r.lines)
	}
	n := copy(out, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func TestRunFingerprintProbe_ResolvesActiveHGIFromEcho(t *testing.T) {
	port := newLinePort(1, func(b []byte, lines chan<- string) {
		lines <- string(b)
	})

	addr := runFingerprintProbeOn(context.Background(), port, port.reader(), slog.Default(), func(frame.Packet) {
		t.Fatal("unexpected non-matching packet delivered")
	})

	if addr != frame.AddrNonDev {
		t.Fatalf("ActiveHGI = %q, want the probe frame's own sender %q", addr, frame.AddrNonDev)
	}
}

// silentPort never echoes; the probe must give up after its retry budget and
// fall back to the unresolved sentinel rather than hang.
type silentPort struct{}

func (silentPort) Write(b []byte) (int, error)        { return len(b), nil }
func (silentPort) SetReadTimeout(time.Duration) error { return nil }

func TestRunFingerprintProbe_NoEchoFallsBackToSentinel(t *testing.T) {
	// An always-EOF reader stands in for a dongle that never echoes: every
	// ReadString returns immediately, so the probe burns through its retry
	// budget without blocking the test.
	deliveries := 0
	addr := runFingerprintProbeOn(context.Background(), silentPort{}, bufio.NewReader(strings.NewReader("")), slog.Default(), func(frame.Packet) {
		deliveries++
	})

	if addr != frame.AddrSentinel {
		t.Fatalf("ActiveHGI = %q, want unresolved sentinel %q", addr, frame.AddrSentinel)
	}
	if deliveries != 0 {
		t.Fatalf("expected no packets delivered, got %d", deliveries)
	}
}

func TestRunFingerprintProbe_DeliversUnrelatedPacketsWhileProbing(t *testing.T) {
	const unrelated = " I --- 01:145038 --:------ 01:145038 1F09 003 FF0A04\r\n"

	wrote := 0
	port := newLinePort(2, func(b []byte, lines chan<- string) {
		wrote++
		if wrote == 1 {
			lines <- unrelated
		}
		lines <- string(b)
	})

	var delivered []frame.Packet
	addr := runFingerprintProbeOn(context.Background(), port, port.reader(), slog.Default(), func(pkt frame.Packet) {
		delivered = append(delivered, pkt)
	})

	if addr != frame.AddrNonDev {
		t.Fatalf("ActiveHGI = %q, want %q", addr, frame.AddrNonDev)
	}
	if len(delivered) != 1 || delivered[0].Frame.Code != "1F09" {
		t.Fatalf("expected exactly the unrelated 1F09 packet delivered, got %+v", delivered)
	}
}
