package protocol

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustFrame(t *testing.T, text string) frame.Frame {
	t.Helper()
	f, err := frame.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return f
}

func TestFilterBlocksListedAddress(t *testing.T) {
	f := NewFilter(nil, []frame.Address{"01:145038"}, false, discardLogger())
	pkt := frame.Packet{Frame: mustFrame(t, "RP --- 01:145038 18:000730 --:------ 0005 004 00080100")}
	if f.Allow(pkt) {
		t.Error("expected blocked address to be rejected")
	}
}

func TestFilterEnforcesKnownList(t *testing.T) {
	f := NewFilter([]frame.Address{"18:000730"}, nil, true, discardLogger())

	known := frame.Packet{Frame: mustFrame(t, "RQ --- 18:000730 --:------ 18:000730 10E0 001 00")}
	if !f.Allow(known) {
		t.Error("self-announce by a known device should be allowed")
	}

	unknown := frame.Packet{Frame: mustFrame(t, "RP --- 01:145038 18:000730 --:------ 0005 004 00080100")}
	if f.Allow(unknown) {
		t.Error("expected unlisted device to be rejected when enforce_known_list is set")
	}
}

func TestFilterExemptsBroadcastAndNonDev(t *testing.T) {
	f := NewFilter([]frame.Address{"18:000730"}, nil, true, discardLogger())
	pkt := frame.Packet{Frame: mustFrame(t, "RQ --- 18:000730 01:145038 --:------ 1F09 001 00")}
	// 01:145038 is not known, but the receiver check only exempts
	// broadcast/non-dev/placeholder addresses, so this must still fail.
	if f.Allow(pkt) {
		t.Error("expected rejection: receiver 01:145038 is neither known nor exempt")
	}

	for _, line := range []string{
		" I --- 18:000730 --:------ --:------ 1F09 001 00", // broadcast: no receiver
		"RQ --- 18:000730 63:262142 --:------ 1F09 001 00", // non-dev receiver
	} {
		if !f.Allow(frame.Packet{Frame: mustFrame(t, line)}) {
			t.Errorf("expected %q allowed: its receiver is exempt", line)
		}
	}
}

func TestFilterWarnsOncePerDay(t *testing.T) {
	f := NewFilter(nil, nil, false, discardLogger())
	now := time.Now()
	f.clock = func() time.Time { return now }

	pkt := frame.Packet{Frame: mustFrame(t, "RQ --- 18:000999 01:145038 --:------ 1F09 001 00")}
	f.enforce = true
	f.Allow(pkt)
	if _, warned := f.lastWarn["18:000999"]; !warned {
		t.Fatal("expected a foreign-gateway warning to be recorded")
	}

	earlier := f.lastWarn["18:000999"]
	f.Allow(pkt) // same day: should not reset the warning time
	if f.lastWarn["18:000999"] != earlier {
		t.Error("warning timestamp should not update within the same 24h window")
	}
}
