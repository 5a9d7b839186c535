package transport

import (
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

func mustSyncPacket(t *testing.T, dtm time.Time, remainingTenths string) frame.Packet {
	t.Helper()
	f, err := frame.Parse(" I --- 01:145038 --:------ 01:145038 1F09 003 FF" + remainingTenths)
	if err != nil {
		t.Fatalf("parse sync frame: %v", err)
	}
	return frame.Packet{Dtm: dtm, Frame: f}
}

func TestSyncTrackerImminentWithinWindow(t *testing.T) {
	base := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	now := base

	tr := newSyncTracker()
	tr.clock = func() time.Time { return now }

	// remaining = 0x0032 tenths = 5.0s; nextDue = base + 5s.
	tr.Track(mustSyncPacket(t, base, "0032"))

	now = base.Add(5*time.Second - (syncWindowLower+syncWindowUpper)/2)
	if !tr.Imminent() {
		t.Fatalf("expected sync cycle to be flagged imminent inside the window")
	}
}

func TestSyncTrackerNotImminentFarOut(t *testing.T) {
	base := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	now := base

	tr := newSyncTracker()
	tr.clock = func() time.Time { return now }

	tr.Track(mustSyncPacket(t, base, "0032"))

	now = base.Add(1 * time.Second)
	if tr.Imminent() {
		t.Fatalf("expected sync cycle 4s out to not yet be flagged imminent")
	}
}

func TestSyncTrackerCapsTrackedSenders(t *testing.T) {
	base := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	tr := newSyncTracker()
	tr.clock = func() time.Time { return base }

	senders := []string{"01:100001", "01:100002", "01:100003", "01:100004"}
	for _, s := range senders {
		f, err := frame.Parse(" I --- " + s + " --:------ " + s + " 1F09 003 FF0032")
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		tr.Track(frame.Packet{Dtm: base, Frame: f})
	}

	if len(tr.cycle) > maxTrackedSyncs {
		t.Fatalf("expected at most %d tracked senders, got %d", maxTrackedSyncs, len(tr.cycle))
	}
}
