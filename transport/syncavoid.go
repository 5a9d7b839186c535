package transport

import (
	"strconv"
	"sync"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

const (
	durationPktGap  = 20 * time.Millisecond
	durationLongPkt = 22 * time.Millisecond
	durationSyncPkt = 10 * time.Millisecond

	syncWaitLong  = (durationPktGap + durationLongPkt) * 2
	syncWaitShort = durationSyncPkt
)

var (
	syncWindowLower = time.Duration(float64(syncWaitShort) * 0.8)
	syncWindowUpper = syncWindowLower + time.Duration(float64(syncWaitLong)*1.2)
)

const maxTrackedSyncs = 3

// syncTracker remembers the most recent broadcast 1F09 sync-cycle packets
// (one per controller), so outbound sends can be delayed to avoid colliding
// with a controller's periodic broadcast window.
type syncTracker struct {
	mu    sync.Mutex
	clock func() time.Time
	cycle []syncEntry
}

type syncEntry struct {
	src     frame.Address
	seenAt  time.Time
	nextDue time.Time
}

func newSyncTracker() *syncTracker {
	return &syncTracker{clock: time.Now}
}

// Track records pkt if it is a broadcast I|1F09|003 sync-cycle packet,
// replacing any prior entry for the same sender.
func (s *syncTracker) Track(pkt frame.Packet) {
	if pkt.Frame.Code != "1F09" || pkt.Frame.Verb != frame.VerbInfo || pkt.Frame.Length != 3 {
		return
	}
	addrs, err := pkt.Frame.Addresses()
	if err != nil {
		return
	}
	remaining, err := strconv.ParseInt(pkt.Frame.Payload[2:6], 16, 64)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	nextDue := pkt.Dtm.Add(time.Duration(remaining) * 100 * time.Millisecond)

	kept := s.cycle[:0]
	for _, e := range s.cycle {
		if e.src != addrs.Sender && e.nextDue.After(now) {
			kept = append(kept, e)
		}
	}
	s.cycle = append(kept, syncEntry{src: addrs.Sender, seenAt: pkt.Dtm, nextDue: nextDue})

	if len(s.cycle) > maxTrackedSyncs {
		s.cycle = s.cycle[1:]
	}
}

// Imminent reports whether any tracked controller's sync cycle is about to
// start, so a pending write should be held off.
func (s *syncTracker) Imminent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for _, e := range s.cycle {
		until := e.nextDue.Sub(now)
		if until > syncWindowLower && until < syncWindowUpper {
			return true
		}
	}
	return false
}

// SyncCycleImminent implements protocol.SyncAvoider.
func (s *syncTracker) SyncCycleImminent() bool { return s.Imminent() }
