package index

import (
	"testing"
	"time"
)

func TestAllFiltersExpiredByLifespan(t *testing.T) {
	idx := newTestIndex()
	defer idx.Stop()

	now := time.Now()
	idx.clock = func() time.Time { return now }

	idx.Add(Message{Hdr: "STALE", Dtm: now.Add(-2 * time.Hour), Lifespan: time.Hour})
	idx.Add(Message{Hdr: "FRESH", Dtm: now.Add(-30 * time.Minute), Lifespan: time.Hour})
	idx.Add(Message{Hdr: "ETERNAL", Dtm: now.Add(-20 * time.Hour)}) // no lifespan: dummy record

	live := idx.All(false)
	if len(live) != 2 {
		t.Fatalf("expected 2 unexpired messages, got %d", len(live))
	}
	for _, m := range live {
		if m.Hdr == "STALE" {
			t.Fatal("expected STALE filtered out of the unexpired snapshot")
		}
	}

	all := idx.All(true)
	if len(all) != 3 {
		t.Fatalf("expected 3 messages with include_expired, got %d", len(all))
	}
}
