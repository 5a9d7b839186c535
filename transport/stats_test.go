package transport_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/transport"
)

func TestLatencyStats_String_NoSamples_DoesNotPanic(t *testing.T) {
	ls := transport.NewLatencyStats("no-samples")

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("String() panicked with no samples: %v", r)
		}
	}()
	s := ls.String()
	t.Log(s)
}

func TestLatencyStats_String_TwoSamples(t *testing.T) {
	ls := transport.NewLatencyStats("two-samples")
	ls.Sample(100 * time.Millisecond)
	ls.Sample(300 * time.Millisecond)

	s := ls.String()
	for _, v := range []string{"Samples: 2", "Min: 100ms", "Max: 300ms", "Mean: 200ms"} {
		if !strings.Contains(s, v) {
			t.Fatalf("String() did not include %q\n%s", v, s)
		}
	}
}

func TestLatencyStats_ConcurrentSamples(t *testing.T) {
	ls := transport.NewLatencyStats("concurrent")

	const n = 500
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			ls.Sample(time.Millisecond)
		}()
	}
	wg.Wait()

	if got := ls.Count(); got != n {
		t.Fatalf("Count() = %d, want %d", got, n)
	}
}

func TestStatsRegistry_SamplePerCode(t *testing.T) {
	r := transport.NewStatsRegistry()
	r.Sample(frame.Code("1F09"), 10*time.Millisecond)
	r.Sample(frame.Code("1F09"), 20*time.Millisecond)
	r.Sample(frame.Code("2309"), 5*time.Millisecond)

	if got := r.Get(frame.Code("1F09")).Count(); got != 2 {
		t.Fatalf("1F09 count = %d, want 2", got)
	}
	if got := r.Get(frame.Code("2309")).Count(); got != 1 {
		t.Fatalf("2309 count = %d, want 1", got)
	}
	if r.Get(frame.Code("3EF0")) != nil {
		t.Fatal("expected no series for an unsampled code")
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
}
