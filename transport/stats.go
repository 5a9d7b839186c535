package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

// LatencyStats maintains round-trip latency statistics (count/min/mean/max)
// for a single RAMSES-II command code.
type LatencyStats struct {
	mu    sync.RWMutex
	name  string // identifies this series in String()
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// NewLatencyStats returns a *LatencyStats for the given series name.
//
// Returns a pointer-owned struct so its mutex doesn't get copied when stored
// in a map or passed around.
func NewLatencyStats(name string) *LatencyStats {
	return &LatencyStats{name: name}
}

// Sample records a single observed duration.
func (l *LatencyStats) Sample(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	l.total += d
	if l.min == 0 || d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
}

// Count returns the number of samples recorded so far.
func (l *LatencyStats) Count() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

func (l *LatencyStats) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var mean time.Duration
	if l.count > 0 {
		mean = time.Duration(l.total.Nanoseconds() / l.count)
	}
	return fmt.Sprintf(
		`
%s:
  Samples: %v
      Max: %v
     Mean: %v
      Min: %v
`,
		l.name,
		l.count,
		l.max,
		mean,
		l.min,
	)
}

// StatsRegistry tracks a LatencyStats series per message code, created
// lazily on first sample. A Gateway uses one registry to watch send_cmd
// round-trip timing broken out by code, the way an operator would want to
// spot a specific slow/flaky device class.
type StatsRegistry struct {
	mu     sync.Mutex
	byCode map[frame.Code]*LatencyStats
}

// NewStatsRegistry returns an empty StatsRegistry.
func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{byCode: make(map[frame.Code]*LatencyStats)}
}

// Sample records d against the series for code, creating it if needed.
func (r *StatsRegistry) Sample(code frame.Code, d time.Duration) {
	r.mu.Lock()
	s, ok := r.byCode[code]
	if !ok {
		s = NewLatencyStats(string(code))
		r.byCode[code] = s
	}
	r.mu.Unlock()
	s.Sample(d)
}

// Get returns the series for code, or nil if no sample has been recorded.
func (r *StatsRegistry) Get(code frame.Code) *LatencyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byCode[code]
}

// Snapshot returns a copy of the current code -> series mapping.
func (r *StatsRegistry) Snapshot() map[frame.Code]*LatencyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[frame.Code]*LatencyStats, len(r.byCode))
	for k, v := range r.byCode {
		out[k] = v
	}
	return out
}

func (r *StatsRegistry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := ""
	for _, v := range r.byCode {
		s += v.String()
	}
	return s
}
