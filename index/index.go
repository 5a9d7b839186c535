package index

import (
	"log/slog"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/ramses-go/ramses-go/frame"
)

// retention is how long a message stays indexed after receipt before
// housekeeping removes it (the data model's "24h" invariant).
const retention = 24 * time.Hour

// housekeepInterval is how often the background task sweeps expired
// messages.
const housekeepInterval = time.Hour

// Selector is a predicate over an indexed Message, used by Get/Contains/
// Remove/QueryDtms: a typed predicate in place of a generic query language,
// since nothing in-process needs arbitrary ad hoc filters (see DESIGN.md).
type Selector func(Message) bool

// BySrc, ByDst, ByCode, ByVerb, ByCtx, ByHdr build common Selectors.
func BySrc(a frame.Address) Selector  { return func(m Message) bool { return m.Src == a } }
func ByDst(a frame.Address) Selector  { return func(m Message) bool { return m.Dst == a } }
func ByCode(c frame.Code) Selector    { return func(m Message) bool { return m.Code == c } }
func ByVerb(v frame.Verb) Selector    { return func(m Message) bool { return m.Verb == v } }
func ByCtx(ctx string) Selector       { return func(m Message) bool { return m.Ctx == ctx } }
func ByHdr(h frame.Header) Selector   { return func(m Message) bool { return m.Hdr == h } }

// And combines Selectors with logical AND.
func And(sels ...Selector) Selector {
	return func(m Message) bool {
		for _, s := range sels {
			if !s(m) {
				return false
			}
		}
		return true
	}
}

// Index is the indexed in-memory message store. A single writer (the
// dispatcher) holds the write lock briefly per Add/Remove; readers take a
// read lock, so lookups never block on each other.
type Index struct {
	mu      sync.RWMutex
	byHdr   map[frame.Header]*Message
	order   []frame.Header // insertion order, for All()
	clock   func() time.Time
	stopCh  chan struct{}
	stopped bool
	logger  *slog.Logger
}

// New creates an Index and starts its housekeeping goroutine.
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{
		byHdr:  make(map[frame.Header]*Message),
		clock:  time.Now,
		stopCh: make(chan struct{}),
		logger: logger,
	}
	go idx.housekeepLoop()
	return idx
}

// Add inserts m, replacing and returning any prior entry with the same
// header: the header is the index's primary key. A duplicate dtm is logged,
// not rejected.
func (idx *Index) Add(m Message) (replaced *Message) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, ok := idx.byHdr[m.Hdr]; ok {
		replaced = prev
		idx.removeFromOrderLocked(m.Hdr)
	}
	for _, existing := range idx.byHdr {
		if existing.Dtm.Equal(m.Dtm) && existing.Hdr != m.Hdr {
			idx.logger.Debug("duplicate dtm in index", "dtm", m.Dtm, "hdr", m.Hdr)
			break
		}
	}

	mCopy := m
	idx.byHdr[m.Hdr] = &mCopy
	idx.order = append(idx.order, m.Hdr)
	return replaced
}

// AddDummyRecord seeds a header-less-payload record, registering that a
// device "exists" so that downstream discovery may run.
func (idx *Index) AddDummyRecord(src frame.Address, code frame.Code, verb frame.Verb) {
	hdr := frame.Header(string(code) + "|" + string(verb) + "|" + string(src))
	idx.Add(Message{
		Dtm:  idx.clock(),
		Verb: verb,
		Src:  src,
		Code: code,
		Hdr:  hdr,
	})
}

func (idx *Index) removeFromOrderLocked(hdr frame.Header) {
	for i, h := range idx.order {
		if h == hdr {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			return
		}
	}
}

// Remove atomically deletes every message matching sel and returns how many
// were deleted. To delete one specific Message, use RemoveMessage.
func (idx *Index) Remove(sel Selector) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n := 0
	for hdr, m := range idx.byHdr {
		if sel(*m) {
			delete(idx.byHdr, hdr)
			idx.removeFromOrderLocked(hdr)
			n++
		}
	}
	return n
}

// RemoveMessage deletes the entry with the same header as m, if present.
func (idx *Index) RemoveMessage(m Message) bool {
	return idx.Remove(ByHdr(m.Hdr)) > 0
}

// Get returns all currently-indexed messages matching sel. Since headers are
// unique, any Selector that pins Hdr returns at most one result.
func (idx *Index) Get(sel Selector) []Message {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Message
	for _, hdr := range idx.order {
		m := idx.byHdr[hdr]
		if m != nil && sel(*m) {
			out = append(out, *m)
		}
	}
	return out
}

// Contains reports whether any indexed message matches sel.
func (idx *Index) Contains(sel Selector) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, m := range idx.byHdr {
		if sel(*m) {
			return true
		}
	}
	return false
}

// QueryDtms returns the dtms of all messages matching sel, in insertion order.
func (idx *Index) QueryDtms(sel Selector) []time.Time {
	msgs := idx.Get(sel)
	out := make([]time.Time, len(msgs))
	for i, m := range msgs {
		out[i] = m.Dtm
	}
	return out
}

// GetReplyCodes returns the distinct codes seen with verb RP for the given
// address, whether it appears as src or dst.
func (idx *Index) GetReplyCodes(addr frame.Address) []frame.Code {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := map[frame.Code]bool{}
	for _, m := range idx.byHdr {
		if m.Verb != frame.VerbReply {
			continue
		}
		if m.Src == addr || m.Dst == addr {
			seen[m.Code] = true
		}
	}
	out := make([]frame.Code, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	return out
}

// All returns a snapshot of all indexed messages in insertion order. When
// includeExpired is false, messages that have outlived their code's lifespan
// are omitted (they stay indexed until the 24h housekeeping sweep).
func (idx *Index) All(includeExpired bool) []Message {
	if includeExpired {
		return idx.Get(func(Message) bool { return true })
	}
	now := idx.clock()
	return idx.Get(func(m Message) bool { return !m.Expired(now) })
}

// Clear removes every entry.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byHdr = make(map[frame.Header]*Message)
	idx.order = nil
}

// Stop halts the housekeeping goroutine. Safe to call once.
func (idx *Index) Stop() {
	idx.mu.Lock()
	if idx.stopped {
		idx.mu.Unlock()
		return
	}
	idx.stopped = true
	idx.mu.Unlock()
	close(idx.stopCh)
}

// Dump renders the index's internal state for debugging via go-spew.
func (idx *Index) Dump() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return spew.Sdump(idx.byHdr)
}

func (idx *Index) housekeepLoop() {
	ticker := time.NewTicker(housekeepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			idx.sweep()
		case <-idx.stopCh:
			return
		}
	}
}

// sweep removes entries older than the retention cutoff, within a single
// exclusive critical section, then rebuilds the order slice from the
// retained rows.
func (idx *Index) sweep() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cutoff := idx.clock().Add(-retention)
	retained := idx.order[:0:0]
	for _, hdr := range idx.order {
		m, ok := idx.byHdr[hdr]
		if !ok {
			continue
		}
		if m.Dtm.Before(cutoff) {
			delete(idx.byHdr, hdr)
			continue
		}
		retained = append(retained, hdr)
	}
	idx.order = retained
	idx.logger.Debug("index housekeeping complete", "retained", len(idx.order))
}
