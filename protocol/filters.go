package protocol

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

// Filter enforces an allow-list (known addresses) and block-list against
// inbound packets, and rate-limits the "foreign gateway" warning to once per
// device per day.
type Filter struct {
	mu sync.Mutex

	known   map[frame.Address]struct{}
	blocked map[frame.Address]struct{}
	enforce bool

	logger    *slog.Logger
	clock     func() time.Time
	lastWarn  map[frame.Address]time.Time
}

// NewFilter builds a Filter from a known-address set and a block set.
// enforceKnown requires both src and dst (broadcasts/placeholders exempt)
// to be in known for a packet to pass.
func NewFilter(known, blocked []frame.Address, enforceKnown bool, logger *slog.Logger) *Filter {
	f := &Filter{
		known:    make(map[frame.Address]struct{}, len(known)),
		blocked:  make(map[frame.Address]struct{}, len(blocked)),
		enforce:  enforceKnown,
		logger:   logger,
		clock:    time.Now,
		lastWarn: make(map[frame.Address]time.Time),
	}
	for _, a := range known {
		f.known[a] = struct{}{}
	}
	for _, a := range blocked {
		f.blocked[a] = struct{}{}
	}
	return f
}

// Allow reports whether pkt should be admitted, applying block-list,
// allow-list enforcement, and foreign-gateway warning logging.
func (f *Filter) Allow(pkt frame.Packet) bool {
	addrs, err := pkt.Frame.Addresses()
	if err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isBlocked(addrs.Sender) || f.isBlocked(addrs.Receiver) {
		return false
	}

	if f.enforce {
		if !f.isExempt(addrs.Sender) && !f.isKnown(addrs.Sender) {
			f.warnForeign(addrs.Sender)
			return false
		}
		if !f.isExempt(addrs.Receiver) && !f.isKnown(addrs.Receiver) {
			f.warnForeign(addrs.Receiver)
			return false
		}
		return true
	}

	// Even without enforcement, an unrecognized gateway on the air is worth
	// one warning a day.
	if !f.isKnown(addrs.Sender) && addrs.Sender != frame.AddrSentinel {
		f.warnForeign(addrs.Sender)
	}
	return true
}

func (f *Filter) isBlocked(a frame.Address) bool {
	_, ok := f.blocked[a]
	return ok
}

func (f *Filter) isKnown(a frame.Address) bool {
	_, ok := f.known[a]
	return ok
}

func (f *Filter) isExempt(a frame.Address) bool {
	return a == frame.AddrBroadcast || a == frame.AddrNonDev || a.IsPlaceholder()
}

// warnForeign logs, at most once per 24h per device, that an unrecognized
// HGI-class (18:*) device was seen.
func (f *Filter) warnForeign(a frame.Address) {
	if a.Class() != "18" {
		return
	}
	now := f.clock()
	if last, ok := f.lastWarn[a]; ok && now.Sub(last) < 24*time.Hour {
		return
	}
	f.lastWarn[a] = now
	if f.logger != nil {
		f.logger.Warn("foreign gateway seen, not in known_list", "device", a)
	}
}

// AddKnown registers an address as known at runtime (e.g. after discovery).
func (f *Filter) AddKnown(a frame.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[a] = struct{}{}
}
