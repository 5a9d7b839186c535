package device

import (
	"log/slog"
	"sync"

	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
)

// Factory is the arena owning every Device the gateway has seen: devices are
// created lazily, on first reference, and never destroyed for the life of
// the gateway.
type Factory struct {
	mu      sync.RWMutex
	idx     *index.Index
	logger  *slog.Logger
	devices map[frame.Address]*Device
	known   map[frame.Address]Traits
}

// NewFactory builds an empty Factory backed by idx (used for each Device's
// Messages view).
func NewFactory(idx *index.Index, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		idx:     idx,
		logger:  logger,
		devices: make(map[frame.Address]*Device),
	}
}

// SetKnownTraits records the declared traits (class, faked, alias) for
// addresses named in config's known_list, consulted by GetOrCreate whenever
// a device is created without explicit traits.
func (f *Factory) SetKnownTraits(known map[frame.Address]Traits) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known = known
}

// GetOrCreate returns the Device for addr, creating it (with traits, or the
// declared known_list traits if traits.Class is empty) on first reference.
func (f *Factory) GetOrCreate(addr frame.Address, traits Traits) *Device {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.devices[addr]; ok {
		return d
	}
	if traits.Class == "" {
		if kt, ok := f.known[addr]; ok {
			traits = kt
		}
	}
	d := newDevice(addr, traits, f.idx)
	f.devices[addr] = d
	f.logger.Debug("device created", "addr", addr, "kind", d.Kind)
	return d
}

// Get returns the Device for addr, if one has been created.
func (f *Factory) Get(addr frame.Address) (*Device, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.devices[addr]
	return d, ok
}

// All returns every known Device, in no particular order.
func (f *Factory) All() []*Device {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out
}
