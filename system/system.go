package system

import (
	"sync"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

// System is a TCS: the controller device plus its aggregated heating zones,
// optional DHW zone, optional UFH controller list, and schedule/mode/
// language/fault-log state. Zones and the DHW zone are owned here (the
// gateway's arena owns Systems; cross-references to member Devices are ids,
// see DESIGN NOTES on flattening cyclic references).
type System struct {
	mu sync.RWMutex

	ControllerID frame.Address
	Logbook      *Logbook

	zones            map[string]*Zone
	dhw              *DhwZone
	ufhControllers   map[frame.Address]struct{}
	applianceCtrlID  frame.Address
	hasApplianceCtrl bool

	scheduleCounter  uint32
	scheduleOutdated map[string]bool

	mode      string
	modeUntil time.Time

	syncRemaining float64 // seconds to the next sync-cycle broadcast
	syncSeenAt    time.Time

	language string
	datetime time.Time

	eavesdrop bool
}

// New creates a System for ctl. eavesdrop enables optional inference of the
// appliance-control relay from observed traffic when schema information is
// absent; zone sensors are not inferred by the gateway.
func New(ctl frame.Address, eavesdrop bool) *System {
	return &System{
		ControllerID:     ctl,
		Logbook:          &Logbook{},
		zones:            make(map[string]*Zone),
		ufhControllers:   make(map[frame.Address]struct{}),
		scheduleOutdated: make(map[string]bool),
		eavesdrop:         eavesdrop,
	}
}

// Eavesdrop reports whether schema-less topology inference is enabled for
// this system.
func (s *System) Eavesdrop() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eavesdrop
}

// GetHtgZone returns the zone at idx, creating it if this is the first
// reference (idempotent, mirroring device.Factory.GetOrCreate).
func (s *System) GetHtgZone(idx string) *Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok := s.zones[idx]; ok {
		return z
	}
	z := newZone(idx)
	s.zones[idx] = z
	return z
}

// Zones returns every heating zone known to this system.
func (s *System) Zones() []*Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	return out
}

// GetDhwZone returns the system's singleton DHW zone, creating it on first
// reference.
func (s *System) GetDhwZone() *DhwZone {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dhw == nil {
		s.dhw = newDhwZone()
	}
	return s.dhw
}

// HasDhwZone reports whether a DHW zone has been created yet.
func (s *System) HasDhwZone() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dhw != nil
}

// AddUfhController records addr as one of this system's UFH circuit
// controllers.
func (s *System) AddUfhController(addr frame.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ufhControllers[addr] = struct{}{}
}

// UfhControllers returns every recorded UFH controller address.
func (s *System) UfhControllers() []frame.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]frame.Address, 0, len(s.ufhControllers))
	for a := range s.ufhControllers {
		out = append(out, a)
	}
	return out
}

// SetApplianceController records the inferred (or schema-declared)
// appliance control relay.
func (s *System) SetApplianceController(addr frame.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applianceCtrlID, s.hasApplianceCtrl = addr, true
}

// ApplianceController returns the recorded appliance control relay, if any.
func (s *System) ApplianceController() (frame.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applianceCtrlID, s.hasApplianceCtrl
}

// UpdateScheduleCounter records a 0006 schedule-change counter; when it
// differs from the last-seen value, every zone's schedule is marked
// outdated (the counter doesn't say which zone changed).
func (s *System) UpdateScheduleCounter(counter uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if counter == s.scheduleCounter {
		return
	}
	s.scheduleCounter = counter
	for idx := range s.zones {
		s.scheduleOutdated[idx] = true
	}
	s.scheduleOutdated["HW"] = true
}

// ScheduleOutdated reports whether idx's cached schedule is stale relative
// to the last-seen change counter.
func (s *System) ScheduleOutdated(idx string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scheduleOutdated[idx]
}

// MarkScheduleSynced clears the outdated flag for idx, once its schedule
// has been re-fetched.
func (s *System) MarkScheduleSynced(idx string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduleOutdated, idx)
}

// SetSyncRemaining records a 1F09 observation: the seconds remaining until
// this controller's next sync-cycle broadcast, as of seenAt.
func (s *System) SetSyncRemaining(seconds float64, seenAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncRemaining, s.syncSeenAt = seconds, seenAt
}

// RemainingSeconds returns the last-reported seconds-to-next-sync-cycle and
// when it was observed.
func (s *System) RemainingSeconds() (seconds float64, seenAt time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncRemaining, s.syncSeenAt
}

// SetMode records a 2E04 system-mode observation.
func (s *System) SetMode(mode string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode, s.modeUntil = mode, until
}

// Mode returns the most recently observed system mode and its "until" time
// (zero if permanent).
func (s *System) Mode() (mode string, until time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, s.modeUntil
}

// SetLanguage records the controller's configured display language.
func (s *System) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// Language returns the controller's configured display language.
func (s *System) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// SetDatetime records the controller's last-broadcast date/time.
func (s *System) SetDatetime(dt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datetime = dt
}

// Datetime returns the controller's last-broadcast date/time.
func (s *System) Datetime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.datetime
}
