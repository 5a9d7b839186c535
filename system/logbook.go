package system

import (
	"sync"
	"time"
)

// FaultEvent is one entry of a 0418 fault-log message.
type FaultEvent struct {
	Dtm       time.Time
	LogIdx    string
	EntryType string
	FaultType string
}

// entryIsFault reports whether entryType denotes a fault being raised
// rather than a restore; best-effort per the fault-log entry-type
// convention, since the byte's full meaning is device-class dependent
// (see payload.decode0418).
func entryIsFault(entryType string) bool {
	return entryType != "" && entryType != "C0"
}

// Logbook tracks the most recent fault-log entry pair (latest, previous),
// used to derive whether a fault is currently active.
type Logbook struct {
	mu       sync.RWMutex
	latest   *FaultEvent
	previous *FaultEvent
}

// Record adds e as the new latest event, demoting the prior latest to
// previous. Out-of-order (older) events are ignored.
func (l *Logbook) Record(e FaultEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.latest != nil && e.Dtm.Before(l.latest.Dtm) {
		return
	}
	l.previous = l.latest
	ev := e
	l.latest = &ev
}

// Latest returns the most recent fault-log entry, if any.
func (l *Logbook) Latest() (FaultEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.latest == nil {
		return FaultEvent{}, false
	}
	return *l.latest, true
}

// ActiveFault reports whether the latest logged event is a fault (as
// opposed to a restore), i.e. whether a fault is presently active.
func (l *Logbook) ActiveFault() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest != nil && entryIsFault(l.latest.EntryType)
}
