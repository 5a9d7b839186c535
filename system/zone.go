// Package system implements the TCS (controller) aggregate: heating zones,
// the DHW zone, the fault logbook, and optional eavesdropped topology
// inference.
package system

import (
	"sync"

	"github.com/ramses-go/ramses-go/frame"
)

// ZoneClass names a heating zone's actuator technology.
type ZoneClass int

const (
	ZoneUnknown ZoneClass = iota
	ZoneRadiator
	ZoneUnderfloor
	ZoneMixing
	ZoneValve
	ZoneElectric
)

func (c ZoneClass) String() string {
	switch c {
	case ZoneRadiator:
		return "radiator"
	case ZoneUnderfloor:
		return "underfloor"
	case ZoneMixing:
		return "mixing"
	case ZoneValve:
		return "zone-valve"
	case ZoneElectric:
		return "electric"
	default:
		return "unknown"
	}
}

// ZoneClassFromName maps the payload decoder's zone-type string (see
// payload.zoneClassName) to a ZoneClass.
func ZoneClassFromName(name string) ZoneClass {
	switch name {
	case "radiator":
		return ZoneRadiator
	case "underfloor":
		return ZoneUnderfloor
	case "mixing":
		return ZoneMixing
	case "zone-valve":
		return ZoneValve
	case "electric":
		return ZoneElectric
	default:
		return ZoneUnknown
	}
}

// Zone is one heating zone of a TCS: a sensor, zero or more actuators, and
// the most recently observed setpoint/temperature.
type Zone struct {
	mu sync.RWMutex

	Idx   string
	Class ZoneClass

	sensorID  frame.Address
	hasSensor bool
	actuators map[frame.Address]struct{}

	setpoint      float64
	setpointValid bool
	temperature   float64
	tempValid     bool
}

func newZone(idx string) *Zone {
	return &Zone{Idx: idx, actuators: make(map[frame.Address]struct{})}
}

// SetClass records the zone's actuator technology, once known (e.g. from a
// 0005/000C message).
func (z *Zone) SetClass(c ZoneClass) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.Class = c
}

// SetSensor assigns the zone's temperature sensor. A zone accepts only one
// sensor for its lifetime; a conflicting reassignment is a no-op that
// leaves the original sensor in place (the caller, device.SetParent, is
// the authority for rejecting the assignment outright).
func (z *Zone) SetSensor(addr frame.Address) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.hasSensor {
		return
	}
	z.sensorID = addr
	z.hasSensor = true
}

// Sensor returns the zone's sensor address, if assigned.
func (z *Zone) Sensor() (frame.Address, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.sensorID, z.hasSensor
}

// AddActuator records addr as one of the zone's actuators (BDR/TRV/UFC).
func (z *Zone) AddActuator(addr frame.Address) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.actuators[addr] = struct{}{}
}

// Actuators returns every actuator address recorded for this zone.
func (z *Zone) Actuators() []frame.Address {
	z.mu.RLock()
	defer z.mu.RUnlock()
	out := make([]frame.Address, 0, len(z.actuators))
	for a := range z.actuators {
		out = append(out, a)
	}
	return out
}

// ApplySetpoint records a 2309 setpoint observation.
func (z *Zone) ApplySetpoint(setpoint float64, valid bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.setpoint, z.setpointValid = setpoint, valid
}

// Setpoint returns the most recently observed setpoint.
func (z *Zone) Setpoint() (float64, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.setpoint, z.setpointValid
}

// ApplyTemperature records a 30C9 temperature observation.
func (z *Zone) ApplyTemperature(temp float64, valid bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.temperature, z.tempValid = temp, valid
}

// Temperature returns the most recently observed measured temperature.
func (z *Zone) Temperature() (float64, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.temperature, z.tempValid
}

// DhwZone is the TCS's singleton stored-hot-water zone.
type DhwZone struct {
	mu sync.RWMutex

	sensorID       frame.Address
	hasSensor      bool
	hwValveID      frame.Address
	hasHwValve     bool
	heatingValveID frame.Address
	hasHeatingValve bool

	setpoint      float64
	setpointValid bool
	overrunMins   int
	differential  float64

	active bool
	mode   string
}

func newDhwZone() *DhwZone { return &DhwZone{} }

// SetSensor assigns the DHW sensor, once.
func (z *DhwZone) SetSensor(addr frame.Address) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.hasSensor {
		return
	}
	z.sensorID, z.hasSensor = addr, true
}

func (z *DhwZone) Sensor() (frame.Address, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.sensorID, z.hasSensor
}

// SetHwValve assigns the DHW (hot-water) valve, once.
func (z *DhwZone) SetHwValve(addr frame.Address) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.hasHwValve {
		return
	}
	z.hwValveID, z.hasHwValve = addr, true
}

func (z *DhwZone) HwValve() (frame.Address, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.hwValveID, z.hasHwValve
}

// SetHeatingValve assigns the DHW's optional heating (space-heating-bypass)
// valve, once.
func (z *DhwZone) SetHeatingValve(addr frame.Address) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.hasHeatingValve {
		return
	}
	z.heatingValveID, z.hasHeatingValve = addr, true
}

func (z *DhwZone) HeatingValve() (frame.Address, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.heatingValveID, z.hasHeatingValve
}

// SetSettings records a 10A0 observation.
func (z *DhwZone) SetSettings(setpoint float64, valid bool, overrunMins int, differential float64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.setpoint, z.setpointValid = setpoint, valid
	z.overrunMins = overrunMins
	z.differential = differential
}

// Settings returns the most recently observed DHW settings.
func (z *DhwZone) Settings() (setpoint float64, valid bool, overrunMins int, differential float64) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.setpoint, z.setpointValid, z.overrunMins, z.differential
}

// SetMode records a 1F41 observation.
func (z *DhwZone) SetMode(active bool, mode string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.active, z.mode = active, mode
}

// Mode returns the most recently observed DHW active flag and mode name.
func (z *DhwZone) Mode() (active bool, mode string) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.active, z.mode
}
