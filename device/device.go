// Package device implements the device factory and model: tagged device
// kinds, parent/child topology, and the per-device message view used to
// build schema/params/status.
package device

import (
	"fmt"
	"sync"

	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
)

// Kind tags a device's role, replacing the source's class hierarchy/mix-in
// composition with a flat variant (see DESIGN NOTES on dynamic dispatch).
type Kind int

const (
	KindUnknown Kind = iota

	// heat domain
	KindCTL // controller
	KindTHM // thermostat
	KindTRV // radiator valve
	KindBDR // boiler relay
	KindOTB // opentherm bridge
	KindUFC // underfloor heating circuit controller
	KindDHW // DHW sensor
	KindOUT // outdoor sensor
	KindHGI // gateway

	// HVAC domain
	KindFAN
	KindCO2
	KindHUM
	KindPRE // presence sensor
	KindREM
	KindDIS
	KindRFG // RFS gateway
)

func (k Kind) String() string {
	switch k {
	case KindCTL:
		return "CTL"
	case KindTHM:
		return "THM"
	case KindTRV:
		return "TRV"
	case KindBDR:
		return "BDR"
	case KindOTB:
		return "OTB"
	case KindUFC:
		return "UFC"
	case KindDHW:
		return "DHW"
	case KindOUT:
		return "OUT"
	case KindHGI:
		return "HGI"
	case KindFAN:
		return "FAN"
	case KindCO2:
		return "CO2"
	case KindHUM:
		return "HUM"
	case KindPRE:
		return "PRE"
	case KindREM:
		return "REM"
	case KindDIS:
		return "DIS"
	case KindRFG:
		return "RFG"
	default:
		return "unknown"
	}
}

// IsHVAC reports whether k belongs to the HVAC (ventilation) domain rather
// than the heat (CH/DHW) domain.
func (k Kind) IsHVAC() bool {
	switch k {
	case KindFAN, KindCO2, KindHUM, KindPRE, KindREM, KindDIS, KindRFG:
		return true
	default:
		return false
	}
}

// kindFromName maps a known_list/schema-declared class name (e.g. "CTL",
// "TRV") to a Kind. Unrecognised names yield KindUnknown; the caller decides
// whether that's fatal.
func kindFromName(name string) Kind {
	switch name {
	case "CTL":
		return KindCTL
	case "THM", "STA":
		return KindTHM
	case "TRV":
		return KindTRV
	case "BDR":
		return KindBDR
	case "OTB":
		return KindOTB
	case "UFC":
		return KindUFC
	case "DHW":
		return KindDHW
	case "OUT":
		return KindOUT
	case "HGI":
		return KindHGI
	case "FAN":
		return KindFAN
	case "CO2":
		return KindCO2
	case "HUM":
		return KindHUM
	case "PRE":
		return KindPRE
	case "REM":
		return KindREM
	case "DIS":
		return KindDIS
	case "RFG":
		return KindRFG
	default:
		return KindUnknown
	}
}

// kindFromAddressClass guesses a Kind from the address's two-digit device
// class prefix, for devices seen on the wire but never declared in
// known_list/schema. This is a representative subset, not an exhaustive
// mapping of every class byte the real protocol uses - precise per-class-id
// semantics are mechanical lookup-table detail, the same kind of thing the
// per-code payload decoders are (out of scope per the project specification).
func kindFromAddressClass(class string) Kind {
	switch class {
	case "01":
		return KindCTL
	case "02":
		return KindUFC
	case "03", "12", "22", "34":
		return KindTHM
	case "04":
		return KindTRV
	case "07":
		return KindDHW
	case "10":
		return KindOTB
	case "13":
		return KindBDR
	case "18":
		return KindHGI
	case "20":
		return KindOUT
	case "30":
		return KindRFG
	case "32":
		return KindHUM
	case "37":
		return KindFAN
	case "39":
		return KindREM
	case "42":
		return KindDIS
	case "49":
		return KindCO2
	default:
		return KindUnknown
	}
}

// Traits are caller- or schema-supplied hints used at device creation: a
// declared class (overrides address-based inference), a faked flag (the
// host may emit packets impersonating this device), and a display alias.
type Traits struct {
	Class string
	Faked bool
	Alias string
}

// ParentRole names the relationship a SetParent call establishes, so the
// factory can validate it against the §3 data-model invariants (a zone's
// sensor is CTL/THM/TRV, its actuators are BDR/TRV/UFC, etc).
type ParentRole int

const (
	RoleSystem ParentRole = iota
	RoleZoneSensor
	RoleZoneActuator
	RoleDhwSensor
	RoleDhwValve
	RoleUfhCircuit
)

// SchemaError signals an attempt to violate a topology invariant: assigning
// two sensors to one zone, reassigning a device's parent/controller, or
// giving a role a device kind it's not permitted to hold.
type SchemaError struct{ Msg string }

func (e *SchemaError) Error() string { return e.Msg }

// Device is an identified physical or logical endpoint on the RF network.
// Cross-references to its parent/controller are non-owning (stored as
// ids): the gateway's device Factory is the sole owning arena (see DESIGN
// NOTES on flattening cyclic references).
type Device struct {
	mu sync.Mutex

	ID    frame.Address
	Kind  Kind
	Faked bool
	Alias string

	parentID     *frame.Address
	parentRole   ParentRole
	childID      string
	controllerID *frame.Address

	idx *index.Index

	params2411      map[string]index.Message
	supports2411    bool
	on2411Confirmed []func()
	on2411Param     []func(paramID string, m index.Message)

	boundRem map[frame.Address]struct{}
}

// newDevice constructs a Device for addr, deriving its Kind from traits.Class
// (if declared) or falling back to an address-class guess.
func newDevice(addr frame.Address, traits Traits, idx *index.Index) *Device {
	kind := kindFromName(traits.Class)
	if kind == KindUnknown {
		kind = kindFromAddressClass(addr.Class())
	}
	return &Device{
		ID:    addr,
		Kind:  kind,
		Faked: traits.Faked,
		Alias: traits.Alias,
		idx:   idx,
	}
}

// Messages returns this device's message view: every currently-indexed
// message it sent. Plain HGI devices (class 18:) return an empty view - a
// convenience carried from the source that is correct for ordinary gateways
// but fragile for a faked gateway mirroring another 18: device (see
// DESIGN.md's Open Questions).
func (d *Device) Messages() []index.Message {
	if d.Kind == KindHGI {
		return nil
	}
	return d.idx.Get(index.BySrc(d.ID))
}

// Parent returns the device's parent id, if one has been set.
func (d *Device) Parent() (frame.Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.parentID == nil {
		return "", false
	}
	return *d.parentID, true
}

// ParentRole returns the role under which the parent was assigned.
func (d *Device) ParentRole() ParentRole {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parentRole
}

// ChildID returns the zone index or domain id this device was assigned
// under, if any.
func (d *Device) ChildID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.childID
}

// Controller returns the device's controlling TCS id, if one has been set.
func (d *Device) Controller() (frame.Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.controllerID == nil {
		return "", false
	}
	return *d.controllerID, true
}

// validateRole enforces which device Kinds may hold a given ParentRole,
// per the §3 invariants: a zone's sensor is one of Controller/Thermostat/
// TRV, its actuators are from {BDR, TRV, UFH-circuit}; DHW sensor class is
// constrained; DHW valves must be BDR.
func validateRole(kind Kind, role ParentRole) error {
	switch role {
	case RoleZoneSensor:
		if kind != KindCTL && kind != KindTHM && kind != KindTRV {
			return &SchemaError{Msg: fmt.Sprintf("zone sensor must be CTL, THM or TRV, got %s", kind)}
		}
	case RoleZoneActuator:
		if kind != KindBDR && kind != KindTRV && kind != KindUFC {
			return &SchemaError{Msg: fmt.Sprintf("zone actuator must be BDR, TRV or UFC, got %s", kind)}
		}
	case RoleDhwSensor:
		if kind != KindDHW {
			return &SchemaError{Msg: fmt.Sprintf("dhw sensor must be class DHW, got %s", kind)}
		}
	case RoleDhwValve:
		if kind != KindBDR {
			return &SchemaError{Msg: fmt.Sprintf("dhw valve must be BDR, got %s", kind)}
		}
	case RoleUfhCircuit:
		if kind != KindUFC {
			return &SchemaError{Msg: fmt.Sprintf("ufh circuit must be UFC, got %s", kind)}
		}
	case RoleSystem:
		// no kind constraint: any device may be a plain system member.
	}
	return nil
}

// SetParent assigns d's parent under role with the given child id (a zone
// idx, DHW/UFH domain id, or "" for a plain system membership). A device
// refuses to change its parent once set: a conflicting re-assignment is a
// SchemaError. Re-asserting the same (parent, role, childID) is a no-op.
func (d *Device) SetParent(parent *Device, role ParentRole, childID string) error {
	if err := validateRole(d.Kind, role); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.parentID != nil {
		if *d.parentID == parent.ID && d.parentRole == role && d.childID == childID {
			return nil
		}
		return &SchemaError{Msg: fmt.Sprintf(
			"device %s already has parent %s (role %v, child %q); refusing to reassign to %s (role %v, child %q)",
			d.ID, *d.parentID, d.parentRole, d.childID, parent.ID, role, childID)}
	}

	id := parent.ID
	d.parentID = &id
	d.parentRole = role
	d.childID = childID
	return nil
}

// SetController assigns d's controlling TCS. Only a CTL device may be
// passed. A device refuses to change its controller once set.
func (d *Device) SetController(ctl *Device) error {
	if ctl.Kind != KindCTL {
		return &SchemaError{Msg: fmt.Sprintf("controller reference must be a CTL device, got %s", ctl.Kind)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.controllerID != nil {
		if *d.controllerID == ctl.ID {
			return nil
		}
		return &SchemaError{Msg: fmt.Sprintf("device %s already has controller %s, refusing to reassign to %s", d.ID, *d.controllerID, ctl.ID)}
	}
	id := ctl.ID
	d.controllerID = &id
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("%s[%s]", d.ID, d.Kind)
}

// Traits returns the device's creation-time traits.
func (d *Device) Traits() Traits {
	return Traits{Class: d.Kind.String(), Faked: d.Faked, Alias: d.Alias}
}

// Schema returns the device's static topology as a mapping: its class and
// its parent/controller wiring.
func (d *Device) Schema() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := map[string]any{"class": d.Kind.String()}
	if d.Faked {
		out["faked"] = true
	}
	if d.Alias != "" {
		out["alias"] = d.Alias
	}
	if d.parentID != nil {
		out["parent"] = string(*d.parentID)
		if d.childID != "" {
			out["child_id"] = d.childID
		}
	}
	if d.controllerID != nil {
		out["controller"] = string(*d.controllerID)
	}
	return out
}

// paramCodes are the message codes that carry device configuration rather
// than live readings.
var paramCodes = map[frame.Code]bool{"10A0": true, "1100": true, "0005": true}

// Params returns the device's configuration as known from parameter packets,
// built lazily from its message view (plus the 2411 fan-parameter cache).
func (d *Device) Params() map[string]any {
	out := make(map[string]any)
	for _, m := range d.Messages() {
		if paramCodes[m.Code] && m.Payload.Flat != nil {
			out[string(m.Code)] = m.Payload.Flat
		}
	}
	d.mu.Lock()
	for key, m := range d.params2411 {
		if m.Payload.Flat != nil {
			out[key] = m.Payload.Flat
		}
	}
	d.mu.Unlock()
	return out
}

// Status returns the device's latest readings, one entry per non-parameter
// code seen from it, built lazily from its message view.
func (d *Device) Status() map[string]any {
	out := make(map[string]any)
	for _, m := range d.Messages() {
		if paramCodes[m.Code] || m.Code == "2411" || m.Payload.Flat == nil {
			continue
		}
		out[string(m.Code)] = m.Payload.Flat
	}
	return out
}
