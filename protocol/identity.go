package protocol

import (
	"sync/atomic"

	"github.com/ramses-go/ramses-go/frame"
)

// Firmware names the serial gateway firmware driving identity-rewrite
// behaviour: HGI80 silently drops frames whose sender isn't the sentinel, so
// it must never be rewritten; evofw3 expects its own fingerprinted id.
type Firmware int

const (
	FirmwareUnknown Firmware = iota
	FirmwareHGI80
	FirmwareEvofw3
)

// Identity rewrites a command's sender address from the unconfigured
// sentinel (18:000730) to the gateway's own fingerprinted HGI id, but only
// for evofw3 firmware.
type Identity struct {
	firmware  atomic.Int32
	activeHGI atomic.Value // frame.Address
}

// NewIdentity builds an Identity with no active id yet (firmware unknown).
func NewIdentity() *Identity {
	id := &Identity{}
	id.activeHGI.Store(frame.AddrSentinel)
	return id
}

// SetFirmware records the detected firmware family (from serial fingerprinting).
func (id *Identity) SetFirmware(fw Firmware) { id.firmware.Store(int32(fw)) }

// Firmware returns the currently recorded firmware family.
func (id *Identity) Firmware() Firmware { return Firmware(id.firmware.Load()) }

// SetActiveHGI records the gateway's own address, once fingerprinting
// resolves it.
func (id *Identity) SetActiveHGI(a frame.Address) { id.activeHGI.Store(a) }

// ActiveHGI returns the currently known gateway address (the sentinel, until
// SetActiveHGI is called).
func (id *Identity) ActiveHGI() frame.Address {
	return id.activeHGI.Load().(frame.Address)
}

// RewriteSender implements protocol.IdentityRewriter: substitutes the
// sentinel sender for the active HGI id, but only on evofw3 firmware.
func (id *Identity) RewriteSender(f frame.Frame) frame.Frame {
	if Firmware(id.firmware.Load()) != FirmwareEvofw3 {
		return f
	}
	active := id.ActiveHGI()
	if active == frame.AddrSentinel {
		return f
	}
	out := f
	for i, a := range out.Addrs {
		if a == frame.AddrSentinel {
			out.Addrs[i] = active
		}
	}
	return out
}
