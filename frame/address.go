// Package frame implements bit-exact parsing, validation, and emission of
// RAMSES-II frames: the on-the-wire unit exchanged between a host and the
// 868 MHz RF network. See the wire grammar in the project specification.
package frame

import (
	"fmt"
	"log/slog"
	"regexp"
)

// Address is a RAMSES-II device address: a two-digit device-class prefix and
// a six-digit device number, e.g. "01:145038".
type Address string

// Reserved addresses.
const (
	AddrBroadcast Address = "--:------" // placeholder meaning "absent"
	AddrNonDev    Address = "63:262142" // universal-any
	AddrSentinel  Address = "18:000730" // unconfigured HGI sender
)

var addrPattern = regexp.MustCompile(`^\d{2}:\d{6}$`)

// IsPlaceholder reports whether a is the absent-address placeholder.
func (a Address) IsPlaceholder() bool {
	return a == AddrBroadcast
}

// IsNonDev reports whether a is the universal-any address.
func (a Address) IsNonDev() bool {
	return a == AddrNonDev
}

// Class returns the two-digit device-class prefix, e.g. "01".
func (a Address) Class() string {
	if len(a) < 2 {
		return ""
	}
	return string(a)[:2]
}

// Valid reports whether a is syntactically a real address or the placeholder.
func (a Address) Valid() bool {
	return a.IsPlaceholder() || addrPattern.MatchString(string(a))
}

// LogValue implements slog.LogValuer.
func (a Address) LogValue() slog.Value {
	return slog.StringValue(string(a))
}

// HexID returns a's packed 6-hex wire form: several payloads (000C device
// lists, 1FC9 binding offers) carry a device id as a 3-byte integer,
// class<<18 | number, rather than the "CC:NNNNNN" display form.
func (a Address) HexID() (string, error) {
	if !addrPattern.MatchString(string(a)) {
		return "", fmt.Errorf("address %q has no hex id form", a)
	}
	var class, num uint32
	if _, err := fmt.Sscanf(string(a), "%02d:%06d", &class, &num); err != nil {
		return "", err
	}
	return fmt.Sprintf("%06X", class<<18|num&0x3FFFF), nil
}

// AddressFromHexID converts a packed 6-hex device id back to its display
// form. The all-ones id (7FFFFF) means "no device" and returns the
// placeholder.
func AddressFromHexID(hexID string) (Address, error) {
	if len(hexID) != 6 {
		return "", fmt.Errorf("packed device id must be 6 hex chars, got %q", hexID)
	}
	var v uint32
	if _, err := fmt.Sscanf(hexID, "%06X", &v); err != nil {
		return "", fmt.Errorf("packed device id %q: %w", hexID, err)
	}
	if v == 0x7FFFFF {
		return AddrBroadcast, nil
	}
	return Address(fmt.Sprintf("%02d:%06d", v>>18, v&0x3FFFF)), nil
}

// AddressSet is the resolved (sender, receiver) pair derived from a frame's
// three address slots, plus whether the packet is a self-addressed
// announcement (sender == receiver == addr0 == addr2).
type AddressSet struct {
	Sender    Address
	Receiver  Address
	SelfAddr  bool // addr0 == addr2 (self-announce)
	Broadcast bool // receiver is the placeholder
}

// ErrInvalidAddressSet is returned by ParseAddresses when the triple does not
// contain exactly one or two real addresses.
type ErrInvalidAddressSet struct {
	Addrs [3]Address
	Msg   string
}

func (e *ErrInvalidAddressSet) Error() string {
	return fmt.Sprintf("invalid address set %v: %s", e.Addrs, e.Msg)
}

// ParseAddresses resolves the (sender, receiver) pair from a frame's three
// address slots:
//
//   - Exactly one or two of the three addresses must be present (non-placeholder).
//   - If two are present: (addr0, addr1), unless addr0 == addr2 (self-announce),
//     which yields (addr0, addr0).
func ParseAddresses(addrs [3]Address) (AddressSet, error) {
	present := 0
	var which [3]bool
	for i, a := range addrs {
		if !a.IsPlaceholder() {
			present++
			which[i] = true
		}
	}

	switch present {
	case 1:
		var sender Address
		for i, ok := range which {
			if ok {
				sender = addrs[i]
			}
		}
		return AddressSet{Sender: sender, Receiver: AddrBroadcast, Broadcast: true}, nil

	case 2:
		if addrs[0] == addrs[2] {
			return AddressSet{Sender: addrs[0], Receiver: addrs[0], SelfAddr: true}, nil
		}
		// The two present slots are conventionally addr0 and addr1, except
		// when addr0 is absent and addr1/addr2 carry the pair (RQ/RP/W with a
		// leading placeholder never legitimately occurs, but guard anyway).
		if which[0] && which[1] {
			return AddressSet{Sender: addrs[0], Receiver: addrs[1]}, nil
		}
		if which[0] && which[2] {
			return AddressSet{Sender: addrs[0], Receiver: addrs[2]}, nil
		}
		return AddressSet{Sender: addrs[1], Receiver: addrs[2]}, nil

	default:
		return AddressSet{}, &ErrInvalidAddressSet{
			Addrs: addrs,
			Msg:   fmt.Sprintf("expected 1 or 2 present addresses, got %d", present),
		}
	}
}
