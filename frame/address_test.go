package frame

import "testing"

func TestAddressHexIDRoundTrip(t *testing.T) {
	cases := []struct {
		addr  Address
		hexID string
	}{
		{"01:145038", "06368E"},
		{"13:050123", "34C3CB"},
		{"04:056057", "10DAF9"},
	}
	for _, c := range cases {
		got, err := c.addr.HexID()
		if err != nil {
			t.Fatalf("HexID(%s): %v", c.addr, err)
		}
		if got != c.hexID {
			t.Errorf("HexID(%s) = %s, want %s", c.addr, got, c.hexID)
		}
		back, err := AddressFromHexID(got)
		if err != nil {
			t.Fatalf("AddressFromHexID(%s): %v", got, err)
		}
		if back != c.addr {
			t.Errorf("AddressFromHexID(%s) = %s, want %s", got, back, c.addr)
		}
	}
}

func TestAddressFromHexIDNoDevice(t *testing.T) {
	addr, err := AddressFromHexID("7FFFFF")
	if err != nil {
		t.Fatal(err)
	}
	if !addr.IsPlaceholder() {
		t.Errorf("expected 7FFFFF to decode to the placeholder, got %s", addr)
	}
}

func TestPlaceholderHasNoHexID(t *testing.T) {
	if _, err := AddrBroadcast.HexID(); err == nil {
		t.Error("expected the placeholder to have no hex id form")
	}
}
