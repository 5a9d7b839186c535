package protocol

import (
	"testing"

	"github.com/ramses-go/ramses-go/frame"
)

func TestIdentityRewritesOnlyForEvofw3(t *testing.T) {
	id := NewIdentity()
	id.SetActiveHGI("18:123456")

	f := mustFrame(t, "RQ --- 18:000730 01:145038 --:------ 1F09 001 00")

	// HGI80: never rewritten.
	id.SetFirmware(FirmwareHGI80)
	got := id.RewriteSender(f)
	if got.Addrs[0] != frame.AddrSentinel {
		t.Errorf("HGI80 frame was rewritten: %+v", got.Addrs)
	}

	// evofw3: sentinel substituted.
	id.SetFirmware(FirmwareEvofw3)
	got = id.RewriteSender(f)
	if got.Addrs[0] != "18:123456" {
		t.Errorf("evofw3 frame was not rewritten, got %+v", got.Addrs)
	}

	// Original frame is untouched (value semantics).
	if f.Addrs[0] != frame.AddrSentinel {
		t.Errorf("input frame mutated: %+v", f.Addrs)
	}
}

func TestIdentityNoRewriteBeforeFingerprint(t *testing.T) {
	id := NewIdentity()
	id.SetFirmware(FirmwareEvofw3)

	f := mustFrame(t, "RQ --- 18:000730 01:145038 --:------ 1F09 001 00")
	got := id.RewriteSender(f)
	if got.Addrs[0] != frame.AddrSentinel {
		t.Errorf("expected no rewrite before SetActiveHGI, got %+v", got.Addrs)
	}
}
