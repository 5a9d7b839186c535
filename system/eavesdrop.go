package system

import (
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
)

// InferApplianceRelay is an off-by-default, best-effort heuristic: among
// messages carrying appliance-control-relay traffic (3220 OpenTherm, 3EF0
// actuator state, 3B00 actuator sync), it returns the device address most
// often seen as their source, on the assumption a schema-less system's
// appliance relay is the dominant sender of that traffic.
func InferApplianceRelay(msgs []index.Message) (frame.Address, bool) {
	counts := make(map[frame.Address]int)
	for _, m := range msgs {
		switch m.Code {
		case "3220", "3EF0", "3B00":
			counts[m.Src]++
		}
	}
	var best frame.Address
	bestCount := 0
	for addr, n := range counts {
		if n > bestCount {
			best, bestCount = addr, n
		}
	}
	return best, bestCount > 0
}

// InferZoneSensor matches a zone's last-reported 30C9 temperature against a
// set of candidate sensor readings gathered in the same sync cycle, picking
// whichever candidate's temperature is closest to the zone's, within
// tolerance. Off by default; only meaningful when a zone has no sensor
// assigned via schema/000C.
func InferZoneSensor(zoneTemp float64, candidates map[frame.Address]float64, tolerance float64) (frame.Address, bool) {
	var best frame.Address
	bestDiff := tolerance
	found := false
	for addr, temp := range candidates {
		diff := temp - zoneTemp
		if diff < 0 {
			diff = -diff
		}
		if diff <= bestDiff {
			bestDiff = diff
			best = addr
			found = true
		}
	}
	return best, found
}
