package gateway

import "github.com/ramses-go/ramses-go/index"

// Schema returns the gateway's current topology view: one entry per system
// (zones with class/sensor/actuators, DHW wiring) plus the own schema of
// every other device, keyed by id.
func (gw *Gateway) Schema() map[string]any {
	out := make(map[string]any)
	for _, sys := range gw.Systems() {
		zones := make(map[string]any)
		for _, z := range sys.Zones() {
			zone := map[string]any{"class": z.Class.String()}
			if sensor, ok := z.Sensor(); ok {
				zone["sensor"] = string(sensor)
			}
			acts := z.Actuators()
			if len(acts) > 0 {
				zone["actuators"] = acts
			}
			zones[z.Idx] = zone
		}
		entry := map[string]any{"zones": zones}
		if sys.HasDhwZone() {
			dhw := map[string]any{}
			dz := sys.GetDhwZone()
			if sensor, ok := dz.Sensor(); ok {
				dhw["sensor"] = string(sensor)
			}
			if valve, ok := dz.HwValve(); ok {
				dhw["hotwater_valve"] = string(valve)
			}
			if valve, ok := dz.HeatingValve(); ok {
				dhw["heating_valve"] = string(valve)
			}
			entry["stored_hotwater"] = dhw
		}
		if relay, ok := sys.ApplianceController(); ok {
			entry["appliance_control"] = string(relay)
		}
		out[string(sys.ControllerID)] = entry
	}
	for _, d := range gw.Devices() {
		if _, taken := out[string(d.ID)]; !taken {
			out[string(d.ID)] = d.Schema()
		}
	}
	return out
}

// Params returns every device's configuration view, keyed by device id.
func (gw *Gateway) Params() map[string]any {
	out := make(map[string]any)
	for _, d := range gw.Devices() {
		if p := d.Params(); len(p) > 0 {
			out[string(d.ID)] = p
		}
	}
	return out
}

// Status returns every device's latest-readings view, keyed by device id.
func (gw *Gateway) Status() map[string]any {
	out := make(map[string]any)
	for _, d := range gw.Devices() {
		if s := d.Status(); len(s) > 0 {
			out[string(d.ID)] = s
		}
	}
	return out
}

// State is a point-in-time export of the gateway's indexed traffic, for a
// host to persist across restarts and feed back in via
// StartOptions.CachedPackets.
type State struct {
	Packets []index.Message
}

// GetState snapshots the message index. With includeExpired false, messages
// that have outlived their code's lifespan are left out (see
// index.Index.All); with true, every still-indexed message is included.
func (gw *Gateway) GetState(includeExpired bool) State {
	return State{Packets: gw.idx.All(includeExpired)}
}
