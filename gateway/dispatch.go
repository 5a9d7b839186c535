package gateway

import (
	"strconv"
	"time"

	"github.com/ramses-go/ramses-go/device"
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
	"github.com/ramses-go/ramses-go/payload"
	"github.com/ramses-go/ramses-go/system"
)

// onPacket is the Transport receive callback: filter, decode, fan out to
// subscribers, feed the FSM, index, then route to device/system state.
func (gw *Gateway) onPacket(pkt frame.Packet) {
	if !gw.filter.Allow(pkt) {
		return
	}

	msg, err := index.NewMessage(pkt, gw.registry)
	if err != nil {
		gw.logger.Debug("dropping unparseable packet", "err", err, "line", pkt.Frame.Format())
		return
	}

	for _, s := range gw.snapshotHandlers() {
		if s.filter != nil && !s.filter(msg) {
			continue
		}
		s.handler(msg)
	}

	gw.fsm.PacketReceived(pkt)
	gw.idx.Add(msg)
	gw.dispatchToDevices(msg)
}

// dispatchToDevices routes msg to its sender's Device, and on to system
// state when the sender is a controller. Both endpoints of a non-filtered
// packet become Devices on first sight.
func (gw *Gateway) dispatchToDevices(msg index.Message) {
	d := gw.factory.GetOrCreate(msg.Src, device.Traits{})
	if !msg.Dst.IsPlaceholder() && !msg.Dst.IsNonDev() && msg.Dst != msg.Src {
		gw.factory.GetOrCreate(msg.Dst, device.Traits{})
	}

	if msg.Code == "2411" {
		d.Handle2411(msg)
		return
	}

	if d.Kind == device.KindCTL {
		gw.handleSystemMessage(d, msg)
	}
}

// handleSystemMessage folds a controller-sourced Message into that
// controller's System, creating the System on first reference.
func (gw *Gateway) handleSystemMessage(d *device.Device, msg index.Message) {
	gw.mu.Lock()
	sys, ok := gw.systems[d.ID]
	if !ok {
		sys = system.New(d.ID, gw.cfg.EnableEavesdrop)
		gw.systems[d.ID] = sys
	}
	gw.mu.Unlock()

	switch msg.Code {
	case "1F09":
		if secs, ok := msg.Payload.Flat["remaining_seconds"].(float64); ok {
			sys.SetSyncRemaining(secs, msg.Dtm)
		}
	case "000C":
		gw.applyZoneDevices(sys, msg)
	case "0005":
		gw.applyZoneTypes(sys, msg)
	case "2309":
		gw.applyZoneSetpoints(sys, msg)
	case "30C9":
		gw.applyZoneTemperatures(sys, msg)
	case "0006":
		if counter, ok := msg.Payload.Flat["change_counter"].(uint32); ok {
			sys.UpdateScheduleCounter(counter)
		}
	case "2E04":
		if mode, ok := msg.Payload.Flat["mode"].(string); ok {
			until, _ := msg.Payload.Flat["until"].(time.Time)
			sys.SetMode(mode, until)
		}
	case "0418":
		gw.applyFaultLog(sys, msg)
	case "1F41":
		gw.applyDhwMode(sys, msg)
	case "10A0":
		gw.applyDhwSettings(sys, msg)
	}

	if sys.Eavesdrop() {
		gw.eavesdropSystem(sys, d.ID, msg)
	}
}

// zoneEntries normalizes a decoded Value into a slice of flat maps,
// regardless of whether the decoder returned a single zone's flat mapping
// or an array of them (2309/30C9 collapse to flat when only one zone is
// present).
func zoneEntries(v payload.Value) []map[string]any {
	switch v.Kind {
	case payload.KindFlat:
		return []map[string]any{v.Flat}
	case payload.KindArray:
		return v.Array
	default:
		return nil
	}
}

// zoneIdxInRange reports whether the 2-hex zone index parses and falls below
// the configured max_zones bound (FA/FC/FF-style domain ids never do, which
// keeps system-wide 000C lists out of the zone map).
func (gw *Gateway) zoneIdxInRange(idxHex string) bool {
	n, err := strconv.ParseInt(idxHex, 16, 32)
	return err == nil && int(n) < gw.cfg.MaxZones
}

func (gw *Gateway) applyZoneDevices(sys *system.System, msg index.Message) {
	zoneIdx, _ := msg.Payload.Flat["zone_idx"].(string)
	if zoneIdx == "" || !gw.zoneIdxInRange(zoneIdx) {
		return
	}
	z := sys.GetHtgZone(zoneIdx)

	entries, _ := msg.Payload.Flat["devices"].([]map[string]any)
	for _, e := range entries {
		id, _ := e["device_id"].(string)
		if id == "" {
			continue
		}
		addr := frame.Address(id)
		childDev := gw.factory.GetOrCreate(addr, device.Traits{})
		_ = childDev.SetController(gw.mustDevice(sys.ControllerID))

		switch childDev.Kind {
		case device.KindCTL, device.KindTHM, device.KindTRV:
			if _, has := z.Sensor(); !has {
				z.SetSensor(addr)
			}
		default:
			z.AddActuator(addr)
		}
	}
}

func (gw *Gateway) mustDevice(addr frame.Address) *device.Device {
	return gw.factory.GetOrCreate(addr, device.Traits{Class: "CTL"})
}

func (gw *Gateway) applyZoneTypes(sys *system.System, msg index.Message) {
	className, _ := msg.Payload.Flat["zone_type"].(string)
	zones, _ := msg.Payload.Flat["zones"].([]int)
	for _, idx := range zones {
		if idx >= gw.cfg.MaxZones {
			continue
		}
		z := sys.GetHtgZone(zoneIdxHex(idx))
		z.SetClass(system.ZoneClassFromName(className))
	}
}

func zoneIdxHex(idx int) string {
	const hexDigits = "0123456789ABCDEF"
	hi := (idx >> 4) & 0xF
	lo := idx & 0xF
	return string([]byte{hexDigits[hi], hexDigits[lo]})
}

func (gw *Gateway) applyZoneSetpoints(sys *system.System, msg index.Message) {
	for _, e := range zoneEntries(msg.Payload) {
		zoneIdx, _ := e["zone_idx"].(string)
		setpoint, hasSp := e["setpoint"].(float64)
		valid, _ := e["setpoint_valid"].(bool)
		if zoneIdx == "" || !hasSp || !gw.zoneIdxInRange(zoneIdx) {
			continue
		}
		sys.GetHtgZone(zoneIdx).ApplySetpoint(setpoint, valid)
	}
}

func (gw *Gateway) applyZoneTemperatures(sys *system.System, msg index.Message) {
	for _, e := range zoneEntries(msg.Payload) {
		zoneIdx, _ := e["zone_idx"].(string)
		temp, hasTemp := e["temperature"].(float64)
		valid, _ := e["temperature_valid"].(bool)
		if zoneIdx == "" || !hasTemp || !gw.zoneIdxInRange(zoneIdx) {
			continue
		}
		sys.GetHtgZone(zoneIdx).ApplyTemperature(temp, valid)
	}
}

func (gw *Gateway) applyFaultLog(sys *system.System, msg index.Message) {
	logIdx, _ := msg.Payload.Flat["log_idx"].(string)
	entryType, _ := msg.Payload.Flat["entry_type"].(string)
	faultType, _ := msg.Payload.Flat["fault_type"].(string)
	sys.Logbook.Record(system.FaultEvent{
		Dtm:       msg.Dtm,
		LogIdx:    logIdx,
		EntryType: entryType,
		FaultType: faultType,
	})
}

func (gw *Gateway) applyDhwMode(sys *system.System, msg index.Message) {
	active, _ := msg.Payload.Flat["active"].(bool)
	mode, _ := msg.Payload.Flat["mode"].(string)
	sys.GetDhwZone().SetMode(active, mode)
}

func (gw *Gateway) applyDhwSettings(sys *system.System, msg index.Message) {
	setpoint, hasSp := msg.Payload.Flat["setpoint"].(float64)
	valid, _ := msg.Payload.Flat["setpoint_valid"].(bool)
	overrun, _ := msg.Payload.Flat["overrun_minutes"].(int)
	differential, _ := msg.Payload.Flat["differential"].(float64)
	if !hasSp {
		return
	}
	sys.GetDhwZone().SetSettings(setpoint, valid, overrun, differential)
}

// eavesdropSystem infers this system's appliance-control relay from
// 3220/3EF0/3B00 traffic, when enable_eavesdrop is set and no relay is
// recorded yet. Zone sensors are not inferred here.
func (gw *Gateway) eavesdropSystem(sys *system.System, ctl frame.Address, msg index.Message) {
	if msg.Code != "3220" && msg.Code != "3EF0" && msg.Code != "3B00" {
		return
	}
	if _, ok := sys.ApplianceController(); ok {
		return
	}
	msgs := gw.idx.Get(index.ByDst(ctl))
	if addr, ok := system.InferApplianceRelay(msgs); ok {
		sys.SetApplianceController(addr)
	}
}
