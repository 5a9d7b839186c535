package gateway

import (
	"fmt"

	"github.com/ramses-go/ramses-go/config"
	"github.com/ramses-go/ramses-go/device"
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/system"
)

// mergeSchema folds the declarative topology from cfg.Schema into the
// device/system arena: controllers are promoted to Systems, zones get their
// class/sensor/actuators, the DHW zone its sensor and valves. Conflicting
// declarations (two sensors for one zone, a device re-parented) surface as a
// SchemaError here, before the transport ever starts.
func (gw *Gateway) mergeSchema(schema map[frame.Address]config.SystemSchema) error {
	for ctlID, sysSchema := range schema {
		ctl := gw.factory.GetOrCreate(ctlID, device.Traits{Class: "CTL"})
		if ctl.Kind != device.KindCTL {
			return &device.SchemaError{Msg: fmt.Sprintf("schema: %s is not a controller", ctlID)}
		}

		gw.mu.Lock()
		sys, ok := gw.systems[ctlID]
		if !ok {
			sys = system.New(ctlID, gw.cfg.EnableEavesdrop)
			gw.systems[ctlID] = sys
		}
		gw.mu.Unlock()

		for idx, zs := range sysSchema.Zones {
			if !gw.zoneIdxInRange(idx) {
				return &device.SchemaError{Msg: fmt.Sprintf("schema: zone index %q out of range (max_zones=%d)", idx, gw.cfg.MaxZones)}
			}
			z := sys.GetHtgZone(idx)
			if zs.Class != "" {
				z.SetClass(system.ZoneClassFromName(zs.Class))
			}
			if zs.Sensor != "" {
				if err := gw.attachMember(ctl, zs.Sensor, device.RoleZoneSensor, idx); err != nil {
					return err
				}
				z.SetSensor(zs.Sensor)
			}
			for _, act := range zs.Actuators {
				if err := gw.attachMember(ctl, act, device.RoleZoneActuator, idx); err != nil {
					return err
				}
				z.AddActuator(act)
			}
		}

		if dhw := sysSchema.StoredHotwater; dhw != nil {
			dz := sys.GetDhwZone()
			if dhw.Sensor != "" {
				if err := gw.attachMember(ctl, dhw.Sensor, device.RoleDhwSensor, "HW"); err != nil {
					return err
				}
				dz.SetSensor(dhw.Sensor)
			}
			if dhw.HotwaterValve != "" {
				if err := gw.attachMember(ctl, dhw.HotwaterValve, device.RoleDhwValve, "HW"); err != nil {
					return err
				}
				dz.SetHwValve(dhw.HotwaterValve)
			}
			if dhw.HeatingValve != "" {
				if err := gw.attachMember(ctl, dhw.HeatingValve, device.RoleDhwValve, "HW"); err != nil {
					return err
				}
				dz.SetHeatingValve(dhw.HeatingValve)
			}
		}

		if sysSchema.ApplianceControl != "" {
			if err := gw.attachMember(ctl, sysSchema.ApplianceControl, device.RoleSystem, "FC"); err != nil {
				return err
			}
			sys.SetApplianceController(sysSchema.ApplianceControl)
		}

		for _, ufc := range sysSchema.UfhControllers {
			if err := gw.attachMember(ctl, ufc, device.RoleUfhCircuit, ""); err != nil {
				return err
			}
			sys.AddUfhController(ufc)
		}
	}
	return nil
}

// attachMember creates (or fetches) the device for addr, wires its parent
// and controller references, and seeds a dummy index record so downstream
// discovery treats the device as known-to-exist before it first transmits.
func (gw *Gateway) attachMember(ctl *device.Device, addr frame.Address, role device.ParentRole, childID string) error {
	d := gw.factory.GetOrCreate(addr, device.Traits{})
	if err := d.SetParent(ctl, role, childID); err != nil {
		return err
	}
	if err := d.SetController(ctl); err != nil {
		return err
	}
	gw.idx.AddDummyRecord(addr, "10E0", frame.VerbInfo)
	return nil
}
