package gateway

import (
	"errors"
	"testing"

	"github.com/ramses-go/ramses-go/config"
	"github.com/ramses-go/ramses-go/device"
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/system"
)

func TestMergeSchemaBuildsTopology(t *testing.T) {
	gw, _ := newTestGateway(t)

	err := gw.mergeSchema(map[frame.Address]config.SystemSchema{
		"01:145038": {
			ApplianceControl: "13:050123",
			Zones: map[string]config.ZoneSchema{
				"00": {Class: "radiator", Sensor: "04:056057", Actuators: []frame.Address{"04:189076"}},
			},
			StoredHotwater: &config.DhwSchema{Sensor: "07:033553", HotwaterValve: "13:163733"},
		},
	})
	if err != nil {
		t.Fatalf("mergeSchema: %v", err)
	}

	sys, ok := gw.TCS("01:145038")
	if !ok {
		t.Fatal("expected system created from schema")
	}
	z := sys.GetHtgZone("00")
	if z.Class != system.ZoneRadiator {
		t.Fatalf("expected radiator zone, got %s", z.Class)
	}
	if sensor, ok := z.Sensor(); !ok || sensor != "04:056057" {
		t.Fatalf("expected schema-declared sensor, got %v", sensor)
	}
	if relay, ok := sys.ApplianceController(); !ok || relay != "13:050123" {
		t.Fatalf("expected appliance control relay, got %v", relay)
	}
	dz := sys.GetDhwZone()
	if valve, ok := dz.HwValve(); !ok || valve != "13:163733" {
		t.Fatalf("expected DHW valve from schema, got %v", valve)
	}

	trv, ok := gw.Device("04:056057")
	if !ok {
		t.Fatal("expected TRV device created from schema")
	}
	if ctl, ok := trv.Controller(); !ok || ctl != "01:145038" {
		t.Fatalf("expected TRV wired to its controller, got %v", ctl)
	}
}

func TestMergeSchemaRejectsInvalidSensorClass(t *testing.T) {
	gw, _ := newTestGateway(t)

	err := gw.mergeSchema(map[frame.Address]config.SystemSchema{
		"01:145038": {
			Zones: map[string]config.ZoneSchema{
				// A BDR cannot be a zone sensor.
				"00": {Sensor: "13:050123"},
			},
		},
	})
	if err == nil {
		t.Fatal("expected a schema error for a BDR zone sensor")
	}
	var schemaErr *device.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected a SchemaError, got %T: %v", err, err)
	}
}
