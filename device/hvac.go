package device

import (
	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
)

const param2411KeyPrefix = "2411_"

func param2411Key(paramID string) string { return param2411KeyPrefix + paramID }

// Handle2411 records an observed 2411 fan-parameter message against its
// composite key ("2411_<param_id>"), firing the supports-2411-confirmed
// callback once (on the first 2411 ever seen from this device) and the
// per-parameter callback on every update.
func (d *Device) Handle2411(m index.Message) {
	paramID, _ := m.Payload.Flat["param_id"].(string)
	if paramID == "" {
		return
	}

	d.mu.Lock()
	first := !d.supports2411
	d.supports2411 = true
	if d.params2411 == nil {
		d.params2411 = make(map[string]index.Message)
	}
	d.params2411[param2411Key(paramID)] = m
	confirmedCbs := append([]func(){}, d.on2411Confirmed...)
	paramCbs := append([]func(string, index.Message){}, d.on2411Param...)
	d.mu.Unlock()

	if first {
		for _, cb := range confirmedCbs {
			cb()
		}
	}
	for _, cb := range paramCbs {
		cb(paramID, m)
	}
}

// Supports2411 reports whether any 2411 message has ever been seen from
// this device.
func (d *Device) Supports2411() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.supports2411
}

// Param2411 returns the most recent message seen for paramID, if any.
func (d *Device) Param2411(paramID string) (index.Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.params2411[param2411Key(paramID)]
	return m, ok
}

// Params2411 returns every cached 2411 parameter message, keyed by its
// composite "2411_<param_id>" key.
func (d *Device) Params2411() map[string]index.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]index.Message, len(d.params2411))
	for k, m := range d.params2411 {
		out[k] = m
	}
	return out
}

// OnSupports2411Confirmed registers cb to run exactly once, the first time
// this device is observed emitting a 2411 message.
func (d *Device) OnSupports2411Confirmed(cb func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on2411Confirmed = append(d.on2411Confirmed, cb)
}

// On2411ParamUpdate registers cb to run on every 2411 parameter update.
func (d *Device) On2411ParamUpdate(cb func(paramID string, m index.Message)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on2411Param = append(d.on2411Param, cb)
}

// AddBoundDevice records rem as bound to this HVAC device (a REM/DIS
// remote/display bound via the 1FC9 handshake), permitted to issue
// parameter-set commands against it.
func (d *Device) AddBoundDevice(rem frame.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.boundRem == nil {
		d.boundRem = make(map[frame.Address]struct{})
	}
	d.boundRem[rem] = struct{}{}
}

// RemoveBoundDevice unbinds rem.
func (d *Device) RemoveBoundDevice(rem frame.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.boundRem, rem)
}

// GetBoundRem returns every currently bound REM/DIS address.
func (d *Device) GetBoundRem() []frame.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]frame.Address, 0, len(d.boundRem))
	for a := range d.boundRem {
		out = append(out, a)
	}
	return out
}

// IsBoundRem reports whether rem is currently bound to this device.
func (d *Device) IsBoundRem(rem frame.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.boundRem[rem]
	return ok
}
