package payload

import (
	"fmt"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

func flat(m map[string]any) Value { return Value{Kind: KindFlat, Flat: m} }

// builtinCodes returns the representative subset of message codes this
// module fully implements. Dozens more codes exist in the wider protocol;
// unknown codes still decode (as raw scalars, see Registry.Decode) so the
// index and FSM never stall on an unrecognised code.
func builtinCodes() []CodeDef {
	return []CodeDef{
		{Code: "1F09", Name: "sync_cycle", Lifespan: 5 * time.Minute, Decode: decode1F09},
		{Code: "0005", Name: "zone_types", Lifespan: DefaultLifespan, Decode: decode0005},
		{Code: "000C", Name: "zone_devices", Lifespan: DefaultLifespan, Decode: decode000C},
		{Code: "2309", Name: "zone_setpoint", Lifespan: DefaultLifespan, Decode: decode2309, Encode: encode2309},
		{Code: "30C9", Name: "zone_temperature", Lifespan: DefaultLifespan, Decode: decode30C9},
		{Code: "3EF0", Name: "actuator_state", Lifespan: 10 * time.Minute, Decode: decode3EF0},
		{Code: "1FC9", Name: "bind", Lifespan: DefaultLifespan, Decode: decode1FC9},
		{Code: "10E0", Name: "device_info", Lifespan: 6 * time.Hour, Decode: decode10E0},
		{Code: "0006", Name: "schedule_sync", Lifespan: DefaultLifespan, Decode: decode0006},
		{Code: "2411", Name: "fan_param", Lifespan: DefaultLifespan, Decode: decode2411, Encode: encode2411},
		{Code: "22F1", Name: "fan_mode", Lifespan: DefaultLifespan, Decode: decode22F1},
		{Code: "1060", Name: "battery_info", Lifespan: 6 * time.Hour, Decode: decode1060},
		{Code: "12B0", Name: "window_status", Lifespan: DefaultLifespan, Decode: decode12B0},
		{Code: "10A0", Name: "dhw_settings", Lifespan: DefaultLifespan, Decode: decode10A0},
		{Code: "1F41", Name: "dhw_mode", Lifespan: DefaultLifespan, Decode: decode1F41, Encode: encode1F41},
		{Code: "0002", Name: "external_sensor", Lifespan: DefaultLifespan, Decode: decode0002},
		{Code: "2E04", Name: "system_mode", Lifespan: DefaultLifespan, Decode: decode2E04},
		{Code: "0418", Name: "fault_log_entry", Lifespan: 24 * time.Hour, Decode: decode0418},
		{Code: "3220", Name: "opentherm_msg", Lifespan: DefaultLifespan, Decode: decode3220},
		{Code: "3B00", Name: "actuator_sync", Lifespan: DefaultLifespan, Decode: decode3B00},
	}
}

// 1F09: payload "TT VVVV" where TT is the role byte and VVVV is 2-byte
// big-endian tenths-of-seconds until the next sync cycle.
func decode1F09(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 {
		return Value{}, fmt.Errorf("1F09 payload too short: %d bytes", len(b))
	}
	tenths := int(b[1])<<8 | int(b[2])
	return flat(map[string]any{
		"role":              fmt.Sprintf("%02X", b[0]),
		"remaining_seconds": float64(tenths) / 10.0,
	}), nil
}

// 0005: payload "00 ZT XXXXXXXX" zone-type bitmap, ZT = zone type code.
func decode0005(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 {
		return Value{}, fmt.Errorf("0005 payload too short: %d bytes", len(b))
	}
	zoneType := b[1]
	bitmap := b[2:]
	zones := []int{}
	for byteIdx, bits := range bitmap {
		for bit := 0; bit < 8; bit++ {
			if bits&(1<<uint(bit)) != 0 {
				zones = append(zones, byteIdx*8+bit)
			}
		}
	}
	return flat(map[string]any{
		"zone_type": zoneClassName(zoneType),
		"zones":     zones,
	}), nil
}

// zoneClassName maps the 0005/000C zone-type byte to its zone class:
// radiator/underfloor/electric/mixing/zone-valve.
func zoneClassName(b byte) string {
	switch b {
	case 0x08:
		return "radiator"
	case 0x09:
		return "underfloor"
	case 0x0A:
		return "zone-valve"
	case 0x0B:
		return "mixing"
	case 0x11:
		return "electric"
	default:
		return "unknown"
	}
}

// 000C: payload "ZZ TT" followed by 4-byte device fields: a leading byte
// plus a 3-byte packed device id (7FFFFF = no device bound in that slot).
func decode000C(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 2 {
		return Value{}, fmt.Errorf("000C payload too short: %d bytes", len(b))
	}
	zoneIdx := b[0]
	zoneType := b[1]
	devices := []map[string]any{}
	for i := 2; i+4 <= len(b); i += 4 {
		hexID := fmt.Sprintf("%02X%02X%02X", b[i+1], b[i+2], b[i+3])
		addr, err := frame.AddressFromHexID(hexID)
		if err != nil || addr.IsPlaceholder() {
			continue
		}
		devices = append(devices, map[string]any{"device_id": string(addr)})
	}
	return flat(map[string]any{
		"zone_idx":  fmt.Sprintf("%02X", zoneIdx),
		"zone_type": zoneClassName(zoneType),
		"devices":   devices,
	}), nil
}

// 2309: zone setpoint, payload "ZZ TTTT" per zone, repeating for I-array form.
func decode2309(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 || len(b)%3 != 0 {
		return Value{}, fmt.Errorf("2309 payload must be a multiple of 3 bytes, got %d", len(b))
	}
	if len(b) == 3 {
		temp, ok, err := decodeTemp(b[1:3])
		if err != nil {
			return Value{}, err
		}
		return flat(map[string]any{"zone_idx": fmt.Sprintf("%02X", b[0]), "setpoint": temp, "setpoint_valid": ok}), nil
	}
	arr := make([]map[string]any, 0, len(b)/3)
	for i := 0; i < len(b); i += 3 {
		temp, ok, err := decodeTemp(b[i+1 : i+3])
		if err != nil {
			return Value{}, err
		}
		arr = append(arr, map[string]any{"zone_idx": fmt.Sprintf("%02X", b[i]), "setpoint": temp, "setpoint_valid": ok})
	}
	return Value{Kind: KindArray, Array: arr}, nil
}

func encode2309(args map[string]any) (string, error) {
	zoneIdx, ok := args["zone_idx"].(byte)
	if !ok {
		return "", fmt.Errorf("2309 encode: zone_idx required (byte)")
	}
	setpoint, ok := args["setpoint"].(float64)
	if !ok {
		return "", fmt.Errorf("2309 encode: setpoint required (float64)")
	}
	t := encodeTemp(setpoint)
	return fmt.Sprintf("%02X%02X%02X", zoneIdx, t[0], t[1]), nil
}

// 30C9: zone temperature, same shape as 2309 but for measured temperature.
func decode30C9(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 || len(b)%3 != 0 {
		return Value{}, fmt.Errorf("30C9 payload must be a multiple of 3 bytes, got %d", len(b))
	}
	arr := make([]map[string]any, 0, len(b)/3)
	for i := 0; i < len(b); i += 3 {
		temp, ok, err := decodeTemp(b[i+1 : i+3])
		if err != nil {
			return Value{}, err
		}
		arr = append(arr, map[string]any{"zone_idx": fmt.Sprintf("%02X", b[i]), "temperature": temp, "temperature_valid": ok})
	}
	if len(arr) == 1 {
		return flat(arr[0]), nil
	}
	return Value{Kind: KindArray, Array: arr}, nil
}

// 3EF0: boiler/relay actuator state, payload "ZZ SS" modulation-level byte.
func decode3EF0(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 2 {
		return Value{}, fmt.Errorf("3EF0 payload too short: %d bytes", len(b))
	}
	return flat(map[string]any{
		"modulation_level": decodePercent(b[1]),
	}), nil
}

// 1FC9: binding sequence, 6-byte tuples of (idx, code, packed device id).
func decode1FC9(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b)%6 != 0 {
		return Value{}, fmt.Errorf("1FC9 payload must be a multiple of 6 bytes, got %d", len(b))
	}
	arr := make([]map[string]any, 0, len(b)/6)
	for i := 0; i < len(b); i += 6 {
		entry := map[string]any{
			"idx":  fmt.Sprintf("%02X", b[i]),
			"code": fmt.Sprintf("%02X%02X", b[i+1], b[i+2]),
		}
		hexID := fmt.Sprintf("%02X%02X%02X", b[i+3], b[i+4], b[i+5])
		if addr, err := frame.AddressFromHexID(hexID); err == nil && !addr.IsPlaceholder() {
			entry["device_id"] = string(addr)
		}
		arr = append(arr, entry)
	}
	return Value{Kind: KindArray, Array: arr}, nil
}

// 10E0: free-form device info block (description string trailer).
func decode10E0(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 8 {
		return Value{}, fmt.Errorf("10E0 payload too short: %d bytes", len(b))
	}
	desc := string(b[8:])
	return flat(map[string]any{
		"oem_code":    fmt.Sprintf("%02X", b[3]),
		"description": desc,
	}), nil
}

// 0006: schedule change counter, payload "00 NNNNNNNN".
func decode0006(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 5 {
		return Value{}, fmt.Errorf("0006 payload too short: %d bytes", len(b))
	}
	counter := uint32(b[1])<<24 | uint32(b[2])<<16 | uint32(b[3])<<8 | uint32(b[4])
	return flat(map[string]any{"change_counter": counter}), nil
}

// 22F1: HVAC fan mode, payload "00 MM NN": selected step MM out of NN.
func decode22F1(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 2 {
		return Value{}, fmt.Errorf("22F1 payload too short: %d bytes", len(b))
	}
	out := map[string]any{"fan_mode": int(b[1])}
	if len(b) >= 3 && b[2] != 0 {
		out["mode_max"] = int(b[2])
	}
	return flat(out), nil
}

// 1060: battery status, payload "ZZ LL BB" level (0-200) + low-battery flag.
func decode1060(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 {
		return Value{}, fmt.Errorf("1060 payload too short: %d bytes", len(b))
	}
	return flat(map[string]any{
		"zone_idx":    fmt.Sprintf("%02X", b[0]),
		"battery_pct": decodePercent(b[1]),
		"low_battery": b[2] == 0x00,
	}), nil
}

// 12B0: window open status, payload "ZZ SS" (00=closed, C8=open, 7F=unknown).
func decode12B0(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 2 {
		return Value{}, fmt.Errorf("12B0 payload too short: %d bytes", len(b))
	}
	status := "unknown"
	switch b[1] {
	case 0x00:
		status = "closed"
	case 0xC8:
		status = "open"
	}
	return flat(map[string]any{"zone_idx": fmt.Sprintf("%02X", b[0]), "window": status}), nil
}

// 10A0: DHW settings, payload "00 TTTT OO DD" setpoint/overrun/differential.
func decode10A0(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 {
		return Value{}, fmt.Errorf("10A0 payload too short: %d bytes", len(b))
	}
	setpoint, ok, err := decodeTemp(b[1:3])
	if err != nil {
		return Value{}, err
	}
	out := map[string]any{"setpoint": setpoint, "setpoint_valid": ok}
	if len(b) >= 4 {
		out["overrun_minutes"] = int(b[3])
	}
	if len(b) >= 5 {
		out["differential"] = float64(b[4]) / 100.0
	}
	return flat(out), nil
}

// 1F41: DHW mode, payload "II AA MM DDDDDD [until-dtm]": dhw idx, active
// flag (FF = not set), mode, 3-byte duration (FFFFFF = none), plus an
// optional 7-byte packed "until" datetime for TEMPORARY mode.
func decode1F41(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 {
		return Value{}, fmt.Errorf("1F41 payload too short: %d bytes", len(b))
	}
	out := map[string]any{
		"dhw_idx": fmt.Sprintf("%02X", b[0]),
		"active":  b[1] == 0x01,
		"mode":    dhwModeName(b[2]),
	}
	if len(b) >= 6 && !(b[3] == 0xFF && b[4] == 0xFF && b[5] == 0xFF) {
		out["duration_secs"] = int(b[3])<<16 | int(b[4])<<8 | int(b[5])
	}
	if len(b) >= 13 {
		until, _, err := decodeDatetime(b[6:13])
		if err == nil {
			out["until"] = until
		}
	}
	return flat(out), nil
}

func dhwModeName(b byte) string {
	switch b {
	case 0x00:
		return "FOLLOW_SCHEDULE"
	case 0x02:
		return "PERMANENT_OVERRIDE"
	case 0x04:
		return "TEMPORARY"
	default:
		return "unknown"
	}
}

// encode1F41 builds the DHW-mode command payload: dhw_idx, active, mode
// (TEMPORARY if an until time is given, PERMANENT otherwise), an FFFFFF
// duration placeholder, plus a packed until datetime when present.
func encode1F41(args map[string]any) (string, error) {
	active, _ := args["active"].(bool)
	until, hasUntil := args["until"].(time.Time)

	mode := byte(0x00)
	switch {
	case hasUntil:
		mode = 0x04 // TEMPORARY
	case args["permanent"] == true:
		mode = 0x02
	}

	activeByte := byte(0x00)
	if active {
		activeByte = 0x01
	}

	out := fmt.Sprintf("00%02X%02X", activeByte, mode)
	if hasUntil {
		out += "FFFFFF"
		for _, b := range encodeDatetime(until) {
			out += fmt.Sprintf("%02X", b)
		}
	}
	return out, nil
}

// 0002: external (outdoor) sensor temperature, payload "00 TTTT UU".
func decode0002(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 3 {
		return Value{}, fmt.Errorf("0002 payload too short: %d bytes", len(b))
	}
	temp, ok, err := decodeTemp(b[1:3])
	if err != nil {
		return Value{}, err
	}
	return flat(map[string]any{"temperature": temp, "temperature_valid": ok}), nil
}

// 2E04: system mode, payload "MM DDDDDDD UU" mode + until-dtm + permanent flag.
func decode2E04(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 1 {
		return Value{}, fmt.Errorf("2E04 payload empty")
	}
	out := map[string]any{"mode": systemModeName(b[0])}
	if len(b) >= 8 {
		until, _, err := decodeDatetime(b[1:8])
		if err == nil {
			out["until"] = until
		}
	}
	return flat(out), nil
}

func systemModeName(b byte) string {
	names := map[byte]string{
		0x00: "AUTO", 0x01: "HEAT_OFF", 0x02: "ECO_BOOST",
		0x03: "AWAY", 0x04: "DAY_OFF", 0x07: "CUSTOM",
	}
	if n, ok := names[b]; ok {
		return n
	}
	return "unknown"
}

// 0418: fault log entry, a fixed 22-byte structured record; only the index,
// log-entry type, and fault type are decoded (the remainder is device-class
// dependent).
func decode0418(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 4 {
		return Value{}, fmt.Errorf("0418 payload too short: %d bytes", len(b))
	}
	return flat(map[string]any{
		"log_idx":    fmt.Sprintf("%02X", b[1]),
		"entry_type": fmt.Sprintf("%02X", b[2]),
		"fault_type": fmt.Sprintf("%02X", b[3]),
	}), nil
}

// 3220: OpenTherm message, payload "00 RR DDID VVVV" data-id + raw value.
func decode3220(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 5 {
		return Value{}, fmt.Errorf("3220 payload too short: %d bytes", len(b))
	}
	return flat(map[string]any{
		"msg_type": fmt.Sprintf("%02X", b[1]),
		"data_id":  fmt.Sprintf("%02X", b[2]),
		"value":    fmt.Sprintf("%02X%02X", b[3], b[4]),
	}), nil
}

// 3B00: TPI (actuator) sync pulse, payload "00 FF" or "00 00".
func decode3B00(verb frame.Verb, hexPayload string) (Value, error) {
	b, err := hexDecode(hexPayload)
	if err != nil {
		return Value{}, err
	}
	if len(b) < 2 {
		return Value{}, fmt.Errorf("3B00 payload too short: %d bytes", len(b))
	}
	return flat(map[string]any{"active": b[1] == 0xFF}), nil
}
