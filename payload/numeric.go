package payload

import (
	"encoding/hex"
	"fmt"
	"time"
)

// decodeTemp decodes a 2-byte signed big-endian centi-degree temperature.
// The sentinel 0x7FFF means "not available" and decodes to (0, false).
func decodeTemp(b []byte) (float64, bool, error) {
	if len(b) != 2 {
		return 0, false, fmt.Errorf("temperature field must be 2 bytes, got %d", len(b))
	}
	raw := int16(uint16(b[0])<<8 | uint16(b[1]))
	if uint16(raw) == 0x7FFF {
		return 0, false, nil
	}
	return float64(raw) / 100.0, true, nil
}

// encodeTemp encodes a temperature in degrees C to 2 bytes, centi-degrees.
func encodeTemp(degC float64) []byte {
	raw := int16(degC * 100)
	return []byte{byte(uint16(raw) >> 8), byte(uint16(raw))}
}

// decodePercent decodes a 1-byte unsigned percentage scaled over 200 (0xC8 = 100.0%).
func decodePercent(b byte) float64 {
	return float64(b) / 200.0 * 100.0
}

// decodePercentHighRes decodes a 1-byte unsigned percentage scaled over 100.
func decodePercentHighRes(b byte) float64 {
	return float64(b)
}

// decodeDatetime decodes the 7-byte packed datetime: yy yy mm dd hh mm ss,
// with the DST flag in the high bit of the hour byte.
func decodeDatetime(b []byte) (time.Time, bool, error) {
	if len(b) != 7 {
		return time.Time{}, false, fmt.Errorf("datetime field must be 7 bytes, got %d", len(b))
	}
	year := int(b[0]) | int(b[1])<<8
	month := int(b[2])
	day := int(b[3])
	dst := b[4]&0x80 != 0
	hour := int(b[4] &^ 0x80)
	minute := int(b[5])
	second := int(b[6])
	if year == 0 && month == 0 && day == 0 {
		return time.Time{}, false, nil
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), dst, nil
}

// encodeDatetime encodes t into the 7-byte packed datetime format.
func encodeDatetime(t time.Time) []byte {
	y := t.Year()
	return []byte{
		byte(y), byte(y >> 8),
		byte(t.Month()), byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}

// hexDecode is a small wrapper that returns a clearer error on odd-length or
// invalid hex strings, matching what every code decoder needs first.
func hexDecode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return b, nil
}
