package frame

import (
	"log/slog"
	"strings"
	"time"
)

// Packet is a Frame plus received-timestamp and RSSI. Frames emitted by the
// host have no RSSI. A Packet always carries a valid Frame; invalid inbound
// lines never make it past the transport, which drops any line NewPacket
// rejects.
type Packet struct {
	Dtm   time.Time
	RSSI  string // empty for host-originated frames
	Frame Frame
}

// NewPacket lifts raw inbound text (with its optional leading 3-char RSSI and
// space) to a Packet, parsing and validating the frame. Invalid lines return
// an error; the caller (the transport) logs and drops rather than letting a
// single malformed line propagate upward.
func NewPacket(dtm time.Time, line string) (Packet, error) {
	rssi, text := splitRSSI(line)
	f, err := Parse(text)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Dtm: dtm, RSSI: rssi, Frame: f}, nil
}

// NewHostPacket wraps a frame emitted by the host itself (no RSSI).
func NewHostPacket(dtm time.Time, f Frame) Packet {
	return Packet{Dtm: dtm, Frame: f}
}

// splitRSSI detects and strips the 3-char RSSI + space prefix that inbound
// lines carry ahead of the verb field. Host-originated lines never have one.
func splitRSSI(line string) (rssi, rest string) {
	if len(line) < 4 {
		return "", line
	}
	// RSSI is 3 chars (digits or spaces) followed by a space, then the verb.
	candidate := line[:3]
	isRSSI := true
	for _, c := range candidate {
		if c != ' ' && (c < '0' || c > '9') {
			isRSSI = false
			break
		}
	}
	if isRSSI && line[3] == ' ' {
		rem := strings.TrimLeft(line[4:], " ")
		if strings.HasPrefix(rem, "I ") || strings.HasPrefix(rem, "RQ") ||
			strings.HasPrefix(rem, "RP") || strings.HasPrefix(rem, "W ") {
			return strings.TrimSpace(candidate), line[4:]
		}
	}
	return "", line
}

// Header derives the packet's routing header.
func (p Packet) Header() (Header, error) { return p.Frame.Header() }

func (p Packet) String() string { return p.Frame.Format() }

// LogValue implements slog.LogValuer.
func (p Packet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("dtm", p.Dtm),
		slog.String("rssi", p.RSSI),
		slog.String("frame", p.Frame.Format()),
	)
}
