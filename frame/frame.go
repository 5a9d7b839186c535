package frame

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Verb is the action carried by a frame.
type Verb string

const (
	VerbInfo    Verb = "I"
	VerbRequest Verb = "RQ"
	VerbReply   Verb = "RP"
	VerbWrite   Verb = "W"
)

func (v Verb) valid() bool {
	switch v {
	case VerbInfo, VerbRequest, VerbReply, VerbWrite:
		return true
	}
	return false
}

// wire renders the verb with the fixed-width padding used on the wire
// ("I"/"W" are left-padded with a space to stay 2 chars wide).
func (v Verb) wire() string {
	switch v {
	case VerbInfo:
		return " I"
	case VerbWrite:
		return " W"
	default:
		return string(v)
	}
}

// Code is the 16-bit (4 hex digit) message-code identifier, e.g. "1F09".
type Code string

// Frame is the on-the-wire unit: verb, optional sequence number, three
// addresses, code, declared length, and hex payload.
type Frame struct {
	Verb    Verb
	Seqn    *int // nil when absent ("---")
	Addrs   [3]Address
	Code    Code
	Length  int // declared byte-length of Payload
	Payload string
}

// ErrInvalidFrame is returned by Parse when the text does not match the
// RAMSES-II wire grammar.
type ErrInvalidFrame struct {
	Text   string
	Reason string
}

func (e *ErrInvalidFrame) Error() string {
	return fmt.Sprintf("invalid frame %q: %s", e.Text, e.Reason)
}

// lineRE matches: VERB SP SEQ SP A0 SP A1 SP A2 SP CODE SP LEN SP PAYLOAD
var lineRE = regexp.MustCompile(
	`^( I|RQ|RP| W)\s+(---|\d{3})\s+(\S+)\s+(\S+)\s+(\S+)\s+([0-9A-Fa-f]{4}|PUZZ)\s+(\d{3})\s+([0-9A-Fa-f]{2,96})$`,
)

// Parse parses text as a RAMSES-II frame. text must not include the leading
// RSSI field that inbound packets carry; the transport strips that before
// calling Parse.
func Parse(text string) (Frame, error) {
	text = strings.TrimRight(text, " \t\r\n")
	m := lineRE.FindStringSubmatch(text)
	if m == nil {
		return Frame{}, &ErrInvalidFrame{Text: text, Reason: "does not match wire grammar"}
	}

	verb := Verb(strings.TrimSpace(m[1]))
	if !verb.valid() {
		return Frame{}, &ErrInvalidFrame{Text: text, Reason: "unknown verb"}
	}

	var seqn *int
	if m[2] != "---" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 0 || n > 255 {
			return Frame{}, &ErrInvalidFrame{Text: text, Reason: "sequence number out of range"}
		}
		seqn = &n
	}

	var addrs [3]Address
	for i, s := range [3]string{m[3], m[4], m[5]} {
		a := Address(s)
		if !a.Valid() {
			return Frame{}, &ErrInvalidFrame{Text: text, Reason: fmt.Sprintf("address %d malformed: %q", i, s)}
		}
		addrs[i] = a
	}

	length, err := strconv.Atoi(m[7])
	if err != nil {
		return Frame{}, &ErrInvalidFrame{Text: text, Reason: "length not numeric"}
	}
	payload := m[8]
	if len(payload)%2 != 0 {
		return Frame{}, &ErrInvalidFrame{Text: text, Reason: "payload has odd number of hex digits"}
	}
	if len(payload)/2 != length {
		return Frame{}, &ErrInvalidFrame{Text: text, Reason: fmt.Sprintf("declared length %d does not match payload %d bytes", length, len(payload)/2)}
	}
	if byteLen := len(payload) / 2; byteLen < 1 || byteLen > 48 {
		return Frame{}, &ErrInvalidFrame{Text: text, Reason: "payload length out of range 1..48 bytes"}
	}

	f := Frame{
		Verb:    verb,
		Seqn:    seqn,
		Addrs:   addrs,
		Code:    Code(strings.ToUpper(m[6])),
		Length:  length,
		Payload: strings.ToUpper(payload),
	}

	if _, err := ParseAddresses(addrs); err != nil {
		return Frame{}, err
	}

	return f, nil
}

// Format renders f back to wire text. format(parse(f)) == f for any
// well-formed frame (the round-trip property).
func (f Frame) Format() string {
	seq := "---"
	if f.Seqn != nil {
		seq = fmt.Sprintf("%03d", *f.Seqn)
	}
	return fmt.Sprintf("%s %s %s %s %s %s %03d %s",
		f.Verb.wire(), seq, f.Addrs[0], f.Addrs[1], f.Addrs[2], f.Code, f.Length, f.Payload)
}

func (f Frame) String() string { return f.Format() }

// LogValue implements slog.LogValuer.
func (f Frame) LogValue() slog.Value {
	return slog.StringValue(f.Format())
}

// Addresses resolves f's (sender, receiver) pair; see ParseAddresses.
func (f Frame) Addresses() (AddressSet, error) {
	return ParseAddresses(f.Addrs)
}
