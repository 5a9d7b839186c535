package frame

import "fmt"

// Header is the synthetic routing key derived from a frame: CODE|VERB|SENDER|CONTEXT.
// It serves as the lookup key for echo/reply matching and message indexing.
type Header string

// zoneIdxContextCodes lists codes whose context is the first payload byte
// (commonly a zone index). This mirrors the ramses_rf "has_zone_idx" table
// for the subset of codes this module decodes; codes not listed here, or
// whose payload is too short, get an empty context.
var zoneIdxContextCodes = map[Code]bool{
	"0004": true, "0005": false, // 0005 context is special-cased (zone-type, not idx)
	"000A": true, "2309": true, "30C9": true, "3150": true,
	"12B0": true, "2349": true, "0009": true,
}

// deriveContext computes the code-specific CONTEXT component of a header:
// often a zone index or parameter ID, sometimes empty.
func deriveContext(code Code, payload string) string {
	switch code {
	case "0005":
		// Configured-zones bitmap: context is the 2-hex zone-type.
		if len(payload) >= 4 {
			return payload[2:4]
		}
		return ""
	case "000C":
		// Zone device list: context is the first payload byte (the zone idx,
		// or the domain id of a UFH/system-wide list).
		if len(payload) >= 2 {
			return payload[0:2]
		}
		return ""
	case "1F09":
		// Sync-cycle: the payload byte before the timer value is a role, not
		// a zone idx. The context is empty, since there's only ever one
		// outstanding 1F09 per sender.
		return ""
	case "2411":
		// HVAC fan parameter: context is the 4-hex parameter id.
		if len(payload) >= 6 {
			return payload[2:6]
		}
		return ""
	case "0418":
		// Fault log: context is the 2-hex log index.
		if len(payload) >= 4 {
			return payload[2:4]
		}
		return ""
	case "3220":
		// OpenTherm: context is the 2-hex data-id (third payload byte).
		if len(payload) >= 6 {
			return payload[4:6]
		}
		return ""
	}

	if zoneIdxContextCodes[code] && len(payload) >= 2 {
		return payload[0:2]
	}
	return ""
}

// Header derives f's routing header.
func (f Frame) Header() (Header, error) {
	addrs, err := f.Addresses()
	if err != nil {
		return "", err
	}
	ctx := deriveContext(f.Code, f.Payload)
	return buildHeader(f.Code, f.Verb, addrs.Sender, ctx), nil
}

// Context returns the code-specific context component for f.
func (f Frame) Context() string {
	return deriveContext(f.Code, f.Payload)
}

func buildHeader(code Code, verb Verb, sender Address, ctx string) Header {
	if ctx == "" {
		return Header(fmt.Sprintf("%s|%s|%s", code, verb, sender))
	}
	return Header(fmt.Sprintf("%s|%s|%s|%s", code, verb, sender, ctx))
}

// replyVerb maps a request verb to the verb expected on its reply.
func replyVerb(v Verb) Verb {
	switch v {
	case VerbRequest:
		return VerbReply
	case VerbWrite:
		return VerbInfo
	default:
		return v
	}
}

// RxHeader computes the header of the reply expected for f, by swapping verb
// and (for RQ) swapping sender with the original destination. Only RQ/W
// typically expect a reply; callers should gate on that via QoS.
func (f Frame) RxHeader() (Header, error) {
	addrs, err := f.Addresses()
	if err != nil {
		return "", err
	}
	ctx := deriveContext(f.Code, f.Payload)
	rv := replyVerb(f.Verb)

	sender := addrs.Sender
	if f.Verb == VerbRequest {
		sender = addrs.Receiver
	}
	return buildHeader(f.Code, rv, sender, ctx), nil
}
