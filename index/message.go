// Package index implements the message index: an in-memory, queryable store
// of the most recent message per routing header, with TTL-based expiry.
package index

import (
	"time"

	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/payload"
)

// Message is a Packet whose payload has been parsed by the code-specific
// decoder.
type Message struct {
	Dtm     time.Time
	Verb    frame.Verb
	Src     frame.Address
	Dst     frame.Address
	Code    frame.Code
	Ctx     string
	Hdr     frame.Header
	Payload payload.Value
	Raw     frame.Packet

	// Lifespan is the code's TTL from the payload registry; a Message older
	// than this is "expired" for snapshot purposes (All/GetState), though it
	// stays indexed until the 24h housekeeping sweep removes it.
	Lifespan time.Duration
}

// Expired reports whether m has outlived its code's lifespan at instant now.
func (m Message) Expired(now time.Time) bool {
	return m.Lifespan > 0 && now.After(m.Dtm.Add(m.Lifespan))
}

// PayloadKeys returns the flat-mapping keys of the decoded payload, or nil
// for array/scalar payloads. Used by callers that want a cheap summary
// without inspecting the whole payload.
func (m Message) PayloadKeys() []string {
	if m.Payload.Kind != payload.KindFlat {
		return nil
	}
	keys := make([]string, 0, len(m.Payload.Flat))
	for k := range m.Payload.Flat {
		keys = append(keys, k)
	}
	return keys
}

// NewMessage decodes pkt's payload using reg and builds the Message.
func NewMessage(pkt frame.Packet, reg *payload.Registry) (Message, error) {
	hdr, err := pkt.Frame.Header()
	if err != nil {
		return Message{}, err
	}
	addrs, err := pkt.Frame.Addresses()
	if err != nil {
		return Message{}, err
	}
	v, err := reg.Decode(pkt.Frame)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Dtm:      pkt.Dtm,
		Verb:     pkt.Frame.Verb,
		Src:      addrs.Sender,
		Dst:      addrs.Receiver,
		Code:     pkt.Frame.Code,
		Ctx:      pkt.Frame.Context(),
		Hdr:      hdr,
		Payload:  v,
		Raw:      pkt,
		Lifespan: reg.Lifespan(pkt.Frame.Code),
	}, nil
}
