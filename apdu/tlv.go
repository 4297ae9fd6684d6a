package apdu

import "calypsocore/calypsoerr"

// TLV is one decoded BER-TLV element. Calypso's FCI and EF-list
// payloads only ever use single-byte tags, so unlike a general ASN.1
// walker this one does not special-case the long tag-number form.
type TLV struct {
	Tag     byte
	Length  int
	Value   []byte
	HLength int // tag + length header size, for computing FullLen
}

// FullLen is the number of raw bytes this element occupied, header
// plus value.
func (t TLV) FullLen() int { return t.HLength + t.Length }

// IsConstructed reports whether the tag's constructed bit (0x20) is
// set, i.e. whether Value itself nests further TLV elements.
func (t TLV) IsConstructed() bool { return t.Tag&0x20 != 0 }

// unmarshalOne parses exactly one TLV element starting at packet[0]
// and returns it plus the remaining, unconsumed tail of packet.
func unmarshalOne(packet []byte) (TLV, []byte, bool) {
	if len(packet) < 2 {
		return TLV{}, packet, false
	}
	tag := packet[0]
	lenByte := packet[1]
	hlen := 2
	length := int(lenByte)

	if lenByte&0x80 != 0 {
		nbytes := int(lenByte & 0x7F)
		if nbytes == 0 || 2+nbytes > len(packet) {
			return TLV{}, packet, false
		}
		length = 0
		for i := 0; i < nbytes; i++ {
			length = length<<8 | int(packet[2+i])
		}
		hlen = 2 + nbytes
	}

	if hlen+length > len(packet) {
		return TLV{}, packet, false
	}

	t := TLV{Tag: tag, Length: length, Value: packet[hlen : hlen+length], HLength: hlen}
	return t, packet[hlen+length:], true
}

// Walk decodes a flat sequence of sibling TLV elements from data and
// invokes fn for each one, in order. It does not recurse into
// constructed values; callers that need the FCI/EF-list envelope
// flattened should use FlattenTags instead.
func Walk(data []byte, fn func(TLV)) {
	rest := data
	for len(rest) > 0 {
		t, tail, ok := unmarshalOne(rest)
		if !ok {
			return
		}
		fn(t)
		rest = tail
	}
}

// FlattenTags walks data and, recursively, the value of every
// constructed element it finds, collecting every primitive (and
// constructed) tag seen into a map keyed by tag byte. This matches
// §4.1's "recognized tags anywhere inside the 6F/A5 envelope,
// order-independent" rule: callers look up a tag without caring
// whether it sat directly under 6F or nested one level deeper under
// A5. The first occurrence of a repeated tag wins.
func FlattenTags(data []byte) map[byte][]byte {
	out := make(map[byte][]byte)
	var walk func([]byte)
	walk = func(b []byte) {
		Walk(b, func(t TLV) {
			if _, seen := out[t.Tag]; !seen {
				out[t.Tag] = t.Value
			}
			if t.IsConstructed() {
				walk(t.Value)
			}
		})
	}
	walk(data)
	return out
}

// ParseEnvelope finds the outer tag `wantTag` (conventionally 0x6F for
// FCI) at the start of data and returns its value, erroring with Parse
// if the tag does not match or the element is malformed.
func ParseEnvelope(data []byte, wantTag byte) ([]byte, error) {
	t, _, ok := unmarshalOne(data)
	if !ok {
		return nil, calypsoerr.New(calypsoerr.Parse, "ParseEnvelope", "truncated TLV header")
	}
	if t.Tag != wantTag {
		return nil, calypsoerr.New(calypsoerr.Parse, "ParseEnvelope", "unexpected outer tag")
	}
	return t.Value, nil
}
