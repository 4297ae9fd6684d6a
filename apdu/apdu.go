package apdu

import "calypsocore/calypsoerr"

// Class selects the ISO-7816 CLA byte family a command is framed with.
// Calypso legacy cards speak the proprietary 0x94 class; cards from
// Prime Revision 3 onward accept the plain ISO class.
type Class byte

const (
	ClassISO    Class = 0x00
	ClassLegacy Class = 0x94
)

// Request is a fully-framed outgoing command APDU.
type Request struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
	Le   *byte // nil means "no Le byte"
}

// Bytes serializes the request per ISO-7816-4 case 1/2/3/4 framing.
func (r Request) Bytes() []byte {
	out := make([]byte, 0, 5+len(r.Data)+1)
	out = append(out, r.CLA, r.INS, r.P1, r.P2)
	if len(r.Data) > 0 {
		out = append(out, byte(len(r.Data)))
		out = append(out, r.Data...)
	}
	if r.Le != nil {
		out = append(out, *r.Le)
	}
	return out
}

// Response is a parsed incoming response APDU: payload plus status
// word, already split from the raw bytes the transport returned.
type Response struct {
	Data []byte
	SW   StatusWord
}

// ParseResponse splits raw bytes returned by a transport into payload
// and trailing status word.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, calypsoerr.New(calypsoerr.Parse, "ParseResponse", "response shorter than 2 bytes")
	}
	n := len(raw)
	return Response{
		Data: raw[:n-2],
		SW:   StatusWord(uint16(raw[n-2])<<8 | uint16(raw[n-1])),
	}, nil
}

// ApduRequest is one entry of a CardRequest (§6 external interface).
type ApduRequest struct {
	Bytes       []byte
	ExpectedSWs SuccessSet
}

// CardRequest is the ordered batch of ApduRequest sent to the
// transport in one round of transmitCardRequest.
type CardRequest struct {
	Apdus       []ApduRequest
	StopOnError bool
}

// ApduResponse is one entry of a CardResponse.
type ApduResponse struct {
	Bytes      []byte
	StatusWord StatusWord
}

// CardResponse is what a transport returns for a CardRequest.
type CardResponse struct {
	Apdus              []ApduResponse
	LogicalChannelOpen bool
}

// ChannelControl selects the transport's post-operation channel
// policy for a processCommands drain.
type ChannelControl int

const (
	KeepOpen ChannelControl = iota
	CloseAfter
)
