package transport

import (
	"calypsocore/apdu"
	"calypsocore/calypsoerr"
)

// FakeTransport replays a fixed script of raw response bytes for
// tests, one entry per call to TransmitCardRequest's inner APDU loop,
// grounded on the teacher's scripted-expectation test style
// (testing/tests_apdu.go feeds a known command and asserts against a
// known response).
type FakeTransport struct {
	Responses   [][]byte // raw bytes (payload + SW) returned in call order
	Contactless bool

	Sent []apdu.ApduRequest // every request actually transmitted, for assertions
	pos  int
}

// NewFakeTransport builds a FakeTransport that returns responses in
// order, one per ApduRequest across however many TransmitCardRequest
// calls the caller makes.
func NewFakeTransport(responses ...[]byte) *FakeTransport {
	return &FakeTransport{Responses: responses}
}

func (f *FakeTransport) IsContactless() bool { return f.Contactless }

func (f *FakeTransport) TransmitCardRequest(req apdu.CardRequest, channelControl apdu.ChannelControl) (apdu.CardResponse, error) {
	out := apdu.CardResponse{LogicalChannelOpen: channelControl != apdu.CloseAfter}
	for _, a := range req.Apdus {
		f.Sent = append(f.Sent, a)
		if f.pos >= len(f.Responses) {
			return out, calypsoerr.New(calypsoerr.Transport, "TransmitCardRequest", "fake transport script exhausted")
		}
		raw := f.Responses[f.pos]
		f.pos++
		resp, err := apdu.ParseResponse(raw)
		if err != nil {
			return out, calypsoerr.Wrap(calypsoerr.Transport, "TransmitCardRequest", err)
		}
		out.Apdus = append(out.Apdus, apdu.ApduResponse{Bytes: raw, StatusWord: resp.SW})
		if req.StopOnError && !a.ExpectedSWs.Contains(resp.SW) {
			break
		}
	}
	return out, nil
}
