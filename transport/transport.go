// Package transport defines the Reader/transport collaborator the
// transaction manager drives (§6) and ships two concrete
// implementations: a real PC/SC transport and a scripted fake for
// tests, mirroring how the teacher ships card.Reader as the one
// concrete transport alongside the engine it serves.
package transport

import "calypsocore/apdu"

// Transport is the consumed reader/transport contract (§6).
type Transport interface {
	TransmitCardRequest(req apdu.CardRequest, channelControl apdu.ChannelControl) (apdu.CardResponse, error)
	IsContactless() bool
}
