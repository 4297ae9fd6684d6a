// Package command is the catalogue of typed Calypso card/SAM
// commands. Rather than an inheritance hierarchy, each command is a
// small struct implementing the Command interface; the transaction
// manager dispatches the catalogue over that interface, and uses a type
// switch only for the session-lifecycle commands and for filling in
// deferred PIN/key ciphering (§9: "polymorphism across 50+ card/SAM commands... avoid
// an inheritance hierarchy").
package command

import (
	"calypsocore/apdu"
	"calypsocore/calypsoerr"
	"calypsocore/profile"
)

// Command is the shared contract every catalogue entry implements:
// APDU encoding, the expected success status-word set, whether it
// consumes the session's write buffer, and how to fold its response
// back into the CardProfile.
type Command interface {
	// Name identifies the command for logging/errors, e.g. "ReadRecord".
	Name() string
	// Encode renders the command to a framed APDU request. p is
	// consulted for CLA resolution (product type) and, for commands
	// that split, for PayloadCapacity.
	Encode(p *profile.CardProfile) ([]apdu.Request, error)
	// SuccessSWs is the set of status words that count as success.
	SuccessSWs() apdu.SuccessSet
	// UsesSessionBuffer reports whether this command's data
	// contributes to the card's session modification buffer budget.
	UsesSessionBuffer() bool
	// Parse folds one response (in Encode's request order) back into
	// the profile. idx is the 0-based index into the Encode result.
	Parse(idx int, resp apdu.Response, p *profile.CardProfile) error
}

// ClassFor resolves the CLA byte for a product type: legacy Calypso
// (Prime Revision 1/2) speaks the proprietary 0x94 class, everything
// from Prime Revision 3 onward (and an as-yet-unselected/unknown
// profile) speaks the plain ISO class (§4.2).
func ClassFor(pt profile.ProductType) byte {
	switch pt {
	case profile.PrimeRevision1, profile.PrimeRevision2:
		return 0x94
	default:
		return 0x00
	}
}

// le builds a *byte for use as an apdu.Request.Le field.
func le(v byte) *byte { return &v }

// defaultSuccess is the {0x9000} success set almost every command
// uses; commands with additional accepted SWs build on top of it.
func defaultSuccess() apdu.SuccessSet { return apdu.NewSuccessSet(apdu.SWSuccess) }

// checkRange validates an integer is within [lo, hi]; used throughout
// the catalogue to enforce §4.3's parameter ranges at Encode time.
func checkRange(op string, v, lo, hi int) error {
	if v < lo || v > hi {
		return calypsoerr.New(calypsoerr.InvalidInput, op, "value out of range")
	}
	return nil
}
