// Package calypsoerr defines the closed error taxonomy raised by the
// transaction engine. Every error the engine returns to a caller wraps
// one of these kinds so callers can branch with errors.As instead of
// string matching.
package calypsoerr

import "fmt"

// Kind identifies one of the error categories from the engine's
// taxonomy. Callers switch on Kind, not on error text.
type Kind int

const (
	// InvalidInput: out-of-range argument, malformed hex, bad length,
	// wrong variant type.
	InvalidInput Kind = iota
	// InvalidState: operation requires a state not currently held.
	InvalidState
	// Unsupported: operation not applicable to this product type or
	// crypto mode.
	Unsupported
	// Parse: FCI or TLV shape does not match expectations.
	Parse
	// UnexpectedCommandStatus: an APDU returned a status word outside
	// its success set.
	UnexpectedCommandStatus
	// InvalidCardMac: the card's returned session MAC failed
	// verification at close.
	InvalidCardMac
	// InvalidSignature: standalone signature verification failed.
	InvalidSignature
	// SamRevoked: the revocation service flagged the SAM traceability
	// tuple.
	SamRevoked
	// UnauthorizedKey: the card's KIF/KVC is not in the authorized set.
	UnauthorizedKey
	// SessionBufferOverflow: modifications would overflow the card's
	// buffer and multiple-session splitting is disabled.
	SessionBufferOverflow
	// InvalidCertificate: a PKI parser rejected a CA or card
	// certificate.
	InvalidCertificate
	// Transport: reader communication broken or timed out.
	Transport
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case InvalidState:
		return "InvalidState"
	case Unsupported:
		return "Unsupported"
	case Parse:
		return "Parse"
	case UnexpectedCommandStatus:
		return "UnexpectedCommandStatus"
	case InvalidCardMac:
		return "InvalidCardMac"
	case InvalidSignature:
		return "InvalidSignature"
	case SamRevoked:
		return "SamRevoked"
	case UnauthorizedKey:
		return "UnauthorizedKey"
	case SessionBufferOverflow:
		return "SessionBufferOverflow"
	case InvalidCertificate:
		return "InvalidCertificate"
	case Transport:
		return "Transport"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type raised by every engine package.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "prepareReadRecord"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a target *Error with the same Kind, so
// errors.Is(err, &calypsoerr.Error{Kind: calypsoerr.InvalidInput})
// works; see KindOf for the common case of testing a Kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error whose Err is a plain error carrying msg; it
// wraps no other cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%s", msg)}
}

// Wrap builds an *Error wrapping an existing error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err if err (or something it wraps)
// is an *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := as(err, &e); ok {
		return e.Kind, true
	}
	return 0, false
}

// as is a tiny local copy of errors.As's unwrap loop, kept here so this
// package has no import-cycle risk with a hypothetical errors helper
// package; callers should prefer the standard errors.As directly.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
