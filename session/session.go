// Package session implements the secure-session state machine: the
// sub-engine inside the transaction manager that tracks whether a
// session is open, its write access level, ratification, encryption
// mode and running MAC, and that decides when atomic session
// splitting is required (§4.4). Grounded on the teacher's
// card/globalplatform_scp02.go and scp03.go session-state pattern,
// generalized from GlobalPlatform's C-MAC chaining to Calypso's
// open/close/cancel session lifecycle.
package session

import (
	"calypsocore/calypsoerr"
	"calypsocore/cryptoadapter"
	"calypsocore/profile"
)

// State is one node of the secure-session state machine (§4.4).
type State int

const (
	Idle State = iota
	QueuedOpen
	Open
	Closing
	Cancelled
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case QueuedOpen:
		return "QueuedOpen"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Cancelled:
		return "Cancelled"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// SecureSession tracks one Calypso secure session's lifecycle and
// delegates MAC bookkeeping to the injected symmetric crypto
// collaborator. One instance is owned by one transaction manager for
// the life of one transaction (§5).
type SecureSession struct {
	state State
	wal   profile.WriteAccessLevel

	extendedMode bool
	ratified     bool
	encryption   bool

	bufferCapacity int
	bufferUsed     int

	lastDiversifier []byte

	crypto cryptoadapter.SymmetricCryptoService
}

// New builds a SecureSession in the Idle state, bound to crypto for
// the lifetime of one transaction.
func New(crypto cryptoadapter.SymmetricCryptoService) *SecureSession {
	return &SecureSession{state: Idle, crypto: crypto}
}

func (s *SecureSession) State() State                       { return s.state }
func (s *SecureSession) WriteAccessLevel() profile.WriteAccessLevel { return s.wal }
func (s *SecureSession) EncryptionOn() bool                  { return s.encryption }
func (s *SecureSession) Ratified() bool                      { return s.ratified }

// RequestOpen validates the exactly-once-open contract and moves the
// state machine to QueuedOpen; the manager then builds and sends the
// Open-Secure-Session APDU.
func (s *SecureSession) RequestOpen(wal profile.WriteAccessLevel) error {
	if s.state != Idle {
		return calypsoerr.New(calypsoerr.InvalidState, "RequestOpen", "a session is already open or queued")
	}
	s.wal = wal
	s.state = QueuedOpen
	return nil
}

// ConfirmOpen completes the transition to Open once the card's
// Open-Secure-Session response has been parsed.
func (s *SecureSession) ConfirmOpen(extendedMode bool, bufferCapacity int, ratified bool) error {
	if s.state != QueuedOpen {
		return calypsoerr.New(calypsoerr.InvalidState, "ConfirmOpen", "no open-session request pending")
	}
	s.extendedMode = extendedMode
	s.bufferCapacity = bufferCapacity
	s.bufferUsed = 0
	s.ratified = ratified
	s.state = Open
	return nil
}

// Feed updates the running session MAC with one command's bytes and
// then its response bytes, per §4.4's "each APDU sent inside a
// session is fed to the crypto collaborator... and again with the
// response bytes". The manager must call this for every command
// issued while the state is Open.
func (s *SecureSession) Feed(cmdBytes, respBytes []byte) error {
	if s.state != Open {
		return calypsoerr.New(calypsoerr.InvalidState, "Feed", "session is not open")
	}
	if _, err := s.crypto.UpdateTerminalSessionMac(cmdBytes); err != nil {
		return calypsoerr.Wrap(calypsoerr.Transport, "Feed", err)
	}
	if _, err := s.crypto.UpdateTerminalSessionMac(respBytes); err != nil {
		return calypsoerr.Wrap(calypsoerr.Transport, "Feed", err)
	}
	return nil
}

// AddBufferBytes accounts for one session-buffer-consuming command's
// payload size; WouldOverflow reports whether a further command would
// overflow the card's modification buffer, requiring atomic splitting
// (§4.3, §4.4).
func (s *SecureSession) AddBufferBytes(n int) {
	s.bufferUsed += n
}

// WouldOverflow reports whether adding n more buffer bytes would
// exceed the card's session modification buffer.
func (s *SecureSession) WouldOverflow(n int) bool {
	if s.bufferCapacity <= 0 {
		return false
	}
	return s.bufferUsed+n > s.bufferCapacity
}

// BeginAtomicSplit resets the buffer accounting after a Close/Open
// pair has been emitted mid-transaction. The split itself runs the
// session through Closing, Idle and QueuedOpen back to Open at the
// same WAL; this call is made once it is Open again.
func (s *SecureSession) BeginAtomicSplit() {
	s.bufferUsed = 0
}

// RequestClose validates that a session is open before moving to
// Closing; the manager then sends Close-Secure-Session.
func (s *SecureSession) RequestClose() error {
	if s.state != Open {
		return calypsoerr.New(calypsoerr.InvalidState, "RequestClose", "no open session to close")
	}
	s.state = Closing
	return nil
}

// ConfirmClose validates the card's returned session MAC and
// completes the Closing→Idle transition, or raises InvalidCardMac and
// moves to Idle per §4.4 ("Closing -> card MAC invalid -> raises
// InvalidCardMac; Idle").
func (s *SecureSession) ConfirmClose(cardMacValid bool) error {
	if s.state != Closing {
		return calypsoerr.New(calypsoerr.InvalidState, "ConfirmClose", "no close in progress")
	}
	s.state = Idle
	if !cardMacValid {
		return calypsoerr.New(calypsoerr.InvalidCardMac, "ConfirmClose", "card session MAC failed verification")
	}
	return nil
}

// RequestCancel moves to Cancelled from either Idle or Open; in both
// cases the manager then sends the Abort APDU and checks its status
// word against the command's tolerant success set.
func (s *SecureSession) RequestCancel() error {
	if s.state != Idle && s.state != Open {
		return calypsoerr.New(calypsoerr.InvalidState, "RequestCancel", "cannot cancel from this state")
	}
	s.state = Cancelled
	return nil
}

// Abort forces the Aborted state; the manager calls this when a
// processCommands drain fails mid-session (§7: "leave the session in
// Aborted state").
func (s *SecureSession) Abort() {
	s.state = Aborted
}

// RequireExtendedMode returns Unsupported unless the session is open
// in extended mode, gating prepareEarlyMutualAuthentication and the
// encryption toggles.
func (s *SecureSession) RequireExtendedMode(op string) error {
	if s.state != Open {
		return calypsoerr.New(calypsoerr.InvalidState, op, "no session open")
	}
	if !s.extendedMode {
		return calypsoerr.New(calypsoerr.Unsupported, op, "extended mode required")
	}
	return nil
}

// SetEncryption toggles encryption mode once extended-mode is
// confirmed open.
func (s *SecureSession) SetEncryption(on bool) error {
	if err := s.RequireExtendedMode("SetEncryption"); err != nil {
		return err
	}
	s.encryption = on
	if on {
		return s.crypto.ActivateEncryption()
	}
	return s.crypto.DeactivateEncryption()
}

// NeedsDiversifierSelect reports whether diversifier differs from the
// last one selected, tracking it so repeated commands against the
// same diversifier emit at most one SELECT-DIVERSIFIER (§4.4).
func (s *SecureSession) NeedsDiversifierSelect(diversifier []byte) bool {
	if bytesEqual(s.lastDiversifier, diversifier) {
		return false
	}
	s.lastDiversifier = append([]byte(nil), diversifier...)
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
