package transaction

import "calypsocore/cryptoadapter"

// keyRef is the (KIF, KVC) pair a security setting authorizes.
type keyRef struct {
	KIF, KVC byte
}

// SecuritySetting is the fluent, per-reader security policy a Manager
// is built from: PIN ciphering mode, multiple-session opt-in,
// read-on-open merging opt-out, the control SAM resource name, the
// authorized session-key allow-list and an optional SAM revocation
// service (§4.3, §4.4, §4.6, §6).
type SecuritySetting struct {
	pinPlainTransmission bool

	pinCipheringKIF byte
	pinCipheringKVC byte

	multipleSession          bool
	disableReadOnOpen        bool
	controlSamResourceName   string
	authorizedKeys           map[keyRef]struct{}
	revocationService        cryptoadapter.RevocationService
}

// NewSecuritySetting returns a SecuritySetting with an empty
// authorized-key set, which per §4.4 means "any key is authorized".
func NewSecuritySetting() *SecuritySetting {
	return &SecuritySetting{authorizedKeys: make(map[keyRef]struct{})}
}

// EnablePinPlainTransmission allows VerifyPin/ChangePin to carry a
// clear-text PIN instead of a SAM-ciphered block.
func (s *SecuritySetting) EnablePinPlainTransmission() *SecuritySetting {
	s.pinPlainTransmission = true
	return s
}

// SetPinModificationCipheringKey records the key used to cipher a new
// PIN block when plain transmission is not enabled.
func (s *SecuritySetting) SetPinModificationCipheringKey(kif, kvc byte) *SecuritySetting {
	s.pinCipheringKIF, s.pinCipheringKVC = kif, kvc
	return s
}

// EnableMultipleSession allows the manager to split a transaction
// across several Close/Open pairs instead of raising
// SessionBufferOverflow (§4.4).
func (s *SecuritySetting) EnableMultipleSession() *SecuritySetting {
	s.multipleSession = true
	return s
}

// DisableReadOnSessionOpening turns off the §4.3 optimization that
// promotes the first pending read-record into the Open-Secure-Session
// APDU.
func (s *SecuritySetting) DisableReadOnSessionOpening() *SecuritySetting {
	s.disableReadOnOpen = true
	return s
}

// SetControlSamResource records the resource identifier the SAM
// collaborator is bound to; it is only stored, and the manager neither
// reads nor logs it.
func (s *SecuritySetting) SetControlSamResource(name string) *SecuritySetting {
	s.controlSamResourceName = name
	return s
}

// AddAuthorizedSessionKey adds one (KIF, KVC) pair to the authorized
// set a card's advertised open-session key must belong to (§4.4).
func (s *SecuritySetting) AddAuthorizedSessionKey(kif, kvc byte) *SecuritySetting {
	s.authorizedKeys[keyRef{kif, kvc}] = struct{}{}
	return s
}

// SetSamRevocationService installs the collaborator consulted by
// signature verification (§4.6).
func (s *SecuritySetting) SetSamRevocationService(svc cryptoadapter.RevocationService) *SecuritySetting {
	s.revocationService = svc
	return s
}

// isKeyAuthorized reports whether (kif, kvc) may open a session: an
// empty authorized set means "any" (§4.4).
func (s *SecuritySetting) isKeyAuthorized(kif, kvc byte) bool {
	if len(s.authorizedKeys) == 0 {
		return true
	}
	_, ok := s.authorizedKeys[keyRef{kif, kvc}]
	return ok
}
