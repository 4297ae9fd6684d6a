package transaction

import (
	"calypsocore/calypsoerr"
)

// Traceability carries the optional SAM-traceability parameters for a
// signature compute/verify call: offsetBits is where the SAM identity
// sits in the signed message, partial meaning a 24-bit SAM-info field
// instead of the full 32 bits (§4.3, §4.6). The parameters are range-
// checked only; they are not passed to the SAM collaborator, which
// embeds nothing.
type Traceability struct {
	Enabled   bool
	OffsetBits int
	Partial    bool
}

func (t *Traceability) samInfoBits() int {
	if t != nil && t.Partial {
		return 24
	}
	return 32
}

func (t *Traceability) enabled() bool { return t != nil && t.Enabled }

const defaultSignatureSize = 8

func validateSignatureParams(op string, message []byte, diversifier []byte, sigSize int, trace *Traceability) error {
	maxLen := 208
	if trace.enabled() {
		maxLen = 206
	}
	if err := checkRange(op, len(message), 1, maxLen); err != nil {
		return err
	}
	if err := checkRange(op, sigSize, 1, 8); err != nil {
		return err
	}
	if len(diversifier) > 0 {
		if err := checkRange(op, len(diversifier), 1, 8); err != nil {
			return err
		}
	}
	if trace.enabled() {
		maxOffset := len(message)*8 - trace.samInfoBits()
		if err := checkRange(op, trace.OffsetBits, 0, maxOffset); err != nil {
			return err
		}
	}
	return nil
}

// ComputeSignature asks the SAM collaborator to sign message under
// (kif, kvc), diversified by diversifier if non-empty, truncated to
// sigSize bytes (default 8 when 0 is passed) (§4.6). This is an
// out-of-session operation: it does not require or touch a secure
// session.
func (m *Manager) ComputeSignature(message []byte, kif, kvc byte, diversifier []byte, sigSize int, trace *Traceability) ([]byte, error) {
	if sigSize == 0 {
		sigSize = defaultSignatureSize
	}
	if err := validateSignatureParams("computeSignature", message, diversifier, sigSize, trace); err != nil {
		return nil, err
	}
	return m.symmetric.GenerateSamSignature(message, kif, kvc, diversifier, sigSize)
}

// VerifySignature asks the SAM collaborator to verify signature over
// message under (kif, kvc); when the security setting carries a SAM
// revocation service, the SAM identity/t-num the SAM extracts from the
// signing context is checked against it, failing with SamRevoked
// (§4.6).
func (m *Manager) VerifySignature(message, signature []byte, kif, kvc byte, diversifier []byte, trace *Traceability) error {
	sigSize := len(signature)
	if sigSize == 0 {
		sigSize = defaultSignatureSize
	}
	if err := validateSignatureParams("verifySignature", message, diversifier, sigSize, trace); err != nil {
		return err
	}
	valid, samID, samTNum, err := m.symmetric.VerifySamSignature(message, signature, kif, kvc, diversifier)
	if err != nil {
		return calypsoerr.Wrap(calypsoerr.Transport, "verifySignature", err)
	}
	if !valid {
		return calypsoerr.New(calypsoerr.InvalidSignature, "verifySignature", "SAM rejected the signature")
	}
	if m.security.revocationService != nil {
		samIDBytes := []byte{byte(samID >> 24), byte(samID >> 16), byte(samID >> 8), byte(samID)}
		revoked, err := m.security.revocationService.IsRevoked(samIDBytes, samTNum)
		if err != nil {
			return calypsoerr.Wrap(calypsoerr.Transport, "verifySignature", err)
		}
		if revoked {
			return calypsoerr.New(calypsoerr.SamRevoked, "verifySignature", "SAM traceability tuple is revoked")
		}
	}
	return nil
}
