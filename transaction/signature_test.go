package transaction

import (
	"testing"

	"calypsocore/calypsoerr"
	"calypsocore/cryptoadapter"
	"calypsocore/profile"
)

func newTestManager(security *SecuritySetting) (*Manager, *cryptoadapter.SoftSAM) {
	sam := cryptoadapter.NewSoftSAM([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	sam.SamID = 0xCAFEBABE
	if security == nil {
		security = NewSecuritySetting()
	}
	m := NewManager(profile.New(), nil, sam, nil, security)
	return m, sam
}

func TestComputeAndVerifySignatureRoundTrip(t *testing.T) {
	m, _ := newTestManager(nil)
	message := []byte("hello calypso")

	sig, err := m.ComputeSignature(message, 0x21, 0x79, nil, 8, nil)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}
	if len(sig) != 8 {
		t.Fatalf("expected 8-byte signature, got %d", len(sig))
	}

	if err := m.VerifySignature(message, sig, 0x21, 0x79, nil, nil); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
}

func TestVerifySignatureRejectsTamperedMessage(t *testing.T) {
	m, _ := newTestManager(nil)
	message := []byte("hello calypso")

	sig, err := m.ComputeSignature(message, 0x21, 0x79, nil, 8, nil)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}

	err = m.VerifySignature([]byte("hello CALYPSO"), sig, 0x21, 0x79, nil, nil)
	if kind, ok := calypsoerr.KindOf(err); !ok || kind != calypsoerr.InvalidSignature {
		t.Fatalf("expected InvalidSignature, got %v", err)
	}
}

func TestComputeSignatureValidatesMessageLength(t *testing.T) {
	m, _ := newTestManager(nil)

	if _, err := m.ComputeSignature(nil, 0x21, 0x79, nil, 8, nil); err == nil {
		t.Fatalf("expected error for empty message")
	}

	over := make([]byte, 209)
	if _, err := m.ComputeSignature(over, 0x21, 0x79, nil, 8, nil); err == nil {
		t.Fatalf("expected error for message over 208 bytes")
	}
}

func TestComputeSignatureValidatesTraceabilityOffset(t *testing.T) {
	m, _ := newTestManager(nil)
	message := make([]byte, 32)

	trace := &Traceability{Enabled: true, OffsetBits: 250, Partial: true}
	if _, err := m.ComputeSignature(message, 0x21, 0x79, nil, 8, trace); err == nil {
		t.Fatalf("expected error: offset + samInfoBits exceeds message bit length")
	}

	trace = &Traceability{Enabled: true, OffsetBits: 0, Partial: true}
	if _, err := m.ComputeSignature(message, 0x21, 0x79, nil, 8, trace); err != nil {
		t.Fatalf("expected valid traceability offset to pass, got %v", err)
	}
}

func TestComputeSignatureRejectsOversizeMessageWithTraceability(t *testing.T) {
	m, _ := newTestManager(nil)
	over := make([]byte, 207)
	trace := &Traceability{Enabled: true, OffsetBits: 0, Partial: true}
	if _, err := m.ComputeSignature(over, 0x21, 0x79, nil, 8, trace); err == nil {
		t.Fatalf("expected error for message over 206 bytes with traceability enabled")
	}
}

type stubRevocationService struct {
	revoked bool
}

func (s *stubRevocationService) IsRevoked(samID []byte, samTNum uint32) (bool, error) {
	return s.revoked, nil
}

func TestVerifySignatureHonorsRevocationService(t *testing.T) {
	revocation := &stubRevocationService{revoked: true}
	security := NewSecuritySetting().SetSamRevocationService(revocation)
	m, _ := newTestManager(security)
	message := []byte("revoked sam test")

	sig, err := m.ComputeSignature(message, 0x21, 0x79, nil, 8, nil)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}

	err = m.VerifySignature(message, sig, 0x21, 0x79, nil, nil)
	if kind, ok := calypsoerr.KindOf(err); !ok || kind != calypsoerr.SamRevoked {
		t.Fatalf("expected SamRevoked, got %v", err)
	}
}

func TestComputeSignatureWithDiversifier(t *testing.T) {
	m, _ := newTestManager(nil)
	message := []byte("diversified message")
	diversifier := []byte{0x01, 0x02, 0x03, 0x04}

	sig, err := m.ComputeSignature(message, 0x21, 0x79, diversifier, 4, nil)
	if err != nil {
		t.Fatalf("ComputeSignature: %v", err)
	}
	if len(sig) != 4 {
		t.Fatalf("expected 4-byte signature, got %d", len(sig))
	}

	if err := m.VerifySignature(message, sig, 0x21, 0x79, diversifier, nil); err != nil {
		t.Fatalf("VerifySignature with diversifier: %v", err)
	}

	if err := m.VerifySignature(message, sig, 0x21, 0x79, []byte{0x09, 0x09, 0x09, 0x09}, nil); err == nil {
		t.Fatalf("expected verification to fail with a different diversifier")
	}
}
