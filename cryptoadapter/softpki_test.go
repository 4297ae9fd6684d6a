package cryptoadapter

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"testing"
)

func TestSoftPKIVerifySignatureRoundTrip(t *testing.T) {
	priv, der, err := GenerateTestKey()
	if err != nil {
		t.Fatalf("GenerateTestKey: %v", err)
	}
	pki := NewSoftPKI()
	message := []byte("traceability data")
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("ecdsa.Sign: %v", err)
	}
	sig := make([]byte, 64)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)

	ok, err := pki.VerifySignature(message, sig, der)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Error("expected valid signature to verify")
	}

	tampered := append([]byte{}, message...)
	tampered[0] ^= 0xFF
	ok, err = pki.VerifySignature(tampered, sig, der)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Error("expected tampered message to fail verification")
	}
}

func TestSoftPKIRejectsDuplicateParserRegistration(t *testing.T) {
	pki := NewSoftPKI()
	if err := pki.RegisterCertificateParser(0x01, fakeParser{}); err != nil {
		t.Fatalf("RegisterCertificateParser: %v", err)
	}
	if err := pki.RegisterCertificateParser(0x01, fakeParser{}); err == nil {
		t.Error("expected InvalidState on duplicate registration")
	}
}

type fakeParser struct{}

func (fakeParser) Parse(raw []byte) (Certificate, error) {
	return Certificate{Type: 0x01}, nil
}
