package cryptoadapter

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"calypsocore/calypsoerr"
)

// SoftPKI is a non-production in-process AsymmetricCryptoService using
// stdlib ECDSA (P-256) for card/CA certificate signature checks.
type SoftPKI struct {
	parsers map[byte]CertificateParser
	trusted map[[29]byte]*ecdsa.PublicKey
}

// NewSoftPKI returns an empty SoftPKI; callers populate trust with
// Trust and parsers with RegisterCertificateParser.
func NewSoftPKI() *SoftPKI {
	return &SoftPKI{
		parsers: make(map[byte]CertificateParser),
		trusted: make(map[[29]byte]*ecdsa.PublicKey),
	}
}

// Trust registers a known-good public key under its 29-byte reference.
func (s *SoftPKI) Trust(ref [29]byte, pub *ecdsa.PublicKey) {
	s.trusted[ref] = pub
}

func (s *SoftPKI) RegisterCertificateParser(certType byte, parser CertificateParser) error {
	if _, exists := s.parsers[certType]; exists {
		return calypsoerr.New(calypsoerr.InvalidState, "RegisterCertificateParser", "certificate type already registered")
	}
	s.parsers[certType] = parser
	return nil
}

func (s *SoftPKI) ValidateCertificate(certType byte, raw []byte, pubKeyRef [29]byte) error {
	parser, ok := s.parsers[certType]
	if !ok {
		return calypsoerr.New(calypsoerr.InvalidCertificate, "ValidateCertificate", "no parser registered for certificate type")
	}
	cert, err := parser.Parse(raw)
	if err != nil {
		return calypsoerr.Wrap(calypsoerr.InvalidCertificate, "ValidateCertificate", err)
	}
	if cert.Issuer != pubKeyRef {
		return calypsoerr.New(calypsoerr.InvalidCertificate, "ValidateCertificate", "issuer reference mismatch")
	}
	if _, ok := s.trusted[pubKeyRef]; !ok {
		return calypsoerr.New(calypsoerr.InvalidCertificate, "ValidateCertificate", "public key reference not trusted")
	}
	return nil
}

func (s *SoftPKI) VerifySignature(message, signature, publicKeyDER []byte) (bool, error) {
	pub, err := parseECDSAPublicKey(publicKeyDER)
	if err != nil {
		return false, calypsoerr.Wrap(calypsoerr.InvalidSignature, "VerifySignature", err)
	}
	if len(signature) != 64 {
		return false, nil
	}
	r := new(big.Int).SetBytes(signature[:32])
	sVal := new(big.Int).SetBytes(signature[32:])
	digest := sha256.Sum256(message)
	return ecdsa.Verify(pub, digest[:], r, sVal), nil
}

// parseECDSAPublicKey decodes an uncompressed P-256 point (0x04 || X
// || Y, 65 bytes).
func parseECDSAPublicKey(der []byte) (*ecdsa.PublicKey, error) {
	if len(der) != 65 || der[0] != 0x04 {
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "parseECDSAPublicKey", "expected uncompressed P-256 point")
	}
	curve := elliptic.P256()
	x := new(big.Int).SetBytes(der[1:33])
	y := new(big.Int).SetBytes(der[33:65])
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// GenerateTestKey is a test-only convenience for creating a signing
// key and its uncompressed-point DER form.
func GenerateTestKey() (*ecdsa.PrivateKey, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	der := elliptic.Marshal(priv.Curve, priv.PublicKey.X, priv.PublicKey.Y)
	return priv, der, nil
}
