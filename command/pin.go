package command

import (
	"calypsocore/apdu"
	"calypsocore/profile"
)

// GetChallenge requests an 8-byte random challenge from the card,
// consumed by PIN/key ciphering (§4.6, §6).
type GetChallenge struct{}

func (c *GetChallenge) Name() string { return "GetChallenge" }
func (c *GetChallenge) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x84, P1: 0x00, P2: 0x00, Le: le(0x08)}}, nil
}
func (c *GetChallenge) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *GetChallenge) UsesSessionBuffer() bool      { return false }
func (c *GetChallenge) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	p.CardChallenge = append([]byte(nil), resp.Data...)
	return nil
}

// VerifyPin checks a 4-byte PIN, in the clear or already ciphered by
// the caller's crypto collaborator per the security setting
// enablePinPlainTransmission (§4.3, §6). StatusOnly issues the
// "check PIN status" variant (no Lc/data, P1/P2 0x00/0x00).
//
// PendingCipherPIN carries the raw PIN when ciphering must wait for a
// fresh card challenge: the transaction manager auto-enqueues a
// GetChallenge ahead of this command and fills Data in from
// PendingCipherPIN right before Encode runs (§4.6).
type VerifyPin struct {
	Data             []byte // 4 bytes plain, or a ciphered block, already resolved
	StatusOnly       bool
	PendingCipherPIN []byte
}

func (c *VerifyPin) Name() string { return "VerifyPin" }
func (c *VerifyPin) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if c.StatusOnly {
		return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x20, P1: 0x00, P2: 0x00}}, nil
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x20, P1: 0x00, P2: 0x00, Data: c.Data}}, nil
}
func (c *VerifyPin) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *VerifyPin) UsesSessionBuffer() bool      { return false }
func (c *VerifyPin) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error { return nil }

// ChangePin carries a ciphered new-PIN block, already computed by the
// symmetric crypto collaborator's cipherPinForModification.
//
// PendingNewPIN carries the raw new PIN when ciphering must wait for a
// fresh card challenge, resolved the same way as VerifyPin's
// PendingCipherPIN.
type ChangePin struct {
	CipheredBlock []byte
	PendingNewPIN []byte
}

func (c *ChangePin) Name() string { return "ChangePin" }
func (c *ChangePin) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x24, P1: 0x00, P2: 0x00, Data: c.CipheredBlock}}, nil
}
func (c *ChangePin) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ChangePin) UsesSessionBuffer() bool      { return true }
func (c *ChangePin) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error { return nil }

// ChangeKey carries a ciphered key block, already computed by
// generateCipheredCardKey, for the key at keyIndex.
//
// When PendingCipher is set, the block has not been computed yet: the
// transaction manager fills CipheredBlock in from the Pending* fields
// right before Encode runs, once the auto-enqueued GetChallenge ahead
// of this command has refreshed the card challenge.
type ChangeKey struct {
	KeyIndex      byte
	CipheredBlock []byte

	PendingCipher    bool
	PendingKIF       byte
	PendingKVC       byte
	PendingIssuerKIF byte
	PendingIssuerKVC byte
}

func (c *ChangeKey) Name() string { return "ChangeKey" }
func (c *ChangeKey) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xD8, P1: c.KeyIndex, P2: 0x00, Data: c.CipheredBlock}}, nil
}
func (c *ChangeKey) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ChangeKey) UsesSessionBuffer() bool      { return true }
func (c *ChangeKey) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error { return nil }
