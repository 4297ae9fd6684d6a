package command

import (
	"calypsocore/apdu"
	"calypsocore/profile"
)

// SelectDiversifier selects which SAM key diversifier subsequent SAM
// calls use (§4.4's "at most one SELECT-DIVERSIFIER per diversifier
// change" rule is enforced by the transaction manager, which only
// emits this command when the diversifier actually changes).
type SelectDiversifier struct {
	Diversifier []byte // 1..8 bytes
}

func (c *SelectDiversifier) Name() string { return "SelectDiversifier" }
func (c *SelectDiversifier) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("SelectDiversifier", len(c.Diversifier), 1, 8); err != nil {
		return nil, err
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x14, P1: 0x00, P2: 0x00, Data: c.Diversifier}}, nil
}
func (c *SelectDiversifier) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *SelectDiversifier) UsesSessionBuffer() bool      { return false }
func (c *SelectDiversifier) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return nil
}

// OpenSecureSession opens a session at WriteAccessLevel wal. When
// MergedSFI/MergedRecNum are set, the first pending read-record is
// promoted into this APDU per §4.3's read-on-open merging (P1 carries
// the SFI, Le carries the record number); the session engine (package
// session) interprets the raw response, not this command's Parse,
// because that requires the crypto collaborator.
type OpenSecureSession struct {
	WAL          profile.WriteAccessLevel
	SamChallenge []byte
	MergedSFI    byte
	MergedRecNum int
	Merge        bool
}

func (c *OpenSecureSession) Name() string { return "OpenSecureSession" }
func (c *OpenSecureSession) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	p1 := byte(c.WAL)
	le0 := byte(0x00)
	if c.Merge {
		p1 |= c.MergedSFI << 3
		le0 = byte(c.MergedRecNum)
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x8A, P1: p1, P2: 0x00, Data: c.SamChallenge, Le: le(le0)}}, nil
}
func (c *OpenSecureSession) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *OpenSecureSession) UsesSessionBuffer() bool      { return false }
func (c *OpenSecureSession) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return nil
}

// CloseSecureSession closes the open session, carrying the terminal
// session MAC computed by finalizeTerminalSessionMac.
type CloseSecureSession struct {
	TerminalMAC []byte
	Ratify      bool
}

func (c *CloseSecureSession) Name() string { return "CloseSecureSession" }
func (c *CloseSecureSession) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	p1 := byte(0x00)
	if !c.Ratify {
		p1 = 0x80
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x8E, P1: p1, P2: 0x00, Data: c.TerminalMAC, Le: le(0x00)}}, nil
}
func (c *CloseSecureSession) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *CloseSecureSession) UsesSessionBuffer() bool      { return false }
func (c *CloseSecureSession) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return nil
}

// CancelSecureSession sends the Abort APDU. The manager checks its
// status word against SuccessSWs whether or not a session was open; a
// status outside that set fails the drain in both cases.
type CancelSecureSession struct{}

func (c *CancelSecureSession) Name() string { return "CancelSecureSession" }
func (c *CancelSecureSession) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x8E, P1: 0xAB, P2: 0x00}}, nil
}
func (c *CancelSecureSession) SuccessSWs() apdu.SuccessSet {
	return apdu.NewSuccessSet(apdu.SWSuccess, apdu.SWConditionsNotSat, apdu.SWSecurityNotSatisfied)
}
func (c *CancelSecureSession) UsesSessionBuffer() bool { return false }
func (c *CancelSecureSession) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return nil
}

// ManageSecureSessionMode selects what a ManageSecureSession command
// does: the single real MANAGE SECURE SESSION APDU covers early mutual
// authentication and toggling encryption, gated to extended-mode
// sessions (§4.4).
type ManageSecureSessionMode int

const (
	EarlyMutualAuthentication ManageSecureSessionMode = iota
	ActivateEncryption
	DeactivateEncryption
)

// ManageSecureSession carries one of the extended-mode in-session
// sub-operations.
type ManageSecureSession struct {
	Mode       ManageSecureSessionMode
	CardMACArg []byte // terminal-supplied data for early mutual auth
}

func (c *ManageSecureSession) Name() string { return "ManageSecureSession" }
func (c *ManageSecureSession) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	var p1 byte
	switch c.Mode {
	case EarlyMutualAuthentication:
		p1 = 0x01
	case ActivateEncryption:
		p1 = 0x02
	case DeactivateEncryption:
		p1 = 0x03
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x82, P1: p1, P2: 0x00, Data: c.CardMACArg}}, nil
}
func (c *ManageSecureSession) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ManageSecureSession) UsesSessionBuffer() bool      { return false }
func (c *ManageSecureSession) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return nil
}
