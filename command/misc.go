package command

import (
	"calypsocore/apdu"
	"calypsocore/calypsoerr"
	"calypsocore/profile"
)

// efListTag is the outer tag of a GetData EF-list response (§6): tag
// C0, value a sequence of inner C1-tagged 6-byte entries
// LID(2) SFI(1) EFT(1) RS(1) RN(1).
const efListTag = 0xC0
const efListEntryTag = 0xC1
const efListEntryLen = 6

// GetData fetches one tagged data object by its BER-TLV tag. Tag
// 0xC0 (EF-list) gets dedicated parsing into FileHeader entries
// registered on the profile's file cache (§3/§6); any other tag lands
// in CardProfile.GenericData, raw.
type GetData struct {
	Tag uint16
}

func (c *GetData) Name() string { return "GetData" }
func (c *GetData) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xCA, P1: byte(c.Tag >> 8), P2: byte(c.Tag), Le: le(0x00)}}, nil
}
func (c *GetData) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *GetData) UsesSessionBuffer() bool      { return false }
func (c *GetData) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	if c.Tag == efListTag {
		return parseEFList(resp.Data, p)
	}
	p.GenericData[byte(c.Tag)] = append([]byte(nil), resp.Data...)
	return nil
}

// parseEFList decodes a GetData(0xC0) EF-list response and registers a
// FileHeader for every entry it finds. An unrecognized EFT byte is
// InvalidState per §6. value may be the whole C0 element, whose
// envelope is unwrapped here, or the bare sequence of C1 entries.
func parseEFList(value []byte, p *profile.CardProfile) error {
	if len(value) >= 2 && value[0] == efListTag {
		inner, err := apdu.ParseEnvelope(value, efListTag)
		if err != nil {
			return err
		}
		value = inner
	}
	rest := value
	for len(rest) >= 2 {
		tag := rest[0]
		length := int(rest[1])
		if tag != efListEntryTag || length != efListEntryLen || 2+length > len(rest) {
			return calypsoerr.New(calypsoerr.Parse, "parseEFList", "malformed EF-list entry")
		}
		entry := rest[2 : 2+length]
		rest = rest[2+length:]

		lid := uint16(entry[0])<<8 | uint16(entry[1])
		sfi := entry[2]
		eft, ok := profile.EFTypeFromByte(entry[3])
		if !ok {
			return calypsoerr.New(calypsoerr.InvalidState, "parseEFList", "unrecognized EF type byte")
		}
		recordSize := int(entry[4])
		recordsNumber := int(entry[5])

		f, err := profile.NewFileHeader(lid, sfi, eft, recordSize, recordsNumber)
		if err != nil {
			return err
		}
		p.AddFile(f)
	}
	return nil
}

// Invalidate marks the DF invalidated; Rehabilitate clears that mark.
// Both are personalization/maintenance commands; neither the command
// nor the transaction manager checks that a secure session is open or
// which write access level it was opened at (§4.3).
type Invalidate struct{}

func (c *Invalidate) Name() string { return "Invalidate" }
func (c *Invalidate) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x04, P1: 0x00, P2: 0x00}}, nil
}
func (c *Invalidate) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *Invalidate) UsesSessionBuffer() bool      { return true }
func (c *Invalidate) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	p.DFInvalidated = true
	return nil
}

type Rehabilitate struct{}

func (c *Rehabilitate) Name() string { return "Rehabilitate" }
func (c *Rehabilitate) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x44, P1: 0x00, P2: 0x00}}, nil
}
func (c *Rehabilitate) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *Rehabilitate) UsesSessionBuffer() bool      { return true }
func (c *Rehabilitate) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	p.DFInvalidated = false
	return nil
}
