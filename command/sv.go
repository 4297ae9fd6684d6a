package command

import (
	"calypsocore/apdu"
	"calypsocore/calypsoerr"
	"calypsocore/profile"
)

// SVOperation selects which SV-Get variant to request: the card
// returns a different header shape for reload versus debit/undebit
// previews (§4.5).
type SVOperation int

const (
	SVOpReload SVOperation = iota
	SVOpDebitOrUndebit
)

// SvGet must precede any SvReload/SvDebit/SvUndebit in a transaction
// (§3, §4.5); it fetches the current balance and the last log entry's
// transaction number, consumed by the crypto collaborator to build the
// reload/debit signature.
type SvGet struct {
	Operation SVOperation
}

func (c *SvGet) Name() string { return "SvGet" }
func (c *SvGet) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	p1 := byte(0x00)
	if c.Operation == SVOpDebitOrUndebit {
		p1 = 0x01
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x7C, P1: p1, P2: 0x00, Le: le(0x00)}}, nil
}
func (c *SvGet) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *SvGet) UsesSessionBuffer() bool      { return false }
func (c *SvGet) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	if len(resp.Data) < 3 {
		return calypsoerr.New(calypsoerr.Parse, "SvGet.Parse", "response shorter than balance field")
	}
	p.SV.GotSVGet = true
	p.SV.Balance = decode3Signed32(resp.Data[:3])
	if len(resp.Data) >= 5 {
		p.SV.LastTNum = uint16(resp.Data[3])<<8 | uint16(resp.Data[4])
	}
	return nil
}

// decode3Signed32 reads a 3-byte two's-complement signed integer.
func decode3Signed32(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if b[0]&0x80 != 0 {
		v -= 1 << 24
	}
	return v
}

func encode3Signed32(v int32) []byte {
	u := uint32(v) & 0x00FFFFFF
	return []byte{byte(u >> 16), byte(u >> 8), byte(u)}
}

// SvReload adds amount (may be negative per card rules, though callers
// normally pass positive values) to the SV balance, carrying the
// terminal signature already computed from the SvGet challenge data.
type SvReload struct {
	Amount      int32
	Date        [2]byte
	Time        [2]byte
	FreeData    [2]byte
	TerminalSig []byte
}

func (c *SvReload) Name() string { return "SvReload" }
func (c *SvReload) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := p.RequireSVGet("SvReload"); err != nil {
		return nil, err
	}
	data := append([]byte{}, encode3Signed32(c.Amount)...)
	data = append(data, c.Date[0], c.Date[1], c.Time[0], c.Time[1], c.FreeData[0], c.FreeData[1])
	data = append(data, c.TerminalSig...)
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x56, P1: 0x00, P2: 0x00, Data: data}}, nil
}
func (c *SvReload) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *SvReload) UsesSessionBuffer() bool      { return true }
func (c *SvReload) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	p.SV.Balance += c.Amount
	p.SV.LastTNum++
	return nil
}

// SvDebit subtracts amount from the SV balance; SvUndebit reverses a
// prior debit by the same wire shape with a different P2, both gated
// on a prior SvGet (§4.5); the operation that SvGet was issued for is
// not checked.
type SvDebit struct {
	Amount      int32
	Date        [2]byte
	Time        [2]byte
	TerminalSig []byte
}

func (c *SvDebit) Name() string { return "SvDebit" }
func (c *SvDebit) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := p.RequireSVGet("SvDebit"); err != nil {
		return nil, err
	}
	data := append([]byte{}, encode3Signed32(c.Amount)...)
	data = append(data, c.Date[0], c.Date[1], c.Time[0], c.Time[1])
	data = append(data, c.TerminalSig...)
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x54, P1: 0x00, P2: 0x00, Data: data}}, nil
}
func (c *SvDebit) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *SvDebit) UsesSessionBuffer() bool      { return true }
func (c *SvDebit) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	p.SV.Balance -= c.Amount
	p.SV.LastTNum++
	return nil
}

type SvUndebit struct {
	Amount      int32
	Date        [2]byte
	Time        [2]byte
	TerminalSig []byte
}

func (c *SvUndebit) Name() string { return "SvUndebit" }
func (c *SvUndebit) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := p.RequireSVGet("SvUndebit"); err != nil {
		return nil, err
	}
	data := append([]byte{}, encode3Signed32(c.Amount)...)
	data = append(data, c.Date[0], c.Date[1], c.Time[0], c.Time[1])
	data = append(data, c.TerminalSig...)
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x54, P1: 0x00, P2: 0x01, Data: data}}, nil
}
func (c *SvUndebit) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *SvUndebit) UsesSessionBuffer() bool      { return true }
func (c *SvUndebit) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	p.SV.Balance += c.Amount
	p.SV.LastTNum++
	return nil
}

// SVLogRecordSize is the fixed 19-byte SV debit/load log entry layout
// (§6): amount(2, signed) date(2) time(2) KVC(1) SAM id(4) SAM
// t-num(3) balance(3) SV t-num(2).
const SVLogRecordSize = 19

// ParseSVLogRecord decodes one raw debit/reload log entry per §6's
// wire layout into an SVLog value.
func ParseSVLogRecord(raw []byte) (profile.SVLog, error) {
	if len(raw) < SVLogRecordSize {
		return profile.SVLog{}, calypsoerr.New(calypsoerr.Parse, "ParseSVLogRecord", "record shorter than 19 bytes")
	}
	amount := int32(raw[0])<<8 | int32(raw[1])
	if raw[0]&0x80 != 0 {
		amount -= 1 << 16
	}
	return profile.SVLog{
		Amount:  amount,
		Date:    uint16(raw[2])<<8 | uint16(raw[3]),
		Time:    uint16(raw[4])<<8 | uint16(raw[5]),
		KVC:     raw[6],
		SamID:   uint32(raw[7])<<24 | uint32(raw[8])<<16 | uint32(raw[9])<<8 | uint32(raw[10]),
		SamTNum: uint32(raw[11])<<16 | uint32(raw[12])<<8 | uint32(raw[13]),
		Balance: decode3Signed32(raw[14:17]),
		SVTNum:  uint16(raw[17])<<8 | uint16(raw[18]),
	}, nil
}
