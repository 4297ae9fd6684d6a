package command

import (
	"calypsocore/apdu"
	"calypsocore/calypsoerr"
	"calypsocore/profile"
)

// SelectControl chooses how SelectFile addresses its target.
type SelectControl int

const (
	SelectByLID SelectControl = iota
	SelectNext
)

// SelectFile selects a file by LID or advances to the next occurrence
// of the currently selected DF name (§4.2's fixed encodings).
type SelectFile struct {
	LID     uint16
	Control SelectControl
}

func (c *SelectFile) Name() string { return "Select" }

func (c *SelectFile) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	cla := ClassFor(p.ProductType)
	switch c.Control {
	case SelectByLID:
		return []apdu.Request{{
			CLA: cla, INS: 0xA4, P1: 0x09, P2: 0x00,
			Data: []byte{byte(c.LID >> 8), byte(c.LID)},
			Le:   le(0x00),
		}}, nil
	case SelectNext:
		return []apdu.Request{{
			CLA: cla, INS: 0xA4, P1: 0x02, P2: 0x02,
			Data: []byte{0x00, 0x00},
			Le:   le(0x00),
		}}, nil
	default:
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "Select.Encode", "unknown select control")
	}
}

func (c *SelectFile) SuccessSWs() apdu.SuccessSet { return defaultSuccess().With(apdu.SWInvalidated) }
func (c *SelectFile) UsesSessionBuffer() bool      { return false }
func (c *SelectFile) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	p.DFInvalidated = resp.SW == apdu.SWInvalidated
	return nil
}

// recordP2 encodes the SFI/mode byte shared by record commands. mode
// is the low 3 bits per ISO-7816-4 §7.3 (4 = one record by number, 5 =
// from P1 to last/multiple, 6 = partial read).
func recordP2(sfi byte, mode byte) byte {
	if sfi == 0 {
		return mode
	}
	return sfi<<3 | mode
}

// ReadRecord reads one record by number from a given SFI.
type ReadRecord struct {
	SFI    byte
	RecNum int
}

func (c *ReadRecord) Name() string { return "ReadRecord" }

func (c *ReadRecord) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("ReadRecord", int(c.SFI), 0, 30); err != nil {
		return nil, err
	}
	if err := checkRange("ReadRecord", c.RecNum, 1, 250); err != nil {
		return nil, err
	}
	return []apdu.Request{{
		CLA: ClassFor(p.ProductType), INS: 0xB2, P1: byte(c.RecNum), P2: recordP2(c.SFI, 0x04),
		Le: le(0x00),
	}}, nil
}

func (c *ReadRecord) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ReadRecord) UsesSessionBuffer() bool      { return false }
func (c *ReadRecord) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	f.SetRecord(c.RecNum, resp.Data)
	return nil
}

// recordsPerChunk returns how many records of recSize bytes fit in
// capacity bytes, at least 1.
func recordsPerChunk(capacity, recSize int) int {
	if recSize <= 0 {
		return 1
	}
	n := capacity / recSize
	if n < 1 {
		n = 1
	}
	return n
}

// ReadRecords reads a contiguous range of fixed-size records,
// splitting into multiple APDUs when the range exceeds the card's
// payload capacity (§4.3).
type ReadRecords struct {
	SFI        byte
	From, To   int
	RecordSize int
}

func (c *ReadRecords) Name() string { return "ReadRecords" }

func (c *ReadRecords) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("ReadRecords", c.From, 1, 250); err != nil {
		return nil, err
	}
	if err := checkRange("ReadRecords", c.To, 1, 250); err != nil {
		return nil, err
	}
	if c.To < c.From {
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "ReadRecords", "to must be >= from")
	}
	perChunk := recordsPerChunk(p.PayloadCapacity, c.RecordSize)
	cla := ClassFor(p.ProductType)
	var reqs []apdu.Request
	for start := c.From; start <= c.To; start += perChunk {
		end := start + perChunk - 1
		if end > c.To {
			end = c.To
		}
		count := end - start + 1
		reqs = append(reqs, apdu.Request{
			CLA: cla, INS: 0xB2, P1: byte(start), P2: recordP2(c.SFI, 0x05),
			Le: le(byte(count * c.RecordSize)),
		})
	}
	return reqs, nil
}

func (c *ReadRecords) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ReadRecords) UsesSessionBuffer() bool      { return false }
func (c *ReadRecords) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok || c.RecordSize <= 0 {
		return nil
	}
	perChunk := recordsPerChunk(p.PayloadCapacity, c.RecordSize)
	start := c.From + idx*perChunk
	for i := 0; i*c.RecordSize < len(resp.Data); i++ {
		lo := i * c.RecordSize
		hi := lo + c.RecordSize
		if hi > len(resp.Data) {
			hi = len(resp.Data)
		}
		f.SetRecord(start+i, resp.Data[lo:hi])
	}
	return nil
}

// ReadRecordsPartially reads a byte window from a range of records
// (Prime Revision 2 does not support this: the transaction manager's
// PrepareReadRecordsPartially rejects it with calypsoerr.Unsupported,
// since it owns product-type gating).
type ReadRecordsPartially struct {
	SFI            byte
	From, To       int
	Offset, NBytes int
}

func (c *ReadRecordsPartially) Name() string { return "ReadRecordsPartially" }

func (c *ReadRecordsPartially) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("ReadRecordsPartially", c.Offset, 0, 249); err != nil {
		return nil, err
	}
	cla := ClassFor(p.ProductType)
	var reqs []apdu.Request
	for rec := c.From; rec <= c.To; rec++ {
		reqs = append(reqs, apdu.Request{
			CLA: cla, INS: 0xB2, P1: byte(rec), P2: recordP2(c.SFI, 0x06),
			Data: []byte{byte(c.Offset), byte(c.NBytes)},
			Le:   le(byte(c.NBytes)),
		})
	}
	return reqs, nil
}

func (c *ReadRecordsPartially) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ReadRecordsPartially) UsesSessionBuffer() bool      { return false }
func (c *ReadRecordsPartially) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	f.SetRecord(c.From+idx, resp.Data)
	return nil
}

// binaryAddressing builds P1/P2 for a binary command per ISO-7816-4:
// SFI set uses an 8-bit offset in P2; SFI absent (current file) uses a
// 15-bit offset split across P1/P2.
func binaryAddressing(sfi byte, offset int) (p1, p2 byte) {
	if sfi != 0 {
		return 0x80 | sfi, byte(offset)
	}
	return byte(offset >> 8), byte(offset)
}

// byteChunks splits [0,total) into capacity-sized windows.
func byteChunks(total, capacity int) [][2]int {
	if capacity <= 0 {
		capacity = total
	}
	var out [][2]int
	for off := 0; off < total; off += capacity {
		end := off + capacity
		if end > total {
			end = total
		}
		out = append(out, [2]int{off, end})
	}
	if len(out) == 0 {
		out = append(out, [2]int{0, 0})
	}
	return out
}

// ReadBinary reads nbBytes starting at offset from an SFI (or the
// current file if sfi==0). When sfi!=0 and offset>255 a first APDU
// anchors the SFI by reading at offset 0 before the real read at the
// requested offset, because the offset field only carries 8 bits once
// the SFI bit of P1 is set (§4.3).
type ReadBinary struct {
	SFI            byte
	Offset, NBytes int
}

func (c *ReadBinary) Name() string { return "ReadBinary" }

func (c *ReadBinary) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("ReadBinary", c.Offset, 0, 32767); err != nil {
		return nil, err
	}
	cla := ClassFor(p.ProductType)
	var reqs []apdu.Request
	needsAnchor := c.SFI != 0 && c.Offset > 255
	if needsAnchor {
		p1, p2 := binaryAddressing(c.SFI, 0)
		reqs = append(reqs, apdu.Request{CLA: cla, INS: 0xB0, P1: p1, P2: p2, Le: le(byte(c.NBytes))})
		p1b := byte(c.Offset >> 8)
		p2b := byte(c.Offset)
		reqs = append(reqs, apdu.Request{CLA: cla, INS: 0xB0, P1: p1b, P2: p2b, Le: le(byte(c.NBytes))})
		return reqs, nil
	}
	for _, chunk := range byteChunks(c.NBytes, p.PayloadCapacity) {
		length := chunk[1] - chunk[0]
		p1, p2 := binaryAddressing(c.SFI, c.Offset+chunk[0])
		reqs = append(reqs, apdu.Request{CLA: cla, INS: 0xB0, P1: p1, P2: p2, Le: le(byte(length))})
	}
	return reqs, nil
}

func (c *ReadBinary) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ReadBinary) UsesSessionBuffer() bool      { return false }
func (c *ReadBinary) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	needsAnchor := c.SFI != 0 && c.Offset > 255
	offset := c.Offset
	if needsAnchor {
		if idx == 0 {
			offset = 0
		}
	} else {
		chunks := byteChunks(c.NBytes, p.PayloadCapacity)
		if idx < len(chunks) {
			offset = c.Offset + chunks[idx][0]
		}
	}
	f.WriteBinary(offset, resp.Data)
	return nil
}

// AppendRecord appends a new record to a cyclic/linear file.
type AppendRecord struct {
	SFI  byte
	Data []byte
}

func (c *AppendRecord) Name() string { return "AppendRecord" }
func (c *AppendRecord) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xE2, P1: 0x00, P2: c.SFI << 3, Data: c.Data}}, nil
}
func (c *AppendRecord) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *AppendRecord) UsesSessionBuffer() bool      { return true }
func (c *AppendRecord) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	next := len(f.Records) + 1
	f.SetRecord(next, c.Data)
	return nil
}

// UpdateRecord replaces a record's content.
type UpdateRecord struct {
	SFI    byte
	RecNum int
	Data   []byte
}

func (c *UpdateRecord) Name() string { return "UpdateRecord" }
func (c *UpdateRecord) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("UpdateRecord", c.RecNum, 1, 250); err != nil {
		return nil, err
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xDC, P1: byte(c.RecNum), P2: recordP2(c.SFI, 0x04), Data: c.Data}}, nil
}
func (c *UpdateRecord) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *UpdateRecord) UsesSessionBuffer() bool      { return true }
func (c *UpdateRecord) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	f.SetRecord(c.RecNum, c.Data)
	return nil
}

// WriteRecord logically OR's data into a record (vs UpdateRecord's
// replace semantics); the profile cache still just stores the
// caller-supplied bytes since the engine has no prior-content oracle
// beyond what it already read.
type WriteRecord struct {
	SFI    byte
	RecNum int
	Data   []byte
}

func (c *WriteRecord) Name() string { return "WriteRecord" }
func (c *WriteRecord) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("WriteRecord", c.RecNum, 1, 250); err != nil {
		return nil, err
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xD2, P1: byte(c.RecNum), P2: recordP2(c.SFI, 0x04), Data: c.Data}}, nil
}
func (c *WriteRecord) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *WriteRecord) UsesSessionBuffer() bool      { return true }
func (c *WriteRecord) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	f.SetRecord(c.RecNum, c.Data)
	return nil
}

// UpdateBinary and WriteBinary both write nbBytes at offset, splitting
// into payload-capacity-sized chunks (§4.3); Write differs from
// Update only in card-side OR-vs-replace semantics, mirrored in INS.
type UpdateBinary struct {
	SFI    byte
	Offset int
	Data   []byte
}

func (c *UpdateBinary) Name() string { return "UpdateBinary" }
func (c *UpdateBinary) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return encodeBinaryWrite(0xD6, c.SFI, c.Offset, c.Data, p)
}
func (c *UpdateBinary) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *UpdateBinary) UsesSessionBuffer() bool      { return true }
func (c *UpdateBinary) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return parseBinaryWrite(c.SFI, c.Offset, c.Data, idx, p)
}

type WriteBinary struct {
	SFI    byte
	Offset int
	Data   []byte
}

func (c *WriteBinary) Name() string { return "WriteBinary" }
func (c *WriteBinary) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return encodeBinaryWrite(0xD0, c.SFI, c.Offset, c.Data, p)
}
func (c *WriteBinary) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *WriteBinary) UsesSessionBuffer() bool      { return true }
func (c *WriteBinary) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return parseBinaryWrite(c.SFI, c.Offset, c.Data, idx, p)
}

func encodeBinaryWrite(ins, sfi byte, offset int, data []byte, p *profile.CardProfile) ([]apdu.Request, error) {
	cla := ClassFor(p.ProductType)
	var reqs []apdu.Request
	for _, chunk := range byteChunks(len(data), p.PayloadCapacity) {
		p1, p2 := binaryAddressing(sfi, offset+chunk[0])
		reqs = append(reqs, apdu.Request{CLA: cla, INS: ins, P1: p1, P2: p2, Data: data[chunk[0]:chunk[1]]})
	}
	return reqs, nil
}

func parseBinaryWrite(sfi byte, offset int, data []byte, idx int, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(sfi)
	if !ok {
		return nil
	}
	chunks := byteChunks(len(data), p.PayloadCapacity)
	if idx >= len(chunks) {
		return nil
	}
	chunk := chunks[idx]
	f.WriteBinary(offset+chunk[0], data[chunk[0]:chunk[1]])
	return nil
}

// SearchRecords issues SEARCH RECORD with caller-supplied search data.
type SearchRecords struct {
	SFI  byte
	Data []byte
}

func (c *SearchRecords) Name() string { return "SearchRecords" }
func (c *SearchRecords) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xA2, P1: 0x01, P2: recordP2(c.SFI, 0x04), Data: c.Data}}, nil
}
func (c *SearchRecords) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *SearchRecords) UsesSessionBuffer() bool      { return false }
func (c *SearchRecords) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return nil
}
