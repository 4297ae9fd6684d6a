package profile

import "calypsocore/calypsoerr"

// FileHeader describes one elementary file as announced by the
// EF-list (GetData tag C0) or by a caller's own file map.
type FileHeader struct {
	LID           uint16
	SFI           byte
	Type          EFType
	RecordSize    int
	RecordsNumber int

	// Records holds per-record content for LINEAR/CYCLIC/COUNTERS
	// files, keyed by 1-based record number.
	Records map[int][]byte
	// Binary holds the content of a BINARY file as one flat buffer.
	Binary []byte
}

// NewFileHeader validates and constructs a FileHeader. SFI must lie in
// [0x01, 0x1E] per §3's invariant.
func NewFileHeader(lid uint16, sfi byte, t EFType, recordSize, recordsNumber int) (*FileHeader, error) {
	if sfi < 0x01 || sfi > 0x1E {
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "NewFileHeader", "SFI out of range [0x01,0x1E]")
	}
	return &FileHeader{
		LID:           lid,
		SFI:           sfi,
		Type:          t,
		RecordSize:    recordSize,
		RecordsNumber: recordsNumber,
		Records:       make(map[int][]byte),
	}, nil
}

// SetRecord stores the content of a 1-based record number.
func (f *FileHeader) SetRecord(recNum int, data []byte) {
	if f.Records == nil {
		f.Records = make(map[int][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.Records[recNum] = cp
}

// Record returns the stored content of a 1-based record number.
func (f *FileHeader) Record(recNum int) ([]byte, bool) {
	b, ok := f.Records[recNum]
	return b, ok
}

// WriteBinary grows the binary buffer so offset+len(data) fits, then
// writes data at offset.
func (f *FileHeader) WriteBinary(offset int, data []byte) {
	need := offset + len(data)
	if len(f.Binary) < need {
		grown := make([]byte, need)
		copy(grown, f.Binary)
		f.Binary = grown
	}
	copy(f.Binary[offset:], data)
}
