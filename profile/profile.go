package profile

import "calypsocore/calypsoerr"

// DefaultPayloadCapacity is the conservative default write-buffer size
// assumed before an EF-list or startup-info byte narrows it.
const DefaultPayloadCapacity = 250

// CardProfile is the typed, mutable-after-selection descriptor of one
// selected Calypso card. Selection (see package selection) constructs
// and populates it once; command parsers mutate its content cache for
// the remainder of the transaction. It is never rewound within a
// transaction's lifetime (§3).
type CardProfile struct {
	ProductType ProductType

	PowerOnData []byte // ATR bytes, if selection came from power-on data
	DFName      []byte // 5..16 bytes
	AID         []byte // alias of DFName, kept for CLI display convenience

	SerialNumber    [8]byte // application serial number, last 8 bytes of full serial
	StartupInfoRaw  []byte  // raw startup-info bytes, length >= 7
	SessionModByte  byte    // byte 0 of startup info; buffer size for Prime Rev 3
	Platform        byte
	ApplicationType byte
	Subtype         byte
	SoftwareIssuer  byte
	SoftwareVersion byte
	SoftwareRev     byte

	Capabilities Capabilities

	DFInvalidated bool
	HCE           bool

	PayloadCapacity int

	FilesBySFI map[byte]*FileHeader
	FilesByLID map[uint16]*FileHeader

	SV SVState

	PreOpen PreOpenContext

	// CardChallenge holds the last GetChallenge response, consumed by
	// the PIN-ciphering and key-ciphering crypto collaborator calls.
	CardChallenge []byte

	// GenericData holds the raw TLV value of any GetData(tag) the
	// caller issued other than the semantically-parsed EF-list (0xC0),
	// keyed by the tag's low byte; traceability info is stored here raw.
	GenericData map[byte][]byte
}

// New returns an empty CardProfile with its maps initialized and the
// default payload capacity set; selection populates the rest.
func New() *CardProfile {
	return &CardProfile{
		FilesBySFI:      make(map[byte]*FileHeader),
		FilesByLID:      make(map[uint16]*FileHeader),
		PayloadCapacity: DefaultPayloadCapacity,
		GenericData:     make(map[byte][]byte),
	}
}

// AddFile registers a FileHeader under both its SFI and LID keys.
func (p *CardProfile) AddFile(f *FileHeader) {
	if f.SFI != 0 {
		p.FilesBySFI[f.SFI] = f
	}
	p.FilesByLID[f.LID] = f
}

// FileBySFI looks up a file by its short identifier.
func (p *CardProfile) FileBySFI(sfi byte) (*FileHeader, bool) {
	f, ok := p.FilesBySFI[sfi]
	return f, ok
}

// FileByLID looks up a file by its long identifier.
func (p *CardProfile) FileByLID(lid uint16) (*FileHeader, bool) {
	f, ok := p.FilesByLID[lid]
	return f, ok
}

// CheckInvariants validates the cross-field invariants from §3: a
// known product type implies startup info of at least 7 bytes and a
// non-zero application type.
func (p *CardProfile) CheckInvariants() error {
	if p.ProductType != Unknown {
		if len(p.StartupInfoRaw) < 7 {
			return calypsoerr.New(calypsoerr.InvalidInput, "CheckInvariants", "startup info shorter than 7 bytes for known product type")
		}
		if p.ApplicationType == 0x00 {
			return calypsoerr.New(calypsoerr.InvalidInput, "CheckInvariants", "application type 0x00 invalid for known product type")
		}
	}
	return nil
}

// RequireSVGet returns an error unless SV-Get has already run in this
// transaction; SV log/balance accessors call this first.
func (p *CardProfile) RequireSVGet(op string) error {
	if !p.SV.GotSVGet {
		return calypsoerr.New(calypsoerr.InvalidState, op, "SV-Get has not been executed in this transaction")
	}
	return nil
}
