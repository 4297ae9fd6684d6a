// Package profile holds the CardProfile data model: the
// immutable-after-initialization descriptor of a selected Calypso card
// plus its mutable content cache (file contents, SV balance/logs,
// pre-open anticipation data).
package profile

// ProductType identifies the Calypso card generation/family, derived
// from the application-type byte of the FCI startup info (or fixed to
// PrimeRevision1 when the profile comes from power-on/ATR data).
type ProductType int

const (
	Unknown ProductType = iota
	PrimeRevision1
	PrimeRevision2
	PrimeRevision3
	Light
	Basic
)

func (p ProductType) String() string {
	switch p {
	case PrimeRevision1:
		return "PRIME_REVISION_1"
	case PrimeRevision2:
		return "PRIME_REVISION_2"
	case PrimeRevision3:
		return "PRIME_REVISION_3"
	case Light:
		return "LIGHT"
	case Basic:
		return "BASIC"
	default:
		return "UNKNOWN"
	}
}

// EFType is the elementary file structure, from the EF-list response
// (tag C1's EFT byte) or from a caller-supplied FileHeader.
type EFType int

const (
	Linear EFType = iota
	Binary
	Cyclic
	Counters
	SimulatedCounters
)

func (t EFType) String() string {
	switch t {
	case Linear:
		return "LINEAR"
	case Binary:
		return "BINARY"
	case Cyclic:
		return "CYCLIC"
	case Counters:
		return "COUNTERS"
	case SimulatedCounters:
		return "SIMULATED_COUNTERS"
	default:
		return "UNKNOWN"
	}
}

// EFTypeFromByte maps the EF-list response's EFT byte (§6 wire
// format) to an EFType.
func EFTypeFromByte(b byte) (EFType, bool) {
	switch b {
	case 0x02:
		return Linear, true
	case 0x01:
		return Binary, true
	case 0x04:
		return Cyclic, true
	case 0x08:
		return SimulatedCounters, true
	case 0x09:
		return Counters, true
	default:
		return 0, false
	}
}

// Capabilities are the bit0..bit4 flags of the application-type byte.
type Capabilities struct {
	PIN                          bool
	SV                           bool
	RatificationOnDeselectActive bool // true unless bit2 disables it
	ExtendedMode                 bool
	PKI                          bool
}

// CapabilitiesFromAppType derives Capabilities from the application
// type byte per §4.1: bit0=PIN, bit1=SV, bit2=ratification-on-deselect
// disabled, bit3=extended-mode, bit4=PKI.
func CapabilitiesFromAppType(appType byte) Capabilities {
	return Capabilities{
		PIN:                          appType&0x01 != 0,
		SV:                           appType&0x02 != 0,
		RatificationOnDeselectActive: appType&0x04 == 0,
		ExtendedMode:                 appType&0x08 != 0,
		PKI:                          appType&0x10 != 0,
	}
}

// WriteAccessLevel is the privilege level declared when opening a
// secure session.
type WriteAccessLevel int

const (
	Personalization WriteAccessLevel = iota
	Load
	Debit
)

func (w WriteAccessLevel) String() string {
	switch w {
	case Personalization:
		return "PERSONALIZATION"
	case Load:
		return "LOAD"
	case Debit:
		return "DEBIT"
	default:
		return "UNKNOWN"
	}
}
