// Package selection builds the initial SELECT-APPLICATION request,
// decodes the FCI (or power-on/ATR) response, and initializes a
// profile.CardProfile from it. This runs exactly once per card.
package selection

import (
	"calypsocore/apdu"
	"calypsocore/calypsoerr"
	"calypsocore/profile"
)

// powerOnATRLength is the fixed total length a power-on-data payload
// must have to be recognized (§4.1).
const powerOnATRLength = 20

// serialTailOffset/serialTailLen locate the 4-byte serial-number tail
// inside a canonical 20-byte power-on-data layout.
const (
	serialTailOffset = 12
	serialTailLen    = 4
)

// BuildSelectApplication returns the APDU bytes for SELECT-APPLICATION
// by AID (P1=0x04, select by DF name), requesting the FCI template
// (P2=0x00).
func BuildSelectApplication(aid []byte) apdu.Request {
	return apdu.Request{CLA: 0x00, INS: 0xA4, P1: 0x04, P2: 0x00, Data: aid, Le: byteptr(0x00)}
}

func byteptr(b byte) *byte { return &b }

// InitializeWithPowerOnData builds a CardProfile from ATR/power-on
// bytes. Succeeds only when the payload has the fixed 20-byte shape;
// any other length is InvalidInput.
func InitializeWithPowerOnData(data []byte) (*profile.CardProfile, error) {
	if len(data) != powerOnATRLength {
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "InitializeWithPowerOnData", "power-on data must be exactly 20 bytes")
	}

	p := profile.New()
	p.PowerOnData = append([]byte(nil), data...)
	p.ProductType = profile.PrimeRevision1
	p.Capabilities = profile.Capabilities{RatificationOnDeselectActive: true}

	tail := data[serialTailOffset : serialTailOffset+serialTailLen]
	copy(p.SerialNumber[4:], tail)
	p.HCE = p.SerialNumber[0]&0x80 != 0

	return p, nil
}

// productTypeFromAppType maps an application-type byte to a
// ProductType per §4.1's table; appType==0x00 is rejected here with
// InvalidInput.
func productTypeFromAppType(appType byte) (profile.ProductType, error) {
	switch {
	case appType == 0x00:
		return profile.Unknown, calypsoerr.New(calypsoerr.InvalidInput, "productTypeFromAppType", "application type 0x00 is invalid")
	case appType >= 0x01 && appType <= 0x1F:
		return profile.PrimeRevision2, nil
	case appType >= 0x20 && appType <= 0x89:
		return profile.PrimeRevision3, nil
	case appType >= 0x90 && appType <= 0x97:
		return profile.Light, nil
	case appType >= 0x98 && appType <= 0x9F:
		return profile.Basic, nil
	case appType >= 0xA0 && appType <= 0xFE:
		return profile.PrimeRevision3, nil
	default: // 0xFF
		return profile.Unknown, nil
	}
}

// defaultFCISuccessSWs is the base status-word set the FCI-parsing
// step itself accepts: 0x9000 (not invalidated) and 0x6283
// (invalidated, still accepted per §4.1). A caller may extend this
// further through InitializeWithFci's extraSuccessSWs (§6); this is
// the floor every selection honors regardless.
func defaultFCISuccessSWs() apdu.SuccessSet {
	return apdu.NewSuccessSet(apdu.SWSuccess, apdu.SWInvalidated)
}

// InitializeWithFci builds a CardProfile from the SELECT-APPLICATION
// FCI response. extraSuccessSWs lets a caller widen the accepted
// status-word set beyond the default {0x9000, 0x6283} (§6).
func InitializeWithFci(resp apdu.Response, extraSuccessSWs ...apdu.StatusWord) (*profile.CardProfile, error) {
	successSWs := defaultFCISuccessSWs().With(extraSuccessSWs...)
	if !successSWs.Contains(resp.SW) {
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "InitializeWithFci", "status word outside accepted set: "+resp.SW.String())
	}

	p := profile.New()
	p.DFInvalidated = resp.SW == apdu.SWInvalidated

	if len(resp.Data) == 0 {
		p.ProductType = profile.Unknown
		return p, nil
	}

	fciValue, err := apdu.ParseEnvelope(resp.Data, 0x6F)
	if err != nil {
		return nil, err
	}
	tags := apdu.FlattenTags(fciValue)

	if dfName, ok := tags[0x84]; ok {
		if len(dfName) < 5 || len(dfName) > 16 {
			return nil, calypsoerr.New(calypsoerr.InvalidInput, "InitializeWithFci", "DF name length out of range [5,16]")
		}
		p.DFName = append([]byte(nil), dfName...)
		p.AID = p.DFName
	}

	if serial, ok := tags[0xC7]; ok {
		if len(serial) != 8 {
			return nil, calypsoerr.New(calypsoerr.InvalidInput, "InitializeWithFci", "serial number must be 8 bytes")
		}
		copy(p.SerialNumber[:], serial)
		p.HCE = p.SerialNumber[0]&0x80 != 0
	}

	startupInfo, ok := tags[0x53]
	if !ok {
		p.ProductType = profile.Unknown
		return p, nil
	}
	if len(startupInfo) < 7 {
		return nil, calypsoerr.New(calypsoerr.InvalidInput, "InitializeWithFci", "startup info shorter than 7 bytes")
	}
	p.StartupInfoRaw = append([]byte(nil), startupInfo...)
	p.SessionModByte = startupInfo[0]
	p.Platform = startupInfo[1]
	p.ApplicationType = startupInfo[2]
	p.Subtype = startupInfo[3]
	p.SoftwareIssuer = startupInfo[4]
	p.SoftwareVersion = startupInfo[5]
	p.SoftwareRev = startupInfo[6]

	productType, err := productTypeFromAppType(p.ApplicationType)
	if err != nil {
		return nil, err
	}
	p.ProductType = productType
	p.Capabilities = profile.CapabilitiesFromAppType(p.ApplicationType)

	if productType == profile.PrimeRevision3 {
		if p.SessionModByte < 0x06 || p.SessionModByte > 0x37 {
			return nil, calypsoerr.New(calypsoerr.InvalidInput, "InitializeWithFci", "session modification byte out of range [0x06,0x37] for Prime Revision 3")
		}
	}

	if err := p.CheckInvariants(); err != nil {
		return nil, err
	}

	return p, nil
}
