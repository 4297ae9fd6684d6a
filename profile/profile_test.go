package profile

import "testing"

func TestCapabilitiesFromAppType(t *testing.T) {
	tests := []struct {
		appType byte
		want    Capabilities
	}{
		{0x00, Capabilities{RatificationOnDeselectActive: true}},
		{0x01, Capabilities{PIN: true, RatificationOnDeselectActive: true}},
		{0x02, Capabilities{SV: true, RatificationOnDeselectActive: true}},
		{0x04, Capabilities{RatificationOnDeselectActive: false}},
		{0x08, Capabilities{ExtendedMode: true, RatificationOnDeselectActive: true}},
		{0x10, Capabilities{PKI: true, RatificationOnDeselectActive: true}},
		{0x1F, Capabilities{PIN: true, SV: true, RatificationOnDeselectActive: false, ExtendedMode: true, PKI: true}},
	}
	for _, tc := range tests {
		if got := CapabilitiesFromAppType(tc.appType); got != tc.want {
			t.Errorf("CapabilitiesFromAppType(0x%02X) = %+v, want %+v", tc.appType, got, tc.want)
		}
	}
}

func TestEFTypeFromByte(t *testing.T) {
	tests := []struct {
		b    byte
		want EFType
		ok   bool
	}{
		{0x02, Linear, true},
		{0x01, Binary, true},
		{0x04, Cyclic, true},
		{0x08, SimulatedCounters, true},
		{0x09, Counters, true},
		{0xFF, 0, false},
	}
	for _, tc := range tests {
		got, ok := EFTypeFromByte(tc.b)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("EFTypeFromByte(0x%02X) = (%v, %v), want (%v, %v)", tc.b, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewFileHeaderSFIRange(t *testing.T) {
	if _, err := NewFileHeader(0x2001, 0x00, Linear, 29, 10); err == nil {
		t.Error("expected error for SFI 0x00")
	}
	if _, err := NewFileHeader(0x2001, 0x1F, Linear, 29, 10); err == nil {
		t.Error("expected error for SFI 0x1F")
	}
	if _, err := NewFileHeader(0x2001, 0x07, Linear, 29, 10); err != nil {
		t.Errorf("unexpected error for SFI 0x07: %v", err)
	}
}

func TestCardProfileCheckInvariants(t *testing.T) {
	p := New()
	p.ProductType = PrimeRevision3
	p.StartupInfoRaw = []byte{0x20, 0, 0, 0, 0, 0}
	p.ApplicationType = 0x20
	if err := p.CheckInvariants(); err == nil {
		t.Error("expected error for startup info shorter than 7 bytes")
	}

	p.StartupInfoRaw = append(p.StartupInfoRaw, 0)
	if err := p.CheckInvariants(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	p.ApplicationType = 0x00
	if err := p.CheckInvariants(); err == nil {
		t.Error("expected error for application type 0x00")
	}
}

func TestRequireSVGet(t *testing.T) {
	p := New()
	if err := p.RequireSVGet("prepareSvReadAllLogs"); err == nil {
		t.Error("expected InvalidState before SV-Get")
	}
	p.SV.GotSVGet = true
	if err := p.RequireSVGet("prepareSvReadAllLogs"); err != nil {
		t.Errorf("unexpected error after SV-Get: %v", err)
	}
}

func TestFileHeaderWriteBinary(t *testing.T) {
	f, err := NewFileHeader(0x1000, 0x01, Binary, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteBinary(256, []byte{0xAA})
	if len(f.Binary) != 257 || f.Binary[256] != 0xAA {
		t.Errorf("WriteBinary did not grow/write correctly: len=%d", len(f.Binary))
	}
}

func TestAddFileLookup(t *testing.T) {
	p := New()
	f, _ := NewFileHeader(0x2001, 0x07, Linear, 29, 30)
	p.AddFile(f)
	if got, ok := p.FileBySFI(0x07); !ok || got != f {
		t.Error("FileBySFI lookup failed")
	}
	if got, ok := p.FileByLID(0x2001); !ok || got != f {
		t.Error("FileByLID lookup failed")
	}
}
