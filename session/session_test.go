package session

import (
	"testing"

	"calypsocore/calypsoerr"
	"calypsocore/cryptoadapter"
	"calypsocore/profile"
)

func TestOpenCloseHappyPath(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	s := New(sam)

	if err := s.RequestOpen(profile.Debit); err != nil {
		t.Fatalf("RequestOpen: %v", err)
	}
	if s.State() != QueuedOpen {
		t.Fatalf("state = %v, want QueuedOpen", s.State())
	}
	if err := s.ConfirmOpen(false, 250, true); err != nil {
		t.Fatalf("ConfirmOpen: %v", err)
	}
	if s.State() != Open {
		t.Fatalf("state = %v, want Open", s.State())
	}

	if err := s.Feed([]byte{0x00, 0xB2, 0x01, 0x3C, 0x00}, []byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if err := s.RequestClose(); err != nil {
		t.Fatalf("RequestClose: %v", err)
	}
	if s.State() != Closing {
		t.Fatalf("state = %v, want Closing", s.State())
	}
	if err := s.ConfirmClose(true); err != nil {
		t.Fatalf("ConfirmClose: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state = %v, want Idle", s.State())
	}
}

func TestConfirmCloseWithInvalidMacStillReturnsToIdle(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{})
	s := New(sam)
	_ = s.RequestOpen(profile.Load)
	_ = s.ConfirmOpen(false, 250, true)
	_ = s.RequestClose()

	err := s.ConfirmClose(false)
	if err == nil {
		t.Fatal("expected InvalidCardMac error")
	}
	if kind, ok := calypsoerr.KindOf(err); !ok || kind != calypsoerr.InvalidCardMac {
		t.Errorf("error kind = %v, want InvalidCardMac", kind)
	}
	if s.State() != Idle {
		t.Errorf("state after failed close = %v, want Idle", s.State())
	}
}

func TestExactlyOnceOpen(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{})
	s := New(sam)
	_ = s.RequestOpen(profile.Debit)
	if err := s.RequestOpen(profile.Debit); err == nil {
		t.Error("expected InvalidState on second RequestOpen")
	}
}

func TestCloseOutsideSessionFails(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{})
	s := New(sam)
	if err := s.RequestClose(); err == nil {
		t.Error("expected InvalidState closing without an open session")
	}
}

func TestRequireExtendedModeGatesEarlyAuthAndEncryption(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{})
	s := New(sam)
	_ = s.RequestOpen(profile.Debit)
	_ = s.ConfirmOpen(false, 250, true)

	if err := s.SetEncryption(true); err == nil {
		t.Error("expected Unsupported when extended mode is off")
	}

	s2 := New(sam)
	_ = s2.RequestOpen(profile.Debit)
	_ = s2.ConfirmOpen(true, 250, true)
	if err := s2.SetEncryption(true); err != nil {
		t.Errorf("SetEncryption with extended mode on: %v", err)
	}
	if !s2.EncryptionOn() {
		t.Error("expected encryption on")
	}
}

func TestAtomicSplitBufferAccounting(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{})
	s := New(sam)
	_ = s.RequestOpen(profile.Debit)
	_ = s.ConfirmOpen(false, 10, true)

	s.AddBufferBytes(6)
	if s.WouldOverflow(3) {
		t.Error("6+3=9 should not overflow a 10-byte buffer")
	}
	if !s.WouldOverflow(5) {
		t.Error("6+5=11 should overflow a 10-byte buffer")
	}
	s.BeginAtomicSplit()
	if s.WouldOverflow(9) {
		t.Error("buffer usage should reset after BeginAtomicSplit")
	}
}

func TestNeedsDiversifierSelectOnlyOnChange(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{})
	s := New(sam)
	d1 := []byte{0x01, 0x02}
	d2 := []byte{0x03, 0x04}

	if !s.NeedsDiversifierSelect(d1) {
		t.Error("first diversifier selection should be needed")
	}
	if s.NeedsDiversifierSelect(d1) {
		t.Error("repeating the same diversifier should not require a new SELECT-DIVERSIFIER")
	}
	if !s.NeedsDiversifierSelect(d2) {
		t.Error("changing diversifier should require a new SELECT-DIVERSIFIER")
	}
}

func TestCancelFromIdleAndOpen(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{})
	s := New(sam)
	if err := s.RequestCancel(); err != nil {
		t.Fatalf("cancel from Idle: %v", err)
	}
	if s.State() != Cancelled {
		t.Errorf("state = %v, want Cancelled", s.State())
	}

	s2 := New(sam)
	_ = s2.RequestOpen(profile.Debit)
	_ = s2.ConfirmOpen(false, 250, true)
	if err := s2.RequestCancel(); err != nil {
		t.Fatalf("cancel from Open: %v", err)
	}
	if s2.State() != Cancelled {
		t.Errorf("state = %v, want Cancelled", s2.State())
	}
}
