package transaction

import (
	"testing"

	"calypsocore/command"
	"calypsocore/cryptoadapter"
	"calypsocore/profile"
)

func TestPrepareReadRecordValidatesSFIAndRecordNumber(t *testing.T) {
	m, _ := newTestManager(nil)

	if m.PrepareReadRecord(31, 1).Err() == nil {
		t.Fatalf("expected error for SFI above 30")
	}

	m2, _ := newTestManager(nil)
	if m2.PrepareReadRecord(1, 251).Err() == nil {
		t.Fatalf("expected error for record number above 250")
	}
}

func TestPrepareReadRecordEnqueuesCommand(t *testing.T) {
	m, _ := newTestManager(nil)
	m.PrepareReadRecord(4, 1)
	if m.Err() != nil {
		t.Fatalf("unexpected error: %v", m.Err())
	}
	if len(m.queue) != 1 {
		t.Fatalf("expected 1 queued command, got %d", len(m.queue))
	}
	rr, ok := m.queue[0].(*command.ReadRecord)
	if !ok {
		t.Fatalf("expected *command.ReadRecord, got %T", m.queue[0])
	}
	if rr.SFI != 4 || rr.RecNum != 1 {
		t.Fatalf("unexpected fields: %+v", rr)
	}
}

func TestStickyErrorStopsFurtherQueuing(t *testing.T) {
	m, _ := newTestManager(nil)
	m.PrepareReadRecord(99, 1) // invalid SFI, sets m.err
	firstErr := m.Err()
	if firstErr == nil {
		t.Fatalf("expected sticky error to be set")
	}

	m.PrepareReadRecord(4, 1) // should be a no-op now
	if len(m.queue) != 0 {
		t.Fatalf("expected no commands queued once sticky error is set, got %d", len(m.queue))
	}
	if m.Err() != firstErr {
		t.Fatalf("expected first error to remain sticky, got %v", m.Err())
	}
}

func TestPrepareReadRecordsRejectsBackwardsRange(t *testing.T) {
	m, _ := newTestManager(nil)
	if m.PrepareReadRecords(4, 5, 2, 29).Err() == nil {
		t.Fatalf("expected error when to < from")
	}
}

func TestPrepareDecreaseCountersExpandsOnSubRev3Cards(t *testing.T) {
	m, _ := newTestManager(nil)
	m.profile.ProductType = profile.Basic
	m.PrepareDecreaseCounters(4, 1, []int{10, 20, 30})
	if m.Err() != nil {
		t.Fatalf("unexpected error: %v", m.Err())
	}
	if len(m.queue) != 3 {
		t.Fatalf("expected 3 expanded single-counter decrements, got %d", len(m.queue))
	}
	for i, c := range m.queue {
		dc, ok := c.(*command.DecreaseCounter)
		if !ok {
			t.Fatalf("expected *command.DecreaseCounter at %d, got %T", i, c)
		}
		if dc.CounterNum != 1+i {
			t.Fatalf("expected counter number %d, got %d", 1+i, dc.CounterNum)
		}
	}
}

func TestPrepareDecreaseCountersKeepsMultipleFormOnPrimeRev3(t *testing.T) {
	m, _ := newTestManager(nil)
	m.profile.ProductType = profile.PrimeRevision3
	m.PrepareDecreaseCounters(4, 1, []int{10, 20, 30})
	if m.Err() != nil {
		t.Fatalf("unexpected error: %v", m.Err())
	}
	if len(m.queue) != 1 {
		t.Fatalf("expected a single Decrease-Multiple command, got %d", len(m.queue))
	}
	if _, ok := m.queue[0].(*command.DecreaseCounters); !ok {
		t.Fatalf("expected *command.DecreaseCounters, got %T", m.queue[0])
	}
}

func TestPrepareVerifyPinCiphersWhenPlainTransmissionDisabled(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	security := NewSecuritySetting().SetPinModificationCipheringKey(0x30, 0x79)
	m := NewManager(profile.New(), nil, sam, nil, security)

	m.PrepareVerifyPin([]byte{1, 2, 3, 4})
	if m.Err() != nil {
		t.Fatalf("unexpected error: %v", m.Err())
	}
	if len(m.queue) != 2 {
		t.Fatalf("expected a GetChallenge auto-enqueued ahead of VerifyPin, got %d commands", len(m.queue))
	}
	if _, ok := m.queue[0].(*command.GetChallenge); !ok {
		t.Fatalf("expected *command.GetChallenge, got %T", m.queue[0])
	}
	vp, ok := m.queue[1].(*command.VerifyPin)
	if !ok {
		t.Fatalf("expected *command.VerifyPin, got %T", m.queue[1])
	}
	if len(vp.Data) != 0 {
		t.Fatalf("expected Data to stay unresolved until ProcessCommands, got %v", vp.Data)
	}
	if len(vp.PendingCipherPIN) != 4 {
		t.Fatalf("expected the raw PIN to be queued as PendingCipherPIN")
	}
}

func TestPrepareVerifyPinPlainTransmissionSkipsGetChallenge(t *testing.T) {
	sam := cryptoadapter.NewSoftSAM([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	security := NewSecuritySetting().EnablePinPlainTransmission()
	m := NewManager(profile.New(), nil, sam, nil, security)

	m.PrepareVerifyPin([]byte{1, 2, 3, 4})
	if m.Err() != nil {
		t.Fatalf("unexpected error: %v", m.Err())
	}
	if len(m.queue) != 1 {
		t.Fatalf("expected no auto-enqueued GetChallenge when PIN is sent plain, got %d commands", len(m.queue))
	}
	vp, ok := m.queue[0].(*command.VerifyPin)
	if !ok {
		t.Fatalf("expected *command.VerifyPin, got %T", m.queue[0])
	}
	if string(vp.Data) != "\x01\x02\x03\x04" {
		t.Fatalf("expected plain PIN bytes in Data, got %v", vp.Data)
	}
}

func TestPrepareVerifyPinRejectsWrongLength(t *testing.T) {
	m, _ := newTestManager(nil)
	if m.PrepareVerifyPin([]byte{1, 2, 3}).Err() == nil {
		t.Fatalf("expected error for a 3-byte PIN")
	}
}
