package transaction

import (
	"testing"

	"calypsocore/apdu"
	"calypsocore/command"
	"calypsocore/cryptoadapter"
	"calypsocore/profile"
	"calypsocore/session"
	"calypsocore/transport"
)

func newSessionTestManager(security *SecuritySetting) (*Manager, *cryptoadapter.SoftSAM, *transport.FakeTransport) {
	sam := cryptoadapter.NewSoftSAM([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	if security == nil {
		security = NewSecuritySetting()
	}
	p := profile.New()
	p.SerialNumber = [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}
	f, _ := profile.NewFileHeader(0x0701, 0x04, profile.Linear, 29, 10)
	p.AddFile(f)
	ft := transport.NewFakeTransport()
	m := NewManager(p, ft, sam, nil, security)
	return m, sam, ft
}

// openSessionResponseBytes builds a well-formed Open-Secure-Session
// response: flags|KIF|KVC|bufCap(2,BE)|rest, followed by SW 9000.
func openSessionResponseBytes(flags, kif, kvc byte, bufCap int, rest []byte) []byte {
	out := []byte{flags, kif, kvc, byte(bufCap >> 8), byte(bufCap)}
	out = append(out, rest...)
	out = append(out, 0x90, 0x00)
	return out
}

func TestProcessCommandsOpenAndCloseSessionHappyPath(t *testing.T) {
	m, _, ft := newSessionTestManager(nil)
	ft.Responses = [][]byte{
		{0x90, 0x00}, // Select-Diversifier (first use of this diversifier)
		openSessionResponseBytes(0x01, 0x21, 0x79, 200, []byte{0xDE, 0xAD, 0xBE, 0xEF}),
		{0x90, 0x00}, // Close-Secure-Session
	}

	m.PrepareOpenSecureSession(profile.Personalization)
	if m.Err() != nil {
		t.Fatalf("PrepareOpenSecureSession: %v", m.Err())
	}
	m.PrepareCloseSecureSession()
	if m.Err() != nil {
		t.Fatalf("PrepareCloseSecureSession: %v", m.Err())
	}

	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		t.Fatalf("ProcessCommands: %v", err)
	}
	if m.session.State() != session.Idle {
		t.Fatalf("expected session Idle after close, got %v", m.session.State())
	}
	trail := m.AuditTrail()
	if len(trail) != 3 {
		t.Fatalf("expected 3 audited exchanges (select-diversifier, open, close), got %d", len(trail))
	}
	if trail[0].Command != "SelectDiversifier" || trail[1].Command != "OpenSecureSession" || trail[2].Command != "CloseSecureSession" {
		t.Fatalf("unexpected audit trail commands: %+v", trail)
	}
	if trail[1].StatusWord != apdu.SWSuccess {
		t.Fatalf("expected recorded status word 9000, got %#x", trail[1].StatusWord)
	}
}

func TestProcessCommandsMergesFirstPendingReadRecordIntoOpen(t *testing.T) {
	m, _, ft := newSessionTestManager(nil)
	mergedData := []byte("merged-record-body")
	ft.Responses = [][]byte{
		{0x90, 0x00}, // Select-Diversifier
		openSessionResponseBytes(0x01, 0x21, 0x79, 200, mergedData),
	}

	m.PrepareReadRecord(4, 1)
	m.PrepareOpenSecureSession(profile.Personalization)
	if m.Err() != nil {
		t.Fatalf("unexpected error: %v", m.Err())
	}
	if len(m.queue) != 2 {
		t.Fatalf("expected the pending ReadRecord to be absorbed into the open (select-diversifier + open only), queue has %d entries", len(m.queue))
	}
	open, ok := m.queue[len(m.queue)-1].(*command.OpenSecureSession)
	if !ok || !open.Merge {
		t.Fatalf("expected a merged OpenSecureSession as the last queued command, got %+v", m.queue[len(m.queue)-1])
	}

	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		t.Fatalf("ProcessCommands: %v", err)
	}
	f, _ := m.profile.FileBySFI(4)
	rec, ok := f.Record(1)
	if !ok {
		t.Fatalf("expected merged record to be stored in the file cache")
	}
	if string(rec) != string(mergedData) {
		t.Fatalf("expected merged record %q, got %q", mergedData, rec)
	}
}

func TestProcessCommandsRejectsUnauthorizedSessionKey(t *testing.T) {
	security := NewSecuritySetting().AddAuthorizedSessionKey(0x30, 0x79)
	m, _, ft := newSessionTestManager(security)
	ft.Responses = [][]byte{
		{0x90, 0x00}, // Select-Diversifier
		openSessionResponseBytes(0x01, 0x21, 0x79, 200, []byte{0x00}),
	}

	m.PrepareOpenSecureSession(profile.Personalization)
	if err := m.ProcessCommands(apdu.CloseAfter); err == nil {
		t.Fatalf("expected an error for an unauthorized session key")
	}
	if m.session.State() != session.Aborted {
		t.Fatalf("expected session Aborted after rejection, got %v", m.session.State())
	}
}

func TestProcessCommandsCloseLandsIdleOnInvalidCardMac(t *testing.T) {
	m, sam, ft := newSessionTestManager(nil)
	ft.Responses = [][]byte{
		{0x90, 0x00}, // Select-Diversifier
		openSessionResponseBytes(0x01, 0x21, 0x79, 200, []byte{0x00}),
		append(append([]byte{}, []byte{0, 0, 0, 0, 0, 0, 0, 0}...), 0x90, 0x00), // wrong card MAC
	}
	_ = sam

	m.PrepareOpenSecureSession(profile.Personalization)
	m.PrepareCloseSecureSession()
	err := m.ProcessCommands(apdu.CloseAfter)
	if err == nil {
		t.Fatalf("expected InvalidCardMac error")
	}
	if m.session.State() != session.Idle {
		t.Fatalf("expected session Idle (not Aborted) on a close-time MAC failure, got %v", m.session.State())
	}
}

func TestProcessCommandsPlainReadRecordWithoutSession(t *testing.T) {
	m, _, ft := newSessionTestManager(nil)
	ft.Responses = [][]byte{
		append([]byte("record-one-content............"), 0x90, 0x00),
	}
	m.PrepareReadRecord(4, 1)
	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		t.Fatalf("ProcessCommands: %v", err)
	}
	f, _ := m.profile.FileBySFI(4)
	if _, ok := f.Record(1); !ok {
		t.Fatalf("expected record 1 to be populated")
	}
	trail := m.AuditTrail()
	if len(trail) != 1 || trail[0].Command != "ReadRecord" {
		t.Fatalf("expected a single audited ReadRecord exchange, got %+v", trail)
	}
}

func TestPrepareVerifyPinSequencesGetChallengeBeforeCiphering(t *testing.T) {
	security := NewSecuritySetting().SetPinModificationCipheringKey(0x30, 0x79)
	m, sam, ft := newSessionTestManager(security)
	challenge := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	ft.Responses = [][]byte{
		append(append([]byte{}, challenge...), 0x90, 0x00), // GetChallenge
		{0x90, 0x00},                                       // VerifyPin
	}

	m.PrepareVerifyPin([]byte{1, 2, 3, 4})
	if err := m.ProcessCommands(apdu.CloseAfter); err != nil {
		t.Fatalf("ProcessCommands: %v", err)
	}
	if string(m.profile.CardChallenge) != string(challenge) {
		t.Fatalf("expected CardChallenge to be populated from the auto-enqueued GetChallenge, got %v", m.profile.CardChallenge)
	}
	if len(ft.Sent) != 2 {
		t.Fatalf("expected two APDUs sent (GetChallenge, VerifyPin), got %d", len(ft.Sent))
	}
	want, err := sam.CipherPinForModification(challenge, []byte{1, 2, 3, 4}, nil, 0x30, 0x79)
	if err != nil {
		t.Fatalf("CipherPinForModification: %v", err)
	}
	sent := ft.Sent[1].Bytes
	if len(sent) < 5+len(want) || string(sent[5:5+len(want)]) != string(want) {
		t.Fatalf("expected VerifyPin APDU data to carry the SAM-ciphered block computed from the fresh challenge, got % X", sent)
	}
}
