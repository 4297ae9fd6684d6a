package command

import (
	"testing"

	"calypsocore/apdu"
	"calypsocore/profile"
)

func mkResponse(t *testing.T, data []byte) apdu.Response {
	t.Helper()
	return apdu.Response{Data: data, SW: apdu.SWSuccess}
}

func TestSvGetRequiredBeforeReloadDebit(t *testing.T) {
	p := profile.New()
	if _, err := (&SvReload{Amount: 100}).Encode(p); err == nil {
		t.Error("expected InvalidState before SvGet")
	}
	if _, err := (&SvDebit{Amount: 100}).Encode(p); err == nil {
		t.Error("expected InvalidState before SvGet")
	}
	if _, err := (&SvUndebit{Amount: 100}).Encode(p); err == nil {
		t.Error("expected InvalidState before SvGet")
	}
}

func TestSvGetParsePositiveBalance(t *testing.T) {
	p := profile.New()
	resp := mkResponse(t, []byte{0x00, 0x01, 0x90, 0x00, 0x05})
	if err := (&SvGet{}).Parse(0, resp, p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.SV.GotSVGet {
		t.Error("GotSVGet should be true")
	}
	if p.SV.Balance != 400 {
		t.Errorf("Balance = %d, want 400", p.SV.Balance)
	}
	if p.SV.LastTNum != 5 {
		t.Errorf("LastTNum = %d, want 5", p.SV.LastTNum)
	}
}

func TestSvGetParseNegativeBalance(t *testing.T) {
	p := profile.New()
	resp := mkResponse(t, []byte{0xFF, 0xFF, 0xF6, 0x00, 0x01}) // -10
	if err := (&SvGet{}).Parse(0, resp, p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.SV.Balance != -10 {
		t.Errorf("Balance = %d, want -10", p.SV.Balance)
	}
}

func TestSvReloadDebitUndebitBookkeeping(t *testing.T) {
	p := profile.New()
	p.SV.GotSVGet = true
	p.SV.Balance = 100
	p.SV.LastTNum = 1

	reload := &SvReload{Amount: 50, TerminalSig: []byte{1, 2, 3}}
	if _, err := reload.Encode(p); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := reload.Parse(0, apdu.Response{}, p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.SV.Balance != 150 || p.SV.LastTNum != 2 {
		t.Errorf("after reload: balance=%d tnum=%d, want 150/2", p.SV.Balance, p.SV.LastTNum)
	}

	debit := &SvDebit{Amount: 30, TerminalSig: []byte{1, 2, 3}}
	if _, err := debit.Encode(p); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := debit.Parse(0, apdu.Response{}, p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.SV.Balance != 120 || p.SV.LastTNum != 3 {
		t.Errorf("after debit: balance=%d tnum=%d, want 120/3", p.SV.Balance, p.SV.LastTNum)
	}

	undebit := &SvUndebit{Amount: 30, TerminalSig: []byte{1, 2, 3}}
	reqs, err := undebit.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if reqs[0].P2 != 0x01 {
		t.Errorf("SvUndebit P2 = %02X, want 01", reqs[0].P2)
	}
	if err := undebit.Parse(0, apdu.Response{}, p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.SV.Balance != 150 || p.SV.LastTNum != 4 {
		t.Errorf("after undebit: balance=%d tnum=%d, want 150/4", p.SV.Balance, p.SV.LastTNum)
	}
}

func TestParseSVLogRecord(t *testing.T) {
	raw := []byte{
		0x00, 0x0A, // amount = 10
		0x12, 0x34, // date
		0x56, 0x78, // time
		0x01,                   // KVC
		0xAA, 0xBB, 0xCC, 0xDD, // SAM id
		0x00, 0x00, 0x01, // SAM t-num
		0x00, 0x00, 0x64, // balance = 100
		0x00, 0x02, // SV t-num
	}
	log, err := ParseSVLogRecord(raw)
	if err != nil {
		t.Fatalf("ParseSVLogRecord: %v", err)
	}
	if log.Amount != 10 || log.Balance != 100 || log.SVTNum != 2 || log.KVC != 0x01 {
		t.Errorf("unexpected log: %+v", log)
	}

	if _, err := ParseSVLogRecord(raw[:10]); err == nil {
		t.Error("expected error for short record")
	}
}
