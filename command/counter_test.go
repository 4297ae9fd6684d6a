package command

import (
	"bytes"
	"testing"

	"calypsocore/profile"
)

func TestEncodeDecode3(t *testing.T) {
	cases := []int{0, 1, 255, 65536, 16_777_215}
	for _, v := range cases {
		got := decode3(encode3(v))
		if got != v {
			t.Errorf("decode3(encode3(%d)) = %d", v, got)
		}
	}
}

func TestReadCounterEncode(t *testing.T) {
	p := profile.New()
	reqs, err := (&ReadCounter{SFI: 7, CounterNum: 3}).Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if reqs[0].P1 != 3 || reqs[0].P2 != recordP2(7, 0x04) {
		t.Errorf("P1/P2 = %d/%02X", reqs[0].P1, reqs[0].P2)
	}
}

func TestReadCounterRangeError(t *testing.T) {
	p := profile.New()
	if _, err := (&ReadCounter{SFI: 7, CounterNum: 84}).Encode(p); err == nil {
		t.Error("expected error for counter number 84 (max is 83)")
	}
}

func TestIncreaseCountersSplitsIntoChunksOfThreeBytesEach(t *testing.T) {
	p := profile.New()
	p.PayloadCapacity = 9 // floor(9/3) = 3 counters per APDU
	amounts := []int{1, 2, 3, 4, 5}
	c := &IncreaseCounters{SFI: 7, FirstCounterNum: 1, Amounts: amounts}
	reqs, err := c.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("want 2 chunks (ceil(5/3)), got %d", len(reqs))
	}
	if len(reqs[0].Data) != 9 || len(reqs[1].Data) != 6 {
		t.Errorf("chunk data lengths = %d, %d, want 9, 6", len(reqs[0].Data), len(reqs[1].Data))
	}
	if reqs[0].P1 != 1 || reqs[1].P1 != 4 {
		t.Errorf("chunk start P1 = %d, %d, want 1, 4", reqs[0].P1, reqs[1].P1)
	}
}

func TestIncreaseDecreaseCounterAppliesDelta(t *testing.T) {
	p := profile.New()
	f, _ := profile.NewFileHeader(1, 7, profile.Counters, 3, 10)
	p.AddFile(f)
	f.SetRecord(1, encode3(100))

	inc := &IncreaseCounter{SFI: 7, CounterNum: 1, Amount: 50}
	if err := inc.Parse(0, mkResponse(t, nil), p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec, _ := f.Record(1)
	if decode3(rec) != 150 {
		t.Errorf("after increase: %d, want 150", decode3(rec))
	}

	dec := &DecreaseCounter{SFI: 7, CounterNum: 1, Amount: 30}
	if err := dec.Parse(0, mkResponse(t, nil), p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec, _ = f.Record(1)
	if decode3(rec) != 120 {
		t.Errorf("after decrease: %d, want 120", decode3(rec))
	}
}

func TestSetCounterUsesDistinctInstructionFromChangeKey(t *testing.T) {
	p := profile.New()
	setReqs, err := (&SetCounter{SFI: 7, CounterNum: 1, Value: 9}).Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	keyReqs, err := (&ChangeKey{KeyIndex: 1, CipheredBlock: []byte{0}}).Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if setReqs[0].INS == keyReqs[0].INS {
		t.Errorf("SetCounter and ChangeKey must not share an instruction byte, both are %02X", setReqs[0].INS)
	}
}

func TestSetCounterWritesAbsoluteValue(t *testing.T) {
	p := profile.New()
	f, _ := profile.NewFileHeader(1, 7, profile.Counters, 3, 10)
	p.AddFile(f)
	f.SetRecord(2, encode3(999))

	c := &SetCounter{SFI: 7, CounterNum: 2, Value: 42}
	if err := c.Parse(0, mkResponse(t, nil), p); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec, _ := f.Record(2)
	if !bytes.Equal(rec, encode3(42)) {
		t.Errorf("counter = %v, want encode3(42)", rec)
	}
}
