package command

import (
	"encoding/binary"

	"calypsocore/apdu"
	"calypsocore/profile"
)

const (
	counterMin    = 0
	counterMax    = 83
	counterValMin = 0
	counterValMax = 16_777_215
)

func encode3(v int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b[1:]
}

func decode3(b []byte) int {
	if len(b) < 3 {
		return 0
	}
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

// ReadCounter reads one 3-byte counter value; counters live in a
// COUNTERS/SIMULATED_COUNTERS file addressed like a record file, one
// counter per "record" slot (§4.3).
type ReadCounter struct {
	SFI        byte
	CounterNum int
}

func (c *ReadCounter) Name() string { return "ReadCounter" }
func (c *ReadCounter) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("ReadCounter", c.CounterNum, counterMin, counterMax); err != nil {
		return nil, err
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xB2, P1: byte(c.CounterNum), P2: recordP2(c.SFI, 0x04), Le: le(0x00)}}, nil
}
func (c *ReadCounter) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *ReadCounter) UsesSessionBuffer() bool      { return false }
func (c *ReadCounter) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	f.SetRecord(c.CounterNum, resp.Data)
	return nil
}

// counterChunkSize is how many consecutive counters fit in one
// increase/decrease-multiple APDU: floor(payload/3), at least 1.
func counterChunkSize(capacity int) int {
	n := capacity / 3
	if n < 1 {
		n = 1
	}
	return n
}

// IncreaseCounters (and DecreaseCounters) increments/decrements a run
// of consecutive counters starting at FirstCounterNum, splitting into
// multiple APDUs of floor(payload/3) counters each (§4.3).
type IncreaseCounters struct {
	SFI             byte
	FirstCounterNum int
	Amounts         []int
}

func (c *IncreaseCounters) Name() string { return "IncreaseCounters" }
func (c *IncreaseCounters) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return encodeCounterMultiple(0x32, c.SFI, c.FirstCounterNum, c.Amounts, p)
}
func (c *IncreaseCounters) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *IncreaseCounters) UsesSessionBuffer() bool      { return true }
func (c *IncreaseCounters) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return applyCounterDeltaMultiple(c.SFI, c.FirstCounterNum, c.Amounts, idx, +1, p)
}

type DecreaseCounters struct {
	SFI             byte
	FirstCounterNum int
	Amounts         []int
}

func (c *DecreaseCounters) Name() string { return "DecreaseCounters" }
func (c *DecreaseCounters) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	return encodeCounterMultiple(0x30, c.SFI, c.FirstCounterNum, c.Amounts, p)
}
func (c *DecreaseCounters) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *DecreaseCounters) UsesSessionBuffer() bool      { return true }
func (c *DecreaseCounters) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return applyCounterDeltaMultiple(c.SFI, c.FirstCounterNum, c.Amounts, idx, -1, p)
}

func encodeCounterMultiple(ins, sfi byte, first int, amounts []int, p *profile.CardProfile) ([]apdu.Request, error) {
	for _, a := range amounts {
		if err := checkRange("IncreaseDecreaseCounters", a, counterValMin, counterValMax); err != nil {
			return nil, err
		}
	}
	chunk := counterChunkSize(p.PayloadCapacity)
	cla := ClassFor(p.ProductType)
	var reqs []apdu.Request
	for i := 0; i < len(amounts); i += chunk {
		end := i + chunk
		if end > len(amounts) {
			end = len(amounts)
		}
		var data []byte
		for _, a := range amounts[i:end] {
			data = append(data, encode3(a)...)
		}
		reqs = append(reqs, apdu.Request{CLA: cla, INS: ins, P1: byte(first + i), P2: sfi << 3, Data: data})
	}
	return reqs, nil
}

func applyCounterDeltaMultiple(sfi byte, first int, amounts []int, idx int, sign int, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(sfi)
	if !ok {
		return nil
	}
	chunk := counterChunkSize(p.PayloadCapacity)
	start := idx * chunk
	end := start + chunk
	if end > len(amounts) {
		end = len(amounts)
	}
	for i := start; i < end; i++ {
		counterNum := first + i
		old := decode3(f.Records[counterNum])
		f.SetRecord(counterNum, encode3(old+sign*amounts[i]))
	}
	return nil
}

// IncreaseCounter and DecreaseCounter are the single-counter forms.
type IncreaseCounter struct {
	SFI        byte
	CounterNum int
	Amount     int
}

func (c *IncreaseCounter) Name() string { return "IncreaseCounter" }
func (c *IncreaseCounter) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("IncreaseCounter", c.Amount, counterValMin, counterValMax); err != nil {
		return nil, err
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x32, P1: byte(c.CounterNum), P2: c.SFI << 3, Data: encode3(c.Amount)}}, nil
}
func (c *IncreaseCounter) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *IncreaseCounter) UsesSessionBuffer() bool      { return true }
func (c *IncreaseCounter) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return applyCounterDelta(c.SFI, c.CounterNum, c.Amount, +1, p)
}

type DecreaseCounter struct {
	SFI        byte
	CounterNum int
	Amount     int
}

func (c *DecreaseCounter) Name() string { return "DecreaseCounter" }
func (c *DecreaseCounter) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("DecreaseCounter", c.Amount, counterValMin, counterValMax); err != nil {
		return nil, err
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0x30, P1: byte(c.CounterNum), P2: c.SFI << 3, Data: encode3(c.Amount)}}, nil
}
func (c *DecreaseCounter) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *DecreaseCounter) UsesSessionBuffer() bool      { return true }
func (c *DecreaseCounter) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	return applyCounterDelta(c.SFI, c.CounterNum, c.Amount, -1, p)
}

func applyCounterDelta(sfi byte, counterNum, amount, sign int, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(sfi)
	if !ok {
		return nil
	}
	old := decode3(f.Records[counterNum])
	f.SetRecord(counterNum, encode3(old+sign*amount))
	return nil
}

// SetCounter writes an absolute 3-byte counter value (a Calypso
// personalization-only command, not a relative increase/decrease).
type SetCounter struct {
	SFI        byte
	CounterNum int
	Value      int
}

func (c *SetCounter) Name() string { return "SetCounter" }
func (c *SetCounter) Encode(p *profile.CardProfile) ([]apdu.Request, error) {
	if err := checkRange("SetCounter", c.Value, counterValMin, counterValMax); err != nil {
		return nil, err
	}
	return []apdu.Request{{CLA: ClassFor(p.ProductType), INS: 0xD9, P1: byte(c.CounterNum), P2: c.SFI << 3, Data: encode3(c.Value)}}, nil
}
func (c *SetCounter) SuccessSWs() apdu.SuccessSet { return defaultSuccess() }
func (c *SetCounter) UsesSessionBuffer() bool      { return true }
func (c *SetCounter) Parse(idx int, resp apdu.Response, p *profile.CardProfile) error {
	f, ok := p.FileBySFI(c.SFI)
	if !ok {
		return nil
	}
	f.SetRecord(c.CounterNum, encode3(c.Value))
	return nil
}
