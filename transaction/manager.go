// Package transaction is the transaction manager: the public façade
// that queues typed commands against a selected card, drains them over
// a transport, and orchestrates the secure-session and stored-value
// sub-engines around that drain (§4.3). Grounded on the teacher's
// sim.ProgrammableCard's fluent queue-then-commit shape, generalized
// from one-shot file programming to a full prepare/processCommands
// transaction lifecycle.
package transaction

import (
	"calypsocore/apdu"
	"calypsocore/calypsoerr"
	"calypsocore/command"
	"calypsocore/cryptoadapter"
	"calypsocore/profile"
	"calypsocore/session"
	"calypsocore/sv"
	"calypsocore/transport"
)

// Manager is the flowing builder every prepare* method returns for
// chaining (§4.3). It is not safe for concurrent use: one Manager
// belongs to one caller for the life of one transaction (§5).
type Manager struct {
	profile    *profile.CardProfile
	transport  transport.Transport
	symmetric  cryptoadapter.SymmetricCryptoService
	asymmetric cryptoadapter.AsymmetricCryptoService
	security   *SecuritySetting

	session *session.SecureSession
	sv      *sv.Engine

	queue []command.Command
	err   error

	auditLog []AuditEntry

	openPendingWAL   profile.WriteAccessLevel
	openPendingKIF   byte
	openPendingKVC   byte
	openDiversifier  []byte
}

// NewManager builds a Manager bound to an already-selected profile, a
// transport, the two crypto collaborators and a security setting.
// Nothing is sent to the card until processCommands runs.
func NewManager(p *profile.CardProfile, t transport.Transport, symmetric cryptoadapter.SymmetricCryptoService, asymmetric cryptoadapter.AsymmetricCryptoService, security *SecuritySetting) *Manager {
	return &Manager{
		profile:    p,
		transport:  t,
		symmetric:  symmetric,
		asymmetric: asymmetric,
		security:   security,
		session:    session.New(symmetric),
		sv:         sv.New(symmetric),
	}
}

// Profile exposes the CardProfile the manager is operating on.
func (m *Manager) Profile() *profile.CardProfile { return m.profile }

// Err returns the first validation error raised by a prepare* call, if
// any, without draining the queue.
func (m *Manager) Err() error { return m.err }

// fail records the first error only; later prepare* calls become
// no-ops once m.err is set, surfacing the error synchronously to the
// caller's next processCommands (§4.3's "validation errors on
// prepare* calls are raised synchronously before processCommands").
func (m *Manager) fail(err error) *Manager {
	if m.err == nil {
		m.err = err
	}
	return m
}

func checkRange(op string, v, lo, hi int) error {
	if v < lo || v > hi {
		return calypsoerr.New(calypsoerr.InvalidInput, op, "value out of range")
	}
	return nil
}

func (m *Manager) enqueue(c command.Command) *Manager {
	if m.err != nil {
		return m
	}
	m.queue = append(m.queue, c)
	return m
}

// PrepareSelectFile enqueues a Select-File-by-LID.
func (m *Manager) PrepareSelectFile(lid uint16) *Manager {
	return m.enqueue(&command.SelectFile{LID: lid, Control: command.SelectByLID})
}

// PrepareSelectFileNext enqueues a Select-File-NEXT.
func (m *Manager) PrepareSelectFileNext() *Manager {
	return m.enqueue(&command.SelectFile{Control: command.SelectNext})
}

func (m *Manager) validateSFI(op string, sfi int) error {
	return checkRange(op, sfi, 0, 30)
}

func (m *Manager) validateRecNum(op string, recNum int) error {
	return checkRange(op, recNum, 1, 250)
}

// PrepareReadRecord enqueues a single Read-Record.
func (m *Manager) PrepareReadRecord(sfi byte, recNum int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareReadRecord", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := m.validateRecNum("prepareReadRecord", recNum); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.ReadRecord{SFI: sfi, RecNum: recNum})
}

// PrepareReadRecords enqueues a Read-Record-Multiple over [from, to].
func (m *Manager) PrepareReadRecords(sfi byte, from, to, recSize int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareReadRecords", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := m.validateRecNum("prepareReadRecords", from); err != nil {
		return m.fail(err)
	}
	if err := m.validateRecNum("prepareReadRecords", to); err != nil {
		return m.fail(err)
	}
	if to < from {
		return m.fail(calypsoerr.New(calypsoerr.InvalidInput, "prepareReadRecords", "to must be >= from"))
	}
	return m.enqueue(&command.ReadRecords{SFI: sfi, From: from, To: to, RecordSize: recSize})
}

// PrepareReadRecordsPartially enqueues a partial-record read window.
func (m *Manager) PrepareReadRecordsPartially(sfi byte, from, to, offset, nbBytes int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareReadRecordsPartially", int(sfi)); err != nil {
		return m.fail(err)
	}
	if m.profile.ProductType == profile.PrimeRevision2 {
		return m.fail(calypsoerr.New(calypsoerr.Unsupported, "prepareReadRecordsPartially", "not supported on Prime Revision 2"))
	}
	if err := checkRange("prepareReadRecordsPartially", offset, 0, 249); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.ReadRecordsPartially{SFI: sfi, From: from, To: to, Offset: offset, NBytes: nbBytes})
}

// PrepareReadBinary enqueues a Read-Binary at a byte offset.
func (m *Manager) PrepareReadBinary(sfi byte, offset, nbBytes int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareReadBinary", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := checkRange("prepareReadBinary", offset, 0, 32767); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.ReadBinary{SFI: sfi, Offset: offset, NBytes: nbBytes})
}

// PrepareReadCounter enqueues a single counter read.
func (m *Manager) PrepareReadCounter(sfi byte, counterNum int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareReadCounter", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := checkRange("prepareReadCounter", counterNum, 0, 83); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.ReadCounter{SFI: sfi, CounterNum: counterNum})
}

// PrepareSearchRecords enqueues a Search-Record.
func (m *Manager) PrepareSearchRecords(sfi byte, data []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareSearchRecords", int(sfi)); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.SearchRecords{SFI: sfi, Data: data})
}

// PrepareAppendRecord enqueues an Append-Record.
func (m *Manager) PrepareAppendRecord(sfi byte, data []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareAppendRecord", int(sfi)); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.AppendRecord{SFI: sfi, Data: data})
}

// PrepareUpdateRecord enqueues an Update-Record.
func (m *Manager) PrepareUpdateRecord(sfi byte, recNum int, data []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareUpdateRecord", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := m.validateRecNum("prepareUpdateRecord", recNum); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.UpdateRecord{SFI: sfi, RecNum: recNum, Data: data})
}

// PrepareWriteRecord enqueues a Write-Record.
func (m *Manager) PrepareWriteRecord(sfi byte, recNum int, data []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareWriteRecord", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := m.validateRecNum("prepareWriteRecord", recNum); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.WriteRecord{SFI: sfi, RecNum: recNum, Data: data})
}

// PrepareUpdateBinary enqueues an Update-Binary.
func (m *Manager) PrepareUpdateBinary(sfi byte, offset int, data []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareUpdateBinary", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := checkRange("prepareUpdateBinary", offset, 0, 32767); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.UpdateBinary{SFI: sfi, Offset: offset, Data: data})
}

// PrepareWriteBinary enqueues a Write-Binary.
func (m *Manager) PrepareWriteBinary(sfi byte, offset int, data []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareWriteBinary", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := checkRange("prepareWriteBinary", offset, 0, 32767); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.WriteBinary{SFI: sfi, Offset: offset, Data: data})
}

func (m *Manager) validateCounterValue(op string, v int) error {
	return checkRange(op, v, 0, 16_777_215)
}

// PrepareIncreaseCounter enqueues a single-counter increment.
func (m *Manager) PrepareIncreaseCounter(sfi byte, counterNum, amount int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareIncreaseCounter", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := checkRange("prepareIncreaseCounter", counterNum, 0, 83); err != nil {
		return m.fail(err)
	}
	if err := m.validateCounterValue("prepareIncreaseCounter", amount); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.IncreaseCounter{SFI: sfi, CounterNum: counterNum, Amount: amount})
}

// PrepareDecreaseCounter enqueues a single-counter decrement.
func (m *Manager) PrepareDecreaseCounter(sfi byte, counterNum, amount int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareDecreaseCounter", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := checkRange("prepareDecreaseCounter", counterNum, 0, 83); err != nil {
		return m.fail(err)
	}
	if err := m.validateCounterValue("prepareDecreaseCounter", amount); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.DecreaseCounter{SFI: sfi, CounterNum: counterNum, Amount: amount})
}

// PrepareIncreaseCounters enqueues an Increase-Multiple over a run of
// consecutive counters starting at firstCounterNum.
func (m *Manager) PrepareIncreaseCounters(sfi byte, firstCounterNum int, amounts []int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareIncreaseCounters", int(sfi)); err != nil {
		return m.fail(err)
	}
	for _, a := range amounts {
		if err := m.validateCounterValue("prepareIncreaseCounters", a); err != nil {
			return m.fail(err)
		}
	}
	return m.enqueue(&command.IncreaseCounters{SFI: sfi, FirstCounterNum: firstCounterNum, Amounts: amounts})
}

// expandDecreaseCounters resolves §4.3's open question for
// prepareDecreaseCounters on sub-Prime-Rev-3 cards: expand into
// single-counter Decrease-Counter commands rather than raising
// Unsupported.
func (m *Manager) expandDecreaseCounters(sfi byte, firstCounterNum int, amounts []int) {
	for i, a := range amounts {
		m.enqueue(&command.DecreaseCounter{SFI: sfi, CounterNum: firstCounterNum + i, Amount: a})
	}
}

// PrepareDecreaseCounters enqueues a Decrease-Multiple, or, on cards
// below Prime Revision 3 (which do not support the multiple form),
// expands it into one Decrease-Counter per entry.
func (m *Manager) PrepareDecreaseCounters(sfi byte, firstCounterNum int, amounts []int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareDecreaseCounters", int(sfi)); err != nil {
		return m.fail(err)
	}
	for _, a := range amounts {
		if err := m.validateCounterValue("prepareDecreaseCounters", a); err != nil {
			return m.fail(err)
		}
	}
	if m.profile.ProductType != profile.PrimeRevision3 {
		m.expandDecreaseCounters(sfi, firstCounterNum, amounts)
		return m
	}
	return m.enqueue(&command.DecreaseCounters{SFI: sfi, FirstCounterNum: firstCounterNum, Amounts: amounts})
}

// PrepareSetCounter enqueues a personalization Set-Counter.
func (m *Manager) PrepareSetCounter(sfi byte, counterNum, value int) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.validateSFI("prepareSetCounter", int(sfi)); err != nil {
		return m.fail(err)
	}
	if err := m.validateCounterValue("prepareSetCounter", value); err != nil {
		return m.fail(err)
	}
	return m.enqueue(&command.SetCounter{SFI: sfi, CounterNum: counterNum, Value: value})
}

// PrepareCheckPinStatus enqueues the status-only Verify-PIN variant.
func (m *Manager) PrepareCheckPinStatus() *Manager {
	return m.enqueue(&command.VerifyPin{StatusOnly: true})
}

// PrepareVerifyPin enqueues a Verify-PIN carrying pin (4 bytes,
// plain or already-ciphered per the security setting). When ciphering
// is required, a GetChallenge is auto-enqueued ahead of it (§4.6): the
// card challenge it fetches is what the cipher step consumes, not
// whatever the profile happened to hold at prepare-time.
func (m *Manager) PrepareVerifyPin(pin []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := checkRange("prepareVerifyPin", len(pin), 4, 4); err != nil {
		return m.fail(err)
	}
	if m.security.pinPlainTransmission {
		return m.enqueue(&command.VerifyPin{Data: pin})
	}
	m.enqueue(&command.GetChallenge{})
	return m.enqueue(&command.VerifyPin{PendingCipherPIN: append([]byte(nil), pin...)})
}

// PrepareChangePin enqueues a Change-PIN carrying a SAM-ciphered new
// PIN block. A GetChallenge is auto-enqueued ahead of it so the
// ciphering step always consumes a freshly fetched card challenge
// (§4.6).
func (m *Manager) PrepareChangePin(newPin []byte) *Manager {
	if m.err != nil {
		return m
	}
	if err := checkRange("prepareChangePin", len(newPin), 4, 4); err != nil {
		return m.fail(err)
	}
	m.enqueue(&command.GetChallenge{})
	return m.enqueue(&command.ChangePin{PendingNewPIN: append([]byte(nil), newPin...)})
}

// PrepareChangeKey enqueues a Change-Key carrying a SAM-ciphered key
// block for keyIndex, diversified under the card challenge. A
// GetChallenge is auto-enqueued ahead of it for the same reason as
// PrepareChangePin (§4.6).
func (m *Manager) PrepareChangeKey(keyIndex, kif, kvc, issuerKif, issuerKvc byte) *Manager {
	if m.err != nil {
		return m
	}
	m.enqueue(&command.GetChallenge{})
	return m.enqueue(&command.ChangeKey{
		KeyIndex:         keyIndex,
		PendingCipher:    true,
		PendingKIF:       kif,
		PendingKVC:       kvc,
		PendingIssuerKIF: issuerKif,
		PendingIssuerKVC: issuerKvc,
	})
}

// PrepareGetData enqueues a Get-Data for an arbitrary BER-TLV tag
// (§4 ADDED generalization beyond the two named tags).
func (m *Manager) PrepareGetData(tag uint16) *Manager {
	return m.enqueue(&command.GetData{Tag: tag})
}

// PrepareInvalidate enqueues an Invalidate.
func (m *Manager) PrepareInvalidate() *Manager { return m.enqueue(&command.Invalidate{}) }

// PrepareRehabilitate enqueues a Rehabilitate.
func (m *Manager) PrepareRehabilitate() *Manager { return m.enqueue(&command.Rehabilitate{}) }

// InitCryptoContextForNextTransaction pre-fetches a SAM challenge for
// a future session, so the next transaction's open can skip one SAM
// round trip (§4.3).
func (m *Manager) InitCryptoContextForNextTransaction() *Manager {
	if m.err != nil {
		return m
	}
	if err := m.symmetric.PreInitTerminalSecureSessionContext(); err != nil {
		return m.fail(calypsoerr.Wrap(calypsoerr.Transport, "initCryptoContextForNextTransaction", err))
	}
	return m
}

// successOf returns a command's own success set unchanged; no
// caller-registered status words are added to it, and nothing in the
// package calls it.
func successOf(c command.Command) apdu.SuccessSet { return c.SuccessSWs() }
