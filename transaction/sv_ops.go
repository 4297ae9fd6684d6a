package transaction

import (
	"calypsocore/command"
)

// PrepareSvGet enqueues the SV-Get that must precede any reload, debit
// or undebit (§4.5). The SV-Get is recorded only when a ProcessCommands
// drain parses its response, so it must have been processed before the
// reload, debit or undebit is prepared.
func (m *Manager) PrepareSvGet(op command.SVOperation) *Manager {
	return m.enqueue(m.sv.PrepareGet(op))
}

// PrepareSvReload enqueues an SV-Reload carrying a freshly computed
// terminal signature; requires a prior PrepareSvGet in this
// transaction (§4.5).
func (m *Manager) PrepareSvReload(amount int32, date, time, freeData [2]byte) *Manager {
	if m.err != nil {
		return m
	}
	cmd, err := m.sv.PrepareReload(m.profile, amount, date, time, freeData)
	if err != nil {
		return m.fail(err)
	}
	return m.enqueue(cmd)
}

// PrepareSvDebit enqueues an SV-Debit the same way.
func (m *Manager) PrepareSvDebit(amount int32, date, time [2]byte) *Manager {
	if m.err != nil {
		return m
	}
	cmd, err := m.sv.PrepareDebit(m.profile, amount, date, time)
	if err != nil {
		return m.fail(err)
	}
	return m.enqueue(cmd)
}

// PrepareSvUndebit enqueues an SV-Undebit reversing a prior debit.
func (m *Manager) PrepareSvUndebit(amount int32, date, time [2]byte) *Manager {
	if m.err != nil {
		return m
	}
	cmd, err := m.sv.PrepareUndebit(m.profile, amount, date, time)
	if err != nil {
		return m.fail(err)
	}
	return m.enqueue(cmd)
}

// PrepareSvReadAllLogs enqueues the reads of the SV load-log and (for
// extended-mode cards) the debit-log files; dispatchDefault decodes
// the record into CardProfile.SV once the response arrives.
func (m *Manager) PrepareSvReadAllLogs() *Manager {
	if m.err != nil {
		return m
	}
	m.queue = append(m.queue, &command.ReadRecords{SFI: svLoadLogSFI, From: 1, To: 1, RecordSize: command.SVLogRecordSize})
	if m.profile.Capabilities.ExtendedMode {
		m.queue = append(m.queue, &command.ReadRecords{SFI: svDebitLogSFI, From: 1, To: 1, RecordSize: command.SVLogRecordSize})
	}
	return m
}
