package transaction

import (
	"fmt"
	"strings"

	"calypsocore/apdu"
)

// AuditEntry is one raw APDU exchange recorded during a processCommands
// drain, the in-memory shape of the audit log spec.md's TransactionContext
// data model names ("audit log of raw APDUs", §3). Manager accumulates
// these for the lifetime of one drain; a caller wanting them to outlive
// the Manager persists AuditTrail through the audit package.
type AuditEntry struct {
	Command    string
	Request    []byte
	Response   []byte
	StatusWord apdu.StatusWord
}

// AuditTrail returns the raw APDU exchanges recorded by the most recent
// processCommands call, oldest first. The slice is cleared at the start
// of the next drain.
func (m *Manager) AuditTrail() []AuditEntry { return m.auditLog }

// recordAudit appends one exchange to the trail, deriving a short
// command name from the concrete command type (e.g. "*command.ReadRecord"
// becomes "ReadRecord").
func (m *Manager) recordAudit(cmd any, req, resp []byte, sw apdu.StatusWord) {
	name := fmt.Sprintf("%T", cmd)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	m.auditLog = append(m.auditLog, AuditEntry{
		Command:    name,
		Request:    append([]byte(nil), req...),
		Response:   append([]byte(nil), resp...),
		StatusWord: sw,
	})
}
