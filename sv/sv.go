// Package sv is the stored-value engine: it builds SvReload/SvDebit/
// SvUndebit commands with a SAM-computed terminal signature and, after
// a successful response, folds the card's log fields back into the
// profile's SV log slots (§4.5). Grounded on sim/usim_write.go's
// record-then-recompute pattern — the teacher has no direct SV
// analogue, so this package is built fresh in that file's idiom:
// build a typed command, apply its effect, recompute the derived
// state.
package sv

import (
	"calypsocore/calypsoerr"
	"calypsocore/command"
	"calypsocore/cryptoadapter"
	"calypsocore/profile"
)

// Engine prepares SV commands and applies their post-response log
// bookkeeping; one Engine is owned by one transaction manager.
type Engine struct {
	crypto cryptoadapter.SymmetricCryptoService
}

// New builds an Engine bound to crypto for its lifetime.
func New(crypto cryptoadapter.SymmetricCryptoService) *Engine {
	return &Engine{crypto: crypto}
}

// PrepareGet builds the SvGet command that must precede any reload,
// debit or undebit in the same transaction (§3, §4.5).
func (e *Engine) PrepareGet(op command.SVOperation) *command.SvGet {
	return &command.SvGet{Operation: op}
}

// PrepareReload builds a SvReload command carrying a terminal
// signature freshly computed by the SAM collaborator. Only the prior
// SvGet is checked here; whether a session is open is not checked.
func (e *Engine) PrepareReload(p *profile.CardProfile, amount int32, date, time, freeData [2]byte) (*command.SvReload, error) {
	if err := p.RequireSVGet("PrepareReload"); err != nil {
		return nil, err
	}
	sig, err := e.crypto.GenerateTerminalSessionMac()
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.Transport, "PrepareReload", err)
	}
	return &command.SvReload{Amount: amount, Date: date, Time: time, FreeData: freeData, TerminalSig: sig}, nil
}

// PrepareDebit builds a SvDebit command the same way.
func (e *Engine) PrepareDebit(p *profile.CardProfile, amount int32, date, time [2]byte) (*command.SvDebit, error) {
	if err := p.RequireSVGet("PrepareDebit"); err != nil {
		return nil, err
	}
	sig, err := e.crypto.GenerateTerminalSessionMac()
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.Transport, "PrepareDebit", err)
	}
	return &command.SvDebit{Amount: amount, Date: date, Time: time, TerminalSig: sig}, nil
}

// PrepareUndebit builds a SvUndebit command reversing a prior debit.
func (e *Engine) PrepareUndebit(p *profile.CardProfile, amount int32, date, time [2]byte) (*command.SvUndebit, error) {
	if err := p.RequireSVGet("PrepareUndebit"); err != nil {
		return nil, err
	}
	sig, err := e.crypto.GenerateTerminalSessionMac()
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.Transport, "PrepareUndebit", err)
	}
	return &command.SvUndebit{Amount: amount, Date: date, Time: time, TerminalSig: sig}, nil
}

// ApplyReloadLog replaces the profile's last-load-log with a freshly
// built record reflecting the state after a successful SvReload,
// called by the transaction manager once the command's Parse has
// already updated balance/LastTNum (§4.5: "a new log record replaces
// the previous one").
func ApplyReloadLog(p *profile.CardProfile, amount int32, date, time [2]byte, kvc byte, samID, samTNum uint32) {
	p.SV.LastLoadLog = &profile.SVLog{
		Date:    be16(date),
		Time:    be16(time),
		Amount:  amount,
		Balance: p.SV.Balance,
		KVC:     kvc,
		SamID:   samID,
		SamTNum: samTNum,
		SVTNum:  p.SV.LastTNum,
	}
}

// ApplyDebitLog is ApplyReloadLog's debit-side counterpart, populating
// LastDebitLog; extended-mode cards only (§4.5).
func ApplyDebitLog(p *profile.CardProfile, amount int32, date, time [2]byte, kvc byte, samID, samTNum uint32) {
	p.SV.LastDebitLog = &profile.SVLog{
		Date:    be16(date),
		Time:    be16(time),
		Amount:  amount,
		Balance: p.SV.Balance,
		KVC:     kvc,
		SamID:   samID,
		SamTNum: samTNum,
		SVTNum:  p.SV.LastTNum,
	}
}

func be16(b [2]byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
