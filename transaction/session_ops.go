package transaction

import (
	"log/slog"

	"calypsocore/apdu"
	"calypsocore/calypsoerr"
	"calypsocore/command"
	"calypsocore/profile"
	"calypsocore/session"
)

// svLoadLogSFI and svDebitLogSFI are the well-known SV log file
// locations prepareSvReadAllLogs reads back, decoded with
// command.ParseSVLogRecord (§4.5, §6).
const (
	svLoadLogSFI  byte = 0x08
	svDebitLogSFI byte = 0x09
)

// PrepareOpenSecureSession validates the exactly-once-open contract,
// fetches a SAM challenge, optionally promotes the first pending
// read-record into the Open-Secure-Session APDU (§4.3's read-on-open
// merging, unless disableReadOnSessionOpening is set) and emits a
// SELECT-DIVERSIFIER ahead of it if the SAM diversifier changed
// (§4.4).
func (m *Manager) PrepareOpenSecureSession(wal profile.WriteAccessLevel) *Manager {
	if m.err != nil {
		return m
	}
	if err := m.session.RequestOpen(wal); err != nil {
		return m.fail(err)
	}
	challenge, err := m.symmetric.InitTerminalSecureSessionContext()
	if err != nil {
		return m.fail(calypsoerr.Wrap(calypsoerr.Transport, "prepareOpenSecureSession", err))
	}

	open := &command.OpenSecureSession{WAL: wal, SamChallenge: challenge}
	if !m.security.disableReadOnOpen {
		if rr, ok := firstReadRecord(m.queue); ok {
			open.Merge = true
			open.MergedSFI = rr.SFI
			open.MergedRecNum = rr.RecNum
			m.queue = removeCommand(m.queue, rr)
		}
	}

	diversifier := m.profile.SerialNumber[:]
	if m.session.NeedsDiversifierSelect(diversifier) {
		m.queue = append(m.queue, &command.SelectDiversifier{Diversifier: append([]byte(nil), diversifier...)})
	}
	m.queue = append(m.queue, open)
	return m
}

// PrepareCloseSecureSession validates a session is open and enqueues
// Close-Secure-Session; the terminal MAC is filled in at drain time,
// after every prior command has fed the running session MAC.
func (m *Manager) PrepareCloseSecureSession() *Manager {
	if m.err != nil {
		return m
	}
	if st := m.session.State(); st != session.Open && st != session.QueuedOpen {
		return m.fail(calypsoerr.New(calypsoerr.InvalidState, "prepareCloseSecureSession", "no open session to close"))
	}
	m.queue = append(m.queue, &command.CloseSecureSession{Ratify: true})
	return m
}

// PrepareCancelSecureSession enqueues the Abort APDU; valid from
// either Idle (best-effort) or Open (§4.4).
func (m *Manager) PrepareCancelSecureSession() *Manager {
	if m.err != nil {
		return m
	}
	if err := m.session.RequestCancel(); err != nil {
		return m.fail(err)
	}
	m.queue = append(m.queue, &command.CancelSecureSession{})
	return m
}

// PrepareEarlyMutualAuthentication enqueues a Manage-Secure-Session
// early-mutual-authentication call; extended-mode sessions only.
func (m *Manager) PrepareEarlyMutualAuthentication() *Manager {
	if m.err != nil {
		return m
	}
	if err := m.session.RequireExtendedMode("prepareEarlyMutualAuthentication"); err != nil {
		return m.fail(err)
	}
	m.queue = append(m.queue, &command.ManageSecureSession{Mode: command.EarlyMutualAuthentication})
	return m
}

// PrepareActivateEncryption turns on in-session encryption.
func (m *Manager) PrepareActivateEncryption() *Manager {
	if m.err != nil {
		return m
	}
	if err := m.session.SetEncryption(true); err != nil {
		return m.fail(err)
	}
	m.queue = append(m.queue, &command.ManageSecureSession{Mode: command.ActivateEncryption})
	return m
}

// PrepareDeactivateEncryption turns off in-session encryption.
func (m *Manager) PrepareDeactivateEncryption() *Manager {
	if m.err != nil {
		return m
	}
	if err := m.session.SetEncryption(false); err != nil {
		return m.fail(err)
	}
	m.queue = append(m.queue, &command.ManageSecureSession{Mode: command.DeactivateEncryption})
	return m
}

func firstReadRecord(queue []command.Command) (*command.ReadRecord, bool) {
	for _, c := range queue {
		if rr, ok := c.(*command.ReadRecord); ok {
			return rr, true
		}
	}
	return nil, false
}

func removeCommand(queue []command.Command, target command.Command) []command.Command {
	out := make([]command.Command, 0, len(queue))
	removed := false
	for _, c := range queue {
		if !removed && c == target {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}

// requestBytes renders a command's encoded requests back to a flat
// byte slice for session-buffer accounting and MAC feeding.
func requestBytes(reqs []apdu.Request) []byte {
	var out []byte
	for _, r := range reqs {
		out = append(out, r.Bytes()...)
	}
	return out
}

// ProcessCommands drains the queue, dispatching each command over the
// transport and through the secure-session and SV sub-engines, then
// flushes the crypto collaborator via Synchronize (§4.3, §5). A
// processCommands-time error aborts the drain, clears the queue and
// moves the session to Aborted, except the one case §4.4 carves out:
// an invalid card MAC at close lands the session in Idle, not Aborted.
func (m *Manager) ProcessCommands(channelControl apdu.ChannelControl) error {
	defer m.symmetricSynchronize()

	m.auditLog = nil

	if m.err != nil {
		err := m.err
		m.err = nil
		m.queue = nil
		return err
	}

	for i := 0; i < len(m.queue); i++ {
		cmd := m.queue[i]
		cc := apdu.KeepOpen
		if i == len(m.queue)-1 {
			cc = channelControl
		}

		if err := m.resolvePendingCipher(cmd); err != nil {
			return m.abortDrain(err)
		}

		switch c := cmd.(type) {
		case *command.CloseSecureSession:
			mac, err := m.symmetric.FinalizeTerminalSessionMac()
			if err != nil {
				return m.abortDrain(calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err))
			}
			c.TerminalMAC = mac
			resp, reqBytes, err := m.transmitOne(c, cc)
			if err != nil {
				return m.abortDrain(err)
			}
			valid, err := m.symmetric.IsCardSessionMacValid(resp.Data)
			if err != nil {
				return m.abortDrain(calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err))
			}
			if err := m.session.Feed(reqBytes, resp.Data); err != nil {
				return m.abortDrain(err)
			}
			if err := m.session.RequestClose(); err != nil {
				return m.abortDrain(err)
			}
			if err := m.session.ConfirmClose(valid); err != nil {
				slog.Debug("secure session closed with invalid card MAC", "err", err)
				m.queue = nil
				return err
			}
			slog.Debug("secure session closed")

		case *command.OpenSecureSession:
			resp, reqBytes, err := m.transmitOne(c, cc)
			if err != nil {
				return m.abortDrain(err)
			}
			if len(resp.Data) < 5 {
				return m.abortDrain(calypsoerr.New(calypsoerr.Parse, "processCommands", "open-session response shorter than fixed header"))
			}
			flags, kif, kvc := resp.Data[0], resp.Data[1], resp.Data[2]
			bufCap := int(resp.Data[3])<<8 | int(resp.Data[4])
			rest := resp.Data[5:]

			if !m.security.isKeyAuthorized(kif, kvc) {
				return m.abortDrain(calypsoerr.New(calypsoerr.UnauthorizedKey, "processCommands", "card's session key is not in the authorized set"))
			}

			extendedMode := flags&0x02 != 0
			ratified := flags&0x01 != 0
			if err := m.session.ConfirmOpen(extendedMode, bufCap, ratified); err != nil {
				return m.abortDrain(err)
			}
			if err := m.symmetric.InitTerminalSessionMac(rest, kif, kvc); err != nil {
				return m.abortDrain(calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err))
			}
			slog.Debug("secure session opened", "wal", c.WAL, "kif", kif, "kvc", kvc, "extendedMode", extendedMode)

			if c.Merge {
				if m.profile.PreOpen.Set && m.profile.PreOpen.WriteAccessLevel == c.WAL {
					if !bytesEqual(rest, m.profile.PreOpen.AnticipatedDataOut) {
						return m.abortDrain(calypsoerr.New(calypsoerr.UnexpectedCommandStatus, "processCommands", "anticipated data-out does not match card response"))
					}
				}
				if f, ok := m.profile.FileBySFI(c.MergedSFI); ok {
					f.SetRecord(c.MergedRecNum, rest)
				}
			}
			if err := m.session.Feed(reqBytes, resp.Data); err != nil {
				return m.abortDrain(err)
			}

		case *command.ManageSecureSession:
			resp, reqBytes, err := m.transmitOne(c, cc)
			if err != nil {
				return m.abortDrain(err)
			}
			if c.Mode == command.EarlyMutualAuthentication {
				valid, err := m.symmetric.IsCardSessionMacValid(resp.Data)
				if err != nil {
					return m.abortDrain(calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err))
				}
				if !valid {
					return m.abortDrain(calypsoerr.New(calypsoerr.InvalidCardMac, "processCommands", "early mutual authentication MAC invalid"))
				}
			}
			if err := m.session.Feed(reqBytes, resp.Data); err != nil {
				return m.abortDrain(err)
			}

		case *command.CancelSecureSession:
			if _, _, err := m.transmitOne(c, cc); err != nil {
				return m.abortDrain(err)
			}

		default:
			if err := m.dispatchDefault(cmd, i, cc); err != nil {
				return m.abortDrain(err)
			}
		}
	}

	m.queue = nil
	return nil
}

// resolvePendingCipher fills in the ciphered block for a VerifyPin,
// ChangePin or ChangeKey command whose Prepare* call deferred ciphering
// until a fresh card challenge was available. PrepareVerifyPin (when
// ciphering), PrepareChangePin and PrepareChangeKey always auto-enqueue
// a GetChallenge immediately ahead of the command they gate, so by the
// time this runs m.profile.CardChallenge already holds that
// GetChallenge's response (§4.6).
func (m *Manager) resolvePendingCipher(cmd command.Command) error {
	switch c := cmd.(type) {
	case *command.VerifyPin:
		if c.PendingCipherPIN == nil {
			return nil
		}
		ciphered, err := m.symmetric.CipherPinForModification(m.profile.CardChallenge, c.PendingCipherPIN, nil, m.security.pinCipheringKIF, m.security.pinCipheringKVC)
		if err != nil {
			return calypsoerr.Wrap(calypsoerr.Transport, "resolvePendingCipher", err)
		}
		c.Data = ciphered
		c.PendingCipherPIN = nil

	case *command.ChangePin:
		if c.PendingNewPIN == nil {
			return nil
		}
		block, err := m.symmetric.CipherPinForModification(m.profile.CardChallenge, nil, c.PendingNewPIN, m.security.pinCipheringKIF, m.security.pinCipheringKVC)
		if err != nil {
			return calypsoerr.Wrap(calypsoerr.Transport, "resolvePendingCipher", err)
		}
		c.CipheredBlock = block
		c.PendingNewPIN = nil

	case *command.ChangeKey:
		if !c.PendingCipher {
			return nil
		}
		block, err := m.symmetric.GenerateCipheredCardKey(m.profile.CardChallenge, c.PendingIssuerKIF, c.PendingIssuerKVC, c.PendingKIF, c.PendingKVC)
		if err != nil {
			return calypsoerr.Wrap(calypsoerr.Transport, "resolvePendingCipher", err)
		}
		c.CipheredBlock = block
		c.PendingCipher = false
	}
	return nil
}

// dispatchDefault handles every catalogue command that is not part of
// the session lifecycle itself: it performs atomic splitting when a
// session-buffer command would overflow, transmits, validates the
// status word, folds the response into the profile and feeds the
// session MAC when a session is open.
func (m *Manager) dispatchDefault(cmd command.Command, idx int, cc apdu.ChannelControl) error {
	reqs, err := cmd.Encode(m.profile)
	if err != nil {
		return err
	}
	reqBytes := requestBytes(reqs)

	if m.session.State() == session.Open && cmd.UsesSessionBuffer() {
		if m.session.WouldOverflow(len(reqBytes)) {
			if !m.security.multipleSession {
				return calypsoerr.New(calypsoerr.SessionBufferOverflow, "processCommands", "session buffer would overflow and multiple sessions are disabled")
			}
			if err := m.splitSessionMidTransaction(); err != nil {
				return err
			}
		}
	}

	apdus := make([]apdu.ApduRequest, len(reqs))
	for i, r := range reqs {
		apdus[i] = apdu.ApduRequest{Bytes: r.Bytes(), ExpectedSWs: cmd.SuccessSWs()}
	}
	cardResp, err := m.transport.TransmitCardRequest(apdu.CardRequest{Apdus: apdus, StopOnError: true}, cc)
	if err != nil {
		return err
	}
	if len(cardResp.Apdus) != len(reqs) {
		return calypsoerr.New(calypsoerr.UnexpectedCommandStatus, "processCommands", "card returned fewer responses than commands sent")
	}

	for i, a := range cardResp.Apdus {
		if !cmd.SuccessSWs().Contains(a.StatusWord) {
			return calypsoerr.New(calypsoerr.UnexpectedCommandStatus, "processCommands", "status word outside the command's success set: "+a.StatusWord.String())
		}
		resp, perr := apdu.ParseResponse(a.Bytes)
		if perr != nil {
			return perr
		}
		m.recordAudit(cmd, reqs[i].Bytes(), a.Bytes, a.StatusWord)
		if err := cmd.Parse(i, resp, m.profile); err != nil {
			return err
		}
		if m.session.State() == session.Open {
			if err := m.session.Feed(reqs[i].Bytes(), resp.Data); err != nil {
				return err
			}
		}
	}

	if m.session.State() == session.Open && cmd.UsesSessionBuffer() {
		m.session.AddBufferBytes(len(reqBytes))
	}

	m.applySvLogIfReadAllLogs(cmd)
	return nil
}

// applySvLogIfReadAllLogs decodes the well-known SV log records once
// prepareSvReadAllLogs's ReadRecords has populated the file cache.
func (m *Manager) applySvLogIfReadAllLogs(cmd command.Command) {
	rr, ok := cmd.(*command.ReadRecords)
	if !ok {
		return
	}
	f, ok := m.profile.FileBySFI(rr.SFI)
	if !ok {
		return
	}
	raw, ok := f.Record(1)
	if !ok {
		return
	}
	log, err := command.ParseSVLogRecord(raw)
	if err != nil {
		return
	}
	switch rr.SFI {
	case svLoadLogSFI:
		m.profile.SV.LastLoadLog = &log
	case svDebitLogSFI:
		m.profile.SV.LastDebitLog = &log
	}
}

// splitSessionMidTransaction emits a Close-Secure-Session/Open-Secure-
// Session pair at the current point of the drain, keeping the same
// write access level, per §4.4's atomic splitting.
func (m *Manager) splitSessionMidTransaction() error {
	slog.Debug("splitting secure session: session buffer would overflow")
	wal := m.session.WriteAccessLevel()

	mac, err := m.symmetric.FinalizeTerminalSessionMac()
	if err != nil {
		return calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err)
	}
	closeCmd := &command.CloseSecureSession{TerminalMAC: mac, Ratify: true}
	closeResp, closeReqBytes, err := m.transmitOne(closeCmd, apdu.KeepOpen)
	if err != nil {
		return err
	}
	valid, err := m.symmetric.IsCardSessionMacValid(closeResp.Data)
	if err != nil {
		return calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err)
	}
	if err := m.session.Feed(closeReqBytes, closeResp.Data); err != nil {
		return err
	}
	if err := m.session.RequestClose(); err != nil {
		return err
	}
	if err := m.session.ConfirmClose(valid); err != nil {
		return err
	}

	challenge, err := m.symmetric.InitTerminalSecureSessionContext()
	if err != nil {
		return calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err)
	}
	if err := m.session.RequestOpen(wal); err != nil {
		return err
	}
	openCmd := &command.OpenSecureSession{WAL: wal, SamChallenge: challenge}
	openResp, openReqBytes, err := m.transmitOne(openCmd, apdu.KeepOpen)
	if err != nil {
		return err
	}
	if len(openResp.Data) < 5 {
		return calypsoerr.New(calypsoerr.Parse, "processCommands", "open-session response shorter than fixed header")
	}
	flags, kif, kvc := openResp.Data[0], openResp.Data[1], openResp.Data[2]
	bufCap := int(openResp.Data[3])<<8 | int(openResp.Data[4])
	if !m.security.isKeyAuthorized(kif, kvc) {
		return calypsoerr.New(calypsoerr.UnauthorizedKey, "processCommands", "card's session key is not in the authorized set")
	}
	if err := m.session.ConfirmOpen(flags&0x02 != 0, bufCap, flags&0x01 != 0); err != nil {
		return err
	}
	if err := m.symmetric.InitTerminalSessionMac(openResp.Data[5:], kif, kvc); err != nil {
		return calypsoerr.Wrap(calypsoerr.Transport, "processCommands", err)
	}
	if err := m.session.Feed(openReqBytes, openResp.Data); err != nil {
		return err
	}
	m.session.BeginAtomicSplit()
	return nil
}

// transmitOne encodes and transmits a single command (expected to
// render exactly one APDU), returning the parsed response and the raw
// request bytes for MAC feeding.
func (m *Manager) transmitOne(cmd command.Command, cc apdu.ChannelControl) (apdu.Response, []byte, error) {
	reqs, err := cmd.Encode(m.profile)
	if err != nil {
		return apdu.Response{}, nil, err
	}
	apdus := make([]apdu.ApduRequest, len(reqs))
	for i, r := range reqs {
		apdus[i] = apdu.ApduRequest{Bytes: r.Bytes(), ExpectedSWs: cmd.SuccessSWs()}
	}
	cardResp, err := m.transport.TransmitCardRequest(apdu.CardRequest{Apdus: apdus, StopOnError: true}, cc)
	if err != nil {
		return apdu.Response{}, nil, err
	}
	if len(cardResp.Apdus) == 0 {
		return apdu.Response{}, nil, calypsoerr.New(calypsoerr.Transport, "processCommands", "transport returned no response")
	}
	a := cardResp.Apdus[0]
	if !cmd.SuccessSWs().Contains(a.StatusWord) {
		return apdu.Response{}, nil, calypsoerr.New(calypsoerr.UnexpectedCommandStatus, "processCommands", "status word outside the command's success set: "+a.StatusWord.String())
	}
	resp, err := apdu.ParseResponse(a.Bytes)
	if err != nil {
		return apdu.Response{}, nil, err
	}
	reqBytes := requestBytes(reqs)
	m.recordAudit(cmd, reqBytes, a.Bytes, a.StatusWord)
	return resp, reqBytes, nil
}

// abortDrain clears the queue and moves the session to Aborted before
// returning err (§7).
func (m *Manager) abortDrain(err error) error {
	slog.Debug("aborting processCommands drain", "err", err)
	m.session.Abort()
	m.queue = nil
	return err
}

// symmetricSynchronize flushes buffered SAM state once per
// processCommands call (§5); its own error is always discarded, so it
// never masks or replaces the drain's result.
func (m *Manager) symmetricSynchronize() {
	_ = m.symmetric.Synchronize()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
