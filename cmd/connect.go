package cmd

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"calypsocore/apdu"
	"calypsocore/command"
	"calypsocore/config"
	"calypsocore/cryptoadapter"
	"calypsocore/output"
	"calypsocore/profile"
	"calypsocore/selection"
	"calypsocore/transaction"
	"calypsocore/transport"
)

// connectAndSelect lists/connects the configured PC/SC reader, selects
// the configured AID, and builds a CardProfile from the FCI response,
// grounded on the teacher's connectAndPrepareReader.
func connectAndSelect(cfg *config.EngineConfig) (*transport.PCSCTransport, *profile.CardProfile, error) {
	index := cfg.Reader.Index
	if index < 0 {
		readers, err := transport.ListReaders()
		if err != nil {
			return nil, nil, fmt.Errorf("list readers: %w", err)
		}
		if len(readers) == 0 {
			return nil, nil, fmt.Errorf("no smart card readers found")
		}
		if len(readers) > 1 {
			output.PrintReaderList(readers)
			return nil, nil, fmt.Errorf("multiple readers found, use --reader <index> to select one")
		}
		index = 0
	}

	t, err := transport.ConnectPCSCByIndex(index, cfg.Reader.Contactless, cfg.Reader.RatePerSecond)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to reader: %w", err)
	}
	if !outputJSON {
		output.PrintReaderInfo(t.Name(), t.ATRHex())
	}

	aid, err := hex.DecodeString(aidHex)
	if err != nil {
		t.Close()
		return nil, nil, fmt.Errorf("invalid --aid hex: %w", err)
	}
	req := selection.BuildSelectApplication(aid)
	cardResp, err := t.TransmitCardRequest(apdu.CardRequest{
		Apdus:       []apdu.ApduRequest{{Bytes: req.Bytes(), ExpectedSWs: apdu.NewSuccessSet(apdu.SWSuccess, apdu.SWInvalidated)}},
		StopOnError: true,
	}, apdu.KeepOpen)
	if err != nil {
		t.Close()
		return nil, nil, fmt.Errorf("select application: %w", err)
	}
	if len(cardResp.Apdus) == 0 {
		t.Close()
		return nil, nil, fmt.Errorf("select application: no response from card")
	}
	resp, err := apdu.ParseResponse(cardResp.Apdus[0].Bytes)
	if err != nil {
		t.Close()
		return nil, nil, fmt.Errorf("parse select response: %w", err)
	}
	p, err := selection.InitializeWithFci(resp)
	if err != nil {
		t.Close()
		return nil, nil, fmt.Errorf("initialize card profile: %w", err)
	}

	fetchEFList(t, p)
	return t, p, nil
}

// fetchEFList issues a plain (out-of-session) GetData(0xC0) and
// populates the profile's FileHeader cache from it (§3/§6). Not every
// card exposes an EF-list, so a non-success status word or transport
// error here is logged and otherwise ignored; later commands simply
// find no registered file and no-op as before.
func fetchEFList(t *transport.PCSCTransport, p *profile.CardProfile) {
	get := &command.GetData{Tag: 0x00C0}
	reqs, err := get.Encode(p)
	if err != nil {
		slog.Debug("EF-list GetData encode failed", "err", err)
		return
	}
	cardResp, err := t.TransmitCardRequest(apdu.CardRequest{
		Apdus:       []apdu.ApduRequest{{Bytes: reqs[0].Bytes(), ExpectedSWs: get.SuccessSWs()}},
		StopOnError: true,
	}, apdu.KeepOpen)
	if err != nil || len(cardResp.Apdus) == 0 {
		slog.Debug("EF-list GetData transmit failed", "err", err)
		return
	}
	resp, err := apdu.ParseResponse(cardResp.Apdus[0].Bytes)
	if err != nil || !get.SuccessSWs().Contains(resp.SW) {
		slog.Debug("EF-list GetData rejected by card", "sw", resp.SW.String())
		return
	}
	if err := get.Parse(0, resp, p); err != nil {
		slog.Debug("EF-list GetData parse failed", "err", err)
	}
}

// buildManager wires a freshly selected profile/transport into a
// transaction.Manager, using a SoftSAM collaborator (demo-only, see
// cryptoadapter.SoftSAM's own doc comment). It always uses SoftSAM; a
// control-SAM resource named in the security setting is not consulted.
func buildManager(t *transport.PCSCTransport, p *profile.CardProfile, security *transaction.SecuritySetting) *transaction.Manager {
	sam := cryptoadapter.NewSoftSAM([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	return transaction.NewManager(p, t, sam, nil, security)
}
