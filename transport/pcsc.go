package transport

import (
	"context"
	"fmt"

	"github.com/ebfe/scard"
	"golang.org/x/time/rate"

	"calypsocore/apdu"
	"calypsocore/calypsoerr"
)

// PCSCTransport is a real PC/SC-backed Transport, grounded on the
// teacher's card.Reader wrapper around github.com/ebfe/scard. It adds
// a token-bucket limiter because contactless readers impose a minimum
// inter-command gap that the bare scard API does not enforce.
type PCSCTransport struct {
	ctx         *scard.Context
	card        *scard.Card
	name        string
	atr         []byte
	contactless bool
	limiter     *rate.Limiter
}

// ListReaders returns the names of every PC/SC reader currently
// attached, grounded on the teacher's card.ListReaders.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.Transport, "ListReaders", err)
	}
	defer ctx.Release()
	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.Transport, "ListReaders", err)
	}
	return readers, nil
}

// ConnectPCSC opens the named reader and wraps it as a PCSCTransport.
// ratePerSecond caps the APDU transmit rate; pass 0 for no limit.
func ConnectPCSC(readerName string, contactless bool, ratePerSecond float64) (*PCSCTransport, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.Transport, "ConnectPCSC", err)
	}
	card, err := ctx.Connect(readerName, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, calypsoerr.Wrap(calypsoerr.Transport, "ConnectPCSC", err)
	}
	var atr []byte
	if status, err := card.Status(); err == nil {
		atr = status.Atr
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &PCSCTransport{ctx: ctx, card: card, name: readerName, atr: atr, contactless: contactless, limiter: limiter}, nil
}

// ConnectPCSCByIndex lists readers and connects to the one at index,
// grounded on the teacher's card.Connect(readerIndex int).
func ConnectPCSCByIndex(index int, contactless bool, ratePerSecond float64) (*PCSCTransport, error) {
	readers, err := ListReaders()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(readers) {
		return nil, calypsoerr.New(calypsoerr.Transport, "ConnectPCSCByIndex", "reader index out of range")
	}
	return ConnectPCSC(readers[index], contactless, ratePerSecond)
}

func (t *PCSCTransport) IsContactless() bool { return t.contactless }

// Name returns the PC/SC reader name this transport is connected to.
func (t *PCSCTransport) Name() string { return t.name }

// ATRHex returns the card's Answer-To-Reset bytes as an uppercase hex
// string.
func (t *PCSCTransport) ATRHex() string { return fmt.Sprintf("%X", t.atr) }

// ATR returns the card's raw Answer-To-Reset bytes.
func (t *PCSCTransport) ATR() []byte { return t.atr }

// TransmitCardRequest sends each ApduRequest in order, stopping early
// on a status word outside its ExpectedSWs when StopOnError is set,
// rate-limited by t.limiter.
func (t *PCSCTransport) TransmitCardRequest(req apdu.CardRequest, channelControl apdu.ChannelControl) (apdu.CardResponse, error) {
	out := apdu.CardResponse{LogicalChannelOpen: true}
	for _, a := range req.Apdus {
		if t.limiter != nil {
			if err := t.limiter.Wait(context.Background()); err != nil {
				return out, calypsoerr.Wrap(calypsoerr.Transport, "TransmitCardRequest", err)
			}
		}
		raw, err := t.card.Transmit(a.Bytes)
		if err != nil {
			return out, calypsoerr.Wrap(calypsoerr.Transport, "TransmitCardRequest", err)
		}
		resp, err := apdu.ParseResponse(raw)
		if err != nil {
			return out, calypsoerr.Wrap(calypsoerr.Transport, "TransmitCardRequest", err)
		}
		entry := apdu.ApduResponse{Bytes: raw, StatusWord: resp.SW}
		out.Apdus = append(out.Apdus, entry)
		if req.StopOnError && !a.ExpectedSWs.Contains(resp.SW) {
			break
		}
	}
	if channelControl == apdu.CloseAfter {
		out.LogicalChannelOpen = false
	}
	return out, nil
}

// Close disconnects the card and releases the PC/SC context.
func (t *PCSCTransport) Close() error {
	if t.card != nil {
		t.card.Disconnect(scard.LeaveCard)
	}
	if t.ctx != nil {
		t.ctx.Release()
	}
	return nil
}
