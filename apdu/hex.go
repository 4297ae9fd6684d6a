// Package apdu provides the byte-level building blocks shared by every
// layer of the transaction engine: hex encoding, BER-TLV walking,
// status-word interpretation and the APDU command/response value
// types exchanged with a reader transport.
package apdu

import (
	"encoding/hex"
	"strings"

	"calypsocore/calypsoerr"
)

// ToHex renders b as uppercase hex, e.g. []byte{0x9F,0x01} -> "9F01".
func ToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// FromHex parses an even-length hex string (case-insensitive) into
// bytes. Odd length or non-hex characters return InvalidInput.
func FromHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, calypsoerr.Wrap(calypsoerr.InvalidInput, "FromHex", err)
	}
	return b, nil
}
