package profile

// SVLog is one stored-value log record, shared layout for the load
// log and the debit log (§4.5, §6 wire format).
type SVLog struct {
	Date    uint16
	Time    uint16
	Amount  int32
	Balance int32
	KVC     byte
	SamID   uint32
	SamTNum uint32
	SVTNum  uint16
}

// SVState is the card's electronic purse state as observed by the
// current transaction. GotSVGet gates SV log/balance accessors per
// §3's invariant: they fail if no SV-Get has run this transaction.
type SVState struct {
	GotSVGet     bool
	Balance      int32
	LastTNum     uint16
	LastLoadLog  *SVLog
	LastDebitLog *SVLog // extended mode only
}

// PreOpenContext carries the anticipation bundle a CardSelectionExtension
// may install ahead of prepareOpenSecureSession (§4.3, §9's
// "value-typed anticipation bundle" strategy).
type PreOpenContext struct {
	Set                bool
	WriteAccessLevel   WriteAccessLevel
	AnticipatedDataOut []byte
}
