package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Structure state.
	ErrBusy       = "E_BUSY"
	ErrRateLimit  = "E_RATE_LIMIT"
	ErrOutOfBound = "E_OUT_OF_BOUNDS"

	// Edit layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNothingToMine = "E_NOTHING_TO_MINE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBusy:            {},
	ErrRateLimit:       {},
	ErrOutOfBound:      {},
	ErrBadRequest:      {},
	ErrNothingToMine:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
