package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Invocation layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownAction = "E_UNKNOWN_ACTION"
	ErrUnknownAgent  = "E_UNKNOWN_AGENT"

	// Precondition / job layer.
	ErrInvalidTarget  = "E_INVALID_TARGET"
	ErrNoRecipe       = "E_NO_RECIPE"
	ErrNoResource     = "E_NO_RESOURCE"
	ErrNothingActive  = "E_NOTHING_ACTIVE"
	ErrRecipeMismatch = "E_RECIPE_MISMATCH"
	ErrOrphaned       = "E_ORPHANED"

	// Capacity/backpressure.
	ErrQueueFull = "E_QUEUE_FULL"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownAction:   {},
	ErrUnknownAgent:    {},
	ErrInvalidTarget:   {},
	ErrNoRecipe:        {},
	ErrNoResource:      {},
	ErrNothingActive:   {},
	ErrRecipeMismatch:  {},
	ErrOrphaned:        {},
	ErrQueueFull:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
