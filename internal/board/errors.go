package board

import "errors"

// Errors reported by Board operations. Callers match with errors.Is; the
// returned errors wrap these with position or player context.
var (
	ErrNoCard      = errors.New("no card at that position")
	ErrControlled  = errors.New("card is controlled by another player")
	ErrCoordinates = errors.New("coordinates out of range")
	ErrPlayerID    = errors.New("invalid player id")
	ErrParse       = errors.New("malformed board file")
	ErrMappedValue = errors.New("mapped value is empty or contains whitespace")
)
