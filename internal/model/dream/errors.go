package dream

import "errors"

// Error kinds surfaced by the session and narrative services. Callers
// discriminate with errors.Is; the concrete cause travels in the wrap.
var (
	ErrValidation       = errors.New("invalid input")
	ErrNotFound         = errors.New("dream session not found")
	ErrNotOwner         = errors.New("dream session belongs to another user")
	ErrInvalidState     = errors.New("invalid session state")
	ErrConflict         = errors.New("session version conflict")
	ErrGeneration       = errors.New("narrative generation failed")
	ErrProviderTimeout  = errors.New("narrative provider timed out")
	ErrProviderRejected = errors.New("narrative provider rejected the request")
)
