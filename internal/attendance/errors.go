package attendance

import "errors"

// Pipeline rejections are expected business outcomes, surfaced as typed
// errors so controllers can map them to responses without string matching.
var (
    ErrNotFound            = errors.New("not found")
    ErrForbidden           = errors.New("forbidden")
    ErrConflict            = errors.New("environment is not available in the requested time slot")
    ErrInvalidCode         = errors.New("invalid QR code")
    ErrSessionInactive     = errors.New("session is not active")
    ErrCodeRotated         = errors.New("QR code is no longer current")
    ErrOutOfWindow         = errors.New("outside the session time window")
    ErrAlreadyCompleted    = errors.New("entry and exit already recorded for this session")
    ErrExternalsNotAllowed = errors.New("externals are not allowed for this session")
)

// ValidationError reports malformed input that binding tags cannot express.
type ValidationError struct {
    Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrf(msg string) error { return &ValidationError{Msg: msg} }
