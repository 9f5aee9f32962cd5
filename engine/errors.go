package engine

import (
	"errors"

	"github.com/ahmadzakiakmal/timetrack/ledger"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

// Error kinds, surfaced to the API layer for status-code mapping.
const (
	KindValidation   = "VALIDATION_ERROR"
	KindNotFound     = "NOT_FOUND"
	KindInvalidState = "INVALID_STATE_TRANSITION"
	KindAnomaly      = "CONSISTENCY_ANOMALY"
	KindClockSkew    = "CLOCK_SKEW"
	KindInternal     = "INTERNAL_ERROR"
)

// Error is the typed failure every engine operation returns. No engine
// operation partially commits: an Error means no state changed.
type Error struct {
	Kind    string
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func validationErr(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func invalidStateErr(message string) *Error {
	return &Error{Kind: KindInvalidState, Message: message}
}

// KindOf classifies any error returned by an engine operation.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// wrapErr lifts store and ledger failures into the engine taxonomy.
func wrapErr(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, models.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: message, Detail: err.Error()}
	case errors.Is(err, models.ErrDuplicate):
		return &Error{Kind: KindValidation, Message: message, Detail: err.Error()}
	case errors.Is(err, ledger.ErrSessionClosed), errors.Is(err, ledger.ErrSessionActive):
		return &Error{Kind: KindInvalidState, Message: message, Detail: err.Error()}
	default:
		return &Error{Kind: KindInternal, Message: message, Detail: err.Error()}
	}
}
