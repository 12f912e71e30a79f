package errclass

import "fmt"

// StoreError is a stable, machine-readable error class.
type StoreError struct {
	Code    string
	Message string
}

func (e *StoreError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new StoreError with the same Code but a specific message.
func (e *StoreError) WithMessage(msg string) *StoreError {
	return &StoreError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new StoreError with a formatted message.
func (e *StoreError) WithMessagef(format string, args ...any) *StoreError {
	return &StoreError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes.
var (
	ErrNameInvalid        = &StoreError{Code: "E_NAME_INVALID"}
	ErrRecordCorrupt      = &StoreError{Code: "E_RECORD_CORRUPT"}
	ErrWriteFailed        = &StoreError{Code: "E_WRITE_FAILED"}
	ErrLockTimeout        = &StoreError{Code: "E_LOCK_TIMEOUT"}
	ErrLockNotHeld        = &StoreError{Code: "E_LOCK_NOT_HELD"}
	ErrScopeOverlap       = &StoreError{Code: "E_SCOPE_OVERLAP"}
	ErrFormatUnsupported  = &StoreError{Code: "E_FORMAT_UNSUPPORTED"}
	ErrBackendUnsupported = &StoreError{Code: "E_BACKEND_UNSUPPORTED"}
)
