package model

import (
	"errors"
	"fmt"
)

var (
	// Batch / undo taxonomy
	ErrPermissionDenied = errors.New("permission denied")
	ErrVersionConflict  = errors.New("version conflict: record was modified by another user")
	ErrResourceBusy     = errors.New("resource busy: another operation is in progress")
	ErrValidation       = errors.New("validation error")
	ErrAlreadyUndone    = errors.New("operation group already undone")
	ErrBatchTooLarge    = errors.New("batch exceeds maximum operation count")

	// Not found
	ErrPersonNotFound   = errors.New("person not found")
	ErrActorNotFound    = errors.New("actor profile not found")
	ErrGroupNotFound    = errors.New("operation group not found")
	ErrMarriageNotFound = errors.New("marriage not found")

	// Marriage integrity
	ErrMunasibMissingOrigin  = errors.New("munasib spouse has no family origin on profile or marriage")
	ErrMunasibOriginMismatch = errors.New("munasib family origin differs between profile and marriage")
)

// ValidationError chỉ ra operation/field nào làm batch fail
// Index = -1 khi lỗi không thuộc operation cụ thể
type ValidationError struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("operation %d: %s", e.Index, e.Message)
	}
	return fmt.Sprintf("operation %d: %s: %s", e.Index, e.Field, e.Message)
}

// Unwrap cho phép errors.Is(err, ErrValidation)
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError shortcut
func NewValidationError(index int, field, message string) *ValidationError {
	return &ValidationError{Index: index, Field: field, Message: message}
}
