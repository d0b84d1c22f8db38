package certificate

import (
	"errors"
	"fmt"
)

// Kind classifies a lifecycle error for callers mapping it to a response.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindLockConflict    Kind = "lock_conflict"
	KindLockRequired    Kind = "lock_required"
	KindVersionConflict Kind = "version_conflict"
)

// Machine-readable codes carried by Error.
const (
	CodeCertificateNotFound = "CERTIFICATE_NOT_FOUND"
	CodeEmployeeNotFound    = "EMPLOYEE_NOT_FOUND"
	CodeFieldRequired       = "FIELD_REQUIRED"
	CodeInvalidDateRange    = "INVALID_DATE_RANGE"
	CodeInvalidAction       = "INVALID_ACTION"
	CodeReasonRequired      = "REASON_REQUIRED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeNotOwner            = "NOT_OWNER"
	CodeLockBusy            = "LOCK_BUSY"
	CodeLockNotHeld         = "LOCK_NOT_HELD"
	CodeLockRequired        = "LOCK_REQUIRED"
	CodeStaleVersion        = "STALE_VERSION"
)

// Error is the structured error returned by the lifecycle manager.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Holder  string `json:"holder,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches sentinels by code when the target names one, otherwise by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrValidation      = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrLockConflict    = &Error{Kind: KindLockConflict, Message: "certificate is locked by another admin"}
	ErrLockRequired    = &Error{Kind: KindLockRequired, Message: "certificate must be locked before audit"}
	ErrVersionConflict = &Error{Kind: KindVersionConflict, Message: "certificate was modified concurrently"}
	ErrInvalidAction   = &Error{Kind: KindValidation, Code: CodeInvalidAction, Message: "invalid audit action"}
	ErrReasonRequired  = &Error{Kind: KindValidation, Code: CodeReasonRequired, Message: "reject reason is required"}
)

func certificateNotFound(id uint) *Error {
	return &Error{Kind: KindNotFound, Code: CodeCertificateNotFound, Message: fmt.Sprintf("certificate %d not found", id)}
}

func employeeNotFound(id uint) *Error {
	return &Error{Kind: KindNotFound, Code: CodeEmployeeNotFound, Message: fmt.Sprintf("employee %d not found", id)}
}

func fieldRequired(field string) *Error {
	return &Error{Kind: KindValidation, Code: CodeFieldRequired, Field: field, Message: field + " is required"}
}

func lockBusy(holder string) *Error {
	return &Error{Kind: KindLockConflict, Code: CodeLockBusy, Holder: holder,
		Message: fmt.Sprintf("certificate is being reviewed by %s", holder)}
}

// KindOf returns the Kind carried by err, or "" if err is not a lifecycle error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
