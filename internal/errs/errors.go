// Package errs holds the error taxonomy shared by the provenance pipeline and
// the HTTP surface.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrProductAccess is the reason used when the actor is not on the product allow-list.
	ErrProductAccess = errors.New("not authorized for product")
	// ErrStagePermission is the reason used when no role of the actor permits the stage.
	ErrStagePermission = errors.New("role lacks stage permission")
	// ErrRoleForbidden is the reason used when a role based rule denies a management action.
	ErrRoleForbidden = errors.New("role not permitted")
	// ErrSequencerBusy is returned when the signing account writer lock is held elsewhere.
	ErrSequencerBusy = errors.New("sequencer_busy")
)

// AuthorizationError reports a denied write. It is always raised before any
// ledger call, so nothing has been applied when it is returned.
type AuthorizationError struct {
	Reason error
}

func (e *AuthorizationError) Error() string {
	if e.Reason == nil {
		return "authorization error"
	}
	return "authorization error: " + e.Reason.Error()
}

func (e *AuthorizationError) Unwrap() error { return e.Reason }

// Unauthorized wraps reason in an AuthorizationError.
func Unauthorized(reason error) error {
	return &AuthorizationError{Reason: reason}
}

// ValidationError reports malformed input detected locally.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%s)", e.Field, e.Code)
}

// Invalid builds a ValidationError for field with code.
func Invalid(field, code string) error {
	return &ValidationError{Field: field, Code: code}
}

// NotFoundError reports an unknown product, batch or step identifier.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports a unique constraint violation in the record store.
type ConflictError struct {
	Resource string
	Field    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with this %s already exists", e.Resource, e.Field)
}

// LedgerSubmissionError wraps a failed ledger write. Succeeded counts the
// items of the same operation that were confirmed before the failure.
type LedgerSubmissionError struct {
	Cause     error
	SubjectID string
	Sequence  uint64
	Succeeded int
}

func (e *LedgerSubmissionError) Error() string {
	return fmt.Sprintf("ledger submission failed for %s at sequence %d after %d successful updates: %v",
		e.SubjectID, e.Sequence, e.Succeeded, e.Cause)
}

func (e *LedgerSubmissionError) Unwrap() error { return e.Cause }

// PersistenceError reports a step that was confirmed on the ledger but could
// not be written to the record store. TxID identifies the orphaned ledger write.
type PersistenceError struct {
	TxID  string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist step for tx %s: %v", e.TxID, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsLedger reports whether err is a LedgerSubmissionError.
func IsLedger(err error) bool {
	var target *LedgerSubmissionError
	return errors.As(err, &target)
}
