package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStudentNotFound    = fmt.Errorf("student %w", ErrNotFound)
	ErrPaymentNotFound    = fmt.Errorf("payment %w", ErrNotFound)
	ErrEnrollmentNotFound = fmt.Errorf("enrollment %w", ErrNotFound)
	ErrExportNotFound     = fmt.Errorf("export %w", ErrNotFound)

	ErrConflict             = errors.New("conflict")
	ErrEmailTaken           = fmt.Errorf("email already registered: %w", ErrConflict)
	ErrPhoneTaken           = fmt.Errorf("phone already registered: %w", ErrConflict)
	ErrAdminExists          = fmt.Errorf("admin already exists: %w", ErrConflict)
	ErrCourseExists         = fmt.Errorf("course already exists: %w", ErrConflict)
	ErrTransactionOwnership = fmt.Errorf("transaction id belongs to another student: %w", ErrConflict)

	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidResetToken  = errors.New("password reset token is invalid or has expired")
	ErrEnrollmentExpired  = errors.New("enrollment link has expired")

	// ErrDuplicatePaymentID is returned by storage when a payment id collides.
	ErrDuplicatePaymentID = errors.New("duplicate payment id")
	// ErrDuplicateTransaction is returned by storage when a transaction id is reused.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
	// ErrStaleWrite means a conditional update matched no row.
	ErrStaleWrite = errors.New("record was modified concurrently")

	ErrAllocationBusy  = errors.New("another payment is being allocated for this student")
	ErrPaymentCreation = errors.New("could not create payment record")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects input problems. It is always safe to show to the client.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil returns e as an error only when it holds field errors.
func (e *ValidationError) OrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

type AllocationStage string

const (
	StageInstallments AllocationStage = "installments"
	StageStudent      AllocationStage = "student"
	StagePayment      AllocationStage = "payment"
)

// PartialAllocationError reports a payment that stopped after some writes
// were already committed. Applied counts the installment updates that made it.
type PartialAllocationError struct {
	StudentID string
	Stage     AllocationStage
	Applied   int
	Total     int
	Err       error
}

func (e *PartialAllocationError) Error() string {
	return fmt.Sprintf("payment for %s stopped at %s stage after %d/%d installment updates: %v",
		e.StudentID, e.Stage, e.Applied, e.Total, e.Err)
}

func (e *PartialAllocationError) Unwrap() error {
	return e.Err
}
