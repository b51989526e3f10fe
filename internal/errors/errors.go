package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors used across the invoicing engine. Usage errors are reported
// to the caller as-is, data-integrity errors abort the whole invoicing pass.
var (
	ErrNotFound               = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists          = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict        = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation             = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation       = new(ErrCodeInvalidOperation, "invalid operation")
	ErrDatabase               = new(ErrCodeDatabase, "database error")
	ErrSystem                 = new(ErrCodeSystemError, "system error")
	ErrTargetDateTooFar       = new(ErrCodeTargetDateTooFar, "invoice target date too far in the future")
	ErrInvalidDateSequence    = new(ErrCodeInvalidDateSequence, "invalid date sequence")
	ErrDataIntegrity          = new(ErrCodeDataIntegrity, "invoice data integrity violation")
	ErrInvoiceWouldBeNegative = new(ErrCodeInvoiceWouldBeNegative, "invoice balance would become negative")
	// checked in order by CodeFromErr, most specific first
	codedErrors = []error{
		ErrTargetDateTooFar,
		ErrInvalidDateSequence,
		ErrInvoiceWouldBeNegative,
		ErrDataIntegrity,
		ErrVersionConflict,
		ErrNotFound,
		ErrAlreadyExists,
		ErrValidation,
		ErrInvalidOperation,
		ErrDatabase,
		ErrSystem,
	}
)

const (
	ErrCodeSystemError            = "system_error"
	ErrCodeNotFound               = "not_found"
	ErrCodeAlreadyExists          = "already_exists"
	ErrCodeVersionConflict        = "version_conflict"
	ErrCodeValidation             = "validation_error"
	ErrCodeInvalidOperation       = "invalid_operation"
	ErrCodeDatabase               = "database_error"
	ErrCodeTargetDateTooFar       = "invoice_target_date_too_far_in_the_future"
	ErrCodeInvalidDateSequence    = "invoice_invalid_date_sequence"
	ErrCodeDataIntegrity          = "invoice_data_integrity"
	ErrCodeInvoiceWouldBeNegative = "invoice_would_be_negative"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is a version conflict error
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

func IsTargetDateTooFar(err error) bool {
	return errors.Is(err, ErrTargetDateTooFar)
}

func IsInvalidDateSequence(err error) bool {
	return errors.Is(err, ErrInvalidDateSequence)
}

func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

func IsInvoiceWouldBeNegative(err error) bool {
	return errors.Is(err, ErrInvoiceWouldBeNegative)
}

// IsRetryable reports whether the failure is transient. Only database and
// version-conflict errors qualify; generation failures are never retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDatabase) || errors.Is(err, ErrVersionConflict)
}

// CodeFromErr returns the machine readable code of the first sentinel the
// error is marked with, or the system error code.
func CodeFromErr(err error) string {
	for _, e := range codedErrors {
		if errors.Is(err, e) {
			return e.(*InternalError).Code
		}
	}
	return ErrCodeSystemError
}
