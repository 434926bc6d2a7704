package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyBatch        = errors.New("no rows found in uploaded file")
	ErrInvalidFileFormat = errors.New("invalid file format")
	ErrTrackerNotFound   = errors.New("batch tracker not found")
	ErrTrackerExists     = errors.New("batch tracker already registered")
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInvalidEntryType  = errors.New("invalid upload entry type")
)

// ValidationError reports the required fields a row is missing.
type ValidationError struct {
	Fields []string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// ConflictError is returned when one natural key of a row is already bound
// to a record whose other natural key differs.
type ConflictError struct {
	Field         string
	Value         string
	ExistingField string
	ExistingValue string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s '%s' already bound to a different %s '%s'",
		e.Field, e.Value, e.ExistingField, e.ExistingValue)
}

type EnqueueError struct {
	Err error
}

func (e EnqueueError) Error() string {
	return fmt.Sprintf("failed to enqueue row: %s", e.Err.Error())
}

func (e EnqueueError) Unwrap() error {
	return e.Err
}

// TimeoutError marks a row that never reported back before its batch deadline.
type TimeoutError struct {
	BatchID string
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("row was not processed before batch %s timed out", e.BatchID)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsTerminal reports whether err describes a row that retrying cannot fix.
func IsTerminal(err error) bool {
	var validationErr ValidationError
	var conflictErr ConflictError
	return errors.As(err, &validationErr) || errors.As(err, &conflictErr)
}
