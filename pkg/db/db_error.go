package db

import (
	"fmt"
	"strings"
)

// ErrInvalidDB : Indicates that an operation was attempted on a
// proxy wrapping a `nil` database handle.
var ErrInvalidDB = fmt.Errorf("invalid database handle")

// ErrInvalidQuery : Indicates that a `QueryDesc` failed its own
// validity check (missing table or properties) before being sent to
// the database.
var ErrInvalidQuery = fmt.Errorf("invalid query description")

// ErrInvalidData : Indicates that an argument passed to `InsertToDB`
// could not be marshalled into a value usable by the insertion
// script.
var ErrInvalidData = fmt.Errorf("unable to marshal data for insertion")

// ErrorType :
// Defines some convenience named values for common SQL
// errors.
type ErrorType int

// Defines the possible named SQL errors.
const (
	DuplicatedElement ErrorType = iota
	ForeignKeyViolation
	Unknown
)

// getDuplicatedElementErrorKey :
// Used to retrieve a string describing part of the error
// message issued by the database when trying to insert a
// duplicated element on a unique column. Can be used to
// standardize the definition of this error.
//
// Return part of the error string issued when inserting
// an already existing key.
func getDuplicatedElementErrorKey() string {
	return "SQLSTATE 23505"
}

// getForeignKeyViolationErrorKey :
// Used to retrieve a string describing part of the error
// message issued by the database when trying to insert an
// element that does not match a foreign key constraint.
// Can be used to standardize the definition of this error.
//
// Return part of the error string issued when violating a
// foreign key constraint.
func getForeignKeyViolationErrorKey() string {
	return "SQLSTATE 23503"
}

// GetSQLErrorCode :
// Performs an analysis of the input error string to extract
// a named error code if possible. In case the error does not
// seem to match anything known, the `Unknown` code is sent
// back.
//
// The `errStr` defines the error message to analyze.
//
// Returns the error code for this error or `Unknown` if it
// does not match any known error.
func GetSQLErrorCode(errStr string) ErrorType {
	// Check for all known keys.
	if strings.Contains(errStr, getDuplicatedElementErrorKey()) {
		return DuplicatedElement
	}

	if strings.Contains(errStr, getForeignKeyViolationErrorKey()) {
		return ForeignKeyViolation
	}

	return Unknown
}

// formatDBError :
// Wraps a raw error returned by the underlying driver with the named
// `ErrorType` it corresponds to, so callers can branch on a stable
// error category instead of matching driver-specific strings.
//
// Returns `nil` unchanged, so callers can call this unconditionally
// on the result of a DB operation.
func formatDBError(err error) error {
	if err == nil {
		return nil
	}

	switch GetSQLErrorCode(err.Error()) {
	case DuplicatedElement:
		return fmt.Errorf("duplicated element (err: %v)", err)
	case ForeignKeyViolation:
		return fmt.Errorf("foreign key violation (err: %v)", err)
	default:
		return err
	}
}
