// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure so the run coordinator can decide whether it
// is fatal to the run or local to a single facet or candidate.
type ErrorKind string

const (
	KindUnknown               ErrorKind = "UNKNOWN"
	KindPrecondition          ErrorKind = "PRECONDITION"
	KindPageStructureMismatch ErrorKind = "PAGE_STRUCTURE_MISMATCH"
	KindTimeout               ErrorKind = "TIMEOUT"
	KindAuthenticationFailed  ErrorKind = "AUTHENTICATION_FAILED"
	KindVerificationMismatch  ErrorKind = "VERIFICATION_MISMATCH"
	KindPersistence           ErrorKind = "PERSISTENCE_ERROR"
	KindMalformedOutput       ErrorKind = "MALFORMED_OUTPUT"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// KindedError is implemented by every error in the taxonomy.
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindOf reports the taxonomy kind of err, looking through wrapped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k KindedError
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// PreconditionError signals missing or invalid inputs detected before any
// browser work starts, e.g. blank credentials.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s %s", e.Field, e.Reason)
}

func (e *PreconditionError) Kind() ErrorKind { return KindPrecondition }

// PageStructureError is raised when an expected element is absent under all
// of its alternative locators.
type PageStructureError struct {
	// Element is the logical element name (e.g. "login.identifier").
	Element string
	URL     string
	Err     error
}

func (e *PageStructureError) Error() string {
	msg := fmt.Sprintf("page structure mismatch: %s not found", e.Element)
	if e.URL != "" {
		msg += " on " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PageStructureError) Kind() ErrorKind { return KindPageStructureMismatch }
func (e *PageStructureError) Unwrap() error   { return e.Err }

// TimeoutError is returned by every bounded wait when its bound elapses.
type TimeoutError struct {
	Operation string
	After     time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for %s", e.After, e.Operation)
}

func (e *TimeoutError) Kind() ErrorKind { return KindTimeout }
func (e *TimeoutError) Unwrap() error   { return e.Err }

// AuthenticationFailedError is fatal to a run.
type AuthenticationFailedError struct {
	Reason string
	Err    error
}

func (e *AuthenticationFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationFailedError) Kind() ErrorKind { return KindAuthenticationFailed }
func (e *AuthenticationFailedError) Unwrap() error   { return e.Err }

// VerificationMismatchError records that a submission could not be confirmed
// on the applied-jobs page.
type VerificationMismatchError struct {
	Title   string
	Company string
}

func (e *VerificationMismatchError) Error() string {
	return fmt.Sprintf("application to %q at %q not found on applied-jobs page", e.Title, e.Company)
}

func (e *VerificationMismatchError) Kind() ErrorKind { return KindVerificationMismatch }

// PersistenceError wraps a failed write to the persistence sink.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Kind() ErrorKind { return KindPersistence }
func (e *PersistenceError) Unwrap() error   { return e.Err }

// MalformedOutputError is returned by the text-generation collaborator when
// the model response cannot be parsed into the expected shape.
type MalformedOutputError struct {
	Task string
	Err  error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed %s output: %v", e.Task, e.Err)
}

func (e *MalformedOutputError) Kind() ErrorKind { return KindMalformedOutput }
func (e *MalformedOutputError) Unwrap() error   { return e.Err }
