package domain

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// ConflictError reports a uniqueness violation or a stale version.
type ConflictError struct {
	Resource string
	Field    string
}

func (e ConflictError) Error() string {
	switch {
	case e.Resource == "":
		return "conflict"
	case e.Field == "":
		return fmt.Sprintf("%s already exists", e.Resource)
	case e.Field == "version":
		return fmt.Sprintf("%s was modified concurrently", e.Resource)
	default:
		return fmt.Sprintf("%s with the same %s already exists", e.Resource, e.Field)
	}
}

func (e ConflictError) Is(target error) bool {
	_, ok := target.(ConflictError)
	if ok {
		return true
	}
	_, ok = target.(*ConflictError)
	return ok
}

var ErrConflict = ConflictError{}

// ValidationError names the field and the rule a command broke.
type ValidationError struct {
	Field string
	Rule  string
}

func (e ValidationError) Error() string {
	return "validation failed: " + e.Rule
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

var ErrInvalid = ValidationError{}

type StatusTransitionError struct {
	From UserStatus
	To   UserStatus
}

func (e StatusTransitionError) Error() string {
	return fmt.Sprintf("cannot change user status from %s to %s", e.From, e.To)
}

var ErrVerificationRequired = errors.New("profile must be verified before activation")

// ErrorKind classifies a registration failure. Kinds are errors themselves so
// that errors.Is(err, ErrPersistence) matches any RegistrationError of that kind.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindExternalProvider ErrorKind = "external_provider"
	KindPersistence      ErrorKind = "persistence"
	KindPostRegistration ErrorKind = "post_registration"
	KindPublish          ErrorKind = "publish"
)

func (k ErrorKind) Error() string {
	return string(k) + " error"
}

var (
	ErrValidation       error = KindValidation
	ErrExternalProvider error = KindExternalProvider
	ErrPersistence      error = KindPersistence
	ErrPostRegistration error = KindPostRegistration
	ErrPublish          error = KindPublish
)

// CompensationFailure records a compensation action that could not complete.
type CompensationFailure struct {
	Action string
	Err    error
}

func (f CompensationFailure) Error() string {
	return fmt.Sprintf("compensation %s failed: %v", f.Action, f.Err)
}

func (f CompensationFailure) Unwrap() error { return f.Err }

// RegistrationError is the error returned by a failed registration. Err is
// always the failure of Step; compensation problems are only attached.
// Committed is set when the records were kept despite the failure.
type RegistrationError struct {
	Kind          ErrorKind
	Step          Step
	Err           error
	Compensations []CompensationFailure
	Committed     *RegistrationResult
}

func NewRegistrationError(kind ErrorKind, step Step, err error) *RegistrationError {
	return &RegistrationError{Kind: kind, Step: step, Err: err}
}

func (e *RegistrationError) Error() string {
	var b strings.Builder
	b.WriteString("Registration failed: ")
	b.WriteString(e.Err.Error())
	fmt.Fprintf(&b, " (%s at %s)", e.Kind, e.Step)
	if n := len(e.Compensations); n > 0 {
		fmt.Fprintf(&b, "; %d compensation action(s) failed", n)
	}
	return b.String()
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func (e *RegistrationError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// Compensated reports whether every compensation action succeeded.
func (e *RegistrationError) Compensated() bool {
	return len(e.Compensations) == 0
}
