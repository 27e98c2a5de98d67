package core

import "github.com/pkg/errors"

var (
	// ErrTimeout is wrapped in a StoreError when a store call runs out of time.
	ErrTimeout = errors.New("store timeout")
	// ErrConflict is wrapped in a StoreError when a write hits a uniqueness constraint.
	ErrConflict = errors.New("store conflict")
	// ErrCheckViolation is wrapped in a StoreError when a write breaks a CHECK constraint.
	ErrCheckViolation = errors.New("store check violation")
	// ErrForbidden is returned when an actor may see an entity but not change it.
	ErrForbidden = errors.New("you do not have permission to perform this action")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	message string
}

func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{message: msg}
}

func (err NotFoundError) Error() string {
	return err.message
}

// StoreError wraps every failure surfaced by the store gateway.
type StoreError struct {
	Op  string
	Err error
}

func (err *StoreError) Error() string {
	return "store: " + err.Op + ": " + err.Err.Error()
}

func (err *StoreError) Unwrap() error {
	return err.Err
}

// IsTimeout reports whether err is a store timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConflict reports whether err is a store uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsCheckViolation reports whether err is a store CHECK constraint violation.
func IsCheckViolation(err error) bool {
	return errors.Is(err, ErrCheckViolation)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
