package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a package or version is neither cached nor
// reachable. It is a normal outcome, not a failure of the cache.
var ErrNotFound = errors.New("not found")

// NotFoundError wraps ErrNotFound with the package that was asked for.
type NotFoundError struct {
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("package %s version %s not found", e.Name, e.Version)
	}
	return fmt.Sprintf("package %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ValidationError is returned when archive bytes or caller input cannot be
// accepted. Nothing is persisted when it is returned.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid IG package: %s: %v", e.Reason, e.Err)
	}
	return "invalid IG package: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when the cache store itself fails.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cache store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
