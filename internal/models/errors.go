package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrAuthFailure    = errors.New("authentication failed")
	ErrTransport      = errors.New("transport failure")
	ErrInfrastructure = errors.New("infrastructure error")
)

type detailError struct {
	kind error
	msg  string
}

func (e *detailError) Error() string { return e.msg }
func (e *detailError) Unwrap() error { return e.kind }

// Validationf returns an error matching ErrValidation whose message is
// exactly the formatted text, so it can be echoed to users verbatim.
func Validationf(format string, args ...interface{}) error {
	return &detailError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return &detailError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func Infrastructuref(format string, args ...interface{}) error {
	return &detailError{kind: ErrInfrastructure, msg: fmt.Sprintf(format, args...)}
}
