package auth

import (
	"errors"
	"fmt"
)

// Code is an error code from the provider's fixed vocabulary.
type Code string

const (
	CodeEmailAlreadyInUse    Code = "auth/email-already-in-use"
	CodeUserNotFound         Code = "auth/user-not-found"
	CodeWrongPassword        Code = "auth/wrong-password"
	CodeInvalidEmail         Code = "auth/invalid-email"
	CodeUserDisabled         Code = "auth/user-disabled"
	CodeTooManyRequests      Code = "auth/too-many-requests"
	CodeNetworkRequestFailed Code = "auth/network-request-failed"
	CodeWeakPassword         Code = "auth/weak-password"
	CodeInternal             Code = "auth/internal-error"
)

// Error is returned by every Provider and Client operation that fails.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the auth code carried by err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
