package gateway

import (
	"errors"
	"fmt"

	"github.com/joescharf/campus/internal/auth"
	"github.com/joescharf/campus/internal/store"
)

// Kind is the error taxonomy callers branch on.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindAuthorization  Kind = "authorization"
	KindNetwork        Kind = "network"
	KindNotInitialized Kind = "not-initialized"
	KindNotFound       Kind = "not-found"
)

var (
	// ErrNotInitialized is wrapped by every call made before Open succeeds.
	ErrNotInitialized = errors.New("gateway not initialized")
	// ErrDeactivated is reported when a signed-in user's profile is inactive.
	ErrDeactivated = errors.New("account deactivated")
)

// Error is the single error type returned by the gateway.
type Error struct {
	Kind Kind
	Code auth.Code // set for auth failures
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the human readable cause, without op or kind.
func (e *Error) Message() string {
	var ae *auth.Error
	if errors.As(e.Err, &ae) {
		return ae.Message
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// KindOf returns the kind of a gateway error, or "" for anything else.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// classify wraps err from the auth provider or store for op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}

	var ae *auth.Error
	if errors.As(err, &ae) {
		kind := KindAuth
		if ae.Code == auth.CodeNetworkRequestFailed {
			kind = KindNetwork
		}
		return &Error{Kind: kind, Code: ae.Code, Op: op, Err: err}
	}
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}
