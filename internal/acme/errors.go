package acme

import (
	"context"
	"errors"
	"fmt"

	legoacme "github.com/go-acme/lego/v4/acme"
)

// ErrInvalidKeyType is returned for key types outside the supported set
var ErrInvalidKeyType = errors.New("invalid key type")

// Kind is the protocol stage an Error belongs to
type Kind string

const (
	KindRegistration  Kind = "registration"
	KindAuthorization Kind = "authorization"
	KindFinalization  Kind = "finalization"
	KindRevocation    Kind = "revocation"
	KindDeactivation  Kind = "deactivation"
	KindTimeout       Kind = "timeout"
)

// Error is a CA-side failure. Problem carries the CA problem document
// verbatim when the CA returned one.
type Error struct {
	Kind    Kind
	Domain  string
	Problem *legoacme.ProblemDetails
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("acme %s failed", e.Kind)
	if e.Domain != "" {
		msg += " for " + e.Domain
	}
	if e.Problem != nil {
		return fmt.Sprintf("%s: %s :: %s", msg, e.Problem.Type, e.Problem.Detail)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, domain string, err error) *Error {
	e := &Error{Kind: kind, Domain: domain, Err: err}
	var pd *legoacme.ProblemDetails
	if errors.As(err, &pd) {
		e.Problem = pd
	}
	return e
}

// KindOf returns the kind of an Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err is a polling or propagation timeout
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// ProblemOf returns the CA problem document in err's chain, if any
func ProblemOf(err error) *legoacme.ProblemDetails {
	var e *Error
	if errors.As(err, &e) && e.Problem != nil {
		return e.Problem
	}
	var pd *legoacme.ProblemDetails
	if errors.As(err, &pd) {
		return pd
	}
	return nil
}

// Timeout wraps a deadline overrun of stage as a timeout Error
func Timeout(stage string, err error) *Error {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return &Error{Kind: KindTimeout, Err: fmt.Errorf("%s: %w", stage, err)}
}
