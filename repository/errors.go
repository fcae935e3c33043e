package repository

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindTransient: the call never produced a usable answer (network,
	// timeout, 5xx). The caller rolls back optimistic state; no retry.
	KindTransient ErrorKind = iota
	// KindAuthorization: a precondition that passed client-side was rejected
	// server-side, usually a race with another admin's action.
	KindAuthorization
	// KindValidation: rejected before any network call was made.
	KindValidation
	// KindNotFound: the conversation or member no longer exists; local state
	// is stale and the caller should force a resync.
	KindNotFound
)

type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func Transient(op, msg string, err error) *Error {
	return newError(KindTransient, op, msg, err)
}

func Validation(op, msg string) *Error {
	return newError(KindValidation, op, msg, nil)
}

func kindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}

func IsAuthorization(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindAuthorization
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}
