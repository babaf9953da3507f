package rtdb

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/errorutils"
)

type failure uint8

const (
	failureOther failure = iota
	failureNotFound
	failureConflict
	failureUnavailable
)

// Error is a classified realtime database failure; it satisfies repositories.RepositoryError.
type Error struct {
	op   string
	kind failure
	err  error
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return e.op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == failureNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == failureConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == failureUnavailable }

// NotFound is returned for a node that holds no value; the SDK itself reports that as nil data.
func NotFound(op, path string) error {
	return &Error{op: op, kind: failureNotFound, err: fmt.Errorf("no value at %s", path)}
}

// WrapError classifies Admin SDK errors by their platform error code. Context errors and
// already classified errors are returned unchanged.
func WrapError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{op: op, kind: classify(err), err: err}
}

func classify(err error) failure {
	switch {
	case errorutils.IsNotFound(err):
		return failureNotFound
	case errorutils.IsAborted(err), errorutils.IsFailedPrecondition(err), errorutils.IsConflict(err):
		return failureConflict
	case errorutils.IsUnavailable(err), errorutils.IsInternal(err), errorutils.IsDeadlineExceeded(err),
		errorutils.IsResourceExhausted(err), errorutils.IsUnknown(err):
		return failureUnavailable
	}
	return failureOther
}
