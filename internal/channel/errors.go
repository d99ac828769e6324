package channel

import (
	"context"
	"errors"
)

// ErrorClass tells the retry scheduler whether a failure may succeed later.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassPermanent
)

func (c ErrorClass) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// TransientError is a failure that may succeed on a later attempt:
// timeouts, throttling, provider 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that will never succeed: invalid recipient,
// rejected content, unregistered device.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Classify reports the class of err. Unclassified errors are transient,
// and so are deadline and cancellation errors.
func Classify(err error) ErrorClass {
	var perm *PermanentError
	var trans *TransientError

	switch {
	case errors.As(err, &trans):
		return ClassTransient
	case errors.As(err, &perm):
		return ClassPermanent
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ClassTransient
	}

	return ClassTransient
}
