package utils

import (
	"errors"
	"fmt"
)

// ErrInvalidJob marks a job rejected before any request is made.
var ErrInvalidJob = errors.New("invalid job")

// Precondition causes. Retrying either of these cannot succeed.
var (
	ErrSizeUnknown      = errors.New("server did not report a content length")
	ErrRangeUnsupported = errors.New("server does not support byte-range requests")
)

// Transport causes.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrForbidden       = errors.New("access forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrServerError     = errors.New("server error")
	ErrTooManyRequests = errors.New("too many requests")
	ErrShortRead       = errors.New("body length does not match requested range")
	ErrResourceChanged = errors.New("resource changed during download")
	ErrStalled         = errors.New("transfer stalled")
)

// PreconditionError means the resource cannot be downloaded in segments at all.
type PreconditionError struct {
	URL string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %s: %v", e.URL, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// TransportError is a failed probe or range fetch at the network or HTTP layer.
type TransportError struct {
	Op     string // "probe" or "fetch"
	URL    string
	Range  string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	msg := e.Op + " " + e.URL
	if e.Range != "" {
		msg += " [" + e.Range + "]"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt of the same request may succeed.
func (e *TransportError) Retryable() bool {
	switch {
	case errors.Is(e.Err, ErrNotFound), errors.Is(e.Err, ErrForbidden),
		errors.Is(e.Err, ErrUnauthorized), errors.Is(e.Err, ErrResourceChanged),
		errors.Is(e.Err, ErrRangeUnsupported):
		return false
	case e.Status >= 400 && e.Status < 500 && e.Status != 429:
		return false
	}
	return true
}

// IOError is a failure of the local output file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// StatusError maps a non-success HTTP status code to a transport cause.
func StatusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 404:
		return ErrNotFound
	case code == 403:
		return ErrForbidden
	case code == 401:
		return ErrUnauthorized
	case code == 429:
		return ErrTooManyRequests
	case code >= 500:
		return ErrServerError
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
