package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed control-plane failure carrying enough context for
// diagnostics: the logical operation, HTTP status and the server's
// error body when one was returned.
type Error struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, http.StatusText(e.Status), e.Status)
	}
}

// NetworkError wraps a transport-level failure so the retry classifier
// can tell it apart from a server response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError means the server answered but the body was not what we
// expect. Never retried: the response would not change.
type DecodeError struct {
	Op     string
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsRetryable classifies a control-plane failure: server faults (5xx)
// and transport errors are transient, everything else is a client
// fault and surfaces immediately.
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsClientFault reports a 4xx-class failure: the request itself is
// wrong (auth, validation, missing resource).
func IsClientFault(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError
	}
	return false
}

// IsNotFound reports that the remote resource no longer exists.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
