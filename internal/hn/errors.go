package hn

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed matches every FetchError.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrNotFound reports that the remote API answered with null for the requested id.
	ErrNotFound = errors.New("not found")
)

// FetchError is returned once a remote call exhausts its attempts or fails permanently.
type FetchError struct {
	Op       string
	Target   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Op, e.Target, e.Attempts, e.Err)
}

// Unwrap exposes both ErrFetchFailed and the last underlying error.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}
