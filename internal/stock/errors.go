package stock

import (
	"errors"
	"fmt"
)

// Reason tags why a fetch or extraction attempt failed.
type Reason string

// Failure reasons. All of them are retryable within a refresh.
const (
	ReasonTransport        Reason = "transport_error"
	ReasonBadStatus        Reason = "bad_status"
	ReasonEmptyBody        Reason = "empty_body"
	ReasonGridNotFound     Reason = "grid_not_found"
	ReasonNoSections       Reason = "no_sections"
	ReasonAllSectionsEmpty Reason = "all_sections_empty"
)

// Sentinels for errors.Is matching against a FetchError's reason.
var (
	ErrTransport        = &FetchError{Reason: ReasonTransport}
	ErrBadStatus        = &FetchError{Reason: ReasonBadStatus}
	ErrEmptyBody        = &FetchError{Reason: ReasonEmptyBody}
	ErrGridNotFound     = &FetchError{Reason: ReasonGridNotFound}
	ErrNoSections       = &FetchError{Reason: ReasonNoSections}
	ErrAllSectionsEmpty = &FetchError{Reason: ReasonAllSectionsEmpty}
)

// FetchError is the typed failure produced by the fetcher and extractor.
type FetchError struct {
	Reason     Reason
	StatusCode int
	Err        error
}

// NewFetchError builds a FetchError wrapping an optional cause.
func NewFetchError(reason Reason, err error) *FetchError {
	return &FetchError{Reason: reason, Err: err}
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %v", e.Reason, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Reason, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	default:
		return string(e.Reason)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches any FetchError carrying the same reason.
func (e *FetchError) Is(target error) bool {
	var other *FetchError
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == e.Reason
}

// ReasonOf extracts the failure reason from err, defaulting to transport_error
// for anything untyped.
func ReasonOf(err error) Reason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonTransport
}
