package model

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Category classifies an upstream failure into a closed set. Categories
// are assigned once, at the RPC boundary, so callers never inspect
// message text.
type Category string

const (
	CategoryRateLimited    Category = "rate-limited"
	CategoryOverloaded     Category = "server-overloaded"
	CategoryUnavailable    Category = "service-unavailable"
	CategoryAuthFailure    Category = "auth-failure"
	CategoryInvalidRequest Category = "invalid-request"
	CategoryUnknown        Category = "unknown"
)

// UpstreamError wraps a failure from the remote generative service with a
// discrete category driving retry and reporting decisions.
type UpstreamError struct {
	Category Category
	Code     int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("upstream %s (%d): %s", e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Category, e.Message)
}

// Transient reports whether the failure is expected to self-resolve with
// retry. Everything outside the transient set is fatal.
func (e *UpstreamError) Transient() bool {
	switch e.Category {
	case CategoryRateLimited, CategoryOverloaded, CategoryUnavailable:
		return true
	}
	return false
}

// CategoryOf returns err's upstream category, or CategoryUnknown for
// errors that did not cross the RPC boundary.
func CategoryOf(err error) Category {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Category
	}
	return CategoryUnknown
}

// classify maps an upstream HTTP status code to a Category. Total over
// all codes: anything outside the known set is unknown, which is fatal.
func classify(code int) Category {
	switch code {
	case http.StatusTooManyRequests:
		return CategoryRateLimited
	case http.StatusInternalServerError:
		return CategoryOverloaded
	case http.StatusServiceUnavailable:
		return CategoryUnavailable
	case http.StatusUnauthorized, http.StatusForbidden:
		return CategoryAuthFailure
	case http.StatusBadRequest:
		return CategoryInvalidRequest
	}
	return CategoryUnknown
}

// WrapUpstream converts an error returned by the genai SDK into an
// *UpstreamError. Transport-level failures that never produced a status
// code are treated as service-unavailable so the backoff policy applies.
func WrapUpstream(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Category: classify(apiErr.Code),
			Code:     apiErr.Code,
			Message:  apiErr.Message,
		}
	}
	return &UpstreamError{Category: CategoryUnavailable, Message: err.Error()}
}
