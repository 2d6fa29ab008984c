package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a structured error returned by the aggregation provider. The
// provider answers every failed call with an HTTP-like status and a detail
// string; a handful of statuses carry extra meaning (see the classifiers).
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code,omitempty"`
	Detail     string `json:"detail"`

	// UserSecret is set when the provider's error payload itself carries a
	// secret, which happens on some registration collisions.
	UserSecret string `json:"userSecret,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Detail)
}

// IsNotReady reports whether err is the provider's "too early" condition:
// the account exists but its first sync has not completed. Status 425.
func IsNotReady(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooEarly
}

// IsUserExists reports whether err is the registration collision the
// provider raises when the userId is already registered.
func IsUserExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(apiErr.Detail, "already exist")
}

// ErrorSecret extracts the secret from an error payload, if the provider
// included one. Returns "" otherwise.
func ErrorSecret(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserSecret
	}
	return ""
}

// ErrorDetail returns the provider's detail message for err, falling back to
// the plain error string.
func ErrorDetail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}
