package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrAuth is returned when the API rejects the credential (401/403).
	// It is fatal for a run: retrying cannot succeed.
	ErrAuth = errors.New("credential rejected")

	// ErrFetchFailed is returned when a single page could not be fetched.
	// Callers treat it as a per-page failure.
	ErrFetchFailed = errors.New("page fetch failed")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError is a non-2xx response from the search API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("search API %s error (status %d): %s", e.ErrorClass, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("search API %s error (status %d)", e.ErrorClass, e.StatusCode)
}

// AuthError reports a rejected credential.
type AuthError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v (status %d): %s", ErrAuth, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%v (status %d)", ErrAuth, e.StatusCode)
}

// Is makes errors.Is(err, ErrAuth) match.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// FetchFailed reports a page whose fetch failed after Attempts calls.
// Status is the last HTTP status seen, or 0 when no response was received.
type FetchFailed struct {
	Status   int
	Page     int
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *FetchFailed) Error() string {
	return fmt.Sprintf("%v: page %d, status %d, %d attempts: %v",
		ErrFetchFailed, e.Page+1, e.Status, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchFailed) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetchFailed) match.
func (e *FetchFailed) Is(target error) bool {
	return target == ErrFetchFailed
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// client, auth, decode and cancelled errors cannot improve on retry
		return false
	}
}
