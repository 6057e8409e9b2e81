package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the closed set of failure categories every API error falls into.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindTimeout     ErrorKind = "timeout"
	KindValidation  ErrorKind = "validation"
	KindForbidden   ErrorKind = "forbidden"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindServerError ErrorKind = "server_error"
	KindAuthExpired ErrorKind = "auth_expired"
	KindUnknown     ErrorKind = "unknown"
)

var allKinds = []ErrorKind{
	KindNetwork, KindTimeout, KindValidation, KindForbidden, KindNotFound,
	KindRateLimited, KindServerError, KindAuthExpired, KindUnknown,
}

// ParseKind recognizes a kind name as sent by the server. Matching ignores
// case and separators, so "NotFound", "not_found" and "NOT-FOUND" are equal.
func ParseKind(s string) (ErrorKind, bool) {
	want := normalizeKind(s)
	if want == "" {
		return "", false
	}
	for _, k := range allKinds {
		if normalizeKind(string(k)) == want {
			return k, true
		}
	}
	return "", false
}

func normalizeKind(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// APIError is the single error type surfaced by the client. It is built once
// by the classifier and never modified afterwards.
type APIError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	// Fields holds per-field validation messages when the server sends them.
	Fields    map[string][]string
	RequestID string
	// RetryAfter is the server-requested delay on 429 responses.
	RetryAfter time.Duration
	Timestamp  time.Time
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches any *APIError of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNetwork     = &APIError{Kind: KindNetwork}
	ErrTimeout     = &APIError{Kind: KindTimeout}
	ErrValidation  = &APIError{Kind: KindValidation}
	ErrForbidden   = &APIError{Kind: KindForbidden}
	ErrNotFound    = &APIError{Kind: KindNotFound}
	ErrRateLimited = &APIError{Kind: KindRateLimited}
	ErrServerError = &APIError{Kind: KindServerError}
	ErrAuthExpired = &APIError{Kind: KindAuthExpired}
	ErrUnknown     = &APIError{Kind: KindUnknown}
)

// KindOf returns the kind of err, or KindUnknown when err is not an *APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, status int, msg string, cause error) *APIError {
	return &APIError{Kind: kind, Message: msg, StatusCode: status, Timestamp: time.Now(), Err: cause}
}
