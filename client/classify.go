package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusKinds is the fixed status code table. Codes not listed map to
// KindUnknown unless the body names a recognized kind.
var statusKinds = map[int]ErrorKind{
	http.StatusUnauthorized:        KindAuthExpired,
	http.StatusForbidden:           KindForbidden,
	http.StatusNotFound:            KindNotFound,
	http.StatusUnprocessableEntity: KindValidation,
	http.StatusTooManyRequests:     KindRateLimited,
	http.StatusInternalServerError: KindServerError,
	http.StatusServiceUnavailable:  KindServerError,
}

// errorBody is the error envelope the API sends on failures. All fields are optional.
type errorBody struct {
	Message          string          `json:"message"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Kind             string          `json:"kind"`
	Code             string          `json:"code"`
	Errors           json.RawMessage `json:"errors"`
}

// ClassifyResponse turns a non-2xx response and its already-read body into an APIError.
func ClassifyResponse(resp *http.Response, body []byte) *APIError {
	status := resp.StatusCode
	kind, known := statusKinds[status]
	if !known {
		kind = KindUnknown
	}

	apiErr := &APIError{
		Kind:       kind,
		Message:    fmt.Sprintf("HTTP %d", status),
		StatusCode: status,
		RequestID:  requestIDOf(resp),
		Timestamp:  time.Now(),
	}

	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		if msg := parsed.message(); msg != "" {
			apiErr.Message = msg
		}
		if !known {
			if k, ok := parsed.kind(); ok {
				apiErr.Kind = k
			}
		}
		apiErr.Fields = parsed.fields()
	}

	if apiErr.Kind == KindRateLimited {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return apiErr
}

// ClassifyTransport turns a failure to complete the exchange into an APIError.
func ClassifyTransport(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, 0, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(KindNetwork, 0, "request canceled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, 0, "request timed out", err)
	}
	return newError(KindNetwork, 0, err.Error(), err)
}

func (b errorBody) message() string {
	if b.Message != "" {
		return b.Message
	}
	if len(b.Error) > 0 {
		var s string
		if json.Unmarshal(b.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return b.ErrorDescription
}

func (b errorBody) kind() (ErrorKind, bool) {
	if k, ok := ParseKind(b.Kind); ok {
		return k, true
	}
	return ParseKind(b.Code)
}

// fields accepts both {"email": ["taken"]} and {"email": "taken"}.
func (b errorBody) fields() map[string][]string {
	if len(b.Errors) == 0 {
		return nil
	}
	var many map[string][]string
	if json.Unmarshal(b.Errors, &many) == nil && len(many) > 0 {
		return many
	}
	var one map[string]string
	if json.Unmarshal(b.Errors, &one) == nil && len(one) > 0 {
		out := make(map[string][]string, len(one))
		for k, v := range one {
			out[k] = []string{v}
		}
		return out
	}
	return nil
}

func requestIDOf(resp *http.Response) string {
	if id := resp.Header.Get(headerRequestID); id != "" {
		return id
	}
	if resp.Request != nil {
		return resp.Request.Header.Get(headerRequestID)
	}
	return ""
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
