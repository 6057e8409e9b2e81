package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// SessionRefresher recovers from a rejected access token; auth.Coordinator satisfies it.
type SessionRefresher interface {
	Refresh(ctx context.Context, staleAccess string) (string, error)
	// Expire ends the session when a refreshed token is rejected as well.
	Expire(ctx context.Context, rejected string, cause error)
}

// Response is a successful exchange.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	Attempts  int
	RequestID string
}

// consumeFunc reads a 2xx response. It may be called once per attempt.
type consumeFunc func(res *http.Response) error

// Executor runs the request lifecycle: build, send with a timeout, classify,
// refresh-and-replay on an expired token, retry transient failures.
type Executor struct {
	httpClient *http.Client
	builder    *RequestBuilder
	session    SessionRefresher
	policy     RetryPolicy
	recorder   Recorder
}

// NewExecutor wires an executor. session and recorder may be nil.
func NewExecutor(httpClient *http.Client, builder *RequestBuilder, session SessionRefresher, policy RetryPolicy, recorder Recorder) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Executor{
		httpClient: httpClient,
		builder:    builder,
		session:    session,
		policy:     policy,
		recorder:   recorder,
	}
}

// Do performs call and returns the buffered 2xx response, or an *APIError.
func (e *Executor) Do(ctx context.Context, call Call) (*Response, error) {
	var body []byte
	resp, err := e.exchange(ctx, call, func(res *http.Response) error {
		b, err := readResponseBody(res)
		body = b
		return err
	})
	if err != nil {
		return nil, err
	}
	resp.Body = body
	return resp, nil
}

// Stream performs call and hands the 2xx response to consume instead of buffering it.
func (e *Executor) Stream(ctx context.Context, call Call, consume consumeFunc) (*Response, error) {
	return e.exchange(ctx, call, consume)
}

func (e *Executor) exchange(ctx context.Context, call Call, consume consumeFunc) (*Response, error) {
	start := time.Now()

	desc, err := e.builder.Build(call)
	if err != nil {
		apiErr := newError(KindValidation, 0, err.Error(), err)
		e.record(ctx, call.Method, call.Path, "", nil, apiErr, 0, start)
		return nil, apiErr
	}

	policy := e.policy
	if desc.Retries > 0 {
		policy.MaxAttempts = desc.Retries
	}
	if desc.RetryDelay > 0 {
		policy.BaseDelay = desc.RetryDelay
	}

	var (
		attempt  int
		sends    int
		replayed bool
		wait     time.Duration
		result   *Response
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		return wait, false
	})

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, apiErr := e.send(ctx, desc, consume, attempt)
		sends++
		if apiErr == nil {
			result = res
			return nil
		}

		// A call sent without a bearer has nothing to refresh.
		if apiErr.Kind == KindAuthExpired && !replayed && e.session != nil && desc.Bearer() != "" {
			replayed = true
			token, rerr := e.session.Refresh(ctx, desc.Bearer())
			if rerr != nil {
				if ctx.Err() != nil {
					return ClassifyTransport(ctx.Err())
				}
				return newError(KindAuthExpired, apiErr.StatusCode, "session expired, please log in again", rerr)
			}
			desc = desc.WithBearer(token)
			log.Debug().Str("path", desc.Path).Msg("Replaying request with refreshed token")
			res, apiErr = e.send(ctx, desc, consume, attempt)
			sends++
			if apiErr == nil {
				result = res
				return nil
			}
			if apiErr.Kind == KindAuthExpired {
				e.session.Expire(ctx, token, apiErr)
				return apiErr
			}
		}

		d := policy.Decide(attempt, apiErr)
		attempt++
		if !d.Retry {
			return apiErr
		}
		wait = d.Wait
		log.Warn().Str("method", desc.Method).Str("path", desc.Path).Str("kind", string(apiErr.Kind)).
			Int("attempt", attempt).Int("max_attempts", policy.MaxAttempts).Dur("wait", wait).
			Msg("Request failed, retrying...")
		return retry.RetryableError(apiErr)
	})

	if err != nil {
		apiErr := ClassifyTransport(err)
		log.Error().Err(apiErr).Str("method", desc.Method).Str("path", desc.Path).
			Str("request_id", desc.RequestID).Msg("Request failed")
		e.record(ctx, desc.Method, desc.Path, desc.RequestID, nil, apiErr, sends, start)
		return nil, apiErr
	}

	result.Attempts = sends
	result.RequestID = desc.RequestID
	e.record(ctx, desc.Method, desc.Path, desc.RequestID, result, nil, sends, start)
	return result, nil
}

// send performs one attempt under the descriptor's timeout.
func (e *Executor) send(ctx context.Context, desc *RequestDescriptor, consume consumeFunc, attempt int) (*Response, *APIError) {
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}

	req, err := desc.newHTTPRequest(ctx)
	if err != nil {
		return nil, newError(KindValidation, 0, err.Error(), err)
	}

	log.Debug().Str("method", desc.Method).Str("url", desc.URL).Int("attempt", attempt+1).Msg("Sending HTTP request")
	res, err := e.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransport(err)
	}
	defer closeResponseBody(res)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := readResponseBody(res)
		apiErr := ClassifyResponse(res, body)
		log.Debug().Str("method", desc.Method).Str("path", desc.Path).Int("status", res.StatusCode).
			Str("kind", string(apiErr.Kind)).Msg("HTTP request returned non-OK status")
		return nil, apiErr
	}

	if err := consume(res); err != nil {
		return nil, ClassifyTransport(err)
	}
	log.Debug().Str("method", desc.Method).Str("path", desc.Path).Int("status", res.StatusCode).Msg("HTTP request successful")
	return &Response{Status: res.StatusCode, Header: res.Header.Clone()}, nil
}

func (e *Executor) record(ctx context.Context, method, path, requestID string, resp *Response, apiErr *APIError, attempts int, start time.Time) {
	if e.recorder == nil {
		return
	}
	rec := CallRecord{
		RequestID: requestID,
		Method:    method,
		Path:      path,
		Attempts:  attempts,
		Duration:  time.Since(start),
		At:        start,
	}
	if resp != nil {
		rec.Status = resp.Status
	}
	if apiErr != nil {
		rec.Status = apiErr.StatusCode
		rec.Kind = apiErr.Kind
	}
	if err := e.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Msg("Failed to record request")
	}
}

// readResponseBody reads the whole body.
func readResponseBody(res *http.Response) ([]byte, error) {
	body, err := io.ReadAll(res.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read response body")
		return nil, err
	}
	return body, nil
}

// closeResponseBody drains a bounded amount so the connection can be reused.
func closeResponseBody(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, res.Body, 1024*1024)
	_ = res.Body.Close()
}

// errBodyDecode marks a 2xx body that could not be decoded.
var errBodyDecode = errors.New("malformed response body")
