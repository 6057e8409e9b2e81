package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/habedi/tenantctl/auth"
)

// DefaultTimeout bounds one attempt when nothing else is configured.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	MaxWait     time.Duration
	TenantID    string
	DeviceID    string
	// HTTPClient defaults to a client without its own timeout; attempts are bounded by Timeout.
	HTTPClient *http.Client
	Recorder   Recorder
	// OnSessionExpired is called once each time the session ends without a logout.
	OnSessionExpired func(err error)
	// DownloadRateLimit caps download bandwidth in bytes per second; zero disables it.
	DownloadRateLimit int64
}

// Client is the surface feature code calls. It holds no retry or auth logic
// of its own; every method delegates to the Executor.
type Client struct {
	exec        *Executor
	session     *AuthAPI
	tokens      *auth.TokenStore
	coordinator *auth.Coordinator
	limiter     *RateLimiter
}

// New wires the builder, coordinator and executor around store.
func New(store *auth.TokenStore, opts Options) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	timeout := pick(opts.Timeout, DefaultTimeout)

	builder, err := NewRequestBuilder(opts.BaseURL, store, BuilderOptions{
		TenantID:   opts.TenantID,
		Timeout:    timeout,
		RetryDelay: opts.RetryDelay,
	})
	if err != nil {
		return nil, err
	}

	policy := DefaultRetryPolicy()
	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}
	if opts.RetryDelay > 0 {
		policy.BaseDelay = opts.RetryDelay
	}
	if opts.MaxWait > 0 {
		policy.MaxWait = opts.MaxWait
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	session := NewAuthAPI(httpClient, builder, store, opts.DeviceID)
	coordinator := auth.NewCoordinator(store, session,
		auth.WithDeviceID(opts.DeviceID),
		auth.WithRefreshTimeout(timeout),
	)
	if opts.OnSessionExpired != nil {
		coordinator.OnSessionExpired(opts.OnSessionExpired)
	}

	return &Client{
		exec:        NewExecutor(httpClient, builder, coordinator, policy, opts.Recorder),
		session:     session,
		tokens:      store,
		coordinator: coordinator,
		limiter:     NewRateLimiter(opts.DownloadRateLimit),
	}, nil
}

// Tokens returns the store the client authenticates from.
func (c *Client) Tokens() *auth.TokenStore { return c.tokens }

// Coordinator returns the refresh coordinator, mainly for observing its state.
func (c *Client) Coordinator() *auth.Coordinator { return c.coordinator }

// Login starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	return c.session.Login(ctx, email, password)
}

// Logout ends the session; local tokens are cleared even if the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// Do runs an arbitrary call and returns the buffered response.
func (c *Client) Do(ctx context.Context, call Call) (*Response, error) {
	return c.exec.Do(ctx, call)
}

// Get fetches path and decodes the JSON response into out. out may be nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, Call{Method: http.MethodGet, Path: path}, out)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, Call{Method: http.MethodPost, Path: path, JSON: body}, out)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, Call{Method: http.MethodPut, Path: path, JSON: body}, out)
}

// Patch sends body as JSON.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, Call{Method: http.MethodPatch, Path: path, JSON: body}, out)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.call(ctx, Call{Method: http.MethodDelete, Path: path}, out)
}

// BulkOperation posts {"operation", "ids"} to <resource>/bulk.
func (c *Client) BulkOperation(ctx context.Context, resource, operation string, ids []string, out any) error {
	resource = strings.TrimRight(strings.TrimSpace(resource), "/")
	switch {
	case resource == "":
		return newError(KindValidation, 0, "bulk resource cannot be empty", nil)
	case strings.TrimSpace(operation) == "":
		return newError(KindValidation, 0, "bulk operation cannot be empty", nil)
	case len(ids) == 0:
		return newError(KindValidation, 0, "bulk operation needs at least one id", nil)
	}
	body := struct {
		Operation string   `json:"operation"`
		IDs       []string `json:"ids"`
	}{Operation: operation, IDs: ids}
	return c.Post(ctx, resource+"/bulk", body, out)
}

func (c *Client) call(ctx context.Context, call Call, out any) error {
	resp, err := c.exec.Do(ctx, call)
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

// decodeBody decodes the response exactly once. Empty bodies leave out untouched.
func decodeBody(resp *Response, out any) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = append((*raw)[:0], resp.Body...)
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		apiErr := newError(KindUnknown, resp.Status, errBodyDecode.Error(), err)
		apiErr.RequestID = resp.RequestID
		return apiErr
	}
	return nil
}

// GetJSON fetches path and decodes it into a T.
func GetJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	err := c.Get(ctx, path, &out)
	return out, err
}

// PostJSON posts body and decodes the response into a T.
func PostJSON[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var out T
	err := c.Post(ctx, path, body, &out)
	return out, err
}
