package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// State is the refresh protocol state of a Coordinator.
type State int

const (
	StateIdle State = iota
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrSessionExpired is returned to every caller waiting on a refresh that failed.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken is wrapped into ErrSessionExpired when there is nothing to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// refreshKey names the single refresh ticket.
const refreshKey = "refresh"

// DefaultRefreshTimeout bounds one refresh call.
const DefaultRefreshTimeout = 30 * time.Second

// Coordinator runs the token refresh protocol. At most one refresh call is in
// flight at any time; every caller that reports an expired access token while
// it runs waits for that same call and receives its outcome.
type Coordinator struct {
	store     *TokenStore
	refresher TokenRefresher
	deviceID  string
	timeout   time.Duration

	group singleflight.Group

	mu        sync.Mutex
	state     State
	listeners []func(error)

	// expireMu serializes Expire so one rejected token notifies once.
	expireMu sync.Mutex

	refreshes atomic.Int64
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithDeviceID sends deviceID along with every refresh request.
func WithDeviceID(deviceID string) CoordinatorOption {
	return func(c *Coordinator) { c.deviceID = deviceID }
}

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator is the constructor for the refresh coordinator.
func NewCoordinator(store *TokenStore, refresher TokenRefresher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		timeout:   DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	// A new login ends the Failed state.
	store.OnChange(func(_ TokenPair, present bool) {
		if !present {
			return
		}
		c.mu.Lock()
		if c.state == StateFailed {
			c.state = StateIdle
		}
		c.mu.Unlock()
	})
	return c
}

// OnSessionExpired registers fn to be called once for every session that ends
// without a logout: a failed refresh or a refreshed token the server rejects.
// The host application uses it to force a new login.
func (c *Coordinator) OnSessionExpired(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns the current protocol state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refreshes returns the number of refresh calls that completed successfully.
func (c *Coordinator) Refreshes() int64 {
	return c.refreshes.Load()
}

// Refresh obtains an access token newer than staleAccess, the token the caller
// was rejected with. If the store already holds a different token, it is
// returned without a refresh call. Otherwise the caller joins the refresh in
// flight or starts one.
func (c *Coordinator) Refresh(ctx context.Context, staleAccess string) (string, error) {
	if current, ok := c.store.AccessToken(); ok && current != staleAccess {
		return current, nil
	}
	if c.State() == StateFailed {
		if _, ok := c.store.Get(); !ok {
			return "", ErrSessionExpired
		}
	}

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return c.runRefresh(ctx, staleAccess)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) runRefresh(ctx context.Context, staleAccess string) (string, error) {
	pair, ok := c.store.Get()
	if ok && pair.AccessToken != staleAccess {
		return pair.AccessToken, nil
	}

	c.setState(StateRefreshing)
	if !ok || pair.RefreshToken == "" {
		return "", c.fail(ctx, ErrNoRefreshToken)
	}

	// The refresh serves every waiter, so one caller's cancellation must not abort it.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	log.Info().Msg("Access token rejected, refreshing session")
	next, err := c.refresher.PerformTokenRefresh(rctx, pair.RefreshToken, c.deviceID)
	if err != nil {
		return "", c.fail(ctx, err)
	}
	if next.AccessToken == "" {
		return "", c.fail(ctx, fmt.Errorf("refresh response carried no access token"))
	}
	if next.RefreshToken == "" {
		next.RefreshToken = pair.RefreshToken
	}

	if err := c.store.Set(rctx, next); err != nil {
		// The new pair is live in memory; only persistence failed.
		log.Warn().Err(err).Msg("Refreshed token could not be persisted")
	}
	c.setState(StateIdle)
	c.refreshes.Add(1)
	log.Info().Str("access_token", Redact(next.AccessToken)).Msg("Token refreshed successfully")
	return next.AccessToken, nil
}

// Expire ends the session after the server rejected a token that was just
// refreshed. It does nothing when the store no longer holds that token, so
// concurrent callers and a newer login are left alone.
func (c *Coordinator) Expire(ctx context.Context, rejected string, cause error) {
	c.expireMu.Lock()
	defer c.expireMu.Unlock()

	if current, ok := c.store.AccessToken(); !ok || current != rejected {
		return
	}
	log.Error().Err(cause).Msg("Refreshed token rejected, clearing session")
	c.endSession(ctx, fmt.Errorf("%w: %w", ErrSessionExpired, cause))
}

// fail clears the session, moves to Failed and notifies listeners before the
// waiters are released.
func (c *Coordinator) fail(ctx context.Context, cause error) error {
	err := fmt.Errorf("%w: %w", ErrSessionExpired, cause)
	log.Error().Err(cause).Msg("Token refresh failed, clearing session")
	c.endSession(ctx, err)
	return err
}

func (c *Coordinator) endSession(ctx context.Context, err error) {
	if clearErr := c.store.Clear(context.WithoutCancel(ctx)); clearErr != nil {
		log.Warn().Err(clearErr).Msg("Failed to clear persisted session")
	}

	c.mu.Lock()
	c.state = StateFailed
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
