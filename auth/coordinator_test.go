package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/habedi/tenantctl/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRefresher struct {
	calls    atomic.Int64
	gate     chan struct{}
	err      error
	next     auth.TokenPair
	deviceID string
	mu       sync.Mutex
}

func (m *mockRefresher) PerformTokenRefresh(ctx context.Context, refreshToken, deviceID string) (auth.TokenPair, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.deviceID = deviceID
	m.mu.Unlock()
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return auth.TokenPair{}, ctx.Err()
		}
	}
	if m.err != nil {
		return auth.TokenPair{}, m.err
	}
	return m.next, nil
}

func newSession(t *testing.T, access, refresh string) *auth.TokenStore {
	t.Helper()
	store := auth.NewTokenStore(nil)
	require.NoError(t, store.Set(context.Background(), auth.TokenPair{AccessToken: access, RefreshToken: refresh}))
	return store
}

func TestCoordinator_RefreshSuccess(t *testing.T) {
	store := newSession(t, "A1", "R1")
	refresher := &mockRefresher{next: auth.TokenPair{AccessToken: "A2", RefreshToken: "R2"}}
	c := auth.NewCoordinator(store, refresher, auth.WithDeviceID("dev-1"))

	access, err := c.Refresh(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "A2", access)
	assert.Equal(t, auth.StateIdle, c.State())
	assert.Equal(t, int64(1), c.Refreshes())
	assert.Equal(t, "dev-1", refresher.deviceID)

	pair, _ := store.Get()
	assert.Equal(t, "R2", pair.RefreshToken)
}

func TestCoordinator_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	store := newSession(t, "A1", "R1")
	c := auth.NewCoordinator(store, &mockRefresher{next: auth.TokenPair{AccessToken: "A2"}})

	_, err := c.Refresh(context.Background(), "A1")
	require.NoError(t, err)
	pair, _ := store.Get()
	assert.Equal(t, "R1", pair.RefreshToken)
}

func TestCoordinator_StaleCallerSkipsRefresh(t *testing.T) {
	store := newSession(t, "A2", "R2")
	refresher := &mockRefresher{}
	c := auth.NewCoordinator(store, refresher)

	access, err := c.Refresh(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "A2", access)
	assert.Zero(t, refresher.calls.Load())
}

func TestCoordinator_SingleFlight(t *testing.T) {
	store := newSession(t, "A1", "R1")
	refresher := &mockRefresher{
		gate: make(chan struct{}),
		next: auth.TokenPair{AccessToken: "A2", RefreshToken: "R2"},
	}
	c := auth.NewCoordinator(store, refresher)

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Refresh(context.Background(), "A1")
		}(i)
	}

	require.Eventually(t, func() bool { return c.State() == auth.StateRefreshing }, time.Second, time.Millisecond)
	// Let the other callers pile up behind the ticket before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(refresher.gate)
	wg.Wait()

	assert.Equal(t, int64(1), refresher.calls.Load(), "exactly one refresh call")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "A2", results[i])
	}
}

func TestCoordinator_FailurePropagatesToAllWaiters(t *testing.T) {
	store := newSession(t, "A1", "R1")
	refresher := &mockRefresher{gate: make(chan struct{}), err: errors.New("refresh rejected")}
	c := auth.NewCoordinator(store, refresher)

	var notified atomic.Int64
	c.OnSessionExpired(func(err error) {
		assert.ErrorIs(t, err, auth.ErrSessionExpired)
		notified.Add(1)
	})

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Refresh(context.Background(), "A1")
		}(i)
	}
	require.Eventually(t, func() bool { return c.State() == auth.StateRefreshing }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(refresher.gate)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, auth.ErrSessionExpired)
	}
	assert.Equal(t, int64(1), notified.Load(), "listener fires once per failed refresh")
	assert.Equal(t, auth.StateFailed, c.State())
	_, ok := store.Get()
	assert.False(t, ok, "store cleared on failure")

	// Late callers do not trigger another refresh or notification.
	_, err := c.Refresh(context.Background(), "A1")
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
	assert.Equal(t, int64(1), refresher.calls.Load())
	assert.Equal(t, int64(1), notified.Load())
}

func TestCoordinator_NoRefreshToken(t *testing.T) {
	store := newSession(t, "A1", "")
	refresher := &mockRefresher{}
	c := auth.NewCoordinator(store, refresher)

	_, err := c.Refresh(context.Background(), "A1")
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
	assert.ErrorIs(t, err, auth.ErrNoRefreshToken)
	assert.Zero(t, refresher.calls.Load())
	assert.Equal(t, auth.StateFailed, c.State())
}

func TestCoordinator_EmptyAccessTokenIsFailure(t *testing.T) {
	store := newSession(t, "A1", "R1")
	c := auth.NewCoordinator(store, &mockRefresher{next: auth.TokenPair{RefreshToken: "R2"}})

	_, err := c.Refresh(context.Background(), "A1")
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
}

func TestCoordinator_LoginLeavesFailedState(t *testing.T) {
	store := newSession(t, "A1", "R1")
	refresher := &mockRefresher{err: errors.New("revoked")}
	c := auth.NewCoordinator(store, refresher)

	_, err := c.Refresh(context.Background(), "A1")
	require.Error(t, err)
	require.Equal(t, auth.StateFailed, c.State())

	require.NoError(t, store.Set(context.Background(), auth.TokenPair{AccessToken: "B1", RefreshToken: "S1"}))
	assert.Equal(t, auth.StateIdle, c.State())

	refresher.err = nil
	refresher.next = auth.TokenPair{AccessToken: "B2"}
	access, err := c.Refresh(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, "B2", access)
}

func TestCoordinator_CallerCancellationDoesNotAbortRefresh(t *testing.T) {
	store := newSession(t, "A1", "R1")
	refresher := &mockRefresher{gate: make(chan struct{}), next: auth.TokenPair{AccessToken: "A2"}}
	c := auth.NewCoordinator(store, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx, "A1")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.State() == auth.StateRefreshing }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(refresher.gate)
	require.Eventually(t, func() bool { return c.Refreshes() == 1 }, time.Second, time.Millisecond)
	access, _ := store.AccessToken()
	assert.Equal(t, "A2", access)
}

func TestCoordinator_EnsureFresh(t *testing.T) {
	ctx := context.Background()

	empty := auth.NewCoordinator(auth.NewTokenStore(nil), &mockRefresher{})
	_, err := empty.EnsureFresh(ctx, auth.DefaultRefreshSkew)
	assert.Error(t, err)

	store := auth.NewTokenStore(nil)
	require.NoError(t, store.Set(ctx, auth.TokenPair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: time.Hour}))
	refresher := &mockRefresher{next: auth.TokenPair{AccessToken: "A2", ExpiresIn: time.Hour}}
	c := auth.NewCoordinator(store, refresher)

	access, err := c.EnsureFresh(ctx, auth.DefaultRefreshSkew)
	require.NoError(t, err)
	assert.Equal(t, "A1", access, "fresh token kept")
	assert.Zero(t, refresher.calls.Load())

	require.NoError(t, store.Set(ctx, auth.TokenPair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: time.Minute}))
	access, err = c.EnsureFresh(ctx, auth.DefaultRefreshSkew)
	require.NoError(t, err)
	assert.Equal(t, "A2", access)
	assert.Equal(t, int64(1), refresher.calls.Load())
}

func TestCoordinator_Expire(t *testing.T) {
	ctx := context.Background()
	store := newSession(t, "A2", "R2")
	c := auth.NewCoordinator(store, &mockRefresher{})

	var notified []error
	c.OnSessionExpired(func(err error) { notified = append(notified, err) })

	c.Expire(ctx, "A1", errors.New("rejected"))
	assert.Empty(t, notified, "a token that is no longer stored leaves the session alone")
	_, ok := store.Get()
	assert.True(t, ok)

	c.Expire(ctx, "A2", errors.New("rejected"))
	c.Expire(ctx, "A2", errors.New("rejected again"))
	require.Len(t, notified, 1, "one notification per session")
	assert.ErrorIs(t, notified[0], auth.ErrSessionExpired)
	assert.Equal(t, auth.StateFailed, c.State())
	_, ok = store.Get()
	assert.False(t, ok, "session cleared")

	_, err := c.Refresh(ctx, "A2")
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
}
