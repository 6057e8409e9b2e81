package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/habedi/tenantctl/auth"
	"github.com/stretchr/testify/require"
)

// newTestClient starts server and returns a client with a session holding access/refresh.
// Retry waits are shortened so failure paths run quickly.
func newTestClient(t *testing.T, handler http.Handler, access, refresh string, mutate ...func(*Options)) (*Client, *auth.TokenStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := auth.NewTokenStore(nil)
	if access != "" {
		require.NoError(t, store.Set(context.Background(), auth.TokenPair{AccessToken: access, RefreshToken: refresh}))
	}

	opts := Options{
		BaseURL:    server.URL + "/api",
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
		DeviceID:   "device-1",
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(store, opts)
	require.NoError(t, err)
	return c, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func tokensBody(access, refresh string, expiresIn any) map[string]any {
	return map[string]any{"tokens": map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
		"expiresIn":    expiresIn,
	}}
}

// memoryRecorder collects call records.
type memoryRecorder struct {
	mu      sync.Mutex
	records []CallRecord
}

func (m *memoryRecorder) Record(ctx context.Context, rec CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryRecorder) all() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallRecord(nil), m.records...)
}
