package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/habedi/tenantctl/auth"
	"github.com/habedi/tenantctl/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStorer struct {
	mu          sync.Mutex
	record      *db.Token
	getErr      error
	upsertErr   error
	upserts     int
	deleteCalls int
}

func (m *mockStorer) GetTokenRecord(ctx context.Context) (*db.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record, m.getErr
}

func (m *mockStorer) UpsertTokenRecord(ctx context.Context, token *db.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.record = token
	return nil
}

func (m *mockStorer) DeleteTokenRecord(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	m.record = nil
	return nil
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestTokenStore_SetGetClear(t *testing.T) {
	storer := &mockStorer{}
	store := auth.NewTokenStore(storer)
	ctx := context.Background()

	_, ok := store.Get()
	assert.False(t, ok, "new store is empty")

	require.NoError(t, store.Set(ctx, auth.TokenPair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: time.Hour}))
	pair, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "A1", pair.AccessToken)
	assert.Equal(t, "R1", pair.RefreshToken)
	assert.False(t, pair.ExpiresAt.IsZero(), "expiry derived from ExpiresIn")
	require.NotNil(t, storer.record)
	assert.Equal(t, "A1", storer.record.AccessToken)
	assert.NotEmpty(t, storer.record.ExpiresAt)

	require.NoError(t, store.Clear(ctx))
	_, ok = store.AccessToken()
	assert.False(t, ok)
	assert.Nil(t, storer.record)
	assert.Equal(t, 1, storer.deleteCalls)
}

func TestTokenStore_RejectsEmptyAccessToken(t *testing.T) {
	store := auth.NewTokenStore(nil)
	err := store.Set(context.Background(), auth.TokenPair{RefreshToken: "R1"})
	assert.Error(t, err)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestTokenStore_PersistFailureKeepsMemory(t *testing.T) {
	storer := &mockStorer{upsertErr: errors.New("disk full")}
	store := auth.NewTokenStore(storer)

	err := store.Set(context.Background(), auth.TokenPair{AccessToken: "A1"})
	assert.ErrorContains(t, err, "disk full")

	access, ok := store.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "A1", access)
}

func TestTokenStore_Load(t *testing.T) {
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	storer := &mockStorer{record: &db.Token{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: exp.Format(time.RFC3339)}}
	store := auth.NewTokenStore(storer)

	require.NoError(t, store.Load(context.Background()))
	pair, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "A1", pair.AccessToken)
	assert.True(t, exp.Equal(pair.ExpiresAt))

	failing := auth.NewTokenStore(&mockStorer{getErr: errors.New("locked")})
	assert.Error(t, failing.Load(context.Background()))
}

func TestTokenStore_ExpiryFromJWT(t *testing.T) {
	exp := time.Now().Add(2 * time.Minute).Truncate(time.Second)
	store := auth.NewTokenStore(nil)

	require.NoError(t, store.Set(context.Background(), auth.TokenPair{AccessToken: signedJWT(t, exp)}))
	pair, _ := store.Get()
	assert.True(t, exp.Equal(pair.ExpiresAt))
	assert.False(t, pair.Expired(time.Now(), 0))
	assert.True(t, pair.Expired(time.Now(), auth.DefaultRefreshSkew))
}

func TestTokenStore_OnChange(t *testing.T) {
	store := auth.NewTokenStore(nil)
	var events []bool
	store.OnChange(func(_ auth.TokenPair, present bool) { events = append(events, present) })

	require.NoError(t, store.Set(context.Background(), auth.TokenPair{AccessToken: "A1"}))
	require.NoError(t, store.Clear(context.Background()))
	assert.Equal(t, []bool{true, false}, events)
}

func TestTokenStore_ConcurrentReadersSeeWholePairs(t *testing.T) {
	store := auth.NewTokenStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, auth.TokenPair{AccessToken: "A0", RefreshToken: "R0"}))

	pairs := map[string]string{"A0": "R0", "A1": "R1", "A2": "R2"}
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p, ok := store.Get()
				if ok {
					assert.Equal(t, pairs[p.AccessToken], p.RefreshToken)
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		k := []string{"A0", "A1", "A2"}[i%3]
		require.NoError(t, store.Set(ctx, auth.TokenPair{AccessToken: k, RefreshToken: pairs[k]}))
	}
	close(stop)
	wg.Wait()
}

func TestRepoStorer_WithSQLite(t *testing.T) {
	gdb, err := db.OpenInMemory()
	require.NoError(t, err)
	store := auth.NewTokenStore(auth.NewRepoStorer(db.NewTokenRepository(gdb)))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, auth.TokenPair{AccessToken: "A1", RefreshToken: "R1"}))

	reloaded := auth.NewTokenStore(auth.NewRepoStorer(db.NewTokenRepository(gdb)))
	require.NoError(t, reloaded.Load(ctx))
	pair, ok := reloaded.Get()
	require.True(t, ok)
	assert.Equal(t, "R1", pair.RefreshToken)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", auth.Redact("short"))
	assert.Equal(t, "abcdef...", auth.Redact("abcdefghijkl"))
}
