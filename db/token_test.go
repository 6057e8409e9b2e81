package db_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/habedi/tenantctl/db"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseTokenRepository(t *testing.T, repo db.TokenRepository) {
	t.Helper()
	ctx := context.Background()

	tok, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, tok, "initially empty")

	require.NoError(t, repo.Upsert(ctx, &db.Token{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: "2030-01-01T00:00:00Z"}))
	require.NoError(t, repo.Upsert(ctx, &db.Token{AccessToken: "A2", RefreshToken: "R2"}))

	tok, err = repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "A2", tok.AccessToken, "upsert replaces the single record")
	assert.Equal(t, "R2", tok.RefreshToken)
	assert.Empty(t, tok.ExpiresAt)

	require.NoError(t, repo.Delete(ctx))
	tok, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, repo.Delete(ctx), "deleting an empty store is fine")
}

func TestTokenRepository_SQLite(t *testing.T) {
	gdb, err := db.OpenInMemory()
	require.NoError(t, err)
	exerciseTokenRepository(t, db.NewTokenRepository(gdb))

	var count int64
	require.NoError(t, gdb.Model(&db.Token{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTokenRepository_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exerciseTokenRepository(t, db.NewRedisTokenRepository(rdb, ""))

	repo := db.NewRedisTokenRepository(rdb, "custom:key")
	require.NoError(t, repo.Upsert(context.Background(), &db.Token{AccessToken: "A1"}))
	assert.True(t, mr.Exists("custom:key"))
	assert.False(t, mr.Exists(db.DefaultRedisTokenKey))
}

func TestTokenRepository_RedisCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(db.DefaultRedisTokenKey, "not json"))
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, err := db.NewRedisTokenRepository(rdb, "").Get(context.Background())
	assert.ErrorContains(t, err, "decode")
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := db.OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = rdb.Close()

	_, err = db.OpenRedis(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestTokenRepository_Uninitialized(t *testing.T) {
	ctx := context.Background()
	for _, repo := range []db.TokenRepository{db.NewTokenRepository(nil), db.NewRedisTokenRepository(nil, "")} {
		_, err := repo.Get(ctx)
		assert.Error(t, err)
		assert.Error(t, repo.Upsert(ctx, &db.Token{}))
		assert.Error(t, repo.Delete(ctx))
	}
}
