package db_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/habedi/tenantctl/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogRepository(t *testing.T) {
	gdb, err := db.OpenInMemory()
	require.NoError(t, err)
	repo := db.NewRequestLogRepository(gdb)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Append(ctx, &db.RequestLog{
			RequestID:  fmt.Sprintf("req-%d", i),
			Method:     "GET",
			Path:       fmt.Sprintf("/users/%d", i),
			Status:     200,
			Attempts:   1,
			DurationMs: 12,
			CreatedAt:  time.Now(),
		}))
	}

	recent, err := repo.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "req-5", recent[0].RequestID, "newest first")
	assert.Equal(t, "req-3", recent[2].RequestID)

	require.NoError(t, repo.Prune(ctx, 2))
	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "req-5", all[0].RequestID)
	assert.Equal(t, "req-4", all[1].RequestID)

	require.NoError(t, repo.Prune(ctx, 10), "keeping more than exist is a no-op")
	all, err = repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.Prune(ctx, 0))
	all, err = repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
