package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

type cachedSnapshot struct {
	Version int               `json:"version"`
	Content map[string]string `json:"content"`
}

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, nil), mr
}

func TestCacheRepositoryMissAndHit(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()

	var out cachedSnapshot
	require.ErrorIs(t, repo.Get(ctx, "section:inst-1:intro", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.SetIfNewer(ctx, "section:inst-1:intro", 2, cachedSnapshot{Version: 2, Content: map[string]string{"title": "A"}}, time.Minute))
	require.NoError(t, repo.Get(ctx, "section:inst-1:intro", &out))
	require.Equal(t, 2, out.Version)
}

func TestCacheRepositorySetIfNewerKeepsHigherVersion(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()
	key := "section:inst-1:intro"

	require.NoError(t, repo.SetIfNewer(ctx, key, 5, cachedSnapshot{Version: 5}, time.Minute))
	require.NoError(t, repo.SetIfNewer(ctx, key, 4, cachedSnapshot{Version: 4}, time.Minute))

	var out cachedSnapshot
	require.NoError(t, repo.Get(ctx, key, &out))
	require.Equal(t, 5, out.Version)

	require.NoError(t, repo.SetIfNewer(ctx, key, 6, cachedSnapshot{Version: 6}, time.Minute))
	require.NoError(t, repo.Get(ctx, key, &out))
	require.Equal(t, 6, out.Version)
}

func TestCacheRepositoryDeleteAndTTL(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetIfNewer(ctx, "section:inst-1:a", 1, cachedSnapshot{Version: 1}, time.Minute))
	require.NoError(t, repo.SetIfNewer(ctx, "section:inst-1:b", 1, cachedSnapshot{Version: 1}, time.Minute))
	require.NoError(t, repo.Delete(ctx, "section:inst-1:a"))
	require.False(t, mr.Exists("section:inst-1:a"))

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("section:inst-1:b"))
}

func TestCacheRepositoryWithoutClientIsNoop(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var out cachedSnapshot
	require.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	require.NoError(t, repo.SetIfNewer(context.Background(), "k", 1, out, time.Minute))
	require.NoError(t, repo.Delete(context.Background(), "k"))
}
