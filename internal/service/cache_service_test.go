package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

type cacheRepoStub struct {
	getErr  error
	setErr  error
	sets    int
	deletes []string
}

func (s *cacheRepoStub) Get(context.Context, string, interface{}) error { return s.getErr }

func (s *cacheRepoStub) SetIfNewer(context.Context, string, int, interface{}, time.Duration) error {
	s.sets++
	return s.setErr
}

func (s *cacheRepoStub) Delete(_ context.Context, keys ...string) error {
	s.deletes = append(s.deletes, keys...)
	return nil
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	var nilCache *CacheService
	require.False(t, nilCache.Enabled())
	hit, err := nilCache.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, nilCache.Set(context.Background(), "k", 1, "v"))

	repo := &cacheRepoStub{}
	disabled := NewCacheService(repo, nil, 0, nil, false)
	require.False(t, disabled.Enabled())
	require.NoError(t, disabled.Set(context.Background(), "k", 1, "v"))
	require.NoError(t, disabled.Invalidate(context.Background(), "k"))
	require.Zero(t, repo.sets)
	require.Empty(t, repo.deletes)
}

func TestCacheServiceRecordsHitsAndMisses(t *testing.T) {
	metrics := NewMetricsService()
	repo := &cacheRepoStub{}
	cache := NewCacheService(repo, metrics, time.Minute, nil, true)

	hit, err := cache.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.True(t, hit)

	repo.getErr = appErrors.ErrCacheMiss
	hit, err = cache.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	require.False(t, hit)

	repo.getErr = errors.New("connection reset")
	hit, err = cache.Get(context.Background(), "k", &struct{}{})
	require.Error(t, err)
	require.False(t, hit)

	snapshot := metrics.Snapshot()
	require.EqualValues(t, 1, snapshot.CacheHits)
	require.EqualValues(t, 2, snapshot.CacheMisses)

	require.NoError(t, cache.Invalidate(context.Background(), "a", "b"))
	require.Equal(t, []string{cacheNamespace + "a", cacheNamespace + "b"}, repo.deletes)
}
