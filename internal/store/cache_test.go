package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putEntry(t *testing.T, s *Store, path, content string, ts int64) {
	t.Helper()
	ok, err := s.PutCacheEntry(context.Background(), &CacheEntry{
		Path: path, ContentHash: content, ConfigHash: "cfg", Data: []byte(`{"x":1}`), CreatedAt: ts, LastUsed: ts,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCacheEntries_InsertOrIgnore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	putEntry(t, s, "a.cpp", "h1", 1)

	ok, err := s.PutCacheEntry(ctx, &CacheEntry{Path: "a.cpp", ContentHash: "h1", ConfigHash: "cfg", Data: []byte("other")})
	require.NoError(t, err)
	assert.False(t, ok, "existing entries are never overwritten")

	e, err := s.CacheEntry(ctx, "a.cpp", "h1", "cfg")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, `{"x":1}`, string(e.Data))
	assert.Equal(t, int64(7), e.Size)

	missing, err := s.CacheEntry(ctx, "a.cpp", "h1", "other-cfg")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCacheEntries_Evict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	putEntry(t, s, "a.cpp", "h1", 1)
	putEntry(t, s, "b.cpp", "h1", 2)
	putEntry(t, s, "c.cpp", "h1", 3)
	require.NoError(t, s.TouchCacheEntry(ctx, "a.cpp", "h1", "cfg", 10))

	n, err := s.EvictCacheEntries(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := s.CacheEntry(ctx, "b.cpp", "h1", "cfg")
	require.NoError(t, err)
	assert.Nil(t, e, "least recently used entry evicted")
	e, err = s.CacheEntry(ctx, "a.cpp", "h1", "cfg")
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestCacheEntries_ClearScopes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	putEntry(t, s, "src/a.cpp", "h1", 1)
	putEntry(t, s, "src/a.cpp", "h2", 2)
	putEntry(t, s, "src/sub/b.cpp", "h1", 3)
	putEntry(t, s, "srcx/c.cpp", "h1", 4)

	n, err := s.ClearCacheSuperseded(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e, err := s.CacheEntry(ctx, "src/a.cpp", "h2", "cfg")
	require.NoError(t, err)
	assert.NotNil(t, e, "newest entry per path survives")

	n, err = s.ClearCachePath(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "directory prefix does not match srcx/")

	st, err := s.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.EntryCount)
	assert.Equal(t, 1, st.Paths)

	n, err = s.ClearCacheAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	st, err = s.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.EntryCount)
	assert.Zero(t, st.TotalBytes)
}

func TestCacheEntries_ClearPathNonASCII(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	putEntry(t, s, "/src/café/a.cpp", "h1", 1)
	putEntry(t, s, "/src/café/sub/b.cpp", "h1", 2)
	putEntry(t, s, "/src/cafébar/c.cpp", "h1", 3)

	n, err := s.ClearCachePath(ctx, "/src/café")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ClearCachePath(ctx, "/src/cafébar/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
