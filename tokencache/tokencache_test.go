package tokencache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/tokencache"
)

func TestMemoryRoundTrip(t *testing.T) {
	cache := tokencache.NewMemory()
	ctx := context.Background()

	tokens, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, tokens.IsZero())

	pair := bridge.TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, cache.Save(ctx, pair))

	tokens, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair, tokens)

	require.NoError(t, cache.Clear(ctx))

	tokens, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, tokens.IsZero())
}

func newSQLCache(t *testing.T, realm string) *tokencache.SQL {
	t.Helper()

	db, err := tokencache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := tokencache.NewSQL(db, realm)
	require.NoError(t, cache.CreateTable(context.Background()))

	return cache
}

func TestSQLRoundTrip(t *testing.T) {
	cache := newSQLCache(t, "test")
	ctx := context.Background()

	tokens, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, tokens.IsZero())

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, cache.Save(ctx, bridge.TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expires,
	}))

	tokens, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.True(t, expires.Equal(tokens.ExpiresAt.UTC().Truncate(time.Second)))
}

func TestSQLSaveUpserts(t *testing.T) {
	cache := newSQLCache(t, "test")
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, bridge.TokenPair{AccessToken: "gen-1", RefreshToken: "r1"}))
	require.NoError(t, cache.Save(ctx, bridge.TokenPair{AccessToken: "gen-2", RefreshToken: "r2"}))

	tokens, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gen-2", tokens.AccessToken)
	assert.Equal(t, "r2", tokens.RefreshToken)
}

func TestSQLClear(t *testing.T) {
	cache := newSQLCache(t, "test")
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, bridge.TokenPair{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, cache.Clear(ctx))

	tokens, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, tokens.IsZero())
}

func TestSQLRealmsAreIsolated(t *testing.T) {
	db, err := tokencache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()

	first := tokencache.NewSQL(db, "first")
	require.NoError(t, first.CreateTable(ctx))
	second := tokencache.NewSQL(db, "second")

	require.NoError(t, first.Save(ctx, bridge.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, second.Save(ctx, bridge.TokenPair{AccessToken: "a2", RefreshToken: "r2"}))

	tokens, err := first.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", tokens.AccessToken)

	require.NoError(t, first.Clear(ctx))

	tokens, err = second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", tokens.AccessToken)
}
