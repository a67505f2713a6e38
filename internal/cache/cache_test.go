package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvtable/internal/cache"
)

func newStore(t *testing.T, opts ...cache.Option) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewFromClient(client, opts...), mr
}

func TestStore_PutGet(t *testing.T) {
	store, mr := newStore(t, cache.WithPrefix("test:"))
	ctx := context.Background()
	key := cache.Key("birds", []byte("forgiving"), []byte("species,count\nOsprey,3\n"))

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, cache.ErrMiss)

	entry := &cache.Entry{
		Status:      200,
		ContentType: "text/csv",
		Headers:     map[string]string{"X-Row-Failures": "0"},
		Body:        []byte("species,count\nOsprey,3\n"),
	}
	require.NoError(t, store.Put(ctx, key, entry))
	assert.True(t, mr.Exists("test:"+key), "entry should be stored under the prefix")

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, "0", got.Headers["X-Row-Failures"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_TTL(t *testing.T) {
	store, mr := newStore(t, cache.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", &cache.Entry{Status: 200}))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestStore_Invalidate(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, body := range []string{"a", "b"} {
		require.NoError(t, store.Put(ctx, cache.Key("birds", []byte(body)), &cache.Entry{Status: 200}))
	}
	other := cache.Key("movies", []byte("a"))
	require.NoError(t, store.Put(ctx, other, &cache.Entry{Status: 200}))

	n, err := store.Invalidate(ctx, "birds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Get(ctx, other)
	assert.NoError(t, err, "other schemas keep their entries")
}

func TestKey(t *testing.T) {
	assert.Equal(t, cache.Key("s", []byte("ab"), []byte("c")), cache.Key("s", []byte("ab"), []byte("c")))
	assert.NotEqual(t, cache.Key("s", []byte("ab"), []byte("c")), cache.Key("s", []byte("a"), []byte("bc")))
	assert.NotEqual(t, cache.Key("s", []byte("x")), cache.Key("t", []byte("x")))
}

func TestStore_Unavailable(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrMiss)
	assert.Error(t, store.Ping(context.Background()))
}
