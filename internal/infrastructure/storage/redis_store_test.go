package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	n, err := store.Save(ctx, []domain.Candidate{
		{Topic: "fintech", URL: "https://a", Title: "A", Source: "blog", PublishedAt: published},
		{Topic: "fintech", URL: "https://b", Title: "B", Source: "forum"},
		{Topic: "fintech", URL: "https://a", Title: "A again"},
		{Topic: "fintech", URL: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.MarkPublished(ctx, "fintech", []string{"https://b"}))
	require.NoError(t, store.MarkPublished(ctx, "fintech", []string{"https://b"}))

	members, err := mr.Members("digest:published:fintech")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b"}, members)

	list, err := store.ListUnpublished(ctx, "fintech")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Title)
	assert.Equal(t, "fintech", list[0].Topic)
	assert.True(t, list[0].PublishedAt.Equal(published))

	flags, err := store.Published(ctx, "fintech", []string{"https://a", "https://b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"https://b": true}, flags)
}

func TestRedisStoreKeepsInsertionOrder(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	for _, u := range []string{"https://z", "https://m", "https://a"} {
		_, err := store.Save(ctx, []domain.Candidate{{Topic: "t", URL: u}})
		require.NoError(t, err)
	}

	list, err := store.ListUnpublished(ctx, "t")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "https://z", list[0].URL)
	assert.Equal(t, "https://m", list[1].URL)
	assert.Equal(t, "https://a", list[2].URL)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	store := NewRedisStore(mr.Addr())
	defer store.Close()
	mr.Close()

	_, err = store.ListUnpublished(context.Background(), "t")
	assert.Error(t, err)
}

func TestStoresShareSemantics(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]interface {
		ports.CandidateStore
		ports.PublishedStore
	}{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Save(ctx, []domain.Candidate{
				{Topic: "a", URL: "https://1"},
				{Topic: "b", URL: "https://1"},
			})
			require.NoError(t, err)
			require.NoError(t, store.MarkPublished(ctx, "a", []string{"https://1"}))

			listA, err := store.ListUnpublished(ctx, "a")
			require.NoError(t, err)
			assert.Empty(t, listA)

			listB, err := store.ListUnpublished(ctx, "b")
			require.NoError(t, err)
			assert.Len(t, listB, 1, "published marker is per topic")
		})
	}
}
