package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	client, err := sqlite.New(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "links.db")})
	require.NoError(t, err)
	s := NewSQLStore(client.DB, SQLite)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			doc, err := s.GetDocument(ctx, "https://missing")
			require.NoError(t, err)
			assert.Nil(t, doc)

			in := model.Document{ID: "1", URL: "https://a", Title: "Cats", Body: "Cats are great pets", Terms: []string{"cats", "great", "pets"}}
			require.NoError(t, s.PutDocument(ctx, in))
			in.Body = "Cats are wonderful pets"
			require.NoError(t, s.PutDocument(ctx, in))
			got, err := s.GetDocument(ctx, "https://a")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, in, *got)

			_, ok, err := s.GetCachedMatches(ctx, "https://src", "corpus-1")
			require.NoError(t, err)
			assert.False(t, ok)

			matches := []model.Match{{TargetURL: "https://a", Title: "Cats", SimilarityScore: 0.91, SuggestedAnchor: "Cats are great", Topics: []string{"cats"}}}
			require.NoError(t, s.PutMatches(ctx, "https://src", "corpus-1", matches))
			cached, ok, err := s.GetCachedMatches(ctx, "https://src", "corpus-1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, matches, cached)

			_, ok, err = s.GetCachedMatches(ctx, "https://src", "corpus-2")
			require.NoError(t, err)
			assert.False(t, ok, "matches of one corpus are not visible under another")
			other := []model.Match{{TargetURL: "https://b", SimilarityScore: 0.4, SuggestedAnchor: "dogs"}}
			require.NoError(t, s.PutMatches(ctx, "https://src", "corpus-2", other))
			cached, _, err = s.GetCachedMatches(ctx, "https://src", "corpus-1")
			require.NoError(t, err)
			assert.Equal(t, matches, cached)

			done, err := s.IsProcessed(ctx, "https://src", "corpus-1")
			require.NoError(t, err)
			assert.False(t, done)
			require.NoError(t, s.MarkProcessed(ctx, "https://src", "corpus-1"))
			require.NoError(t, s.MarkProcessed(ctx, "https://src", "corpus-1"))
			done, err = s.IsProcessed(ctx, "https://src", "corpus-1")
			require.NoError(t, err)
			assert.True(t, done)
			done, err = s.IsProcessed(ctx, "https://src", "corpus-2")
			require.NoError(t, err)
			assert.False(t, done)

			require.NoError(t, s.ClearProcessed(ctx, "https://src", "corpus-1"))
			done, err = s.IsProcessed(ctx, "https://src", "corpus-1")
			require.NoError(t, err)
			assert.False(t, done)
		})
	}
}

func TestCorpusIDIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, err := s.GetOrCreateCorpusID(ctx, []string{"https://x", "https://y", "https://z"})
			require.NoError(t, err)
			b, err := s.GetOrCreateCorpusID(ctx, []string{"https://z", "https://x", "https://y"})
			require.NoError(t, err)
			assert.Equal(t, a, b)
			assert.NotEmpty(t, a)

			c, err := s.GetOrCreateCorpusID(ctx, []string{"https://x", "https://y"})
			require.NoError(t, err)
			assert.NotEqual(t, a, c)
		})
	}
}

func TestCorpusHash(t *testing.T) {
	assert.Equal(t, CorpusHash([]string{"b", "a"}), CorpusHash([]string{"a", "b", "a"}))
	assert.NotEqual(t, CorpusHash([]string{"a"}), CorpusHash([]string{"a", "b"}))
	assert.Len(t, CorpusHash(nil), 64)
}

func TestMatchCacheKeyIncludesCorpus(t *testing.T) {
	a := matchCacheKey("https://s", "corpus-1")
	assert.True(t, strings.HasPrefix(a, matchKeyPrefix+"corpus-1:"))
	assert.NotEqual(t, a, matchCacheKey("https://s", "corpus-2"))
	assert.NotEqual(t, a, matchCacheKey("https://t", "corpus-1"))
}

func TestRebindPostgres(t *testing.T) {
	s := NewSQLStore(nil, Postgres)
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", s.rebind("SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, "a = ?", NewSQLStore(nil, SQLite).rebind("a = ?"))
}

type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (f *flakyStore) IsProcessed(ctx context.Context, sourceURL, corpusID string) (bool, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return false, f.err
	}
	return f.MemoryStore.IsProcessed(ctx, sourceURL, corpusID)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryingRecoversFromTransient(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2, err: apperrors.Transientf("connection reset")}
	r := NewRetrying(flaky, fastRetry())
	_, err := r.IsProcessed(context.Background(), "s", "c")
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10, err: apperrors.ErrTimeout}
	r := NewRetrying(flaky, fastRetry())
	_, err := r.IsProcessed(context.Background(), "s", "c")
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingDoesNotRetryDataErrors(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), failures: 10, err: apperrors.Dataf("bad source url")}
	r := NewRetrying(flaky, fastRetry())
	_, err := r.IsProcessed(context.Background(), "s", "c")
	assert.True(t, apperrors.IsData(err))
	assert.Equal(t, 1, flaky.calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(apperrors.ErrRateLimited))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("syntax error")))
	assert.False(t, IsRetryable(apperrors.ErrCancelled))
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	down bool
	gets int
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: make(map[string]string)} }

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down {
		return "", errors.New("connection refused")
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) FlushByPattern(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.data))
	f.data = make(map[string]string)
	return n, nil
}

func TestCachedReadThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	matches := []model.Match{{TargetURL: "https://t", SimilarityScore: 0.5, SuggestedAnchor: "anchor"}}
	require.NoError(t, mem.PutMatches(ctx, "https://s", "corpus-1", matches))

	rc := newFakeRedis()
	c := NewCached(mem, rc, time.Minute, nil)

	got, ok, err := c.GetCachedMatches(ctx, "https://s", "corpus-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, matches, got)
	assert.Len(t, rc.data, 1, "loaded value is written back to redis")

	require.NoError(t, mem.PutMatches(ctx, "https://s", "corpus-1", nil))
	got, ok, err = c.GetCachedMatches(ctx, "https://s", "corpus-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, matches, got, "second read is served by redis")

	_, ok, err = c.GetCachedMatches(ctx, "https://s", "corpus-2")
	require.NoError(t, err)
	assert.False(t, ok, "redis entries are scoped to their corpus")

	_, ok, err = c.GetCachedMatches(ctx, "https://unknown", "corpus-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Invalidate(ctx))
	assert.Empty(t, rc.data)
}

func TestCachedDegradesWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rc := newFakeRedis()
	rc.down = true
	c := NewCached(mem, rc, time.Minute, nil)

	matches := []model.Match{{TargetURL: "https://t", SimilarityScore: 0.3}}
	require.NoError(t, c.PutMatches(ctx, "https://s", "corpus-1", matches))
	for i := 0; i < 10; i++ {
		got, ok, err := c.GetCachedMatches(ctx, "https://s", "corpus-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, matches, got)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())
	assert.Less(t, rc.gets, 10, "open breaker stops calling redis")
}
