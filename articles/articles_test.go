package articles

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"briefly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rows      []models.Article
	seen      map[string]bool
	insertErr error
	listErr   error
	listCalls int
}

func (store *fakeStore) InsertArticle(ctx context.Context, article models.Article) (bool, error) {
	if store.insertErr != nil {
		return false, store.insertErr
	}
	if store.seen == nil {
		store.seen = make(map[string]bool)
	}
	key := article.FeedID + "|" + article.URL
	if store.seen[key] {
		return false, nil
	}
	store.seen[key] = true
	store.rows = append(store.rows, article)
	return true, nil
}

func (store *fakeStore) ListFeedArticles(ctx context.Context, feedID string, limit int) ([]models.Article, error) {
	store.listCalls++
	if store.listErr != nil {
		return nil, store.listErr
	}

	var rows []models.Article
	for _, row := range store.rows {
		if row.FeedID == feedID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].ScrapedAt.Equal(rows[j].ScrapedAt) {
			return rows[i].ScrapedAt.After(rows[j].ScrapedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type fakeCache struct {
	records map[string][]models.CachedArticle
	putErr  error
	readErr error
	puts    int
}

func (cache *fakeCache) PutArticle(ctx context.Context, article models.CachedArticle) error {
	if cache.putErr != nil {
		return cache.putErr
	}
	if cache.records == nil {
		cache.records = make(map[string][]models.CachedArticle)
	}
	cache.puts++
	cache.records[article.FeedID] = append(cache.records[article.FeedID], article)
	return nil
}

func (cache *fakeCache) LatestByFeed(ctx context.Context, feedID string, limit int) ([]models.CachedArticle, error) {
	if cache.readErr != nil {
		return nil, cache.readErr
	}

	records := append([]models.CachedArticle(nil), cache.records[feedID]...)
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ScrapedAt.Equal(records[j].ScrapedAt) {
			return records[i].ScrapedAt.After(records[j].ScrapedAt)
		}
		return records[i].ID > records[j].ID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func testExtracted(url string) *models.ExtractedArticle {
	return &models.ExtractedArticle{
		URL:         url,
		Title:       "Grid Upgrade Approved",
		Summary:     "Regulators signed off on the long planned grid upgrade.",
		Author:      "Ada Lovelace",
		ContentBody: "The full cleaned article body.",
	}
}

func TestSyncWriteThenDuplicate(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	writer := NewSyncWriter(store, cache)
	ctx := context.Background()

	outcome, err := writer.Sync(ctx, "feed-1", "source-1", "Example", testExtracted("https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWritten, outcome)

	// Same URL in the same feed is a duplicate; the cache sees nothing.
	outcome, err = writer.Sync(ctx, "feed-1", "source-1", "Example", testExtracted("https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, outcome)

	assert.Len(t, store.rows, 1)
	assert.Equal(t, 1, cache.puts)

	// The same URL in another feed is its own article.
	outcome, err = writer.Sync(ctx, "feed-2", "source-1", "Example", testExtracted("https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWritten, outcome)
}

func TestSyncPopulatesBothRecords(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	writer := NewSyncWriter(store, cache)

	published := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	extracted := testExtracted("https://example.com/a")
	extracted.PublishedAt = &published

	_, err := writer.Sync(context.Background(), "feed-1", "source-1", "Example News", extracted)
	require.NoError(t, err)

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "feed-1", row.FeedID)
	assert.Equal(t, "source-1", row.SourceID)
	assert.Equal(t, extracted.Title, row.Title)
	assert.Equal(t, extracted.Summary, row.Summary)
	assert.Equal(t, extracted.Author, row.Author)
	require.NotNil(t, row.PublishedAt)
	assert.False(t, row.ScrapedAt.IsZero())

	records := cache.records["feed-1"]
	require.Len(t, records, 1)
	assert.Equal(t, row.ID, records[0].ID)
	assert.Equal(t, "Example News", records[0].SourceName)
	assert.Equal(t, extracted.ContentBody, records[0].ContentBody)
}

func TestSyncCacheFailureIsPartialWrite(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{putErr: errors.New("connection refused")}
	writer := NewSyncWriter(store, cache)

	outcome, err := writer.Sync(context.Background(), "feed-1", "source-1", "Example", testExtracted("https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePartialWrite, outcome)

	// The relational row stays; it is never rolled back.
	assert.Len(t, store.rows, 1)
}

func TestSyncRelationalFailureAborts(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("database locked")}
	cache := &fakeCache{}
	writer := NewSyncWriter(store, cache)

	_, err := writer.Sync(context.Background(), "feed-1", "source-1", "Example", testExtracted("https://example.com/a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 0, cache.puts)
}

func TestListPrefersCache(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	writer := NewSyncWriter(store, cache)
	ctx := context.Background()

	_, err := writer.Sync(ctx, "feed-1", "source-1", "Example", testExtracted("https://example.com/a"))
	require.NoError(t, err)

	views, err := NewReadPath(store, cache).List(ctx, "feed-1", 10)
	require.NoError(t, err)

	require.Len(t, views, 1)
	assert.False(t, views[0].Degraded)
	assert.Equal(t, "The full cleaned article body.", views[0].ContentBody)
	assert.Equal(t, "Example", views[0].SourceName)
	assert.Equal(t, 0, store.listCalls)
}

func TestListFallsBackOnCacheError(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	writer := NewSyncWriter(store, cache)
	ctx := context.Background()

	_, err := writer.Sync(ctx, "feed-1", "source-1", "Example", testExtracted("https://example.com/a"))
	require.NoError(t, err)

	cache.readErr = errors.New("connection refused")

	views, err := NewReadPath(store, cache).List(ctx, "feed-1", 10)
	require.NoError(t, err)

	require.Len(t, views, 1)
	assert.True(t, views[0].Degraded)
	assert.Empty(t, views[0].ContentBody)
	assert.Equal(t, "Grid Upgrade Approved", views[0].Title)
	assert.Equal(t, 1, store.listCalls)
}

func TestListFallsBackOnEmptyCache(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{putErr: errors.New("down during sync")}
	writer := NewSyncWriter(store, cache)
	ctx := context.Background()

	// A partial write leaves the cache empty while the row exists.
	outcome, err := writer.Sync(ctx, "feed-1", "source-1", "Example", testExtracted("https://example.com/a"))
	require.NoError(t, err)
	require.Equal(t, models.OutcomePartialWrite, outcome)

	views, err := NewReadPath(store, cache).List(ctx, "feed-1", 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Degraded)
}

func TestListBothStoresFailing(t *testing.T) {
	store := &fakeStore{listErr: errors.New("database locked")}
	cache := &fakeCache{readErr: errors.New("connection refused")}

	_, err := NewReadPath(store, cache).List(context.Background(), "feed-1", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestListOrderingMatchesAcrossPaths(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	ctx := context.Background()

	// Seed both stores with identical articles at staggered scrape times.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		article := models.Article{
			ID:        id,
			FeedID:    "feed-1",
			URL:       "https://example.com/" + id,
			Title:     "Story " + id,
			Summary:   "A summary that is long enough to be meaningful for tests.",
			ScrapedAt: base.Add(time.Duration(i) * time.Hour),
		}
		store.rows = append(store.rows, article)
		require.NoError(t, cache.PutArticle(ctx, models.CachedArticle{Article: article}))
	}

	path := NewReadPath(store, cache)

	fromCache, err := path.List(ctx, "feed-1", 10)
	require.NoError(t, err)

	cache.readErr = errors.New("connection refused")
	fromFallback, err := path.List(ctx, "feed-1", 10)
	require.NoError(t, err)

	require.Len(t, fromCache, 3)
	require.Len(t, fromFallback, 3)
	for i := range fromCache {
		assert.Equal(t, fromCache[i].ID, fromFallback[i].ID)
	}
	assert.Equal(t, "c", fromCache[0].ID)
}
