package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"briefly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Writer, *Reader) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "briefly.db")
	require.NoError(t, Migrate(path))

	writer, err := NewWriter(path)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	reader, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	return writer, reader
}

func testSource(url string) models.Source {
	return models.Source{
		URL:             url,
		NormalizedURL:   url,
		DisplayName:     "Example",
		FeedKind:        models.KindPageScrape,
		Status:          models.SourceActive,
		Topics:          []string{"tech"},
		LastValidatedAt: time.Now().UTC(),
	}
}

func testFeed(id string) models.Feed {
	return models.Feed{
		ID:                     id,
		Name:                   "Test feed",
		Query:                  "climate tech news",
		RefreshIntervalMinutes: 60,
		CreatedAt:              time.Now().UTC(),
	}
}

func testArticle(feedID string, url string, scrapedAt time.Time) models.Article {
	return models.Article{
		ID:        url + "-id",
		FeedID:    feedID,
		URL:       url,
		Title:     "A headline",
		Summary:   "A summary of the article body that is long enough to matter.",
		ScrapedAt: scrapedAt,
	}
}

func TestUpsertSourceIsIdempotent(t *testing.T) {
	writer, _ := newTestStore(t)
	ctx := context.Background()

	first, err := writer.UpsertSource(ctx, testSource("https://example.com"))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// Second validation of the same normalized URL must not create a new row
	// and must keep the original id.
	update := testSource("https://example.com")
	update.FeedKind = models.KindSyndication
	update.FeedURL = "https://example.com/feed"
	update.LastValidatedAt = first.LastValidatedAt.Add(time.Hour)

	second, err := writer.UpsertSource(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.KindSyndication, second.FeedKind)
	assert.Equal(t, "https://example.com/feed", second.FeedURL)
	assert.True(t, second.LastValidatedAt.After(first.LastValidatedAt))
}

func TestUpsertSourceKeepsDisplayName(t *testing.T) {
	writer, _ := newTestStore(t)
	ctx := context.Background()

	src := testSource("https://example.com")
	src.DisplayName = "Example News"
	_, err := writer.UpsertSource(ctx, src)
	require.NoError(t, err)

	update := testSource("https://example.com")
	update.DisplayName = ""

	got, err := writer.UpsertSource(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, "Example News", got.DisplayName)
}

func TestMarkSourceInvalid(t *testing.T) {
	writer, reader := newTestStore(t)
	ctx := context.Background()

	src, err := writer.UpsertSource(ctx, testSource("https://example.com"))
	require.NoError(t, err)

	require.NoError(t, writer.MarkSourceInvalid(ctx, src.ID, "no extractable articles"))

	got, err := reader.GetSourceByNormalizedURL(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, models.SourceInvalid, got.Status)
	assert.Equal(t, "no extractable articles", got.LastError)
	// The URL is preserved as-is for operator review.
	assert.Equal(t, "https://example.com", got.URL)
}

func TestInsertArticleDeduplicatesPerFeed(t *testing.T) {
	writer, reader := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, writer.CreateFeed(ctx, testFeed("feed-1")))
	require.NoError(t, writer.CreateFeed(ctx, testFeed("feed-2")))

	now := time.Now().UTC()

	inserted, err := writer.InsertArticle(ctx, testArticle("feed-1", "https://example.com/a", now))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same feed and URL: the gate closes.
	inserted, err = writer.InsertArticle(ctx, testArticle("feed-1", "https://example.com/a", now))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same URL under another feed is a distinct record.
	other := testArticle("feed-2", "https://example.com/a", now)
	other.ID = "other-id"
	inserted, err = writer.InsertArticle(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := reader.CountFeedArticles(ctx, "feed-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListFeedArticlesOrdersMostRecentFirst(t *testing.T) {
	writer, reader := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, writer.CreateFeed(ctx, testFeed("feed-1")))

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		_, err := writer.InsertArticle(ctx, testArticle("feed-1", url, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	articles, err := reader.ListFeedArticles(ctx, "feed-1", 10)
	require.NoError(t, err)
	require.Len(t, articles, 3)

	assert.Equal(t, "https://example.com/c", articles[0].URL)
	assert.Equal(t, "https://example.com/b", articles[1].URL)
	assert.Equal(t, "https://example.com/a", articles[2].URL)

	limited, err := reader.ListFeedArticles(ctx, "feed-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteFeedCascades(t *testing.T) {
	writer, reader := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, writer.CreateFeed(ctx, testFeed("feed-1")))
	src, err := writer.UpsertSource(ctx, testSource("https://example.com"))
	require.NoError(t, err)
	require.NoError(t, writer.AddFeedSource(ctx, "feed-1", src.ID))

	_, err = writer.InsertArticle(ctx, testArticle("feed-1", "https://example.com/a", time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, writer.DeleteFeed(ctx, "feed-1"))

	_, err = reader.GetFeed(ctx, "feed-1")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := reader.CountFeedArticles(ctx, "feed-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	linked, err := reader.ListFeedSources(ctx, "feed-1")
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func TestAddFeedSourceAppendsPositions(t *testing.T) {
	writer, reader := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, writer.CreateFeed(ctx, testFeed("feed-1")))

	first, err := writer.UpsertSource(ctx, testSource("https://first.example"))
	require.NoError(t, err)
	second, err := writer.UpsertSource(ctx, testSource("https://second.example"))
	require.NoError(t, err)

	require.NoError(t, writer.AddFeedSource(ctx, "feed-1", first.ID))
	require.NoError(t, writer.AddFeedSource(ctx, "feed-1", second.ID))
	// Re-linking is a no-op.
	require.NoError(t, writer.AddFeedSource(ctx, "feed-1", first.ID))

	sources, err := reader.ListFeedSources(ctx, "feed-1")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, first.ID, sources[0].ID)
	assert.Equal(t, second.ID, sources[1].ID)
}

func TestSetFeedRefreshed(t *testing.T) {
	writer, reader := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, writer.CreateFeed(ctx, testFeed("feed-1")))

	stamp := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, writer.SetFeedRefreshed(ctx, "feed-1", stamp))

	feed, err := reader.GetFeed(ctx, "feed-1")
	require.NoError(t, err)
	require.NotNil(t, feed.LastRefreshedAt)
	assert.Equal(t, stamp.Unix(), feed.LastRefreshedAt.Unix())
}

func TestTidyRemovesOldArticles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "briefly.db")
	require.NoError(t, Migrate(path))

	writer, err := NewWriter(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, writer.CreateFeed(ctx, testFeed("feed-1")))

	_, err = writer.InsertArticle(ctx, testArticle("feed-1", "https://example.com/old", time.Now().UTC().Add(-120*24*time.Hour)))
	require.NoError(t, err)
	_, err = writer.InsertArticle(ctx, testArticle("feed-1", "https://example.com/new", time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	removed, err := Tidy(path, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	articles, err := reader.ListFeedArticles(ctx, "feed-1", 10)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "https://example.com/new", articles[0].URL)
}
