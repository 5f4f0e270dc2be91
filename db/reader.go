package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"briefly/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// ErrNotFound is returned when a feed or source does not exist.
var ErrNotFound = errors.New("not found")

var sourceColumns = []string{
	"id", "url", "normalized_url", "display_name", "feed_kind", "feed_url",
	"topics", "status", "last_validated_at", "last_error", "created_at",
}

var articleColumns = []string{
	"id", "feed_id", "source_id", "url", "title", "summary", "author",
	"image_url", "published_at", "scraped_at",
}

type Reader struct {
	db *sql.DB
}

func NewReader(database string) (*Reader, error) {
	db, err := readConnection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}

	return &Reader{db: db}, nil
}

func (reader *Reader) Close() error {
	return reader.db.Close()
}

// GetFeed returns the feed with the given id, or ErrNotFound.
func (reader *Reader) GetFeed(ctx context.Context, feedID string) (*models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "name", "query", "refresh_interval_minutes", "created_at", "last_refreshed_at").From("feeds")
	sb.Where(sb.Equal("id", feedID))

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	feed, err := scanFeed(reader.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feed %s: %w", feedID, ErrNotFound)
		}
		return nil, fmt.Errorf("query error: %w", err)
	}

	return feed, nil
}

// ListFeeds returns all feeds, newest first.
func (reader *Reader) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "name", "query", "refresh_interval_minutes", "created_at", "last_refreshed_at").From("feeds")
	sb.OrderBy("created_at DESC", "id DESC")

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var feeds []models.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	return feeds, rows.Err()
}

// GetSourceByNormalizedURL returns the source registered under the given
// normalized URL, or ErrNotFound.
func (reader *Reader) GetSourceByNormalizedURL(ctx context.Context, normalized string) (*models.Source, error) {
	return getSourceByNormalizedURL(ctx, reader.db, normalized)
}

// ListFeedSources returns the sources linked to a feed in link order.
func (reader *Reader) ListFeedSources(ctx context.Context, feedID string) ([]models.Source, error) {
	sb := sqlbuilder.NewSelectBuilder()
	cols := make([]string, len(sourceColumns))
	for i, col := range sourceColumns {
		cols[i] = "sources." + col
	}
	sb.Select(cols...).From("feed_sources")
	sb.Join("sources", "sources.id = feed_sources.source_id")
	sb.Where(sb.Equal("feed_sources.feed_id", feedID))
	sb.OrderBy("feed_sources.position").Asc()

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		sources = append(sources, *src)
	}

	return sources, rows.Err()
}

// ListFeedArticles returns the compact article records for a feed, most
// recently scraped first. This is the relational fallback of the read path
// and must order exactly like the cache partition.
func (reader *Reader) ListFeedArticles(ctx context.Context, feedID string, limit int) ([]models.Article, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(articleColumns...).From("articles")
	sb.Where(sb.Equal("feed_id", feedID))
	sb.OrderBy("scraped_at DESC", "id DESC")
	sb.Limit(limit)

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	rows, err := reader.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		articles = append(articles, *article)
	}

	return articles, rows.Err()
}

// CountFeedArticles returns the number of articles synced for a feed.
func (reader *Reader) CountFeedArticles(ctx context.Context, feedID string) (int, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("COUNT(*)").From("articles")
	sb.Where(sb.Equal("feed_id", feedID))

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	var count int
	if err := reader.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}

	return count, nil
}

// Ping verifies the read pool is usable.
func (reader *Reader) Ping(ctx context.Context) error {
	return reader.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func getSourceByNormalizedURL(ctx context.Context, db *sql.DB, normalized string) (*models.Source, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(sourceColumns...).From("sources")
	sb.Where(sb.Equal("normalized_url", normalized))

	query, args := sb.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	src, err := scanSource(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source %s: %w", normalized, ErrNotFound)
		}
		return nil, fmt.Errorf("query error: %w", err)
	}

	return src, nil
}

func scanSource(row rowScanner) (*models.Source, error) {
	var src models.Source
	var topics string
	var lastValidatedAt, createdAt int64

	if err := row.Scan(
		&src.ID, &src.URL, &src.NormalizedURL, &src.DisplayName,
		(*string)(&src.FeedKind), &src.FeedURL, &topics,
		(*string)(&src.Status), &lastValidatedAt, &src.LastError, &createdAt,
	); err != nil {
		return nil, err
	}

	if topics != "" {
		_ = json.Unmarshal([]byte(topics), &src.Topics)
	}
	src.LastValidatedAt = time.Unix(lastValidatedAt, 0).UTC()
	src.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &src, nil
}

func scanFeed(row rowScanner) (*models.Feed, error) {
	var feed models.Feed
	var createdAt int64
	var lastRefreshedAt sql.NullInt64

	if err := row.Scan(
		&feed.ID, &feed.Name, &feed.Query, &feed.RefreshIntervalMinutes,
		&createdAt, &lastRefreshedAt,
	); err != nil {
		return nil, err
	}

	feed.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastRefreshedAt.Valid {
		refreshed := time.Unix(lastRefreshedAt.Int64, 0).UTC()
		feed.LastRefreshedAt = &refreshed
	}

	return &feed, nil
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var article models.Article
	var publishedAt sql.NullInt64
	var scrapedAt int64

	if err := row.Scan(
		&article.ID, &article.FeedID, &article.SourceID, &article.URL,
		&article.Title, &article.Summary, &article.Author, &article.ImageURL,
		&publishedAt, &scrapedAt,
	); err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		published := time.Unix(publishedAt.Int64, 0).UTC()
		article.PublishedAt = &published
	}
	article.ScrapedAt = time.Unix(scrapedAt, 0).UTC()

	return &article, nil
}
