package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"briefly/models"

	"github.com/google/uuid"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

// maxErrorLen caps stored validation errors so a huge response body can not
// bloat the sources table.
const maxErrorLen = 500

type Writer struct {
	db *sql.DB
}

func NewWriter(database string) (*Writer, error) {
	db, err := writeConnection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open write pool: %w", err)
	}

	return &Writer{db: db}, nil
}

func (writer *Writer) Close() error {
	return writer.db.Close()
}

// UpsertSource inserts a source keyed by its normalized URL or refreshes the
// existing row. The canonical row is returned, so on conflict the caller
// gets the original id and created_at back.
func (writer *Writer) UpsertSource(ctx context.Context, src models.Source) (*models.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	if src.Topics == nil {
		src.Topics = []string{}
	}
	topics, err := json.Marshal(src.Topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}

	log.WithFields(log.Fields{
		"url":  src.NormalizedURL,
		"kind": src.FeedKind,
	}).Info("Upserting source")

	_, err = writer.db.ExecContext(ctx, `
		INSERT INTO sources (id, url, normalized_url, display_name, feed_kind, feed_url, topics, status, last_validated_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_url) DO UPDATE SET
			url = excluded.url,
			display_name = iif(excluded.display_name != '', excluded.display_name, sources.display_name),
			feed_kind = excluded.feed_kind,
			feed_url = excluded.feed_url,
			topics = iif(excluded.topics != '[]', excluded.topics, sources.topics),
			status = excluded.status,
			last_validated_at = excluded.last_validated_at,
			last_error = excluded.last_error`,
		src.ID, src.URL, src.NormalizedURL, src.DisplayName,
		string(src.FeedKind), src.FeedURL, string(topics), string(src.Status),
		src.LastValidatedAt.Unix(), truncateError(src.LastError), src.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert error: %w", err)
	}

	return getSourceByNormalizedURL(ctx, writer.db, src.NormalizedURL)
}

// MarkSourceInvalid flags a source that failed validation, keeping the row
// around for operator review.
func (writer *Writer) MarkSourceInvalid(ctx context.Context, sourceID string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("sources").Set(
		ub.Assign("status", string(models.SourceInvalid)),
		ub.Assign("last_error", truncateError(reason)),
	).Where(ub.Equal("id", sourceID))

	query, args := ub.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	if _, err := writer.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}

	return nil
}

// CreateFeed persists a new feed row.
func (writer *Writer) CreateFeed(ctx context.Context, feed models.Feed) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"feed": feed.ID,
		"name": feed.Name,
	}).Info("Creating feed")

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("feeds").Cols("id", "name", "query", "refresh_interval_minutes", "created_at")
	ib.Values(feed.ID, feed.Name, feed.Query, feed.RefreshIntervalMinutes, feed.CreatedAt.Unix())

	query, args := ib.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	if _, err := writer.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// AddFeedSource links a source to a feed, appending it after the existing
// links. Linking the same source twice is a no-op.
func (writer *Writer) AddFeedSource(ctx context.Context, feedID string, sourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := writer.db.ExecContext(ctx, `
		INSERT INTO feed_sources (feed_id, source_id, position, added_at)
		SELECT ?, ?, COALESCE(MAX(position) + 1, 0), ?
		FROM feed_sources WHERE feed_id = ?
		ON CONFLICT (feed_id, source_id) DO NOTHING`,
		feedID, sourceID, time.Now().Unix(), feedID,
	)
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// DeleteFeed removes a feed; linked rows and articles cascade.
func (writer *Writer) DeleteFeed(ctx context.Context, feedID string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"feed": feedID,
	}).Info("Deleting feed")

	db := sqlbuilder.NewDeleteBuilder()
	query, args := db.DeleteFrom("feeds").Where(db.Equal("id", feedID)).BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	if _, err := writer.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}

	return nil
}

// SetFeedRefreshed stamps the feed after a refresh batch completes.
func (writer *Writer) SetFeedRefreshed(ctx context.Context, feedID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("feeds").Set(ub.Assign("last_refreshed_at", at.Unix())).Where(ub.Equal("id", feedID))

	query, args := ub.BuildWithFlavor(sqlbuilder.Flavor(sqlbuilder.SQLite))

	if _, err := writer.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}

	return nil
}

// InsertArticle writes the compact record and reports whether the row was
// actually inserted. A false return means the feed already had this URL;
// this is the dedup gate for the dual-store sync.
func (writer *Writer) InsertArticle(ctx context.Context, article models.Article) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var publishedAt sql.NullInt64
	if article.PublishedAt != nil {
		publishedAt = sql.NullInt64{Int64: article.PublishedAt.Unix(), Valid: true}
	}

	res, err := writer.db.ExecContext(ctx, `
		INSERT INTO articles (id, feed_id, source_id, url, title, summary, author, image_url, published_at, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_id, url) DO NOTHING`,
		article.ID, article.FeedID, article.SourceID, article.URL,
		article.Title, article.Summary, article.Author, article.ImageURL,
		publishedAt, article.ScrapedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected > 0, nil
}

// Ping verifies the write pool is usable.
func (writer *Writer) Ping(ctx context.Context) error {
	return writer.db.PingContext(ctx)
}

func truncateError(reason string) string {
	if runes := []rune(reason); len(runes) > maxErrorLen {
		return string(runes[:maxErrorLen])
	}
	return reason
}
