// Package articles implements the dual-store article paths: writes go
// relational-first with the cache trailing, reads go cache-first with a
// relational fallback. The relational store is the source of truth; the
// cache may lag behind or miss entries, never the other way around.
package articles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"briefly/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// ErrStoreUnavailable wraps failures of the backing stores: the relational
// store on writes, both stores on reads.
var ErrStoreUnavailable = errors.New("article store unavailable")

var articlesSynced = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "briefly_articles_synced_total",
	Help: "Number of article sync attempts by outcome",
}, []string{"outcome"})

// Inserter is the relational dedup gate.
type Inserter interface {
	InsertArticle(ctx context.Context, article models.Article) (bool, error)
}

// CacheWriter stores full records in the read cache.
type CacheWriter interface {
	PutArticle(ctx context.Context, article models.CachedArticle) error
}

// SyncWriter writes one article to both stores. The relational write comes
// first and decides everything: a conflict means duplicate and the cache is
// left untouched, a failure aborts, and a cache failure afterwards degrades
// to a partial write instead of rolling back.
type SyncWriter struct {
	relational Inserter
	cache      CacheWriter
}

func NewSyncWriter(relational Inserter, cache CacheWriter) *SyncWriter {
	return &SyncWriter{
		relational: relational,
		cache:      cache,
	}
}

func (writer *SyncWriter) Sync(ctx context.Context, feedID string, sourceID string, sourceName string, extracted *models.ExtractedArticle) (models.SyncOutcome, error) {
	article := models.Article{
		ID:          uuid.New().String(),
		FeedID:      feedID,
		SourceID:    sourceID,
		URL:         extracted.URL,
		Title:       extracted.Title,
		Summary:     extracted.Summary,
		Author:      extracted.Author,
		ImageURL:    extracted.ImageURL,
		PublishedAt: extracted.PublishedAt,
		ScrapedAt:   time.Now().UTC(),
	}

	inserted, err := writer.relational.InsertArticle(ctx, article)
	if err != nil {
		return "", fmt.Errorf("%w: relational write: %v", ErrStoreUnavailable, err)
	}
	if !inserted {
		articlesSynced.WithLabelValues(string(models.OutcomeDuplicate)).Inc()
		return models.OutcomeDuplicate, nil
	}

	cached := models.CachedArticle{
		Article:     article,
		SourceName:  sourceName,
		ContentBody: extracted.ContentBody,
	}
	if err := writer.cache.PutArticle(ctx, cached); err != nil {
		articlesSynced.WithLabelValues(string(models.OutcomePartialWrite)).Inc()
		log.WithFields(log.Fields{
			"feed":    feedID,
			"article": article.ID,
			"url":     article.URL,
		}).Warnf("Cache write failed, article is relational-only until re-cached: %v", err)
		return models.OutcomePartialWrite, nil
	}

	articlesSynced.WithLabelValues(string(models.OutcomeWritten)).Inc()
	return models.OutcomeWritten, nil
}
