package articles

import (
	"context"
	"fmt"
	"time"

	"briefly/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var cacheFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "briefly_cache_fallback_total",
	Help: "Number of feed reads served from the relational fallback",
})

// cacheReadTimeout bounds the primary read; there is no retry, a slow cache
// degrades straight to the fallback.
const cacheReadTimeout = 3 * time.Second

// defaultListLimit is used when the caller passes a non-positive limit.
const defaultListLimit = 20

// Lister serves the relational fallback read.
type Lister interface {
	ListFeedArticles(ctx context.Context, feedID string, limit int) ([]models.Article, error)
}

// CacheReader serves the primary read path.
type CacheReader interface {
	LatestByFeed(ctx context.Context, feedID string, limit int) ([]models.CachedArticle, error)
}

// ReadPath assembles article views, cache first. Fallback views are marked
// Degraded: same articles in the same order, minus the cache-only fields.
type ReadPath struct {
	relational Lister
	cache      CacheReader
}

func NewReadPath(relational Lister, cache CacheReader) *ReadPath {
	return &ReadPath{
		relational: relational,
		cache:      cache,
	}
}

func (path *ReadPath) List(ctx context.Context, feedID string, limit int) ([]models.ArticleView, error) {
	if limit < 1 {
		limit = defaultListLimit
	}

	cacheCtx, cancel := context.WithTimeout(ctx, cacheReadTimeout)
	defer cancel()

	cached, cacheErr := path.cache.LatestByFeed(cacheCtx, feedID, limit)
	if cacheErr == nil && len(cached) > 0 {
		views := make([]models.ArticleView, len(cached))
		for i, record := range cached {
			views[i] = models.ArticleView{
				Article:     record.Article,
				SourceName:  record.SourceName,
				ContentBody: record.ContentBody,
			}
		}
		return views, nil
	}

	// Empty partitions fall through too: records past their TTL leave the
	// cache before the relational rows are pruned.
	cacheFallbacks.Inc()
	if cacheErr != nil {
		log.WithFields(log.Fields{"feed": feedID}).Warnf("Cache read failed, serving degraded views: %v", cacheErr)
	}

	rows, err := path.relational.ListFeedArticles(ctx, feedID, limit)
	if err != nil {
		if cacheErr != nil {
			return nil, fmt.Errorf("%w: cache: %v; relational: %v", ErrStoreUnavailable, cacheErr, err)
		}
		return nil, fmt.Errorf("%w: relational: %v", ErrStoreUnavailable, err)
	}

	views := make([]models.ArticleView, len(rows))
	for i, row := range rows {
		views[i] = models.ArticleView{
			Article:  row,
			Degraded: true,
		}
	}
	return views, nil
}
