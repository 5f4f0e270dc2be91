// Package cache is the denormalized read side of the article store. Each
// feed owns one partition:
//
//	FEED#<feed_id>                     sorted set of sort keys, scored by scrape time
//	FEED#<feed_id>#ARTICLE#<ts>#<id>   full JSON record with TTL
//
// Records expire on their own; index entries pointing at expired records
// are pruned lazily on read. A missing partition is never an error: the
// relational store always holds at least the compact form of every article.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"briefly/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Addr     string
	Password string
	DB       int

	// TTL bounds the lifetime of full records, 30 days when unset.
	TTL time.Duration

	// OpTimeout bounds every cache operation, 2s when unset.
	OpTimeout time.Duration
}

type Store struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

func NewStore(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	opTimeout := config.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}

	return &Store{client: client, ttl: ttl, opTimeout: opTimeout}, nil
}

func (store *Store) Close() error {
	return store.client.Close()
}

// Ping verifies the cache is reachable.
func (store *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, store.opTimeout)
	defer cancel()

	return store.client.Ping(ctx).Err()
}

// PutArticle writes the full record into the feed partition.
func (store *Store) PutArticle(ctx context.Context, article models.CachedArticle) error {
	ctx, cancel := context.WithTimeout(ctx, store.opTimeout)
	defer cancel()

	payload, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}

	sort := sortKey(article.ScrapedAt, article.ID)

	pipe := store.client.TxPipeline()
	pipe.Set(ctx, recordKey(article.FeedID, sort), payload, store.ttl)
	pipe.ZAdd(ctx, feedKey(article.FeedID), redis.Z{
		Score:  float64(article.ScrapedAt.Unix()),
		Member: sort,
	})
	// The partition index must not outlive its newest record.
	pipe.Expire(ctx, feedKey(article.FeedID), store.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}

	return nil
}

// LatestByFeed returns up to limit full records, most recently scraped
// first. Index entries whose record has expired are skipped and pruned.
func (store *Store) LatestByFeed(ctx context.Context, feedID string, limit int) ([]models.CachedArticle, error) {
	ctx, cancel := context.WithTimeout(ctx, store.opTimeout)
	defer cancel()

	sorts, err := store.client.ZRevRange(ctx, feedKey(feedID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache read: %w", err)
	}
	if len(sorts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(sorts))
	for i, sort := range sorts {
		keys[i] = recordKey(feedID, sort)
	}

	values, err := store.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache read: %w", err)
	}

	articles := make([]models.CachedArticle, 0, len(values))
	var stale []interface{}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, sorts[i])
			continue
		}

		var article models.CachedArticle
		if err := json.Unmarshal([]byte(raw), &article); err != nil {
			log.WithFields(log.Fields{
				"key": keys[i],
			}).Warn("Dropping unreadable cache record")
			stale = append(stale, sorts[i])
			continue
		}
		articles = append(articles, article)
	}

	if len(stale) > 0 {
		if err := store.client.ZRem(ctx, feedKey(feedID), stale...).Err(); err != nil {
			log.Warnf("Failed to prune %d stale index entries: %v", len(stale), err)
		}
	}

	return articles, nil
}

// DeleteFeed drops the whole partition, records included.
func (store *Store) DeleteFeed(ctx context.Context, feedID string) error {
	ctx, cancel := context.WithTimeout(ctx, store.opTimeout)
	defer cancel()

	sorts, err := store.client.ZRange(ctx, feedKey(feedID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("cache read: %w", err)
	}

	keys := make([]string, 0, len(sorts)+1)
	for _, sort := range sorts {
		keys = append(keys, recordKey(feedID, sort))
	}
	keys = append(keys, feedKey(feedID))

	if err := store.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}

	return nil
}

// PruneBefore drops index entries scraped before the cutoff. The records
// themselves are left to their TTL.
func (store *Store) PruneBefore(ctx context.Context, feedID string, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, store.opTimeout)
	defer cancel()

	removed, err := store.client.ZRemRangeByScore(ctx, feedKey(feedID), "-inf", fmt.Sprintf("%d", cutoff.Unix())).Result()
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}

	return removed, nil
}

func feedKey(feedID string) string {
	return "FEED#" + feedID
}

// sortKey orders articles chronologically, lexically and by score alike.
// RFC3339 UTC timestamps sort the same way as their instants.
func sortKey(scrapedAt time.Time, articleID string) string {
	return "ARTICLE#" + scrapedAt.UTC().Format(time.RFC3339) + "#" + articleID
}

func recordKey(feedID string, sort string) string {
	return feedKey(feedID) + "#" + sort
}
