package models

import "time"

// FeedKind tells the refresh pipeline how articles are sampled from a source.
type FeedKind string

const (
	KindSyndication FeedKind = "syndication"
	KindPageScrape  FeedKind = "page_scrape"
)

// SourceStatus marks whether a source survived its last validation.
type SourceStatus string

const (
	SourceActive  SourceStatus = "active"
	SourceInvalid SourceStatus = "invalid"
)

// Source is a registered news site, persisted once per normalized URL.
type Source struct {
	ID              string       `json:"id"`
	URL             string       `json:"url"`
	NormalizedURL   string       `json:"normalizedUrl"`
	DisplayName     string       `json:"displayName"`
	FeedKind        FeedKind     `json:"feedKind"`
	FeedURL         string       `json:"feedUrl,omitempty"`
	Topics          []string     `json:"topics,omitempty"`
	Status          SourceStatus `json:"status"`
	LastValidatedAt time.Time    `json:"lastValidatedAt"`
	LastError       string       `json:"lastError,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// SourceDescriptor is the result of validating or discovering a source.
// SampleCount is the number of articles successfully extracted during
// discovery and doubles as a crude relevance signal.
type SourceDescriptor struct {
	Source
	SampleCount int `json:"sampleCount"`
}

// Feed groups sources under a topic and owns the synced articles.
type Feed struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Query                  string     `json:"query,omitempty"`
	RefreshIntervalMinutes int        `json:"refreshIntervalMinutes"`
	CreatedAt              time.Time  `json:"createdAt"`
	LastRefreshedAt        *time.Time `json:"lastRefreshedAt,omitempty"`
}

// FeedSource links a source into a feed, ordered by Position.
type FeedSource struct {
	FeedID   string    `json:"feedId"`
	SourceID string    `json:"sourceId"`
	Position int       `json:"position"`
	AddedAt  time.Time `json:"addedAt"`
}

// Article is the compact relational record. The content body lives only in
// the read cache; the row here is the dedup gate and the fallback source.
type Article struct {
	ID          string     `json:"id"`
	FeedID      string     `json:"feedId"`
	SourceID    string     `json:"sourceId"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	Author      string     `json:"author,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	ScrapedAt   time.Time  `json:"scrapedAt"`
}

// CachedArticle is the full denormalized record stored in the read cache.
// Every field of the compact Article is present here too; the cache may
// lag behind or miss entries, never the other way around.
type CachedArticle struct {
	Article
	SourceName  string `json:"sourceName,omitempty"`
	ContentBody string `json:"contentBody,omitempty"`
}

// ArticleView is what the read path returns. Degraded is set when the view
// was assembled from the relational fallback and lacks cache-only fields.
type ArticleView struct {
	Article
	SourceName  string `json:"sourceName,omitempty"`
	ContentBody string `json:"contentBody,omitempty"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// ExtractedArticle is the scraper output after schema validation.
type ExtractedArticle struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	Author      string     `json:"author,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	ContentBody string     `json:"contentBody,omitempty"`
}

// SyncOutcome classifies a dual-store write.
type SyncOutcome string

const (
	// OutcomeWritten means both stores hold the article.
	OutcomeWritten SyncOutcome = "written"
	// OutcomeDuplicate means the feed already had this URL; nothing changed.
	OutcomeDuplicate SyncOutcome = "duplicate"
	// OutcomePartialWrite means the relational row exists but the cache
	// write failed. The row is never rolled back.
	OutcomePartialWrite SyncOutcome = "partial_write"
)

// RefreshSummary aggregates per-source outcomes of a feed refresh.
// A refresh with failed sources is still a successful refresh.
type RefreshSummary struct {
	FeedID           string        `json:"feedId"`
	SourcesProcessed int           `json:"sourcesProcessed"`
	SourcesFailed    int           `json:"sourcesFailed"`
	ArticlesWritten  int           `json:"articlesWritten"`
	Duplicates       int           `json:"duplicates"`
	PartialWrites    int           `json:"partialWrites"`
	Skipped          []SourceError `json:"skipped,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// SourceError records why a source was skipped during a batch operation.
type SourceError struct {
	SourceID string `json:"sourceId,omitempty"`
	URL      string `json:"url"`
	Reason   string `json:"reason"`
}
