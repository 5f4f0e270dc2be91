// Package feeds orchestrates the briefing lifecycle: creating feeds from
// queries and explicit URLs, linking sources, refreshing articles through
// the dual-store writer and serving the read path.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"briefly/db"
	"briefly/models"
	"briefly/scraper"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// ErrValidation marks requests rejected before touching any store.
var ErrValidation = errors.New("invalid request")

var (
	feedRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefly_feed_refreshes_total",
		Help: "Number of completed feed refreshes",
	})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "briefly_refresh_duration_seconds",
		Help:    "Wall time of feed refreshes",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // Start at 100ms, double each bucket, 10 buckets
	})
)

const (
	defaultRefreshMinutes = 60
	minRefreshMinutes     = 5
	maxRefreshMinutes     = 1440
	maxQueryChars         = 500
	defaultTargetSources  = 5
)

// SourceValidator admits a URL as a source.
type SourceValidator interface {
	Validate(ctx context.Context, rawURL string) (*models.SourceDescriptor, error)
}

// SourceDiscoverer finds sources for a topic.
type SourceDiscoverer interface {
	Discover(ctx context.Context, topic string, targetCount int) ([]models.SourceDescriptor, error)
}

// Extractor turns article URLs into records and lists candidate links on
// page-scrape sources.
type Extractor interface {
	Extract(ctx context.Context, url string) (*models.ExtractedArticle, error)
	DiscoverArticleLinks(ctx context.Context, pageURL string, limit int) ([]string, error)
}

// Syncer writes one article through the dual-store path.
type Syncer interface {
	Sync(ctx context.Context, feedID string, sourceID string, sourceName string, extracted *models.ExtractedArticle) (models.SyncOutcome, error)
}

// ViewLister serves the article read path.
type ViewLister interface {
	List(ctx context.Context, feedID string, limit int) ([]models.ArticleView, error)
}

// PartitionDropper removes a feed's cache partition.
type PartitionDropper interface {
	DeleteFeed(ctx context.Context, feedID string) error
}

type ServiceConfig struct {
	Writer    *db.Writer
	Reader    *db.Reader
	Validator SourceValidator
	Discovery SourceDiscoverer
	Extractor Extractor
	Syncer    Syncer
	Views     ViewLister
	Cache     PartitionDropper

	// ArticlesPerSource caps extractions per source per refresh.
	ArticlesPerSource int
	// Concurrency bounds parallel per-source refresh units.
	Concurrency int
}

type Service struct {
	config ServiceConfig
	parser *gofeed.Parser
}

func NewService(config ServiceConfig) *Service {
	if config.ArticlesPerSource <= 0 {
		config.ArticlesPerSource = 5
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}

	return &Service{
		config: config,
		parser: gofeed.NewParser(),
	}
}

type CreateRequest struct {
	Name                   string   `json:"name"`
	Query                  string   `json:"query,omitempty"`
	URLs                   []string `json:"urls,omitempty"`
	TargetSources          int      `json:"targetSources,omitempty"`
	RefreshIntervalMinutes int      `json:"refreshIntervalMinutes,omitempty"`
}

type CreateResult struct {
	Feed    models.Feed               `json:"feed"`
	Sources []models.SourceDescriptor `json:"sources"`
	Skipped []models.SourceError      `json:"skipped,omitempty"`
}

// Create persists the feed, then populates it from the explicit URLs and,
// when a query is present, from discovery. Source failures are reported in
// the result, never fatal: a feed with zero sources is a valid feed.
func (service *Service) Create(ctx context.Context, request CreateRequest) (*CreateResult, error) {
	name := strings.TrimSpace(request.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: feed name is required", ErrValidation)
	}

	query := strings.TrimSpace(request.Query)
	if runes := []rune(query); len(runes) > maxQueryChars {
		query = string(runes[:maxQueryChars])
	}

	feed := models.Feed{
		ID:                     uuid.New().String(),
		Name:                   name,
		Query:                  query,
		RefreshIntervalMinutes: clampInterval(request.RefreshIntervalMinutes),
		CreatedAt:              time.Now().UTC(),
	}

	if err := service.config.Writer.CreateFeed(ctx, feed); err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}

	result := &CreateResult{Feed: feed, Sources: []models.SourceDescriptor{}}

	for _, rawURL := range request.URLs {
		descriptor, err := service.config.Validator.Validate(ctx, rawURL)
		if err != nil {
			result.Skipped = append(result.Skipped, models.SourceError{URL: rawURL, Reason: err.Error()})
			continue
		}
		service.link(ctx, feed.ID, descriptor, result)
	}

	if query != "" {
		target := request.TargetSources
		if target <= 0 {
			target = defaultTargetSources
		}

		discovered, err := service.config.Discovery.Discover(ctx, query, target)
		if err != nil {
			log.WithFields(log.Fields{"feed": feed.ID, "query": query}).Warnf("Discovery failed during feed creation: %v", err)
		}
		for index := range discovered {
			service.link(ctx, feed.ID, &discovered[index], result)
		}
	}

	log.WithFields(log.Fields{
		"feed":    feed.ID,
		"name":    feed.Name,
		"sources": len(result.Sources),
		"skipped": len(result.Skipped),
	}).Info("Created feed")

	return result, nil
}

// link attaches a source to the feed, deduping within this create call.
func (service *Service) link(ctx context.Context, feedID string, descriptor *models.SourceDescriptor, result *CreateResult) {
	already := lo.SomeBy(result.Sources, func(existing models.SourceDescriptor) bool {
		return existing.ID == descriptor.ID
	})
	if already {
		return
	}

	if err := service.config.Writer.AddFeedSource(ctx, feedID, descriptor.ID); err != nil {
		result.Skipped = append(result.Skipped, models.SourceError{
			SourceID: descriptor.ID,
			URL:      descriptor.URL,
			Reason:   err.Error(),
		})
		return
	}

	result.Sources = append(result.Sources, *descriptor)
}

// AddSource validates the URL and appends it to the feed's source list.
func (service *Service) AddSource(ctx context.Context, feedID string, rawURL string) (*models.SourceDescriptor, error) {
	if _, err := service.config.Reader.GetFeed(ctx, feedID); err != nil {
		return nil, err
	}

	descriptor, err := service.config.Validator.Validate(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if err := service.config.Writer.AddFeedSource(ctx, feedID, descriptor.ID); err != nil {
		return nil, fmt.Errorf("link source: %w", err)
	}

	return descriptor, nil
}

// Get returns one feed.
func (service *Service) Get(ctx context.Context, feedID string) (*models.Feed, error) {
	return service.config.Reader.GetFeed(ctx, feedID)
}

// List returns all feeds.
func (service *Service) List(ctx context.Context) ([]models.Feed, error) {
	return service.config.Reader.ListFeeds(ctx)
}

// Articles serves the read path after a feed existence check.
func (service *Service) Articles(ctx context.Context, feedID string, limit int) ([]models.ArticleView, error) {
	if _, err := service.config.Reader.GetFeed(ctx, feedID); err != nil {
		return nil, err
	}
	return service.config.Views.List(ctx, feedID, limit)
}

// Delete removes the feed everywhere. The relational cascade takes sources
// links and article rows with it; cache records left behind by a partition
// delete failure age out on TTL.
func (service *Service) Delete(ctx context.Context, feedID string) error {
	if _, err := service.config.Reader.GetFeed(ctx, feedID); err != nil {
		return err
	}

	if err := service.config.Writer.DeleteFeed(ctx, feedID); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}

	if err := service.config.Cache.DeleteFeed(ctx, feedID); err != nil {
		log.WithFields(log.Fields{"feed": feedID}).Warnf("Cache partition not removed: %v", err)
	}

	return nil
}

type sourceOutcome struct {
	written    int
	duplicates int
	partials   int
	err        error
}

// Refresh scrapes every active linked source with bounded parallelism and
// syncs the survivors. Per-source and per-article failures are isolated; a
// refresh with failed sources is still a completed refresh.
func (service *Service) Refresh(ctx context.Context, feedID string) (*models.RefreshSummary, error) {
	start := time.Now()

	feed, err := service.config.Reader.GetFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}

	linked, err := service.config.Reader.ListFeedSources(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("list feed sources: %w", err)
	}

	active := lo.Filter(linked, func(source models.Source, _ int) bool {
		return source.Status == models.SourceActive
	})

	outcomes := make([]sourceOutcome, len(active))
	runIndexed(ctx, service.config.Concurrency, len(active), func(index int) {
		outcomes[index] = service.refreshSource(ctx, feed, active[index])
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &models.RefreshSummary{
		FeedID:           feedID,
		SourcesProcessed: len(active),
	}
	for index, outcome := range outcomes {
		summary.ArticlesWritten += outcome.written
		summary.Duplicates += outcome.duplicates
		summary.PartialWrites += outcome.partials

		if outcome.err != nil {
			summary.SourcesFailed++
			summary.Skipped = append(summary.Skipped, models.SourceError{
				SourceID: active[index].ID,
				URL:      active[index].URL,
				Reason:   outcome.err.Error(),
			})
		}
	}
	summary.Duration = time.Since(start)

	if err := service.config.Writer.SetFeedRefreshed(ctx, feedID, time.Now().UTC()); err != nil {
		log.WithFields(log.Fields{"feed": feedID}).Warnf("Refresh timestamp not recorded: %v", err)
	}

	feedRefreshes.Inc()
	refreshDuration.Observe(summary.Duration.Seconds())

	log.WithFields(log.Fields{
		"feed":       feedID,
		"sources":    summary.SourcesProcessed,
		"failed":     summary.SourcesFailed,
		"written":    summary.ArticlesWritten,
		"duplicates": summary.Duplicates,
		"partials":   summary.PartialWrites,
		"elapsed":    summary.Duration.Round(time.Millisecond),
	}).Info("Feed refresh complete")

	return summary, nil
}

// refreshSource runs one source end to end: list links, extract, filter,
// sync. Extraction failures skip the article; store failures abort the
// source so the error surfaces in the summary.
func (service *Service) refreshSource(ctx context.Context, feed *models.Feed, source models.Source) sourceOutcome {
	var outcome sourceOutcome

	links, err := service.articleLinks(ctx, source)
	if err != nil {
		outcome.err = err
		return outcome
	}

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			outcome.err = err
			return outcome
		}

		extracted, err := service.config.Extractor.Extract(ctx, link)
		if err != nil {
			continue
		}
		if !scraper.LooksLikeArticle(extracted.Title, extracted.Summary) {
			continue
		}

		synced, err := service.config.Syncer.Sync(ctx, feed.ID, source.ID, source.DisplayName, extracted)
		if err != nil {
			outcome.err = err
			return outcome
		}

		switch synced {
		case models.OutcomeWritten:
			outcome.written++
		case models.OutcomeDuplicate:
			outcome.duplicates++
		case models.OutcomePartialWrite:
			outcome.partials++
		}
	}

	return outcome
}

// articleLinks lists the URLs to extract this round: feed items for
// syndication sources, homepage links otherwise.
func (service *Service) articleLinks(ctx context.Context, source models.Source) ([]string, error) {
	if source.FeedKind == models.KindSyndication {
		feed, err := service.parser.ParseURLWithContext(source.FeedURL, ctx)
		if err != nil {
			return nil, fmt.Errorf("parse feed %s: %w", source.FeedURL, err)
		}

		var links []string
		for _, item := range feed.Items {
			if len(links) >= service.config.ArticlesPerSource {
				break
			}
			if link := strings.TrimSpace(item.Link); link != "" {
				links = append(links, link)
			}
		}
		return links, nil
	}

	return service.config.Extractor.DiscoverArticleLinks(ctx, source.URL, service.config.ArticlesPerSource)
}

func clampInterval(minutes int) int {
	if minutes <= 0 {
		return defaultRefreshMinutes
	}
	if minutes < minRefreshMinutes {
		return minRefreshMinutes
	}
	if minutes > maxRefreshMinutes {
		return maxRefreshMinutes
	}
	return minutes
}
