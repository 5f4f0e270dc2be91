package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"briefly/db"
	"briefly/models"
	"briefly/scraper"
	"briefly/search"

	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	candidatesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefly_discovery_candidates_total",
		Help: "Number of discovery candidates evaluated",
	})

	candidatesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefly_discovery_discarded_total",
		Help: "Number of discovery candidates discarded after evaluation",
	})
)

// QueryStrategy expands a topic into search query variants. Pluggable so a
// model-backed strategy can replace the naive one without touching the
// pipeline.
type QueryStrategy func(topic string) []string

// NaiveQueries is the default strategy: plain substring templates.
func NaiveQueries(topic string) []string {
	topic = strings.TrimSpace(topic)
	return []string{
		fmt.Sprintf("best news sites %s", topic),
		fmt.Sprintf("%s latest news", topic),
		fmt.Sprintf("%s news analysis", topic),
	}
}

type DiscoveryConfig struct {
	// MaxCandidates bounds how many base URLs are evaluated per run.
	MaxCandidates int
	// SampleArticles is how many extractions to attempt per candidate.
	SampleArticles int
	// Concurrency bounds parallel candidate evaluation.
	Concurrency int
	// FreshnessWindow rejects candidates whose dated samples are all older.
	FreshnessWindow time.Duration
	// SearchTimeout bounds each query variant.
	SearchTimeout time.Duration
	// ResultsPerQuery caps search hits requested per query variant.
	ResultsPerQuery int
}

// Discovery turns a topic into validated, sampled source descriptors.
type Discovery struct {
	config    DiscoveryConfig
	search    search.Provider
	validator *Validator
	scraper   *scraper.Scraper
	writer    *db.Writer
	queries   QueryStrategy
}

func NewDiscovery(config DiscoveryConfig, provider search.Provider, validator *Validator, extractor *scraper.Scraper, writer *db.Writer) *Discovery {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = 8
	}
	if config.SampleArticles <= 0 {
		config.SampleArticles = 3
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.FreshnessWindow <= 0 {
		config.FreshnessWindow = 90 * 24 * time.Hour
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = 15 * time.Second
	}
	if config.ResultsPerQuery <= 0 {
		config.ResultsPerQuery = 10
	}

	return &Discovery{
		config:    config,
		search:    provider,
		validator: validator,
		scraper:   extractor,
		writer:    writer,
		queries:   NaiveQueries,
	}
}

// WithQueryStrategy replaces the default query expansion.
func (discovery *Discovery) WithQueryStrategy(strategy QueryStrategy) *Discovery {
	discovery.queries = strategy
	return discovery
}

// Discover searches the topic, validates candidate sites and samples
// articles from each. Candidates that yield no meaningful article, or only
// stale ones, are marked invalid and dropped. An empty result is a valid
// outcome.
func (discovery *Discovery) Discover(ctx context.Context, topic string, targetCount int) ([]models.SourceDescriptor, error) {
	candidates := discovery.collectCandidates(ctx, discovery.queries(topic))
	if len(candidates) > discovery.config.MaxCandidates {
		candidates = candidates[:discovery.config.MaxCandidates]
	}

	log.WithFields(log.Fields{
		"topic":      topic,
		"candidates": len(candidates),
	}).Info("Evaluating discovery candidates")

	descriptors := discovery.evaluate(ctx, candidates)

	if targetCount > 0 && len(descriptors) > targetCount {
		descriptors = descriptors[:targetCount]
	}

	return descriptors, ctx.Err()
}

// collectCandidates reduces search hits to deduped base URLs in first-seen
// order. A failed query variant is skipped, not fatal.
func (discovery *Discovery) collectCandidates(ctx context.Context, queries []string) []string {
	seen := make(map[string]bool)
	var candidates []string

	for _, query := range queries {
		if ctx.Err() != nil {
			break
		}

		searchCtx, cancel := context.WithTimeout(ctx, discovery.config.SearchTimeout)
		results, err := discovery.search.Search(searchCtx, query, discovery.config.ResultsPerQuery)
		cancel()
		if err != nil {
			log.WithFields(log.Fields{"query": query}).Warnf("Skipping failed query variant: %v", err)
			continue
		}

		for _, result := range results {
			base, domain := baseURL(result.URL)
			if base == "" || seen[domain] {
				continue
			}
			seen[domain] = true
			candidates = append(candidates, base)
		}
	}

	return candidates
}

// evaluate validates and samples candidates with bounded parallelism.
// Results keep candidate order so reruns are comparable.
func (discovery *Discovery) evaluate(ctx context.Context, candidates []string) []models.SourceDescriptor {
	type slot struct {
		descriptor *models.SourceDescriptor
	}

	slots := make([]slot, len(candidates))
	queue := make(chan int)

	var wg sync.WaitGroup
	for worker := 0; worker < discovery.config.Concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				slots[index].descriptor = discovery.evaluateCandidate(ctx, candidates[index])
			}
		}()
	}

	for index := range candidates {
		if ctx.Err() != nil {
			break
		}
		queue <- index
	}
	close(queue)
	wg.Wait()

	var descriptors []models.SourceDescriptor
	for _, slot := range slots {
		if slot.descriptor != nil {
			descriptors = append(descriptors, *slot.descriptor)
		}
	}

	return descriptors
}

// evaluateCandidate runs a single candidate through validation and sampling.
// Returns nil when the candidate should be dropped; the batch never aborts
// on one candidate.
func (discovery *Discovery) evaluateCandidate(ctx context.Context, candidate string) *models.SourceDescriptor {
	candidatesEvaluated.Inc()

	descriptor, err := discovery.validator.Validate(ctx, candidate)
	if err != nil {
		candidatesDiscarded.Inc()
		log.WithFields(log.Fields{"candidate": candidate}).Infof("Discarding candidate: %v", err)
		return nil
	}

	samples := discovery.sample(ctx, descriptor)

	if len(samples) == 0 {
		discovery.discard(ctx, descriptor, "no extractable articles")
		return nil
	}
	if !freshEnough(samples, discovery.config.FreshnessWindow) {
		discovery.discard(ctx, descriptor, "all dated samples older than freshness window")
		return nil
	}

	descriptor.SampleCount = len(samples)
	return descriptor
}

// discard marks the stored row invalid but keeps its URL untouched so an
// operator can inspect what was tried.
func (discovery *Discovery) discard(ctx context.Context, descriptor *models.SourceDescriptor, reason string) {
	candidatesDiscarded.Inc()
	log.WithFields(log.Fields{
		"source": descriptor.NormalizedURL,
	}).Infof("Discarding candidate: %s", reason)

	if err := discovery.writer.MarkSourceInvalid(ctx, descriptor.ID, reason); err != nil {
		log.Errorf("Failed to mark source %s invalid: %v", descriptor.ID, err)
	}
}

// sample extracts up to SampleArticles meaningful articles from the source.
func (discovery *Discovery) sample(ctx context.Context, source *models.SourceDescriptor) []*models.ExtractedArticle {
	var samples []*models.ExtractedArticle

	for _, link := range discovery.sampleLinks(ctx, source) {
		if ctx.Err() != nil || len(samples) >= discovery.config.SampleArticles {
			break
		}

		extracted, err := discovery.scraper.Extract(ctx, link)
		if err != nil {
			continue
		}
		if !scraper.LooksLikeArticle(extracted.Title, extracted.Summary) {
			continue
		}

		samples = append(samples, extracted)
	}

	return samples
}

// sampleLinks lists candidate article URLs: feed items for syndication
// sources, homepage link discovery otherwise. Extra links give headroom for
// extractions that fail.
func (discovery *Discovery) sampleLinks(ctx context.Context, source *models.SourceDescriptor) []string {
	limit := discovery.config.SampleArticles * 2

	if source.FeedKind == models.KindSyndication {
		parser := gofeed.NewParser()
		feed, err := parser.ParseURLWithContext(source.FeedURL, ctx)
		if err != nil {
			log.WithFields(log.Fields{"feed": source.FeedURL}).Warnf("Feed parse failed during sampling: %v", err)
			return nil
		}

		var links []string
		for _, item := range feed.Items {
			if len(links) >= limit {
				break
			}
			if link := strings.TrimSpace(item.Link); link != "" {
				links = append(links, link)
			}
		}
		return links
	}

	links, err := discovery.scraper.DiscoverArticleLinks(ctx, source.URL, limit)
	if err != nil {
		log.WithFields(log.Fields{"source": source.URL}).Warnf("Link discovery failed during sampling: %v", err)
		return nil
	}
	return links
}

// freshEnough passes when no sample carries a date, or at least one dated
// sample falls within the window.
func freshEnough(samples []*models.ExtractedArticle, window time.Duration) bool {
	cutoff := time.Now().Add(-window)
	dated := false

	for _, sample := range samples {
		if sample.PublishedAt == nil {
			continue
		}
		dated = true
		if sample.PublishedAt.After(cutoff) {
			return true
		}
	}

	return !dated
}

// baseURL reduces a search hit to its site root and dedup key.
func baseURL(raw string) (string, string) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", ""
	}

	host := strings.ToLower(parsed.Host)
	return parsed.Scheme + "://" + host, strings.TrimPrefix(host, "www.")
}
