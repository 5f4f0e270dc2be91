// Package scraper turns an article URL into a structured record. The
// pipeline is fetch, clean, structured extraction, strict parse. The
// extraction step runs against a pluggable model backend and is retried
// with exponential backoff before the article is skipped.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"briefly/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrFetch marks network-level failures: transport errors, timeouts and
	// non-2xx responses.
	ErrFetch = errors.New("fetch failed")

	// ErrExtraction marks backend and schema failures after a successful
	// fetch.
	ErrExtraction = errors.New("extraction failed")
)

var (
	extractionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefly_extraction_attempts_total",
		Help: "Number of structured extraction attempts, retries included",
	})

	extractionSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefly_extraction_skips_total",
		Help: "Number of articles skipped after exhausting extraction retries",
	})

	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefly_fetch_failures_total",
		Help: "Number of article fetches that failed after retries",
	})
)

// Responses larger than this are cut off during fetch. News pages that big
// are never articles.
const maxFetchBytes = 5 << 20

// fetchRetries is the extra attempt budget for transient fetch failures.
const fetchRetries = 1

type Config struct {
	MaxContentChars int
	MaxSummaryWords int
	MaxAttempts     int
	FetchTimeout    time.Duration
	UserAgent       string
}

type Scraper struct {
	config  Config
	backend Backend
	http    *http.Client

	// backoffBase scales the retry policy; tests shrink it.
	backoffBase time.Duration
}

func NewScraper(config Config, backend Backend) *Scraper {
	if config.MaxContentChars <= 0 {
		config.MaxContentChars = 50000
	}
	if config.MaxSummaryWords <= 0 {
		config.MaxSummaryWords = 200
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 20 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "briefly/1.0 (+https://github.com/briefly)"
	}

	return &Scraper{
		config:      config,
		backend:     backend,
		http:        &http.Client{Timeout: config.FetchTimeout},
		backoffBase: 2 * time.Second,
	}
}

// Extract fetches the page and runs it through the extraction backend.
// Returned errors mean "skip this article"; batch callers record the skip
// and move on.
func (scraper *Scraper) Extract(ctx context.Context, pageURL string) (*models.ExtractedArticle, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetch, pageURL)
	}

	body, err := scraper.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	content := cleanContent(body, parsed, scraper.config.MaxContentChars)
	if content == "" {
		return nil, fmt.Errorf("%w: no readable content at %s", ErrExtraction, pageURL)
	}

	prompt := buildPrompt(pageURL, content)

	var extracted *models.ExtractedArticle
	operation := func() error {
		extractionAttempts.Inc()

		raw, err := scraper.backend.ExtractStructured(ctx, prompt)
		if err != nil {
			return fmt.Errorf("%w: backend %s: %v", ErrExtraction, scraper.backend.Name(), err)
		}

		record, err := parseExtraction(raw, scraper.config.MaxSummaryWords)
		if err != nil {
			return err
		}

		extracted = record
		return nil
	}

	if err := backoff.Retry(operation, scraper.retryPolicy(ctx, scraper.config.MaxAttempts-1)); err != nil {
		extractionSkips.Inc()
		log.WithFields(log.Fields{
			"url":     pageURL,
			"backend": scraper.backend.Name(),
		}).Warnf("Skipping article after %d extraction attempts: %v", scraper.config.MaxAttempts, err)
		return nil, err
	}

	extracted.URL = pageURL
	extracted.ContentBody = content

	return extracted, nil
}

// fetch GETs the page with a bounded timeout. Transient failures get one
// retry; client errors are permanent since a 404 does not heal.
func (scraper *Scraper) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrFetch, err))
		}
		req.Header.Set("User-Agent", scraper.config.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := scraper.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFetch, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := fmt.Errorf("%w: status %d for %s", ErrFetch, resp.StatusCode, pageURL)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return fmt.Errorf("%w: read body: %v", ErrFetch, err)
		}

		return nil
	}

	if err := backoff.Retry(operation, scraper.retryPolicy(ctx, fetchRetries)); err != nil {
		fetchFailures.Inc()
		return nil, err
	}

	return body, nil
}

func (scraper *Scraper) retryPolicy(ctx context.Context, maxRetries int) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = scraper.backoffBase
	policy.MaxInterval = 5 * scraper.backoffBase

	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx)
}

func buildPrompt(pageURL string, content string) string {
	return fmt.Sprintf(extractionPrompt, pageURL, content)
}
