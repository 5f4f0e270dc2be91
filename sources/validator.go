// Package sources validates news sites and discovers new ones from topic
// queries. Validation is the single entry point for source rows: every
// source in the database went through Validate at least once.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"briefly/db"
	"briefly/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

var (
	// ErrInvalidURL marks input that fails syntax checks. Scheme-less input
	// is rejected rather than silently prefixed.
	ErrInvalidURL = errors.New("invalid source url")

	// ErrUnreachable marks sources that parse but do not answer with a 2xx.
	ErrUnreachable = errors.New("source unreachable")
)

// Homepage bytes read during the syndication probe.
const maxProbeBytes = 2 << 20

// Conventional feed locations tried when the homepage does not declare one.
var conventionalFeedPaths = []string{
	"/feed", "/rss", "/feed.xml", "/rss.xml", "/atom.xml", "/index.xml",
}

type ValidatorConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// Validator checks that a URL points at a live site, classifies how articles
// can be sampled from it, and persists the canonical source row.
type Validator struct {
	writer    *db.Writer
	http      *http.Client
	userAgent string
}

func NewValidator(writer *db.Writer, config ValidatorConfig) *Validator {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "briefly/1.0 (+https://github.com/briefly)"
	}

	return &Validator{
		writer:    writer,
		http:      &http.Client{Timeout: config.Timeout},
		userAgent: config.UserAgent,
	}
}

// Validate runs the full pipeline: syntax, reachability, syndication probe,
// upsert. The returned descriptor carries the canonical row, so repeated
// validations of equivalent URLs converge on one source.
func (validator *Validator) Validate(ctx context.Context, rawURL string) (*models.SourceDescriptor, error) {
	parsed, err := parseSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	// Redirect chains resolve here; everything after this point works on
	// the final URL, not the one the caller typed.
	final, err := validator.probe(ctx, parsed.String())
	if err != nil {
		return nil, err
	}

	body := validator.fetchHomepage(ctx, final.String())

	feedKind, feedURL := validator.detectSyndication(ctx, final, body)

	displayName := pageTitle(body)
	if displayName == "" {
		displayName = strings.TrimPrefix(strings.ToLower(final.Host), "www.")
	}

	source, err := validator.writer.UpsertSource(ctx, models.Source{
		URL:             final.String(),
		NormalizedURL:   normalizeURL(final),
		DisplayName:     displayName,
		FeedKind:        feedKind,
		FeedURL:         feedURL,
		Status:          models.SourceActive,
		LastValidatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("persist source: %w", err)
	}

	return &models.SourceDescriptor{Source: *source}, nil
}

func parseSourceURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return parsed, nil
}

// probe checks reachability with a cheap HEAD and returns the
// redirect-resolved URL. Servers that reject HEAD get a GET retry.
func (validator *Validator) probe(ctx context.Context, target string) (*url.URL, error) {
	resp, err := validator.request(ctx, http.MethodHead, target)
	if err != nil || resp.StatusCode == http.StatusMethodNotAllowed {
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = validator.request(ctx, http.MethodGet, target)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d for %s", ErrUnreachable, resp.StatusCode, target)
	}

	return resp.Request.URL, nil
}

// fetchHomepage returns the homepage HTML, or nil when it cannot be read.
// A missing body only degrades the probe, it does not fail validation.
func (validator *Validator) fetchHomepage(ctx context.Context, target string) []byte {
	resp, err := validator.request(ctx, http.MethodGet, target)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBytes))
	if err != nil {
		return nil
	}

	return body
}

func (validator *Validator) request(ctx context.Context, method string, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", validator.userAgent)

	return validator.http.Do(req)
}

// detectSyndication classifies how articles are sampled from the source.
// A feed declared in the page head is trusted as-is; conventional paths are
// guesses and must parse as a feed before they count.
func (validator *Validator) detectSyndication(ctx context.Context, base *url.URL, body []byte) (models.FeedKind, string) {
	if len(body) > 0 {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			if href := declaredFeedLink(doc); href != "" {
				if feedURL := resolveFeedURL(base, href); feedURL != "" {
					return models.KindSyndication, feedURL
				}
			}
		}
	}

	parser := gofeed.NewParser()
	parser.UserAgent = validator.userAgent
	parser.Client = validator.http

	for _, path := range conventionalFeedPaths {
		if ctx.Err() != nil {
			break
		}
		feedURL := base.Scheme + "://" + base.Host + path
		if _, err := parser.ParseURLWithContext(feedURL, ctx); err == nil {
			return models.KindSyndication, feedURL
		}
	}

	return models.KindPageScrape, ""
}

func declaredFeedLink(doc *goquery.Document) string {
	href := ""
	doc.Find(`link[type="application/rss+xml"], link[type="application/atom+xml"]`).
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href = strings.TrimSpace(sel.AttrOr("href", ""))
			return href == ""
		})
	return href
}

func resolveFeedURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func pageTitle(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	if runes := []rune(title); len(runes) > 120 {
		title = strings.TrimSpace(string(runes[:120]))
	}
	return title
}

// normalizeURL is the identity under which sources dedupe. Equivalent spellings
// of the same site must map to the same string.
func normalizeURL(u *url.URL) string {
	normalized := *u
	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)
	normalized.Fragment = ""
	normalized.User = nil

	if (normalized.Scheme == "http" && strings.HasSuffix(normalized.Host, ":80")) ||
		(normalized.Scheme == "https" && strings.HasSuffix(normalized.Host, ":443")) {
		normalized.Host = normalized.Host[:strings.LastIndex(normalized.Host, ":")]
	}

	query := normalized.Query()
	for param := range query {
		lower := strings.ToLower(param)
		if strings.HasPrefix(lower, "utm_") || lower == "fbclid" || lower == "gclid" {
			query.Del(param)
		}
	}
	normalized.RawQuery = query.Encode()

	normalized.Path = strings.TrimSuffix(normalized.Path, "/")

	return normalized.String()
}
