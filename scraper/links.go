package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
)

// Navigation, legal and account paths that are never articles.
var excludedPathParts = []string{
	"/tag/", "/tags/", "/category/", "/categories/", "/topic/", "/author/",
	"/about", "/contact", "/login", "/signin", "/signup", "/register",
	"/subscribe", "/newsletter", "/privacy", "/terms", "/policy", "/cookies",
	"/pricing", "/careers", "/advertise", "/search", "/feed", "/rss",
}

// Section prefixes that mark article-like paths on most news sites.
var articlePathHints = []string{
	"/news/", "/article/", "/articles/", "/story/", "/stories/", "/blog/",
	"/post/", "/posts/", "/press/", "/2023/", "/2024/", "/2025/", "/2026/",
}

// DiscoverArticleLinks fetches a page and returns same-host links that look
// like articles, in document order, capped at limit. It backs the sampling
// step for sources without a syndication feed.
func (scraper *Scraper) DiscoverArticleLinks(ctx context.Context, pageURL string, limit int) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetch, pageURL)
	}

	body, err := scraper.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrExtraction, err)
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")

		link := resolveLink(base, href)
		if link == "" || seen[link] {
			return true
		}
		if !looksLikeArticlePath(link, base.Host) {
			return true
		}

		seen[link] = true
		links = append(links, link)

		return len(links) < limit
	})

	return links, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""

	return resolved.String()
}

// looksLikeArticlePath filters navigation and legal pages out of candidate
// links. Long hyphenated slugs pass even without a known section prefix.
func looksLikeArticlePath(link string, host string) bool {
	parsed, err := url.Parse(link)
	if err != nil || !sameHost(parsed.Host, host) {
		return false
	}

	path := strings.ToLower(parsed.Path)
	if path == "" || path == "/" {
		return false
	}

	if lo.SomeBy(excludedPathParts, func(part string) bool { return strings.Contains(path, part) }) {
		return false
	}

	if lo.SomeBy(articlePathHints, func(hint string) bool { return strings.Contains(path, hint) }) {
		return true
	}

	slug := path[strings.LastIndex(path, "/")+1:]
	return len(slug) > 20 && strings.Count(slug, "-") >= 2
}

func sameHost(a string, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") == strings.TrimPrefix(strings.ToLower(b), "www.")
}
