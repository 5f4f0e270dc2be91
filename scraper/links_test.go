package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const homepage = `<html><body>
<nav><a href="/about">About</a><a href="/tag/economy">Economy</a></nav>
<a href="/news/market-update-chips">Market update</a>
<a href="/news/market-update-chips">Market update again</a>
<a href="https://elsewhere.example.com/news/external-story">External</a>
<a href="/2026/08/regulators-approve-merger">Merger approved</a>
<a href="#comments">Comments</a>
<a href="javascript:void(0)">Widget</a>
<a href="mailto:tips@example.com">Tips</a>
<a href="/p/inside-the-long-negotiation-that-saved-the-deal">Feature</a>
<a href="/subscribe">Subscribe</a>
</body></html>`

func TestDiscoverArticleLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(homepage))
	}))
	defer server.Close()

	scraper := NewScraper(Config{}, nil)

	links, err := scraper.DiscoverArticleLinks(context.Background(), server.URL, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		server.URL + "/news/market-update-chips",
		server.URL + "/2026/08/regulators-approve-merger",
		server.URL + "/p/inside-the-long-negotiation-that-saved-the-deal",
	}, links)
}

func TestDiscoverArticleLinksHonorsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(homepage))
	}))
	defer server.Close()

	scraper := NewScraper(Config{}, nil)

	links, err := scraper.DiscoverArticleLinks(context.Background(), server.URL, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/news/market-update-chips"}, links)
}

func TestDiscoverArticleLinksFetchFailure(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	scraper := NewScraper(Config{}, nil)
	scraper.backoffBase = time.Millisecond

	_, err := scraper.DiscoverArticleLinks(context.Background(), server.URL, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, 1, requests, "client errors should not be retried")
}

func TestLooksLikeArticlePath(t *testing.T) {
	tests := []struct {
		name     string
		link     string
		expected bool
	}{
		{
			name:     "news section",
			link:     "https://example.com/news/chip-shortage",
			expected: true,
		},
		{
			name:     "www host variant",
			link:     "https://www.example.com/news/chip-shortage",
			expected: true,
		},
		{
			name:     "other host",
			link:     "https://other.com/news/chip-shortage",
			expected: false,
		},
		{
			name:     "root path",
			link:     "https://example.com/",
			expected: false,
		},
		{
			name:     "tag page",
			link:     "https://example.com/tag/economy",
			expected: false,
		},
		{
			name:     "long slug without section prefix",
			link:     "https://example.com/inside-the-long-negotiation-that-saved-the-deal",
			expected: true,
		},
		{
			name:     "short slug without section prefix",
			link:     "https://example.com/contact-us",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, looksLikeArticlePath(tt.link, "example.com"))
		})
	}
}
