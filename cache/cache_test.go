package cache

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	scraped := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	assert.Equal(t, "FEED#feed-1", feedKey("feed-1"))
	assert.Equal(t, "ARTICLE#2025-03-14T09:26:53Z#art-1", sortKey(scraped, "art-1"))
	assert.Equal(t,
		"FEED#feed-1#ARTICLE#2025-03-14T09:26:53Z#art-1",
		recordKey("feed-1", sortKey(scraped, "art-1")),
	)
}

func TestSortKeyConvertsToUTC(t *testing.T) {
	oslo := time.FixedZone("CEST", 2*60*60)
	local := time.Date(2025, 6, 1, 14, 0, 0, 0, oslo)

	assert.Equal(t, "ARTICLE#2025-06-01T12:00:00Z#art-1", sortKey(local, "art-1"))
}

func TestSortKeysOrderChronologically(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	keys := []string{
		sortKey(base.Add(3*time.Hour), "a"),
		sortKey(base, "b"),
		sortKey(base.Add(48*time.Hour), "c"),
		sortKey(base.Add(time.Minute), "d"),
	}

	// Lexical order must equal chronological order, so that the cache and
	// the relational fallback paginate identically.
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	assert.Equal(t, []string{keys[1], keys[3], keys[0], keys[2]}, sorted)
}

func TestSortKeyBreaksTiesByArticleID(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := sortKey(at, "article-a")
	b := sortKey(at, "article-b")

	assert.Less(t, a, b)
}
