package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// ScraperConfig tunes the content extractor.
type ScraperConfig struct {
	MaxContentChars     int    `toml:"max_content_chars"`
	MaxSummaryWords     int    `toml:"max_summary_words"`
	MaxAttempts         int    `toml:"max_attempts"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	UserAgent           string `toml:"user_agent"`
}

// DiscoveryConfig tunes the source discovery engine.
type DiscoveryConfig struct {
	MaxCandidates        int `toml:"max_candidates"`
	SampleArticles       int `toml:"sample_articles"`
	Concurrency          int `toml:"concurrency"`
	FreshnessDays        int `toml:"freshness_days"`
	SearchTimeoutSeconds int `toml:"search_timeout_seconds"`
	ResultsPerQuery      int `toml:"results_per_query"`
}

// RefreshConfig tunes feed refresh batches.
type RefreshConfig struct {
	ArticlesPerSource int `toml:"articles_per_source"`
	Concurrency       int `toml:"concurrency"`
}

// CacheConfig tunes the read cache.
type CacheConfig struct {
	TTLDays          int `toml:"ttl_days"`
	ReadTimeoutMilli int `toml:"read_timeout_ms"`
}

// Tunables holds everything adjustable through briefly.toml. Connection
// addresses and API keys are CLI flags, not tunables.
type Tunables struct {
	Scraper   ScraperConfig   `toml:"scraper"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Refresh   RefreshConfig   `toml:"refresh"`
	Cache     CacheConfig     `toml:"cache"`
}

// Default returns the tunables used when no config file is present.
func Default() *Tunables {
	return &Tunables{
		Scraper: ScraperConfig{
			MaxContentChars:     50000,
			MaxSummaryWords:     200,
			MaxAttempts:         3,
			FetchTimeoutSeconds: 20,
			UserAgent:           "briefly/1.0 (+https://github.com/briefly)",
		},
		Discovery: DiscoveryConfig{
			MaxCandidates:        8,
			SampleArticles:       3,
			Concurrency:          5,
			FreshnessDays:        90,
			SearchTimeoutSeconds: 10,
			ResultsPerQuery:      10,
		},
		Refresh: RefreshConfig{
			ArticlesPerSource: 5,
			Concurrency:       5,
		},
		Cache: CacheConfig{
			TTLDays:          30,
			ReadTimeoutMilli: 2000,
		},
	}
}

// Load reads tunables from a TOML file, filling in defaults for anything
// left unset. A missing file is not an error; the defaults are used.
func Load(path string) (*Tunables, error) {
	config := Default()

	file, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return config, nil
}
