/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"briefly/articles"
	"briefly/cache"
	"briefly/config"
	"briefly/db"
	"briefly/feeds"
	"briefly/scraper"
	"briefly/search"
	"briefly/sources"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// storeFlags configure the two article stores and the tunables file.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database",
			Aliases: []string{"d"},
			Value:   "briefly.db",
			Usage:   "SQLite database file location",
			EnvVars: []string{"BRIEFLY_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "redis",
			Value:   "localhost:6379",
			Usage:   "Redis address for the article read cache",
			EnvVars: []string{"BRIEFLY_REDIS"},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{"BRIEFLY_REDIS_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{"BRIEFLY_REDIS_DB"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "briefly.toml",
			Usage:   "Path to the tunables file",
			EnvVars: []string{"BRIEFLY_CONFIG"},
		},
	}
}

// providerFlags configure the web search and extraction backends.
func providerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "extraction-backend",
			Value:   "gemini",
			Usage:   "Structured extraction backend, gemini or cohere",
			EnvVars: []string{"BRIEFLY_EXTRACTION_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			Usage:   "Google Gemini API key",
			EnvVars: []string{"BRIEFLY_GEMINI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Usage:   "Gemini model override",
			EnvVars: []string{"BRIEFLY_GEMINI_MODEL"},
		},
		&cli.StringFlag{
			Name:    "cohere-api-key",
			Usage:   "Cohere API key",
			EnvVars: []string{"BRIEFLY_COHERE_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "cohere-model",
			Usage:   "Cohere model override",
			EnvVars: []string{"BRIEFLY_COHERE_MODEL"},
		},
		&cli.StringFlag{
			Name:    "tavily-api-key",
			Usage:   "Tavily search API key",
			EnvVars: []string{"BRIEFLY_TAVILY_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "google-api-key",
			Usage:   "Google Custom Search API key",
			EnvVars: []string{"BRIEFLY_GOOGLE_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "google-cx",
			Usage:   "Google Custom Search engine id",
			EnvVars: []string{"BRIEFLY_GOOGLE_CX"},
		},
	}
}

// stack is the full set of stores and services behind the serve, discover
// and refresh commands. Commands that only touch a slice of it construct
// that slice themselves.
type stack struct {
	tunables  *config.Tunables
	writer    *db.Writer
	reader    *db.Reader
	cache     *cache.Store
	scraper   *scraper.Scraper
	validator *sources.Validator
	discovery *sources.Discovery
	service   *feeds.Service
}

func newStack(ctx *cli.Context) (*stack, error) {
	tunables, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	writer, err := db.NewWriter(ctx.String("database"))
	if err != nil {
		return nil, fmt.Errorf("could not open database for writing: %w", err)
	}

	reader, err := db.NewReader(ctx.String("database"))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("could not open database for reading: %w", err)
	}

	store, err := cache.NewStore(cache.Config{
		Addr:      ctx.String("redis"),
		Password:  ctx.String("redis-password"),
		DB:        ctx.Int("redis-db"),
		TTL:       time.Duration(tunables.Cache.TTLDays) * 24 * time.Hour,
		OpTimeout: time.Duration(tunables.Cache.ReadTimeoutMilli) * time.Millisecond,
	})
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("could not open read cache: %w", err)
	}

	backend, err := scraper.NewBackend(scraper.BackendConfig{
		Provider:     ctx.String("extraction-backend"),
		GeminiAPIKey: ctx.String("gemini-api-key"),
		GeminiModel:  ctx.String("gemini-model"),
		CohereAPIKey: ctx.String("cohere-api-key"),
		CohereModel:  ctx.String("cohere-model"),
	})
	if err != nil {
		writer.Close()
		reader.Close()
		store.Close()
		return nil, fmt.Errorf("could not build extraction backend: %w", err)
	}

	extractor := scraper.NewScraper(scraper.Config{
		MaxContentChars: tunables.Scraper.MaxContentChars,
		MaxSummaryWords: tunables.Scraper.MaxSummaryWords,
		MaxAttempts:     tunables.Scraper.MaxAttempts,
		FetchTimeout:    time.Duration(tunables.Scraper.FetchTimeoutSeconds) * time.Second,
		UserAgent:       tunables.Scraper.UserAgent,
	}, backend)

	validator := sources.NewValidator(writer, sources.ValidatorConfig{
		UserAgent: tunables.Scraper.UserAgent,
	})

	searchTimeout := time.Duration(tunables.Discovery.SearchTimeoutSeconds) * time.Second
	discovery := sources.NewDiscovery(sources.DiscoveryConfig{
		MaxCandidates:   tunables.Discovery.MaxCandidates,
		SampleArticles:  tunables.Discovery.SampleArticles,
		Concurrency:     tunables.Discovery.Concurrency,
		FreshnessWindow: time.Duration(tunables.Discovery.FreshnessDays) * 24 * time.Hour,
		SearchTimeout:   searchTimeout,
		ResultsPerQuery: tunables.Discovery.ResultsPerQuery,
	}, searchChain(ctx, searchTimeout), validator, extractor, writer)

	service := feeds.NewService(feeds.ServiceConfig{
		Writer:            writer,
		Reader:            reader,
		Validator:         validator,
		Discovery:         discovery,
		Extractor:         extractor,
		Syncer:            articles.NewSyncWriter(writer, store),
		Views:             articles.NewReadPath(reader, store),
		Cache:             store,
		ArticlesPerSource: tunables.Refresh.ArticlesPerSource,
		Concurrency:       tunables.Refresh.Concurrency,
	})

	return &stack{
		tunables:  tunables,
		writer:    writer,
		reader:    reader,
		cache:     store,
		scraper:   extractor,
		validator: validator,
		discovery: discovery,
		service:   service,
	}, nil
}

// searchChain builds the provider fallback from whichever API keys are set.
func searchChain(ctx *cli.Context, timeout time.Duration) *search.Chain {
	var providers []search.Provider

	if key := ctx.String("tavily-api-key"); key != "" {
		providers = append(providers, search.NewTavily(key, timeout))
	}
	if key, cx := ctx.String("google-api-key"), ctx.String("google-cx"); key != "" && cx != "" {
		providers = append(providers, search.NewGoogleCSE(key, cx, timeout))
	}

	if len(providers) == 0 {
		log.Warn("No search provider configured, source discovery will come up empty")
	}

	return search.NewChain(providers...)
}

func (s *stack) Close() {
	s.reader.Close()
	s.writer.Close()
	s.cache.Close()
}
