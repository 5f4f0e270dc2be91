// Package search wraps the web-search backends behind source discovery.
// Providers are REST clients; the Chain composes them into an ordered
// fallback selected at startup.
package search

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefly_search_requests_total",
		Help: "Number of search requests per provider",
	}, []string{"provider"})

	searchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefly_search_failures_total",
		Help: "Number of failed search requests per provider",
	}, []string{"provider"})
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Provider is the capability interface for a web-search backend.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
	Name() string
}

// Chain tries providers in order and returns the first non-empty result
// set. Provider failures are logged and passed over; a chain where every
// provider comes up empty returns an empty result, not an error.
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (chain *Chain) Name() string {
	return "chain"
}

func (chain *Chain) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	for _, provider := range chain.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		searchRequests.WithLabelValues(provider.Name()).Inc()

		results, err := provider.Search(ctx, query, maxResults)
		if err != nil {
			searchFailures.WithLabelValues(provider.Name()).Inc()
			log.WithFields(log.Fields{
				"provider": provider.Name(),
				"query":    query,
			}).Warnf("Search provider failed: %v", err)
			continue
		}

		if len(results) > 0 {
			return results, nil
		}
	}

	return nil, ctx.Err()
}
