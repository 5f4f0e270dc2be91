package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily is the primary search backend.
type Tavily struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func NewTavily(apiKey string, timeout time.Duration) *Tavily {
	return &Tavily{
		apiKey:   apiKey,
		endpoint: tavilyEndpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (tavily *Tavily) Name() string {
	return "tavily"
}

func (tavily *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"api_key":      tavily.apiKey,
		"query":        query,
		"search_depth": "basic",
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavily.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tavily.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, hit := range parsed.Results {
		if hit.URL == "" {
			continue
		}
		results = append(results, Result{
			Title:   hit.Title,
			URL:     hit.URL,
			Snippet: hit.Content,
		})
	}

	return results, nil
}
