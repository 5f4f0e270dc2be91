package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const googleEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleCSE queries a Google Programmable Search Engine. It serves as the
// fallback when Tavily is unavailable or unconfigured.
type GoogleCSE struct {
	apiKey   string
	cx       string
	endpoint string
	http     *http.Client
}

func NewGoogleCSE(apiKey string, cx string, timeout time.Duration) *GoogleCSE {
	return &GoogleCSE{
		apiKey:   apiKey,
		cx:       cx,
		endpoint: googleEndpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (google *GoogleCSE) Name() string {
	return "google_cse"
}

func (google *GoogleCSE) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	// The API caps num at 10.
	if maxResults > 10 {
		maxResults = 10
	}

	params := url.Values{}
	params.Set("key", google.apiKey)
	params.Set("cx", google.cx)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, google.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := google.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google cse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("google cse: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("google cse: decode response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}

	return results, nil
}
