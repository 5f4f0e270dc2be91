package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"briefly/articles"
	"briefly/db"
	"briefly/feeds"
	"briefly/models"
	"briefly/server"
	"briefly/sources"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	feed       *models.Feed
	list       []models.Feed
	result     *feeds.CreateResult
	summary    *models.RefreshSummary
	views      []models.ArticleView
	descriptor *models.SourceDescriptor

	err       error
	lastLimit int
	deleted   []string
}

func (s *stubService) Create(ctx context.Context, request feeds.CreateRequest) (*feeds.CreateResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubService) Get(ctx context.Context, feedID string) (*models.Feed, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

func (s *stubService) List(ctx context.Context) ([]models.Feed, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

func (s *stubService) Delete(ctx context.Context, feedID string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, feedID)
	return nil
}

func (s *stubService) Refresh(ctx context.Context, feedID string) (*models.RefreshSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

func (s *stubService) Articles(ctx context.Context, feedID string, limit int) ([]models.ArticleView, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.views, nil
}

func (s *stubService) AddSource(ctx context.Context, feedID string, rawURL string) (*models.SourceDescriptor, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.descriptor, nil
}

type stubValidator struct {
	descriptor *models.SourceDescriptor
	err        error
	seen       []string
}

func (v *stubValidator) Validate(ctx context.Context, rawURL string) (*models.SourceDescriptor, error) {
	v.seen = append(v.seen, rawURL)
	if v.err != nil {
		return nil, v.err
	}
	return v.descriptor, nil
}

type stubDiscovery struct {
	descriptors []models.SourceDescriptor
	err         error
	topic       string
	count       int
}

func (d *stubDiscovery) Discover(ctx context.Context, topic string, targetCount int) ([]models.SourceDescriptor, error) {
	d.topic = topic
	d.count = targetCount
	if d.err != nil {
		return nil, d.err
	}
	return d.descriptors, nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

func newTestApp(service *stubService) *fiber.App {
	return server.Server(&server.ServerConfig{
		Service:   service,
		Validator: &stubValidator{},
		Discovery: &stubDiscovery{},
		DB:        stubPinger{},
		Cache:     stubPinger{},
	})
}

func jsonRequest(method string, target string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return request
}

func decodeBody(t *testing.T, response *http.Response, out interface{}) {
	t.Helper()
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestCreateFeed(t *testing.T) {
	service := &stubService{
		result: &feeds.CreateResult{
			Feed:    models.Feed{ID: "feed-1", Name: "AI safety"},
			Sources: []models.SourceDescriptor{},
		},
	}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("POST", "/api/feeds", feeds.CreateRequest{Name: "AI safety"}))
	require.NoError(t, err)
	assert.Equal(t, 201, response.StatusCode)

	var result feeds.CreateResult
	decodeBody(t, response, &result)
	assert.Equal(t, "feed-1", result.Feed.ID)
}

func TestCreateFeedValidationError(t *testing.T) {
	service := &stubService{err: fmt.Errorf("%w: a feed needs a name", feeds.ErrValidation)}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("POST", "/api/feeds", feeds.CreateRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 400, response.StatusCode)
}

func TestCreateFeedBadBody(t *testing.T) {
	app := newTestApp(&stubService{})

	request := httptest.NewRequest("POST", "/api/feeds", bytes.NewReader([]byte("{not json")))
	request.Header.Set("Content-Type", "application/json")

	response, err := app.Test(request)
	require.NoError(t, err)
	assert.Equal(t, 400, response.StatusCode)
}

func TestListFeeds(t *testing.T) {
	service := &stubService{list: []models.Feed{{ID: "a"}, {ID: "b"}}}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("GET", "/api/feeds", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, response.StatusCode)

	var list []models.Feed
	decodeBody(t, response, &list)
	assert.Len(t, list, 2)
}

func TestGetFeedNotFound(t *testing.T) {
	service := &stubService{err: db.ErrNotFound}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("GET", "/api/feeds/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, response.StatusCode)
}

func TestDeleteFeed(t *testing.T) {
	service := &stubService{}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("DELETE", "/api/feeds/feed-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, response.StatusCode)
	assert.Equal(t, []string{"feed-1"}, service.deleted)
}

func TestRefreshFeed(t *testing.T) {
	service := &stubService{
		summary: &models.RefreshSummary{FeedID: "feed-1", SourcesProcessed: 2, ArticlesWritten: 7},
	}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("POST", "/api/feeds/feed-1/refresh", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, response.StatusCode)

	var summary models.RefreshSummary
	decodeBody(t, response, &summary)
	assert.Equal(t, 7, summary.ArticlesWritten)
}

func TestAddSourceToFeed(t *testing.T) {
	descriptor := &models.SourceDescriptor{Source: models.Source{ID: "src-1", URL: "https://example.com"}}
	service := &stubService{descriptor: descriptor}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("POST", "/api/feeds/feed-1/sources", map[string]string{"url": "https://example.com"}))
	require.NoError(t, err)
	assert.Equal(t, 201, response.StatusCode)

	var got models.SourceDescriptor
	decodeBody(t, response, &got)
	assert.Equal(t, "src-1", got.ID)
}

func TestAddSourceUnreachable(t *testing.T) {
	service := &stubService{err: fmt.Errorf("%w: probe failed", sources.ErrUnreachable)}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("POST", "/api/feeds/feed-1/sources", map[string]string{"url": "https://down.example.com"}))
	require.NoError(t, err)
	assert.Equal(t, 422, response.StatusCode)
}

func TestArticlesLimitParsing(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "default", query: "", want: 20},
		{name: "explicit", query: "?limit=5", want: 5},
		{name: "max", query: "?limit=100", want: 100},
		{name: "too large", query: "?limit=1000", want: 20},
		{name: "zero", query: "?limit=0", want: 20},
		{name: "not a number", query: "?limit=abc", want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubService{views: []models.ArticleView{}}
			app := newTestApp(service)

			response, err := app.Test(jsonRequest("GET", "/api/feeds/feed-1/articles"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, 200, response.StatusCode)
			assert.Equal(t, tt.want, service.lastLimit)
		})
	}
}

func TestArticlesStoreUnavailable(t *testing.T) {
	service := &stubService{err: fmt.Errorf("%w: both stores failed", articles.ErrStoreUnavailable)}
	app := newTestApp(service)

	response, err := app.Test(jsonRequest("GET", "/api/feeds/feed-1/articles", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, response.StatusCode)
}

func TestValidateSource(t *testing.T) {
	validator := &stubValidator{
		descriptor: &models.SourceDescriptor{Source: models.Source{ID: "src-1", URL: "https://example.com"}},
	}
	app := server.Server(&server.ServerConfig{
		Service:   &stubService{},
		Validator: validator,
		Discovery: &stubDiscovery{},
		DB:        stubPinger{},
		Cache:     stubPinger{},
	})

	response, err := app.Test(jsonRequest("POST", "/api/sources", map[string]string{"url": "https://example.com"}))
	require.NoError(t, err)
	assert.Equal(t, 201, response.StatusCode)
	assert.Equal(t, []string{"https://example.com"}, validator.seen)
}

func TestValidateSourceRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid url", err: fmt.Errorf("%w: no scheme", sources.ErrInvalidURL), want: 422},
		{name: "unreachable", err: fmt.Errorf("%w: connection refused", sources.ErrUnreachable), want: 422},
		{name: "internal", err: errors.New("database locked"), want: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := server.Server(&server.ServerConfig{
				Service:   &stubService{},
				Validator: &stubValidator{err: tt.err},
				Discovery: &stubDiscovery{},
				DB:        stubPinger{},
				Cache:     stubPinger{},
			})

			response, err := app.Test(jsonRequest("POST", "/api/sources", map[string]string{"url": "https://example.com"}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, response.StatusCode)
		})
	}
}

func TestValidateSourceRequiresURL(t *testing.T) {
	app := newTestApp(&stubService{})

	response, err := app.Test(jsonRequest("POST", "/api/sources", map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, 400, response.StatusCode)
}

func TestDiscoverSources(t *testing.T) {
	discovery := &stubDiscovery{
		descriptors: []models.SourceDescriptor{
			{Source: models.Source{ID: "src-1"}, SampleCount: 2},
			{Source: models.Source{ID: "src-2"}, SampleCount: 3},
		},
	}
	app := server.Server(&server.ServerConfig{
		Service:   &stubService{},
		Validator: &stubValidator{},
		Discovery: discovery,
		DB:        stubPinger{},
		Cache:     stubPinger{},
	})

	response, err := app.Test(jsonRequest("POST", "/api/discover", map[string]interface{}{
		"topic":       "quantum computing",
		"targetCount": 2,
	}))
	require.NoError(t, err)
	assert.Equal(t, 200, response.StatusCode)
	assert.Equal(t, "quantum computing", discovery.topic)
	assert.Equal(t, 2, discovery.count)

	var descriptors []models.SourceDescriptor
	decodeBody(t, response, &descriptors)
	assert.Len(t, descriptors, 2)
}

func TestDiscoverRequiresTopic(t *testing.T) {
	app := newTestApp(&stubService{})

	response, err := app.Test(jsonRequest("POST", "/api/discover", map[string]string{"topic": "  "}))
	require.NoError(t, err)
	assert.Equal(t, 400, response.StatusCode)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		cacheErr error
		want     int
	}{
		{name: "all healthy", want: 200},
		{name: "cache down", cacheErr: errors.New("connection refused"), want: 503},
		{name: "relational down", dbErr: errors.New("disk I/O error"), want: 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := server.Server(&server.ServerConfig{
				Service:   &stubService{},
				Validator: &stubValidator{},
				Discovery: &stubDiscovery{},
				DB:        stubPinger{err: tt.dbErr},
				Cache:     stubPinger{err: tt.cacheErr},
			})

			response, err := app.Test(jsonRequest("GET", "/health", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, response.StatusCode)

			var health map[string]string
			decodeBody(t, response, &health)
			if tt.cacheErr != nil {
				assert.Equal(t, tt.cacheErr.Error(), health["cache"])
			} else {
				assert.Equal(t, "ok", health["cache"])
			}
		})
	}
}
