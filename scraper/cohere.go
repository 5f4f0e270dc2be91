package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

const defaultCohereModel = "command-r-08-2024"

// CohereBackend runs structured extraction through Cohere's chat API.
type CohereBackend struct {
	client *cohereclient.Client
	model  string
}

func NewCohereBackend(apiKey string, model string, timeout time.Duration) *CohereBackend {
	if model == "" {
		model = defaultCohereModel
	}

	httpClient := &http.Client{Timeout: timeout}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)

	return &CohereBackend{client: client, model: model}
}

func (backend *CohereBackend) Name() string {
	return "cohere"
}

func (backend *CohereBackend) ExtractStructured(ctx context.Context, prompt string) (string, error) {
	resp, err := backend.client.Chat(ctx, &cohere.ChatRequest{
		Message:     prompt,
		Model:       cohere.String(backend.model),
		Temperature: cohere.Float64(0.1),
		MaxTokens:   cohere.Int(1024),
	})
	if err != nil {
		return "", fmt.Errorf("cohere chat: %w", err)
	}

	return resp.Text, nil
}
