package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend is the structured-extraction capability. Implementations take the
// final prompt and return the model's raw text; the scraper owns parsing
// and schema validation.
type Backend interface {
	ExtractStructured(ctx context.Context, prompt string) (string, error)
	Name() string
}

// BackendConfig selects and configures the extraction backend at startup.
type BackendConfig struct {
	// Provider is "gemini" or "cohere". Empty defaults to gemini.
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	CohereAPIKey string
	CohereModel  string

	Timeout time.Duration
}

// NewBackend builds the configured extraction backend.
func NewBackend(config BackendConfig) (Backend, error) {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	switch config.Provider {
	case "gemini", "":
		if config.GeminiAPIKey == "" {
			return nil, errors.New("gemini backend requires an API key")
		}
		return NewGeminiBackend(config.GeminiAPIKey, config.GeminiModel, config.Timeout), nil
	case "cohere":
		if config.CohereAPIKey == "" {
			return nil, errors.New("cohere backend requires an API key")
		}
		return NewCohereBackend(config.CohereAPIKey, config.CohereModel, config.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown extraction backend %q", config.Provider)
	}
}
