package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	geminiEndpoint     = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGeminiModel = "gemini-2.0-flash"
)

// GeminiBackend runs structured extraction through the Generative Language
// REST API. The wire format is small enough to speak directly.
type GeminiBackend struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
}

func NewGeminiBackend(apiKey string, model string, timeout time.Duration) *GeminiBackend {
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiBackend{
		apiKey:   apiKey,
		model:    model,
		endpoint: geminiEndpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (backend *GeminiBackend) Name() string {
	return "gemini"
}

func (backend *GeminiBackend) ExtractStructured(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      0.1,
			"maxOutputTokens":  2048,
			"responseMimeType": "application/json",
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	requestURL := fmt.Sprintf("%s/%s:generateContent?key=%s", backend.endpoint, backend.model, backend.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := backend.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
