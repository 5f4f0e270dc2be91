package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"briefly/models"
)

const extractionPrompt = `Extract the article metadata from the page content below.

Respond with ONLY a JSON object, no prose and no markdown fences, using exactly this schema:
{
  "title": "the article headline",
  "summary": "a 2-3 sentence summary, at most 200 words",
  "published_date": "publication date as YYYY-MM-DD, or null if unknown",
  "author": "author name, or null if unknown",
  "image_url": "absolute URL of the main image, or null if none"
}

Page URL: %s

Page content:
%s`

var (
	codeFence    = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
	jsonObject   = regexp.MustCompile(`(?s)\{.*\}`)
)

type rawExtraction struct {
	Title         string  `json:"title"`
	Summary       string  `json:"summary"`
	PublishedDate *string `json:"published_date"`
	Author        *string `json:"author"`
	ImageURL      *string `json:"image_url"`
}

// parseExtraction enforces the fixed schema at the model boundary. Backends
// return free text; only a JSON object with a non-empty title passes. Models
// wrap JSON in fences and prose often enough that both are stripped before
// giving up.
func parseExtraction(raw string, maxSummaryWords int) (*models.ExtractedArticle, error) {
	cleaned := strings.TrimSpace(raw)
	if match := codeFence.FindStringSubmatch(cleaned); match != nil {
		cleaned = match[1]
	}
	cleaned = controlChars.ReplaceAllString(cleaned, "")
	if match := jsonObject.FindString(cleaned); match != "" {
		cleaned = match
	}

	var parsed rawExtraction
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed backend output: %v", ErrExtraction, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: backend returned no title", ErrExtraction)
	}

	article := &models.ExtractedArticle{
		Title:   title,
		Summary: truncateWords(strings.TrimSpace(parsed.Summary), maxSummaryWords),
	}

	if parsed.Author != nil {
		article.Author = strings.TrimSpace(*parsed.Author)
	}
	if parsed.ImageURL != nil {
		if image := strings.TrimSpace(*parsed.ImageURL); isAbsoluteURL(image) {
			article.ImageURL = image
		}
	}
	if parsed.PublishedDate != nil {
		if published, ok := parseISODate(strings.TrimSpace(*parsed.PublishedDate)); ok {
			article.PublishedAt = &published
		}
	}

	return article, nil
}

func parseISODate(value string) (time.Time, bool) {
	if value == "" || strings.EqualFold(value, "null") {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}

	return time.Time{}, false
}

// truncateWords keeps at most max words. Overlong summaries are truncated,
// never rejected.
func truncateWords(text string, max int) string {
	if max <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}
	return strings.Join(words[:max], " ")
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
