package scraper

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// Elements that never carry article text.
var strippedTags = []string{
	"script", "style", "nav", "footer", "header", "iframe", "noscript",
	"svg", "form", "aside",
}

var tagPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(strippedTags))
	for i, tag := range strippedTags {
		patterns[i] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	}
	return patterns
}()

var (
	anyTag     = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// cleanContent strips boilerplate and truncates to the extraction budget.
// Readability does the heavy lifting; pages it rejects fall back to a crude
// tag strip so landing pages still yield something to classify.
func cleanContent(body []byte, pageURL *url.URL, maxChars int) string {
	text := ""
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		text = article.TextContent
	}
	if strings.TrimSpace(text) == "" {
		text = stripTags(string(body))
	}

	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))

	return truncateRunes(text, maxChars)
}

func stripTags(html string) string {
	for _, pattern := range tagPatterns {
		html = pattern.ReplaceAllString(html, " ")
	}
	return anyTag.ReplaceAllString(html, " ")
}

// truncateRunes cuts at a rune boundary so the result stays valid text.
func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
