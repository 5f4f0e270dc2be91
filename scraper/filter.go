package scraper

import (
	"strings"

	"github.com/samber/lo"
)

// Titles produced by consent walls, auth pages and rate limiters.
var boilerplateTitleParts = []string{
	"cookie", "privacy", "login", "log in", "sign in", "sign up",
	"subscribe", "newsletter", "404", "not found", "access denied",
	"just a moment",
}

// Placeholder titles extracted from landing pages.
var placeholderTitles = []string{
	"untitled", "home", "homepage", "index", "welcome",
}

const minSummaryChars = 50

// LooksLikeArticle rejects records that extract cleanly but are not worth
// syncing: consent pages, auth walls, placeholders and near-empty summaries.
func LooksLikeArticle(title string, summary string) bool {
	title = strings.TrimSpace(title)
	summary = strings.TrimSpace(summary)

	if title == "" || len(summary) < minSummaryChars {
		return false
	}

	lower := strings.ToLower(title)
	if lo.Contains(placeholderTitles, lower) {
		return false
	}

	return !lo.SomeBy(boilerplateTitleParts, func(part string) bool {
		return strings.Contains(lower, part)
	})
}
