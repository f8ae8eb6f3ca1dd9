// Package htmlutil parses the registry's HTML surfaces: the embedded frame
// on the public entry page, the stateful search form, and result tables.
// It does no I/O; the retrieval sources feed it fetched documents.
package htmlutil

import (
	"html"
	"regexp"
	"strings"
)

// FrameSrc extracts the src of the first iframe/frame on the entry page.
// The registry embeds its search application in a frame; the returned URL
// may be relative to the entry page.
func FrameSrc(htmlContent string) string {
	if m := framePattern.FindStringSubmatch(htmlContent); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return ""
}

// NoResults reports whether body text carries the registry's "no results"
// phrasing. The exact message varies between page revisions, so this only
// looks for the stable word stems.
func NoResults(bodyText string) bool {
	text := strings.ToLower(bodyText)
	if !strings.Contains(text, "no") {
		return false
	}
	return strings.Contains(text, "resultado") || strings.Contains(text, "encontr")
}

// Pre-compiled patterns for extraction.
var framePattern = regexp.MustCompile(`(?i)<i?frame[^>]+src=["']([^"']+)["']`)
