package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// StripTags removes all markup from user supplied text and trims surrounding whitespace. The
// result is plain text: entities produced by the sanitizer are decoded again.
func StripTags(value string) string {
	if value == "" {
		return ""
	}
	cleaned := strictPolicy.Sanitize(value)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// NormalizeName strips markup, applies NFKC normalization and collapses internal whitespace.
// Usernames go through it so visually identical names compare equal.
func NormalizeName(value string) string {
	stripped := norm.NFKC.String(StripTags(value))
	return strings.Join(strings.Fields(stripped), " ")
}
