package aggregate

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/hyperifyio/gsearch/internal/search"
)

const (
	// MaxSnippetRunes bounds the visible snippet length.
	MaxSnippetRunes = 200
	// Ellipsis marks a truncated snippet.
	Ellipsis = "..."
	// DefaultMaxResults caps any result page handed to the caller.
	DefaultMaxResults = 10
)

// Normalize prepares records from any tier for the caller: it cleans and
// escapes text, truncates snippets, drops records without a title or link,
// de-duplicates by (link, title) keeping the first occurrence, and caps the
// list at max (DefaultMaxResults when max <= 0). Normalizing an already
// normalized list returns it unchanged.
//
// Input text is treated as possibly escaped: entities are decoded once before
// the single escape. That keeps repeated normalization stable, at the cost of
// plain text that literally contains an entity such as "&lt;b&gt;" being
// shown as "<b>".
func Normalize(results []search.Result, max int) []search.Result {
	if max <= 0 {
		max = DefaultMaxResults
	}
	out := make([]search.Result, 0, min(len(results), max))
	seen := map[string]struct{}{}
	for _, r := range results {
		r.Title = escape(cleanText(r.Title))
		r.URL = escape(strings.TrimSpace(html.UnescapeString(r.URL)))
		r.Snippet = escape(TruncateSnippet(cleanText(r.Snippet)))
		if r.Title == "" || r.URL == "" {
			continue
		}
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
		if len(out) >= max {
			break
		}
	}
	return out
}

// Dedupe removes records whose (link, title) pair was already seen, keeping
// first-seen order. Records are compared as given.
func Dedupe(results []search.Result) []search.Result {
	seen := map[string]struct{}{}
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// TruncateSnippet cuts s to MaxSnippetRunes runes and appends Ellipsis when
// anything was removed. The result of a cut is never cut further.
func TruncateSnippet(s string) string {
	if utf8.RuneCountInString(s) <= MaxSnippetRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxSnippetRunes {
			return s[:i] + Ellipsis
		}
		n++
	}
	return s
}

func key(r search.Result) string { return r.URL + "\x00" + r.Title }

// cleanText decodes entities, applies NFC and collapses whitespace runs.
func cleanText(s string) string {
	s = html.UnescapeString(s)
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

func escape(s string) string { return html.EscapeString(s) }
