package search

import (
	"net/url"
	"strings"
)

const embedDefaultBaseURL = "https://www.google.com/search"

// EmbedPage builds the last-resort directive: the provider's own results page
// for the query, for the caller to show in an embedded frame. It never fails.
type EmbedPage struct {
	BaseURL  string
	Region   string // gl, default "ID"
	Language string // hl, default "id"
}

// URL returns the results page address for query.
func (e EmbedPage) URL(query string) string {
	base := strings.TrimSpace(e.BaseURL)
	if base == "" {
		base = embedDefaultBaseURL
	}
	gl := strings.TrimSpace(e.Region)
	if gl == "" {
		gl = "ID"
	}
	hl := strings.TrimSpace(e.Language)
	if hl == "" {
		hl = "id"
	}
	v := url.Values{}
	v.Set("q", query)
	v.Set("gl", gl)
	v.Set("hl", hl)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + v.Encode()
}
