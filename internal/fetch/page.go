package fetch

import (
	"context"
	"strings"
)

// PageSource builds the results-page address for a query.
type PageSource interface {
	URL(query string) string
}

// PageLoader fetches the provider's own results page for a query so the raw
// scrape tier has markup to work on.
type PageLoader struct {
	Client *Client
	Source PageSource
}

// Load returns the results page for query.
func (l *PageLoader) Load(ctx context.Context, query string) ([]byte, error) {
	body, _, err := l.Client.Get(ctx, l.Source.URL(strings.TrimSpace(query)))
	return body, err
}
