package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	ddgDefaultBaseURL = "https://api.duckduckgo.com/"
	ddgMaxResults     = 10
)

// DuckDuckGo implements the alternative tier against the Instant Answer API.
type DuckDuckGo struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Attempt never lets a network or decode error escape as anything other than
// a Failure outcome.
func (d *DuckDuckGo) Attempt(ctx context.Context, query string) Outcome {
	results, err := d.Search(ctx, query, ddgMaxResults)
	if err != nil {
		return Failure(err)
	}
	return Success(results)
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = ddgMaxResults
	}
	base := d.BaseURL
	if base == "" {
		base = ddgDefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("duckduckgo status: %d", resp.StatusCode)
	}
	var payload ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("duckduckgo: decode response: %w", err)
	}

	// Entries missing either field are dropped before the cap applies.
	out := make([]Result, 0, limit)
	var walk func(topics []ddgTopic)
	walk = func(topics []ddgTopic) {
		for _, t := range topics {
			if len(out) >= limit {
				return
			}
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			text := strings.TrimSpace(t.Text)
			link := strings.TrimSpace(t.FirstURL)
			if text == "" || link == "" {
				continue
			}
			out = append(out, Result{
				Title:   text,
				URL:     link,
				Snippet: text,
				Source:  d.Name(),
			})
		}
	}
	walk(payload.RelatedTopics)
	return out, nil
}
