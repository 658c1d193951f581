package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	googleDefaultBaseURL = "https://www.googleapis.com/customsearch/v1"
	googleMaxResults     = 10
)

// Google implements the primary tier against the Custom Search JSON API.
type Google struct {
	BaseURL  string
	APIKey   string
	EngineID string // the "cx" parameter
	// Locale is a BCP 47 tag such as "id" or "en-US"; it drives lr and hl.
	Locale string
	// Region overrides the gl parameter; when empty the locale's region is
	// used, falling back to "id".
	Region     string
	HTTPClient *http.Client
	UserAgent  string
}

func (g *Google) Name() string { return "google" }

// Attempt runs one primary-tier query. A non-2xx status or an error envelope
// is a Failure, an empty item list is Empty.
func (g *Google) Attempt(ctx context.Context, query string) Outcome {
	results, err := g.Search(ctx, query, googleMaxResults)
	if err != nil {
		return Failure(err)
	}
	return Success(results)
}

func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(g.APIKey) == "" || strings.TrimSpace(g.EngineID) == "" {
		return nil, errors.New("google: api key and engine id are required")
	}
	if limit <= 0 || limit > googleMaxResults {
		limit = googleMaxResults
	}
	base := g.BaseURL
	if base == "" {
		base = googleDefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("google: invalid base url: %w", err)
	}
	lr, hl, gl := LocaleParams(g.Locale, g.Region)
	q := u.Query()
	q.Set("key", g.APIKey)
	q.Set("cx", g.EngineID)
	q.Set("q", query)
	q.Set("lr", lr)
	q.Set("gl", gl)
	q.Set("hl", hl)
	q.Set("num", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}
	hc := g.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: request failed: %w", err)
	}
	defer resp.Body.Close()

	var gr googleResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&gr)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && gr.Error != nil && gr.Error.Message != "" {
			return nil, fmt.Errorf("google status %d: %s", resp.StatusCode, gr.Error.Message)
		}
		return nil, fmt.Errorf("google status: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("google: decode response: %w", decodeErr)
	}
	if gr.Error != nil {
		return nil, fmt.Errorf("google api error: %s", gr.Error.Message)
	}

	out := make([]Result, 0, len(gr.Items))
	for _, it := range gr.Items {
		title := strings.TrimSpace(it.Title)
		link := strings.TrimSpace(it.Link)
		if title == "" || link == "" {
			continue
		}
		out = append(out, Result{
			Title:   title,
			URL:     link,
			Snippet: strings.TrimSpace(it.Snippet),
			Source:  g.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// LocaleParams derives the lr, hl and gl request parameters from a BCP 47
// locale and an optional region override. Unparseable input falls back to
// Indonesian.
func LocaleParams(locale, region string) (lr, hl, gl string) {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || tag == language.Und {
		tag = language.Indonesian
	}
	base, _ := tag.Base()
	hl = base.String()
	lr = "lang_" + hl
	gl = strings.ToLower(strings.TrimSpace(region))
	if gl == "" {
		if r, conf := tag.Region(); conf == language.Exact {
			gl = strings.ToLower(r.String())
		}
	}
	if gl == "" {
		gl = "id"
	}
	return lr, hl, gl
}
