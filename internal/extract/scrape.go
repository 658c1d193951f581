package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gsearch/internal/aggregate"
	"github.com/hyperifyio/gsearch/internal/search"
)

const scrapeDefaultBaseURL = "https://www.google.com/"

// RawPageScraper extracts results from a results page the caller already
// fetched. It never fetches anything itself.
type RawPageScraper struct {
	// BaseURL resolves relative links found in the page.
	BaseURL string
	// Policy filters links; the zero value uses search.DefaultDenylist.
	Policy *search.DomainPolicy
	// Strategies are tried in order; nil means DefaultStrategies().
	Strategies []Strategy
	MaxResults int
}

func (s *RawPageScraper) Name() string { return "rawscrape" }

// Attempt scrapes page into an outcome. Unparseable markup is a Failure, a
// page with no surviving candidates is Empty.
func (s *RawPageScraper) Attempt(ctx context.Context, page []byte) search.Outcome {
	if err := ctx.Err(); err != nil {
		return search.Failure(err)
	}
	results, err := s.Scrape(page)
	if err != nil {
		return search.Failure(err)
	}
	return search.Success(results)
}

// Scrape runs the first strategy that recognizes the page, then validates,
// filters, de-duplicates and caps the candidates.
func (s *RawPageScraper) Scrape(page []byte) ([]search.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	base, err := url.Parse(s.baseURL())
	if err != nil {
		return nil, fmt.Errorf("invalid scrape base url: %w", err)
	}
	strategies := s.Strategies
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	var cands []Candidate
	for _, st := range strategies {
		got, matched := st.Extract(doc)
		if !matched {
			continue
		}
		log.Debug().Str("strategy", st.Name()).Int("candidates", len(got)).Msg("results page layout matched")
		cands = got
		break
	}

	policy := s.policy()
	out := make([]search.Result, 0, len(cands))
	for _, c := range cands {
		link, ok := resolveLink(base, c.Href)
		if !ok || !policy.Allows(link) {
			continue
		}
		out = append(out, search.Result{
			Title:   c.Title,
			URL:     link,
			Snippet: aggregate.TruncateSnippet(c.Snippet),
			Source:  s.Name(),
		})
	}
	out = aggregate.Dedupe(out)
	max := s.MaxResults
	if max <= 0 {
		max = aggregate.DefaultMaxResults
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *RawPageScraper) baseURL() string {
	if strings.TrimSpace(s.BaseURL) == "" {
		return scrapeDefaultBaseURL
	}
	return s.BaseURL
}

func (s *RawPageScraper) policy() search.DomainPolicy {
	if s.Policy != nil {
		return *s.Policy
	}
	return search.DomainPolicy{Denylist: search.DefaultDenylist}
}

// providerHosts recognises the search provider's own domains.
var providerHosts = search.DomainPolicy{Denylist: search.DefaultDenylist}

// resolveLink makes href absolute against base and unwraps the provider's
// "/url?q=" redirect links to their target. Third-party "/url" paths are kept
// as they are. Only http(s) URLs with a host are accepted.
func resolveLink(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Path == "/url" && isRedirector(base, u) {
		target := u.Query().Get("q")
		if target == "" {
			target = u.Query().Get("url")
		}
		if target != "" {
			if t, err := url.Parse(target); err == nil {
				u = t
			}
		}
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func isRedirector(base, u *url.URL) bool {
	if strings.EqualFold(u.Hostname(), base.Hostname()) {
		return true
	}
	return !providerHosts.Allows(u.String())
}
