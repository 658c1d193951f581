package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Result represents a single search hit from any tier.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"-"` // provider name for observability
}

// Tier is one stage of the fallback ladder. Tiers are attempted in
// declaration order.
type Tier int

const (
	TierPrimary Tier = iota
	TierAlternative
	TierRawScrape
	TierEmbedded
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierAlternative:
		return "alternative"
	case TierRawScrape:
		return "rawscrape"
	case TierEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	for c := TierPrimary; c <= TierEmbedded; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", b)
}

// OutcomeKind tags the result of one provider attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeEmpty
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for c := OutcomeSuccess; c <= OutcomeFailure; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Outcome is what a provider returns instead of raising: results on success,
// nothing on empty, a reason on failure.
type Outcome struct {
	Kind    OutcomeKind
	Results []Result
	Err     error
}

// Success wraps results. An empty slice is reported as Empty so callers never
// see a successful outcome without records.
func Success(results []Result) Outcome {
	if len(results) == 0 {
		return Empty()
	}
	return Outcome{Kind: OutcomeSuccess, Results: results}
}

func Empty() Outcome { return Outcome{Kind: OutcomeEmpty} }

func Failure(err error) Outcome { return Outcome{Kind: OutcomeFailure, Err: err} }

// Provider is a query-driven tier. Attempt must not panic or block past ctx.
type Provider interface {
	Name() string
	Attempt(ctx context.Context, query string) Outcome
}

// DomainPolicy allows providers to filter results by host.
// Denylist takes precedence over Allowlist; an empty Allowlist allows all.
type DomainPolicy struct {
	Allowlist []string
	Denylist  []string
}

// DefaultDenylist holds the search provider's own infrastructure hosts, which
// never count as third-party results.
var DefaultDenylist = []string{
	"google.com",
	"gstatic.com",
	"google.co.id",
	"translate.google",
	"maps.google",
	"webcache.google",
	"googleusercontent.com",
}

// Allows reports whether rawURL is an absolute http(s) URL whose host passes
// the policy.
func (p DomainPolicy) Allows(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range p.Denylist {
		if hostMatches(host, d) {
			return false
		}
	}
	if len(p.Allowlist) == 0 {
		return true
	}
	for _, a := range p.Allowlist {
		if hostMatches(host, a) {
			return true
		}
	}
	return false
}

// hostMatches matches pattern against host on label boundaries, so
// "google.com" covers "www.google.com" and "translate.google" covers
// "translate.google.co.id", while "notgoogle.com" stays allowed.
func hostMatches(host, pattern string) bool {
	pattern = strings.Trim(strings.ToLower(strings.TrimSpace(pattern)), ".")
	if pattern == "" {
		return false
	}
	if host == pattern {
		return true
	}
	if strings.HasSuffix(host, "."+pattern) || strings.HasPrefix(host, pattern+".") {
		return true
	}
	return strings.Contains(host, "."+pattern+".")
}
