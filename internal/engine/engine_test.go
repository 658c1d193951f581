package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperifyio/gsearch/internal/extract"
	"github.com/hyperifyio/gsearch/internal/metrics"
	"github.com/hyperifyio/gsearch/internal/quota"
	"github.com/hyperifyio/gsearch/internal/search"
)

type fakeProvider struct {
	name  string
	out   search.Outcome
	block bool
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Attempt(ctx context.Context, query string) search.Outcome {
	f.calls++
	if f.block {
		<-ctx.Done()
		return search.Failure(ctx.Err())
	}
	return f.out
}

type fakeScraper struct {
	out   search.Outcome
	calls int
}

func (f *fakeScraper) Attempt(ctx context.Context, page []byte) search.Outcome {
	f.calls++
	return f.out
}

func results(n int, prefix string) []search.Result {
	out := make([]search.Result, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, search.Result{
			Title:   fmt.Sprintf("%s %d", prefix, i),
			URL:     fmt.Sprintf("https://example.com/%s/%d", prefix, i),
			Snippet: "snippet",
		})
	}
	return out
}

func newTracker(t *testing.T, count int) *quota.Tracker {
	t.Helper()
	ctx := context.Background()
	tr := quota.NewTracker(ctx, quota.NewMemoryStore())
	for i := 0; i < count; i++ {
		tr.Increment(ctx)
	}
	return tr
}

func tiers(trace []Attempt) []string {
	var out []string
	for _, a := range trace {
		out = append(out, a.Tier.String()+":"+a.Outcome.String())
	}
	return out
}

func TestSearch_EmptyQuery(t *testing.T) {
	primary := &fakeProvider{name: "p", out: search.Success(results(1, "p"))}
	o := &Orchestrator{Primary: primary}
	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := o.Search(context.Background(), q, nil); !errors.Is(err, ErrEmptyQuery) {
			t.Fatalf("query %q: expected ErrEmptyQuery, got %v", q, err)
		}
	}
	if primary.calls != 0 {
		t.Fatalf("no tier should run for an empty query, primary ran %d times", primary.calls)
	}
}

func TestSearch_PrimarySuccessCapsAndIncrements(t *testing.T) {
	tr := newTracker(t, 0)
	primary := &fakeProvider{name: "google", out: search.Success(results(12, "gatotkaca"))}
	alt := &fakeProvider{name: "ddg"}
	o := &Orchestrator{Quota: tr, Primary: primary, Alternative: alt}

	resp, err := o.Search(context.Background(), "gatotkaca", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(resp.Results))
	}
	if resp.Source != search.TierPrimary || resp.IsAlternative || resp.Embedded() {
		t.Fatalf("unexpected response shape: %+v", resp)
	}
	if got := tr.CurrentCount(context.Background()); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
	if resp.Remaining != 99 || resp.Limit != 100 {
		t.Fatalf("expected remaining 99/100, got %d/%d", resp.Remaining, resp.Limit)
	}
	if alt.calls != 0 {
		t.Fatalf("alternative must not run after primary success")
	}
	if resp.RunID == "" {
		t.Fatalf("expected run id")
	}
}

func TestSearch_ExhaustedQuotaSkipsPrimary(t *testing.T) {
	tr := newTracker(t, 100)
	primary := &fakeProvider{name: "google", out: search.Success(results(3, "p"))}
	alt := &fakeProvider{name: "ddg", out: search.Success(results(2, "a"))}
	o := &Orchestrator{Quota: tr, Primary: primary, Alternative: alt}

	resp, err := o.Search(context.Background(), "wayang", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("primary must not run when quota is exhausted")
	}
	if resp.Source != search.TierAlternative || !resp.IsAlternative || len(resp.Results) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := tr.CurrentCount(context.Background()); got != 100 {
		t.Fatalf("count must stay 100, got %d", got)
	}
}

func TestSearch_PrimaryFailureFallsToAlternativeWithoutIncrement(t *testing.T) {
	for name, out := range map[string]search.Outcome{
		"failure": search.Failure(errors.New("status 500")),
		"empty":   search.Empty(),
		// Records that do not survive normalization count as no results.
		"unusable": {Kind: search.OutcomeSuccess, Results: []search.Result{{Title: "", URL: "https://x.test"}}},
	} {
		t.Run(name, func(t *testing.T) {
			tr := newTracker(t, 5)
			primary := &fakeProvider{name: "google", out: out}
			alt := &fakeProvider{name: "ddg", out: search.Success(results(1, "a"))}
			o := &Orchestrator{Quota: tr, Primary: primary, Alternative: alt}
			resp, err := o.Search(context.Background(), "batik", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Source != search.TierAlternative {
				t.Fatalf("expected alternative, got %v", resp.Source)
			}
			if got := tr.CurrentCount(context.Background()); got != 5 {
				t.Fatalf("count must stay 5, got %d", got)
			}
			if len(resp.Trace) != 2 || resp.Trace[0].Tier != search.TierPrimary || resp.Trace[0].Outcome == search.OutcomeSuccess {
				t.Fatalf("unexpected trace: %v", tiers(resp.Trace))
			}
		})
	}
}

func TestSearch_AllFailNoPageEmbeds(t *testing.T) {
	tr := newTracker(t, 0)
	primary := &fakeProvider{name: "google", out: search.Failure(errors.New("down"))}
	alt := &fakeProvider{name: "ddg", out: search.Empty()}
	scraper := &fakeScraper{out: search.Success(results(1, "s"))}
	o := &Orchestrator{Quota: tr, Primary: primary, Alternative: alt, Scraper: scraper}

	resp, err := o.Search(context.Background(), "candi borobudur", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scraper.calls != 0 {
		t.Fatalf("scrape tier must be skipped without a page")
	}
	if !resp.Embedded() || resp.Source != search.TierEmbedded || !resp.IsAlternative {
		t.Fatalf("expected embed directive, got %+v", resp)
	}
	if !strings.Contains(resp.EmbedURL, "q=candi+borobudur") || !strings.Contains(resp.EmbedURL, "gl=ID") {
		t.Fatalf("unexpected embed url %q", resp.EmbedURL)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("embed directive must carry no results")
	}
	if got := tr.CurrentCount(context.Background()); got != 0 {
		t.Fatalf("count must stay 0, got %d", got)
	}
	want := []string{"primary:failure", "alternative:empty", "embedded:success"}
	if got := tiers(resp.Trace); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("trace = %v, want %v", got, want)
	}
}

func TestSearch_RawScrapeWithPage(t *testing.T) {
	primary := &fakeProvider{name: "google", out: search.Empty()}
	alt := &fakeProvider{name: "ddg", out: search.Failure(errors.New("bad json"))}
	scraper := &fakeScraper{out: search.Success(results(4, "s"))}
	o := &Orchestrator{Primary: primary, Alternative: alt, Scraper: scraper}

	resp, err := o.Search(context.Background(), "rendang", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != search.TierRawScrape || !resp.IsAlternative || len(resp.Results) != 4 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Limit != 0 {
		t.Fatalf("no quota configured, limit should be zero")
	}
}

func TestSearch_RawScrapeEmptyEmbeds(t *testing.T) {
	alt := &fakeProvider{name: "ddg", out: search.Empty()}
	scraper := &fakeScraper{out: search.Empty()}
	o := &Orchestrator{Alternative: alt, Scraper: scraper, Embed: search.EmbedPage{BaseURL: "https://search.test/q"}}

	resp, err := o.Search(context.Background(), "sate", []byte("<html><body>nothing</body></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scraper.calls != 1 {
		t.Fatalf("expected one scrape attempt, got %d", scraper.calls)
	}
	if !strings.HasPrefix(resp.EmbedURL, "https://search.test/q?") {
		t.Fatalf("unexpected embed url %q", resp.EmbedURL)
	}
}

func TestSearch_TierTimeoutIsFailure(t *testing.T) {
	tr := newTracker(t, 0)
	primary := &fakeProvider{name: "google", block: true}
	alt := &fakeProvider{name: "ddg", out: search.Success(results(1, "a"))}
	o := &Orchestrator{Quota: tr, Primary: primary, Alternative: alt, TierTimeout: 20 * time.Millisecond}

	start := time.Now()
	resp, err := o.Search(context.Background(), "gamelan", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout did not bound the primary attempt")
	}
	if resp.Source != search.TierAlternative {
		t.Fatalf("expected alternative after timeout, got %v", resp.Source)
	}
	if resp.Trace[0].Outcome != search.OutcomeFailure || resp.Trace[0].Reason == "" {
		t.Fatalf("expected primary failure with reason, got %+v", resp.Trace[0])
	}
	if got := tr.CurrentCount(context.Background()); got != 0 {
		t.Fatalf("timeout must not increment, got %d", got)
	}
}

func TestSearch_RecordsMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	o := &Orchestrator{
		Quota:       newTracker(t, 0),
		Primary:     &fakeProvider{name: "google", out: search.Failure(errors.New("x"))},
		Alternative: &fakeProvider{name: "ddg", out: search.Success(results(1, "a"))},
		Metrics:     rec,
	}
	if _, err := o.Search(context.Background(), "keris", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := testutil.GatherAndCount(rec.Registry(), "gsearch_tier_attempts_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tier attempt series, got %d", n)
	}
}

func TestStateString(t *testing.T) {
	if CheckingQuota.String() != "checking_quota" || Done.String() != "done" || State(99).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
}

// End to end over the real providers against local servers.
func TestSearch_RealProviders(t *testing.T) {
	gsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota"}}`))
	}))
	defer gsrv.Close()
	dsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"RelatedTopics":[
			{"Text":"Gatotkaca - wayang","FirstURL":"https://id.wikipedia.org/wiki/Gatotkaca"},
			{"Text":"No link"},
			{"Name":"More","Topics":[{"Text":"Pandawa","FirstURL":"https://id.wikipedia.org/wiki/Pandawa"}]}
		]}`))
	}))
	defer dsrv.Close()

	tr := newTracker(t, 0)
	o := &Orchestrator{
		Quota:       tr,
		Primary:     &search.Google{BaseURL: gsrv.URL, APIKey: "k", EngineID: "cx", HTTPClient: gsrv.Client()},
		Alternative: &search.DuckDuckGo{BaseURL: dsrv.URL, HTTPClient: dsrv.Client()},
		Scraper:     &extract.RawPageScraper{},
	}
	resp, err := o.Search(context.Background(), "gatotkaca", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != search.TierAlternative || len(resp.Results) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Results[0].URL != "https://id.wikipedia.org/wiki/Gatotkaca" || resp.Results[1].Title != "Pandawa" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if tr.CurrentCount(context.Background()) != 0 {
		t.Fatalf("alternative tier must not count against quota")
	}
}

type fakePages struct {
	page  []byte
	err   error
	calls int
}

func (f *fakePages) Load(ctx context.Context, query string) ([]byte, error) {
	f.calls++
	return f.page, f.err
}

func TestSearch_PageLoaderFeedsScrape(t *testing.T) {
	alt := &fakeProvider{name: "ddg", out: search.Empty()}
	scraper := &fakeScraper{out: search.Success(results(2, "s"))}
	pages := &fakePages{page: []byte("<html></html>")}
	o := &Orchestrator{Alternative: alt, Scraper: scraper, Pages: pages}

	resp, err := o.Search(context.Background(), "angklung", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pages.calls != 1 || resp.Source != search.TierRawScrape {
		t.Fatalf("expected loaded page to be scraped, calls=%d source=%v", pages.calls, resp.Source)
	}
}

func TestSearch_PageLoaderSkippedWhenPageGiven(t *testing.T) {
	scraper := &fakeScraper{out: search.Success(results(1, "s"))}
	pages := &fakePages{page: []byte("<html>other</html>")}
	o := &Orchestrator{Scraper: scraper, Pages: pages}
	if _, err := o.Search(context.Background(), "angklung", []byte("<html></html>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pages.calls != 0 {
		t.Fatalf("loader must not run when a page was supplied")
	}
}

func TestSearch_PageLoaderFailureEmbeds(t *testing.T) {
	scraper := &fakeScraper{out: search.Success(results(1, "s"))}
	pages := &fakePages{err: errors.New("blocked")}
	o := &Orchestrator{Scraper: scraper, Pages: pages}
	resp, err := o.Search(context.Background(), "angklung", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scraper.calls != 0 || !resp.Embedded() {
		t.Fatalf("expected embed after failed page load, got %+v", resp)
	}
}
