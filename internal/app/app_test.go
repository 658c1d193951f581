package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/gsearch/internal/search"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.QuotaStore = "memory"
	return cfg
}

func TestNew_PrimaryServesAndCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" || r.URL.Query().Get("hl") != "id" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"title":"Gatotkaca","link":"https://id.wikipedia.org/wiki/Gatotkaca","snippet":"Ksatria"}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.GoogleAPIKey, cfg.GoogleCX, cfg.GoogleURL = "k", "cx", srv.URL
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	resp, err := a.Search(context.Background(), "gatotkaca", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Source != search.TierPrimary || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	st, limit := a.Quota(context.Background())
	if st.Count != 1 || limit != 100 {
		t.Fatalf("quota = %+v/%d", st, limit)
	}
	a.ResetQuota(context.Background())
	if st, _ := a.Quota(context.Background()); st.Count != 0 {
		t.Fatalf("reset did not clear count: %+v", st)
	}
}

func TestNew_NoCredentialsUsesAlternative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"RelatedTopics":[{"Text":"Borobudur","FirstURL":"https://duckduckgo.com/Borobudur"}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.DDGURL = srv.URL
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	resp, err := a.Search(context.Background(), "borobudur", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Source != search.TierAlternative || !resp.IsAlternative {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestNew_FetchPageFeedsScrape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ddg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><div class="g"><a href="/url?q=https://kompas.com/a&amp;sa=U"><h3>Kompas</h3></a><div class="VwiC3b">Berita</div></div></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.DDGURL = srv.URL + "/ddg"
	cfg.EmbedURL = srv.URL + "/search"
	cfg.FetchPage = true
	cfg.CacheDir = filepath.Join(t.TempDir(), "pages")
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	resp, err := a.Search(context.Background(), "kompas", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Source != search.TierRawScrape || len(resp.Results) != 1 || resp.Results[0].URL != "https://kompas.com/a" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestNew_EmbedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.DDGURL = srv.URL
	cfg.Region = "id"
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	resp, err := a.Search(context.Background(), "wayang kulit", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !resp.Embedded() || !strings.Contains(resp.EmbedURL, "gl=ID") || !strings.Contains(resp.EmbedURL, "hl=id") {
		t.Fatalf("unexpected embed: %+v", resp)
	}
}

func TestNew_BadgerStorePersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"title":"A","link":"https://a.test/"}]}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.GoogleAPIKey, cfg.GoogleCX, cfg.GoogleURL = "k", "cx", srv.URL
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := a.Search(context.Background(), "a", nil); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	if st, _ := b.Quota(context.Background()); st.Count != 1 {
		t.Fatalf("count after reopen = %d, want 1", st.Count)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.QuotaStore = "nope"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPrimaryEnabled_NeedsBothCredentials(t *testing.T) {
	cases := []struct {
		key, cx string
		want    bool
	}{
		{"k", "cx", true},
		{"k", "", false},
		{"", "cx", false},
		{"k", "  ", false},
	}
	for _, tc := range cases {
		cfg := Config{GoogleAPIKey: tc.key, GoogleCX: tc.cx}
		if got := primaryEnabled(cfg); got != tc.want {
			t.Fatalf("key=%q cx=%q: got %v, want %v", tc.key, tc.cx, got, tc.want)
		}
	}
}

func TestNew_KeyWithoutEngineIDRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.GoogleAPIKey = "k"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for key without engine id")
	}
}
