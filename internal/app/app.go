package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gsearch/internal/cache"
	"github.com/hyperifyio/gsearch/internal/engine"
	"github.com/hyperifyio/gsearch/internal/extract"
	"github.com/hyperifyio/gsearch/internal/fetch"
	"github.com/hyperifyio/gsearch/internal/metrics"
	"github.com/hyperifyio/gsearch/internal/quota"
	"github.com/hyperifyio/gsearch/internal/search"
)

// App wires configuration into a ready search engine.
type App struct {
	cfg     Config
	store   quota.Store
	tracker *quota.Tracker
	engine  *engine.Orchestrator
	metrics *metrics.Recorder
}

// New opens the quota store and builds every tier from cfg.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	tracker := quota.NewTracker(ctx, store, quota.WithLimit(cfg.DailyLimit))

	hc := newHTTPClient(cfg.TierTimeout, cfg.SSLVerify)
	rec := metrics.NewRecorder()
	embed := search.EmbedPage{BaseURL: cfg.EmbedURL, Region: strings.ToUpper(cfg.Region)}
	if _, hl, _ := search.LocaleParams(cfg.Locale, cfg.Region); hl != "" {
		embed.Language = hl
	}

	denylist := append(append([]string{}, search.DefaultDenylist...), cfg.DomainDenylist...)
	policy := &search.DomainPolicy{Allowlist: cfg.DomainAllowlist, Denylist: denylist}

	eng := &engine.Orchestrator{
		Quota:       tracker,
		Alternative: &search.DuckDuckGo{BaseURL: cfg.DDGURL, HTTPClient: hc, UserAgent: cfg.UserAgent},
		Scraper:     &extract.RawPageScraper{Policy: policy, MaxResults: cfg.MaxResults},
		Embed:       embed,
		TierTimeout: cfg.TierTimeout,
		MaxResults:  cfg.MaxResults,
		Metrics:     rec,
	}
	if primaryEnabled(cfg) {
		eng.Primary = &search.Google{
			BaseURL:    cfg.GoogleURL,
			APIKey:     cfg.GoogleAPIKey,
			EngineID:   cfg.GoogleCX,
			Locale:     cfg.Locale,
			Region:     cfg.Region,
			HTTPClient: hc,
			UserAgent:  cfg.UserAgent,
		}
	} else {
		log.Info().Msg("no google credentials; primary tier disabled")
	}
	if cfg.FetchPage {
		client := &fetch.Client{
			HTTPClient:        hc,
			UserAgent:         cfg.UserAgent,
			MaxAttempts:       2,
			PerRequestTimeout: cfg.TierTimeout,
			MaxAge:            cfg.CacheMaxAge,
		}
		if cfg.CacheDir != "" {
			client.Cache = &cache.PageCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
		}
		eng.Pages = &fetch.PageLoader{Client: client, Source: embed}
	}

	return &App{cfg: cfg, store: store, tracker: tracker, engine: eng, metrics: rec}, nil
}

// primaryEnabled reports whether both Custom Search credentials are present.
func primaryEnabled(cfg Config) bool {
	return strings.TrimSpace(cfg.GoogleAPIKey) != "" && strings.TrimSpace(cfg.GoogleCX) != ""
}

func openStore(cfg Config) (quota.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.QuotaStore)) {
	case "memory":
		return quota.NewMemoryStore(), nil
	case "file":
		return &quota.FileStore{Dir: cfg.StateDir}, nil
	case "redis":
		s, err := quota.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis quota store: %w", err)
		}
		return s, nil
	default:
		s, err := quota.OpenBadgerStore(filepath.Join(cfg.StateDir, "quota"), false)
		if err != nil {
			return nil, fmt.Errorf("open badger quota store: %w", err)
		}
		return s, nil
	}
}

// Search runs one query through the tier ladder.
func (a *App) Search(ctx context.Context, query string, page []byte) (engine.Response, error) {
	return a.engine.Search(ctx, query, page)
}

// Quota reports today's primary-tier usage.
func (a *App) Quota(ctx context.Context) (quota.State, int) {
	return a.tracker.Snapshot(ctx), a.tracker.Limit()
}

// ResetQuota clears today's counter.
func (a *App) ResetQuota(ctx context.Context) {
	a.tracker.Reset(ctx)
	log.Info().Msg("quota counter reset")
}

// Metrics exposes the recorder for export.
func (a *App) Metrics() *metrics.Recorder { return a.metrics }

// Config returns the effective configuration.
func (a *App) Config() Config { return a.cfg }

// Close releases the quota store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
