package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/gsearch/internal/app"
	"github.com/hyperifyio/gsearch/internal/cache"
	"github.com/hyperifyio/gsearch/internal/engine"
	"github.com/hyperifyio/gsearch/internal/search"
)

var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	envFiles   []string
	verbose    bool

	googleKey   string
	googleCX    string
	googleURL   string
	ddgURL      string
	embedURL    string
	locale      string
	region      string
	dailyLimit  int
	quotaStore  string
	stateDir    string
	redisURL    string
	allow       string
	deny        string
	maxResults  int
	tierTimeout time.Duration
	cacheDir    string
	cacheMaxAge time.Duration
	cacheStrict bool
	sslVerify   bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "gsearch",
		Short:         "Tiered web search with quota-aware fallbacks",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to YAML or JSON config file")
	pf.StringSliceVar(&opts.envFiles, "env", []string{".env"}, "Dotenv files to load before reading the environment")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	pf.StringVar(&opts.googleKey, "google.key", "", "Custom Search API key")
	pf.StringVar(&opts.googleCX, "google.cx", "", "Custom Search engine id")
	pf.StringVar(&opts.googleURL, "google.url", "", "Custom Search endpoint override")
	pf.StringVar(&opts.ddgURL, "ddg.url", "", "DuckDuckGo Instant Answer endpoint override")
	pf.StringVar(&opts.embedURL, "embed.url", "", "Results page base URL for embedding and page fetches")
	pf.StringVar(&opts.locale, "locale", "id", "Result language as a BCP 47 tag")
	pf.StringVar(&opts.region, "region", "", "Result region (gl), defaults to the locale's region or ID")
	pf.IntVar(&opts.dailyLimit, "quota.limit", 0, "Primary queries allowed per day (0 uses 100)")
	pf.StringVar(&opts.quotaStore, "quota.store", "badger", "Quota store: badger, file, memory or redis")
	pf.StringVar(&opts.stateDir, "quota.dir", ".gsearch", "Directory for the quota store")
	pf.StringVar(&opts.redisURL, "quota.redis", "", "Redis URL for a shared quota store")
	pf.StringVar(&opts.allow, "domains.allow", "", "Comma separated hosts scraped results must match")
	pf.StringVar(&opts.deny, "domains.deny", "", "Comma separated hosts dropped from scraped results")
	pf.IntVar(&opts.maxResults, "max.results", 0, "Result cap (0 uses 10)")
	pf.DurationVar(&opts.tierTimeout, "tier.timeout", 10*time.Second, "Timeout for each tier attempt")
	pf.StringVar(&opts.cacheDir, "cache.dir", ".gsearch-cache", "Results page cache directory")
	pf.DurationVar(&opts.cacheMaxAge, "cache.maxAge", 0, "Serve cached pages younger than this without revalidating")
	pf.BoolVar(&opts.cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	pf.BoolVar(&opts.sslVerify, "ssl.verify", true, "Verify TLS certificates")

	root.AddCommand(newSearchCmd(opts), newQuotaCmd(opts), newCategoriesCmd(opts), newCacheCmd(opts), newVersionCmd())
	return root
}

// loadConfig layers defaults, the config file, the environment and finally
// explicitly set flags.
func loadConfig(cmd *cobra.Command, opts *options) (app.Config, error) {
	if err := app.LoadEnvFiles(opts.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.DefaultConfig()
	if opts.configPath != "" {
		fc, err := app.LoadConfigFile(opts.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvToConfig(&cfg)

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("google.key", func() { cfg.GoogleAPIKey = opts.googleKey })
	set("google.cx", func() { cfg.GoogleCX = opts.googleCX })
	set("google.url", func() { cfg.GoogleURL = opts.googleURL })
	set("ddg.url", func() { cfg.DDGURL = opts.ddgURL })
	set("embed.url", func() { cfg.EmbedURL = opts.embedURL })
	set("locale", func() { cfg.Locale = opts.locale })
	set("region", func() { cfg.Region = opts.region })
	set("quota.limit", func() { cfg.DailyLimit = opts.dailyLimit })
	set("quota.store", func() { cfg.QuotaStore = opts.quotaStore })
	set("quota.dir", func() { cfg.StateDir = opts.stateDir })
	set("quota.redis", func() { cfg.RedisURL = opts.redisURL })
	set("domains.allow", func() { cfg.DomainAllowlist = splitCSV(opts.allow) })
	set("domains.deny", func() { cfg.DomainDenylist = append(cfg.DomainDenylist, splitCSV(opts.deny)...) })
	set("max.results", func() { cfg.MaxResults = opts.maxResults })
	set("tier.timeout", func() { cfg.TierTimeout = opts.tierTimeout })
	set("cache.dir", func() { cfg.CacheDir = opts.cacheDir })
	set("cache.maxAge", func() { cfg.CacheMaxAge = opts.cacheMaxAge })
	set("cache.strictPerms", func() { cfg.CacheStrictPerms = opts.cacheStrict })
	set("ssl.verify", func() { cfg.SSLVerify = opts.sslVerify })
	if opts.verbose {
		cfg.Verbose = true
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		pagePath   string
		fetchPage  bool
		category   string
		asJSON     bool
		metricsOut string
	)
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search through the tier ladder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fetch-page") {
				cfg.FetchPage = fetchPage
			}
			query := strings.Join(args, " ")
			if category != "" {
				if query, err = cfg.CategoryQuery(category); err != nil {
					return err
				}
			}
			var page []byte
			if pagePath != "" {
				if page, err = os.ReadFile(pagePath); err != nil {
					return fmt.Errorf("read page: %w", err)
				}
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Search(cmd.Context(), query, page)
			if err != nil {
				return err
			}
			if metricsOut != "" {
				if err := a.Metrics().WriteTextfile(metricsOut); err != nil {
					log.Warn().Err(err).Str("path", metricsOut).Msg("metrics write failed")
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&pagePath, "page", "", "Raw results page HTML to scrape when API tiers fail")
	cmd.Flags().BoolVar(&fetchPage, "fetch-page", false, "Fetch the results page for the scrape tier when API tiers fail")
	cmd.Flags().StringVar(&category, "category", "", "Search a preset category instead of a query")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")
	cmd.Flags().StringVar(&metricsOut, "metrics.out", "", "Write Prometheus metrics to this textfile")
	return cmd
}

var (
	primaryLabel = color.New(color.FgGreen, color.Bold)
	altLabel     = color.New(color.FgYellow, color.Bold)
	embedLabel   = color.New(color.FgMagenta, color.Bold)
	dim          = color.New(color.Faint)
)

func printResponse(w io.Writer, resp engine.Response) {
	switch {
	case resp.Embedded():
		embedLabel.Fprintf(w, "[%s]", resp.Source)
		fmt.Fprintf(w, " no results; open the results page:\n%s\n", resp.EmbedURL)
	default:
		label := primaryLabel
		if resp.IsAlternative {
			label = altLabel
		}
		label.Fprintf(w, "[%s]", resp.Source)
		fmt.Fprintf(w, " %d results for %q\n\n", len(resp.Results), resp.Query)
		for i, r := range resp.Results {
			fmt.Fprintf(w, "%2d. %s\n    %s\n", i+1, r.Title, r.URL)
			if r.Snippet != "" {
				dim.Fprintf(w, "    %s\n", r.Snippet)
			}
		}
	}
	if resp.Limit > 0 && resp.Source == search.TierPrimary {
		dim.Fprintf(w, "\nquota: %d of %d remaining today\n", resp.Remaining, resp.Limit)
	}
}

func newQuotaCmd(opts *options) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show or reset today's primary tier usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if reset {
				a.ResetQuota(cmd.Context())
			}
			st, limit := a.Quota(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d used, %d remaining\n", st.Date, st.Count, limit, max(limit-st.Count, 0))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear today's counter")
	return cmd
}

func newCategoriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List preset search categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			for _, name := range cfg.CategoryNames() {
				q, _ := cfg.CategoryQuery(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, q)
			}
			return nil
		},
	}
}

func newCacheCmd(opts *options) *cobra.Command {
	var (
		olderThan time.Duration
		clearAll  bool
	)
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Purge the results page cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if clearAll {
				if err := cache.Clear(cfg.CacheDir); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", cfg.CacheDir)
				return nil
			}
			n, err := cache.PurgeOlderThan(cfg.CacheDir, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Remove entries saved longer ago than this")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Remove every entry")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gsearch %s\n", version)
		},
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
