package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// Primary tier
	GoogleAPIKey string
	GoogleCX     string
	GoogleURL    string

	// Alternative tier
	DDGURL string

	// Embedded results page, also fetched for the scrape tier
	EmbedURL string

	Locale    string
	Region    string
	UserAgent string

	// Quota
	DailyLimit int
	StateDir   string
	// QuotaStore is one of "badger", "file", "memory" or "redis".
	QuotaStore string
	RedisURL   string

	// Result filtering
	DomainAllowlist []string
	DomainDenylist  []string
	MaxResults      int
	TierTimeout     time.Duration

	// Results page fetching for the scrape tier
	FetchPage        bool
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheStrictPerms bool
	SSLVerify        bool

	// Categories maps preset names to queries.
	Categories map[string]string

	Verbose bool
}

const (
	defaultUserAgent   = "gsearch/1.0 (+https://github.com/hyperifyio/gsearch)"
	defaultStateDir    = ".gsearch"
	defaultCacheDir    = ".gsearch-cache"
	defaultQuotaStore  = "badger"
	defaultLocale      = "id"
	defaultTierTimeout = 10 * time.Second
)

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		UserAgent:   defaultUserAgent,
		Locale:      defaultLocale,
		StateDir:    defaultStateDir,
		QuotaStore:  defaultQuotaStore,
		CacheDir:    defaultCacheDir,
		TierTimeout: defaultTierTimeout,
		SSLVerify:   true,
	}
}
