package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig overrides cfg with every recognised environment variable
// that is set. It runs after the config file and before explicit flags.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	setStr := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setStr(&cfg.GoogleAPIKey, "GOOGLE_API_KEY")
	setStr(&cfg.GoogleCX, "GOOGLE_CX")
	setStr(&cfg.GoogleURL, "GOOGLE_URL")
	setStr(&cfg.DDGURL, "DDG_URL")
	setStr(&cfg.EmbedURL, "GSEARCH_EMBED_URL")
	setStr(&cfg.StateDir, "GSEARCH_STATE_DIR")
	setStr(&cfg.QuotaStore, "GSEARCH_QUOTA_STORE")
	setStr(&cfg.Locale, "GSEARCH_LOCALE")
	setStr(&cfg.Region, "GSEARCH_REGION")
	setStr(&cfg.RedisURL, "REDIS_URL")
	setStr(&cfg.CacheDir, "CACHE_DIR")

	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("GSEARCH_DAILY_LIMIT"))); err == nil && n > 0 {
		cfg.DailyLimit = n
	}
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv("GSEARCH_TIER_TIMEOUT"))); err == nil && d > 0 {
		cfg.TierTimeout = d
	}
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv("CACHE_MAX_AGE"))); err == nil && d > 0 {
		cfg.CacheMaxAge = d
	}
	// GSEARCH_DENY is a comma separated list appended to the denylist.
	if v := strings.TrimSpace(os.Getenv("GSEARCH_DENY")); v != "" {
		cfg.DomainDenylist = append(cfg.DomainDenylist, splitList(v)...)
	}

	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.FetchPage, "GSEARCH_FETCH_PAGE")
	setBool(&cfg.SSLVerify, "SSL_VERIFY")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
