package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema.
type FileConfig struct {
	Google struct {
		Key string `yaml:"key" json:"key"`
		CX  string `yaml:"cx" json:"cx"`
		URL string `yaml:"url" json:"url"`
	} `yaml:"google" json:"google"`

	DDG struct {
		URL string `yaml:"url" json:"url"`
	} `yaml:"ddg" json:"ddg"`

	Embed struct {
		URL string `yaml:"url" json:"url"`
	} `yaml:"embed" json:"embed"`

	Locale    string `yaml:"locale" json:"locale"`
	Region    string `yaml:"region" json:"region"`
	UserAgent string `yaml:"userAgent" json:"userAgent"`

	Quota struct {
		DailyLimit int    `yaml:"dailyLimit" json:"dailyLimit"`
		StateDir   string `yaml:"stateDir" json:"stateDir"`
		Store      string `yaml:"store" json:"store"`
		Redis      string `yaml:"redis" json:"redis"`
	} `yaml:"quota" json:"quota"`

	Domains struct {
		Allow []string `yaml:"allow" json:"allow"`
		Deny  []string `yaml:"deny" json:"deny"`
	} `yaml:"domains" json:"domains"`

	MaxResults  int           `yaml:"maxResults" json:"maxResults"`
	TierTimeout time.Duration `yaml:"tierTimeout" json:"tierTimeout"`

	Page struct {
		Fetch     bool  `yaml:"fetch" json:"fetch"`
		SSLVerify *bool `yaml:"sslVerify" json:"sslVerify"`
	} `yaml:"page" json:"page"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Categories map[string]string `yaml:"categories" json:"categories"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig, picking the parser by
// extension and trying both for anything else.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig fills fields of cfg that are unset or still at their
// default with values from fc. Explicit flags therefore win over the file.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setStr := func(dst *string, def, v string) {
		if v != "" && (*dst == "" || *dst == def) {
			*dst = v
		}
	}
	setStr(&cfg.GoogleAPIKey, "", fc.Google.Key)
	setStr(&cfg.GoogleCX, "", fc.Google.CX)
	setStr(&cfg.GoogleURL, "", fc.Google.URL)
	setStr(&cfg.DDGURL, "", fc.DDG.URL)
	setStr(&cfg.EmbedURL, "", fc.Embed.URL)
	setStr(&cfg.Locale, defaultLocale, fc.Locale)
	setStr(&cfg.Region, "", fc.Region)
	setStr(&cfg.UserAgent, defaultUserAgent, fc.UserAgent)
	setStr(&cfg.StateDir, defaultStateDir, fc.Quota.StateDir)
	setStr(&cfg.QuotaStore, defaultQuotaStore, fc.Quota.Store)
	setStr(&cfg.RedisURL, "", fc.Quota.Redis)
	setStr(&cfg.CacheDir, defaultCacheDir, fc.Cache.Dir)

	if cfg.DailyLimit == 0 && fc.Quota.DailyLimit > 0 {
		cfg.DailyLimit = fc.Quota.DailyLimit
	}
	if cfg.MaxResults == 0 && fc.MaxResults > 0 {
		cfg.MaxResults = fc.MaxResults
	}
	if (cfg.TierTimeout == 0 || cfg.TierTimeout == defaultTierTimeout) && fc.TierTimeout > 0 {
		cfg.TierTimeout = fc.TierTimeout
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if len(cfg.DomainAllowlist) == 0 && len(fc.Domains.Allow) > 0 {
		cfg.DomainAllowlist = append([]string{}, fc.Domains.Allow...)
	}
	if len(cfg.DomainDenylist) == 0 && len(fc.Domains.Deny) > 0 {
		cfg.DomainDenylist = append([]string{}, fc.Domains.Deny...)
	}
	if !cfg.FetchPage && fc.Page.Fetch {
		cfg.FetchPage = true
	}
	if fc.Page.SSLVerify != nil && !*fc.Page.SSLVerify {
		cfg.SSLVerify = false
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
	if len(fc.Categories) > 0 {
		if cfg.Categories == nil {
			cfg.Categories = map[string]string{}
		}
		for k, v := range fc.Categories {
			k = strings.ToLower(strings.TrimSpace(k))
			if _, set := cfg.Categories[k]; !set && k != "" {
				cfg.Categories[k] = v
			}
		}
	}
}

var validStores = map[string]bool{"badger": true, "file": true, "memory": true, "redis": true}

// ValidateConfig rejects settings that cannot produce a working engine. The
// primary tier credentials are optional: without them the ladder starts at
// the alternative tier.
func ValidateConfig(cfg Config) error {
	if cfg.DailyLimit < 0 || cfg.MaxResults < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.TierTimeout < 0 {
		return errors.New("config: tier timeout must not be negative")
	}
	store := strings.ToLower(strings.TrimSpace(cfg.QuotaStore))
	if store != "" && !validStores[store] {
		return fmt.Errorf("config: unknown quota store %q", cfg.QuotaStore)
	}
	if store == "redis" && strings.TrimSpace(cfg.RedisURL) == "" {
		return errors.New("config: quota store redis requires quota.redis (or REDIS_URL)")
	}
	if (cfg.GoogleAPIKey == "") != (cfg.GoogleCX == "") {
		return errors.New("config: google.key and google.cx must be set together")
	}
	return nil
}
