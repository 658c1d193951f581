package app

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultCategories are the preset queries offered as quick picks.
var DefaultCategories = map[string]string{
	"berita":    "berita terkini Indonesia",
	"teknologi": "berita teknologi terbaru",
	"olahraga":  "berita olahraga hari ini",
	"hiburan":   "berita hiburan selebriti",
	"kuliner":   "resep masakan Indonesia",
	"wisata":    "tempat wisata populer di Indonesia",
}

// CategoryQuery resolves a preset name to its query. Configured presets
// shadow the defaults.
func (c Config) CategoryQuery(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if q, ok := c.Categories[key]; ok && strings.TrimSpace(q) != "" {
		return q, nil
	}
	if q, ok := DefaultCategories[key]; ok {
		return q, nil
	}
	return "", fmt.Errorf("unknown category %q (known: %s)", name, strings.Join(c.CategoryNames(), ", "))
}

// CategoryNames lists every known preset, sorted.
func (c Config) CategoryNames() []string {
	seen := map[string]struct{}{}
	for k := range DefaultCategories {
		seen[k] = struct{}{}
	}
	for k := range c.Categories {
		seen[strings.ToLower(k)] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
