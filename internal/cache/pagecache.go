package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is the metadata stored next to a cached results page. It carries the
// validators needed for conditional revalidation.
type Entry struct {
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Fresh reports whether the entry may be served without contacting the
// origin. A zero maxAge means always revalidate.
func (e *Entry) Fresh(maxAge time.Duration, now time.Time) bool {
	if e == nil || maxAge <= 0 {
		return false
	}
	return now.Sub(e.SavedAt) <= maxAge
}

// PageCache keeps fetched results pages on disk as <key>.meta.json and
// <key>.body, key = sha256(url).
type PageCache struct {
	Dir string
	// StrictPerms writes the directory 0700 and files 0600.
	StrictPerms bool
}

func (c *PageCache) dirMode() os.FileMode {
	if c.StrictPerms {
		return 0o700
	}
	return 0o755
}

func (c *PageCache) fileMode() os.FileMode {
	if c.StrictPerms {
		return 0o600
	}
	return 0o644
}

func (c *PageCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	if err := os.MkdirAll(c.Dir, c.dirMode()); err != nil {
		return err
	}
	if c.StrictPerms {
		return os.Chmod(c.Dir, 0o700)
	}
	return nil
}

// Key is the on-disk name for url.
func Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

func (c *PageCache) metaPath(key string) string { return filepath.Join(c.Dir, key+".meta.json") }
func (c *PageCache) bodyPath(key string) string { return filepath.Join(c.Dir, key+".body") }

// Meta returns the stored entry for url. A missing entry returns an error
// satisfying errors.Is(err, os.ErrNotExist).
func (c *PageCache) Meta(_ context.Context, url string) (*Entry, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(c.metaPath(Key(url)))
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode cache meta: %w", err)
	}
	return &e, nil
}

// Body returns the stored page for url.
func (c *PageCache) Body(_ context.Context, url string) ([]byte, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	return os.ReadFile(c.bodyPath(Key(url)))
}

// Save writes the body first and the metadata last through a rename, so a
// readable meta file always has its body.
func (c *PageCache) Save(_ context.Context, url, contentType, etag, lastModified string, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	key := Key(url)
	if err := os.WriteFile(c.bodyPath(key), body, c.fileMode()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	meta, err := json.Marshal(Entry{
		URL:          url,
		ContentType:  contentType,
		ETag:         etag,
		LastModified: lastModified,
		SavedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp := c.metaPath(key) + ".tmp"
	if err := os.WriteFile(tmp, meta, c.fileMode()); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, c.metaPath(key))
}

// Touch resets SavedAt after a successful revalidation.
func (c *PageCache) Touch(ctx context.Context, url string) error {
	e, err := c.Meta(ctx, url)
	if err != nil {
		return err
	}
	e.SavedAt = time.Now().UTC()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := Key(url)
	tmp := c.metaPath(key) + ".tmp"
	if err := os.WriteFile(tmp, b, c.fileMode()); err != nil {
		return err
	}
	return os.Rename(tmp, c.metaPath(key))
}
