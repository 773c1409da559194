// Package cache keeps small static files in memory between requests.
package cache

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

const (
	DefaultExpiration      = time.Minute
	DefaultCleanupInterval = 5 * time.Minute
	DefaultMaxFileSize     = 1 << 20
)

// Entry is a cached file body with the metadata it was read under.
type Entry struct {
	Data    []byte
	ModTime time.Time
}

// FileCache caches file contents keyed by path, size and modification time,
// so an edited file is never served stale.
type FileCache struct {
	cache       *gocache.Cache
	ttl         time.Duration
	maxFileSize int64

	hits   atomic.Int64
	misses atomic.Int64
}

// NewFileCache returns a cache; a non-positive ttl disables caching.
func NewFileCache(ttl time.Duration, maxFileSize int64) *FileCache {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	cleanup := DefaultCleanupInterval
	if ttl > 0 && ttl*2 < cleanup {
		cleanup = ttl * 2
	}
	return &FileCache{
		cache:       gocache.New(ttl, cleanup),
		ttl:         ttl,
		maxFileSize: maxFileSize,
	}
}

// ReadFile returns the contents of path, which must describe info.
func (c *FileCache) ReadFile(path string, info os.FileInfo) ([]byte, error) {
	if c == nil || c.ttl <= 0 || info.Size() > c.maxFileSize {
		return os.ReadFile(path)
	}

	key := fileKey(path, info)
	if v, found := c.cache.Get(key); found {
		if entry, ok := v.(Entry); ok {
			c.hits.Add(1)
			return entry.Data, nil
		}
		logger.Error("Wrong type in file cache", "key", key)
	}

	c.misses.Add(1)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, Entry{Data: data, ModTime: info.ModTime()}, c.ttl)
	return data, nil
}

// Flush drops every entry.
func (c *FileCache) Flush() {
	if c == nil {
		return
	}
	c.cache.Flush()
}

// Len reports the number of cached files.
func (c *FileCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.ItemCount()
}

// Hits and Misses count lookups since creation.
func (c *FileCache) Hits() int64   { return c.hits.Load() }
func (c *FileCache) Misses() int64 { return c.misses.Load() }

func fileKey(path string, info os.FileInfo) string {
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}
