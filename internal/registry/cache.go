package registry

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extkit-labs/extkit/internal/platform"
	"go.uber.org/zap"
)

const (
	cacheFileName   = "registry.json"
	versionFileName = "registry-version"
)

// CacheRecord is the last successfully fetched registry and the remote
// version number it was fetched at.
type CacheRecord struct {
	Version int
	Payload Payload
}

// Cache persists the filtered registry payload and its version number in
// two files under dir. I/O failures are logged and never returned: a read
// failure is a cache miss, a write failure leaves the registry usable.
type Cache struct {
	files  platform.Files
	dir    string
	logger *zap.Logger
}

// NewCache returns a cache rooted at dir.
func NewCache(files platform.Files, dir string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{files: files, dir: dir, logger: logger}
}

func (c *Cache) payloadPath() string { return filepath.Join(c.dir, cacheFileName) }
func (c *Cache) versionPath() string { return filepath.Join(c.dir, versionFileName) }

// Read returns the cached record, or nil on a miss. A missing or corrupt
// version file yields version 0 so the next refresh downloads again.
func (c *Cache) Read() *CacheRecord {
	text, ok := c.files.ReadText(c.payloadPath())
	if !ok {
		return nil
	}

	var payload Payload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		c.logger.Warn("discarding unreadable registry cache",
			zap.String("path", c.payloadPath()), zap.Error(err))
		return nil
	}

	rec := &CacheRecord{Payload: payload}
	if v, ok := c.files.ReadText(c.versionPath()); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			c.logger.Warn("ignoring unreadable registry version",
				zap.String("path", c.versionPath()), zap.Error(err))
		} else {
			rec.Version = n
		}
	}
	return rec
}

// Write replaces both files. It reports whether the write succeeded.
func (c *Cache) Write(rec CacheRecord) bool {
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		c.logger.Warn("encoding registry cache", zap.Error(err))
		return false
	}
	if err := c.files.WriteText(c.payloadPath(), string(data)); err != nil {
		c.logger.Warn("writing registry cache", zap.Error(err))
		return false
	}
	if err := c.files.WriteText(c.versionPath(), strconv.Itoa(rec.Version)); err != nil {
		c.logger.Warn("writing registry version", zap.Error(err))
		return false
	}
	return true
}

// Invalidate deletes the cached record.
func (c *Cache) Invalidate() {
	for _, p := range []string{c.payloadPath(), c.versionPath()} {
		if err := c.files.DeleteFile(p); err != nil {
			c.logger.Warn("invalidating registry cache", zap.String("path", p), zap.Error(err))
		}
	}
}
