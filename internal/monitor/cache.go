package monitor

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"netmig/internal/engine"
)

const (
	defaultRetentionSize = 256
	defaultRetentionTTL  = 15 * time.Minute
)

// RetentionConfig bounds how long finished jobs stay answerable after
// their watchers are torn down.
type RetentionConfig struct {
	// MaxSize is the maximum number of retained snapshots.
	MaxSize int
	// TTL is how long a retained snapshot remains served.
	TTL time.Duration
}

// DefaultRetentionConfig returns the retention defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxSize: defaultRetentionSize,
		TTL:     defaultRetentionTTL,
	}
}

// retainedEntry holds a final snapshot along with the timestamp it was stored.
type retainedEntry struct {
	snapshot *engine.Job
	storedAt time.Time
}

// snapshotCache keeps the last snapshot of stopped watchers so GetSnapshot
// can answer for recently finished jobs. Entries age out by TTL and by LRU
// pressure; a miss here means the caller must ask the engine again.
type snapshotCache struct {
	cache *lru.Cache[string, retainedEntry]
	ttl   time.Duration
}

func newSnapshotCache(config RetentionConfig) *snapshotCache {
	if config.MaxSize <= 0 {
		config.MaxSize = defaultRetentionSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultRetentionTTL
	}
	cache, err := lru.New[string, retainedEntry](config.MaxSize)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return &snapshotCache{ttl: config.TTL}
	}
	return &snapshotCache{cache: cache, ttl: config.TTL}
}

func (c *snapshotCache) put(jobID string, snapshot *engine.Job) {
	if c.cache == nil || snapshot == nil {
		return
	}
	c.cache.Add(jobID, retainedEntry{snapshot: snapshot, storedAt: time.Now()})
}

func (c *snapshotCache) get(jobID string) (*engine.Job, bool) {
	if c.cache == nil {
		return nil, false
	}

	entry, ok := c.cache.Get(jobID)
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) >= c.ttl {
		c.cache.Remove(jobID)
		return nil, false
	}
	return entry.snapshot, true
}
