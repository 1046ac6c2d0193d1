package monitor

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	value      interface{}
	expiration time.Time
	lastAccess time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// MetadataCache 缓存类列表、属性和索引等元数据结果，满了淘汰最久未访问的条目
type MetadataCache struct {
	mu        sync.Mutex
	entries   map[string]*cacheEntry
	maxSize   int
	ttl       time.Duration
	hits      int64
	misses    int64
	evictions int64
}

// NewMetadataCache 创建元数据缓存，ttl<=0 表示不过期
func NewMetadataCache(maxSize int, ttl time.Duration) *MetadataCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &MetadataCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// MetadataKey 生成缓存键
func MetadataKey(database, kind, table string) string {
	return database + "\x00" + kind + "\x00" + table
}

// Get 获取缓存
func (c *MetadataCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.entries[key]
	if !ok || entry.expired(now) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	entry.lastAccess = now
	c.hits++
	return entry.value, true
}

// Set 设置缓存
func (c *MetadataCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	now := time.Now()
	entry := &cacheEntry{value: value, lastAccess: now}
	if c.ttl > 0 {
		entry.expiration = now.Add(c.ttl)
	}
	c.entries[key] = entry
}

// InvalidateDatabase 删除某个数据库的全部条目，DDL 之后调用
func (c *MetadataCache) InvalidateDatabase(database string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	prefix := database + "\x00"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Clear 清空缓存
func (c *MetadataCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

func (c *MetadataCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccess
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// CacheStats 缓存统计
type CacheStats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// GetStats 获取缓存统计
func (c *MetadataCache) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}
	return CacheStats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   hitRate,
		Evictions: c.evictions,
	}
}
