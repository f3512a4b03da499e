// Package cache provides caching for encoded payloads and per-feature query
// results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	PayloadCacheSizeMB int
	PayloadTTL         time.Duration
	QueryCacheSize     int
}

// Manager manages payload and query caches.
type Manager struct {
	payloadCache *bigcache.BigCache
	queryCache   *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	// Payloads are few and large; an entry must fit in one shard.
	payloadCacheConfig := bigcache.Config{
		Shards:             16,
		LifeWindow:         cfg.PayloadTTL,
		CleanWindow:        cfg.PayloadTTL / 2,
		MaxEntriesInWindow: 256,
		MaxEntrySize:       1024 * 1024,
		HardMaxCacheSize:   cfg.PayloadCacheSizeMB,
		Verbose:            false,
	}

	payloadCache, err := bigcache.New(context.Background(), payloadCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create payload cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		payloadCache.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		payloadCache: payloadCache,
		queryCache:   queryCache,
	}, nil
}

// GetPayload retrieves an encoded payload from cache.
func (m *Manager) GetPayload(key string) ([]byte, bool) {
	data, err := m.payloadCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetPayload stores an encoded payload in cache.
func (m *Manager) SetPayload(key string, data []byte) error {
	return m.payloadCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// PayloadKey generates a cache key for one payload kind of a dataset. A nil
// extreme feature count means unfiltered.
func PayloadKey(dataset, kind string, extremeCount *int) string {
	return fmt.Sprintf("payload:%s:%s:k=%s", dataset, kind, countPart(extremeCount))
}

// FeatureCountsKey generates a cache key for one feature's counts. Feature
// IDs can be long sequences, so they are hashed.
func FeatureCountsKey(dataset string, extremeCount *int, feature string) string {
	h := sha256.Sum256([]byte(feature))
	return fmt.Sprintf("counts:%s:k=%s:%s", dataset, countPart(extremeCount), hex.EncodeToString(h[:])[:16])
}

func countPart(k *int) string {
	if k == nil {
		return "all"
	}
	return strconv.Itoa(*k)
}

// Stats is a point-in-time view of cache occupancy.
type Stats struct {
	PayloadEntries int
	PayloadBytes   int // bytes allocated by the payload cache
	QueryEntries   int
}

// Stats returns cache statistics.
func (m *Manager) Stats() Stats {
	return Stats{
		PayloadEntries: m.payloadCache.Len(),
		PayloadBytes:   m.payloadCache.Capacity(),
		QueryEntries:   m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.payloadCache.Close()
}
