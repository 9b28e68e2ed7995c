package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/annel0/microblock/internal/logging"
)

// MemoryCache реализует Cache в памяти процесса на ristretto.
// Стоимость записи равна размеру значения, MaxBytes ограничивает общий объём.
type MemoryCache struct {
	cache  *ristretto.Cache
	config *CacheConfig
	stats  stats
}

// NewMemoryCache создаёт кеш объёмом maxBytes (0 - 64 МБ)
func NewMemoryCache(config *CacheConfig, maxBytes int64) (*MemoryCache, error) {
	applyDefaults(config)
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}

	logging.Info("🗃️ Кеш GLB в памяти: %d МБ (TTL %v)", maxBytes>>20, config.DefaultTTL)
	return &MemoryCache{cache: c, config: config}, nil
}

// Get получает значение по ключу.
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer m.stats.recordLatency(start)

	if v, ok := m.cache.Get(key); ok {
		m.stats.hit()
		return v.([]byte), nil
	}
	m.stats.miss()
	return nil, ErrCacheMiss
}

// Set сохраняет значение. Запись видна сразу после возврата.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer m.stats.recordLatency(start)

	if !m.cache.SetWithTTL(key, value, int64(len(value)), clampTTL(m.config, ttl)) {
		logging.Debug("Кеш отклонил запись %s (%d байт)", key, len(value))
		return nil
	}
	m.cache.Wait()
	return nil
}

// Delete удаляет ключ.
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.cache.Del(key)
	return nil
}

// Close освобождает буферы ristretto.
func (m *MemoryCache) Close() error {
	m.cache.Close()
	return nil
}

// GetMetrics возвращает текущие метрики кеша.
func (m *MemoryCache) GetMetrics() *CacheMetrics {
	keys := int64(-1)
	if rm := m.cache.Metrics; rm != nil {
		keys = int64(rm.KeysAdded()) - int64(rm.KeysEvicted())
	}
	return m.stats.snapshot(keys)
}
