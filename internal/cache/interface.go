package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/vec"
)

// Cache горячий кеш готовых артефактов (GLB экспорт мешей).
//
// Ключ содержит дайджест формы и снежный контекст, поэтому запись никогда
// не устаревает по содержимому; TTL только ограничивает объём.
type Cache interface {
	// Get возвращает значение или ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение. TTL = 0 означает TTL по умолчанию.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ.
	Delete(ctx context.Context, key string) error

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *CacheMetrics
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	TotalKeys int64 `json:"total_keys"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию для кеша.
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// KeyPrefix отделяет ключи кеша от ключей хранилища в том же Redis
	KeyPrefix string

	DefaultTTL time.Duration
	MaxTTL     time.Duration

	MaxConnections int
	PoolTimeout    time.Duration
}

// ErrCacheMiss ключ не найден
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// GLBKey ключ GLB экспорта формы с дайджестом digest в снежном контексте snow
func GLBKey(pos vec.Vec3, digest string, snow mesh.SnowContext) string {
	below := 0
	if snow.BelowTopSolid {
		below = 1
	}
	return fmt.Sprintf("glb:%d:%d:%d:%s:%d:%d", pos.X, pos.Y, pos.Z, digest, snow.Level, below)
}

func applyDefaults(config *CacheConfig) {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = 1 * time.Hour
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
}

func clampTTL(config *CacheConfig, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return config.DefaultTTL
	}
	if ttl > config.MaxTTL {
		return config.MaxTTL
	}
	return ttl
}
