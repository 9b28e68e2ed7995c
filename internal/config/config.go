package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Materials MaterialsConfig `yaml:"materials"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// StorageConfig выбирает бэкенд хранилища микроблоков
type StorageConfig struct {
	Backend  string `yaml:"backend"` // memory | badger | redis | sql | mongo
	Compress bool   `yaml:"compress"`

	BadgerPath string `yaml:"badger_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisTTL      int    `yaml:"redis_ttl_seconds"`

	SQLDriver string `yaml:"sql_driver"` // mysql | sqlite
	SQLDSN    string `yaml:"sql_dsn"`

	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// MaterialsConfig каталог материалов
type MaterialsConfig struct {
	CatalogDir      string `yaml:"catalog_dir"`
	DefaultMaterial string `yaml:"default_material"`
	SnowLayer       string `yaml:"snow_layer"`
}

type MeshConfig struct {
	Workers int `yaml:"workers"`
}

// CacheConfig кеш GLB экспорта
type CacheConfig struct {
	Backend   string `yaml:"backend"` // none | memory | redis
	MaxMB     int    `yaml:"max_mb"`
	TTL       int    `yaml:"ttl_seconds"`
	RedisAddr string `yaml:"redis_addr"` // пусто - адрес Redis хранилища
}

type LoggingConfig struct {
	Console string `yaml:"console_level"`
	File    string `yaml:"file_level"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default возвращает конфигурацию по умолчанию: всё в памяти, без телеметрии
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    "memory",
			BadgerPath: "data",
			RedisAddr:  "localhost:6379",
			SQLDriver:  "sqlite",
			SQLDSN:     "microblocks.db",
		},
		EventBus: EventBusConfig{Stream: "MICROBLOCK", Retention: 24},
		Materials: MaterialsConfig{
			DefaultMaterial: "rock-granite",
			SnowLayer:       "snowlayer-1",
		},
		Cache:   CacheConfig{Backend: "memory", MaxMB: 64, TTL: 600},
		Logging: LoggingConfig{Console: "INFO", File: "DEBUG"},
		Telemetry: TelemetryConfig{
			ServiceName: "microblock",
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "MICROBLOCK_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "MICROBLOCK_METRICS_PORT", 2112)
}

// GetRedisTTL время жизни записей Redis, 0 - без срока
func (s *StorageConfig) GetRedisTTL() time.Duration {
	return time.Duration(s.RedisTTL) * time.Second
}

// GetRetention срок хранения событий JetStream
func (e *EventBusConfig) GetRetention() time.Duration {
	if e.Retention <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.Retention) * time.Hour
}

// GetTTL время жизни записей кеша
func (c *CacheConfig) GetTTL() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV MICROBLOCK_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MICROBLOCK_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан - использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	return cfg, nil
}

// OrDefault возвращает cfg или конфигурацию по умолчанию, если cfg == nil
func OrDefault(cfg *Config) *Config {
	if cfg == nil {
		return Default()
	}
	return cfg
}
