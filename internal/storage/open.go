package storage

import (
	"fmt"

	"github.com/annel0/microblock/internal/config"
	"github.com/annel0/microblock/internal/logging"
)

// Open создаёт хранилище по конфигурации и при необходимости оборачивает его сжатием
func Open(cfg config.StorageConfig) (ShapeRepo, error) {
	var (
		repo ShapeRepo
		err  error
	)

	switch cfg.Backend {
	case "", "memory":
		repo = NewMemoryShapeRepo()
	case "badger":
		repo, err = NewBadgerShapeRepo(cfg.BadgerPath)
	case "redis":
		repo, err = NewRedisShapeRepo(&RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "mb:",
			TTL:       cfg.GetRedisTTL(),
		})
	case "sql":
		repo, err = NewSQLShapeRepo(cfg.SQLDriver, cfg.SQLDSN)
	case "mongo":
		repo, err = NewMongoShapeRepo(MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compress {
		compressed, err := NewCompressedRepo(repo)
		if err != nil {
			repo.Close()
			return nil, err
		}
		repo = compressed
	}

	logging.Info("💾 Хранилище микроблоков: %s (сжатие: %v)", backendName(cfg.Backend), cfg.Compress)
	return repo, nil
}

func backendName(b string) string {
	if b == "" {
		return "memory"
	}
	return b
}
