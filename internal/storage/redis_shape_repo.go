package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/vec"
)

// RedisShapeRepo горячее хранилище микроблоков в Redis с TTL
type RedisShapeRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей, 0 - без срока
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "mb:",
		TTL:       0,
	}
}

// NewRedisShapeRepo подключается к Redis и проверяет соединение
func NewRedisShapeRepo(config *RedisConfig) (*RedisShapeRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	logging.Info("🔴 Подключен Redis %s", config.Addr)
	return &RedisShapeRepo{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

func (r *RedisShapeRepo) key(pos vec.Vec3) string {
	return r.keyPrefix + shapeKey(pos)
}

// Save сохраняет blob микроблока
func (r *RedisShapeRepo) Save(ctx context.Context, pos vec.Vec3, blob []byte) error {
	if err := r.client.Set(ctx, r.key(pos), blob, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения %s в Redis: %w", pos, err)
	}
	return nil
}

// Load читает blob микроблока
func (r *RedisShapeRepo) Load(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(pos)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения %s из Redis: %w", pos, err)
	}
	return data, true, nil
}

// Delete удаляет запись
func (r *RedisShapeRepo) Delete(ctx context.Context, pos vec.Vec3) error {
	n, err := r.client.Del(ctx, r.key(pos)).Result()
	if err != nil {
		return fmt.Errorf("ошибка удаления %s из Redis: %w", pos, err)
	}
	if n == 0 {
		return notFound(pos)
	}
	return nil
}

// BatchSave записывает пакет пайплайном
func (r *RedisShapeRepo) BatchSave(ctx context.Context, blobs map[vec.Vec3][]byte) error {
	if len(blobs) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for pos, blob := range blobs {
		pipe.Set(ctx, r.key(pos), blob, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ошибка пакетной записи в Redis: %w", err)
	}
	return nil
}

// Positions перечисляет ключи через SCAN
func (r *RedisShapeRepo) Positions(ctx context.Context) ([]vec.Vec3, error) {
	prefix := r.keyPrefix + keyPrefix
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()

	var out []vec.Vec3
	for iter.Next(ctx) {
		pos, err := parseShapeKey(strings.TrimPrefix(iter.Val(), r.keyPrefix))
		if err != nil {
			logging.Warn("⚠️ Пропускаю ключ Redis %s: %v", iter.Val(), err)
			continue
		}
		out = append(out, pos)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ошибка сканирования Redis: %w", err)
	}

	sortPositions(out)
	return out, nil
}

// Close закрывает соединение с Redis
func (r *RedisShapeRepo) Close() error {
	return r.client.Close()
}
