package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/microblock/internal/vec"
)

// ErrNotFound запись для позиции отсутствует
var ErrNotFound = errors.New("микроблок не найден")

// ShapeRepo определяет интерфейс для сохранения сериализованных микроблоков.
// Значение хранится как непрозрачный blob (BSON-дерево формы), ключ - позиция блока в мире.
type ShapeRepo interface {
	// Save сохраняет blob микроблока.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   pos - позиция блока в мире
	//   blob - сериализованная форма
	// Возвращает:
	//   error - ошибка при сохранении
	Save(ctx context.Context, pos vec.Vec3, blob []byte) error

	// Load загружает blob микроблока.
	// Возвращает:
	//   []byte - сохранённые данные
	//   bool - true если запись найдена
	//   error - ошибка при загрузке
	Load(ctx context.Context, pos vec.Vec3) ([]byte, bool, error)

	// Delete удаляет запись. Если записи нет, возвращает ErrNotFound.
	Delete(ctx context.Context, pos vec.Vec3) error

	// BatchSave сохраняет несколько микроблоков одной операцией (автосохранение).
	BatchSave(ctx context.Context, blobs map[vec.Vec3][]byte) error

	// Positions возвращает позиции всех сохранённых микроблоков
	Positions(ctx context.Context) ([]vec.Vec3, error)

	// Close освобождает соединения
	Close() error
}

// keyPrefix общий префикс ключей в key-value хранилищах
const keyPrefix = "microblock:"

func shapeKey(pos vec.Vec3) string {
	return keyPrefix + pos.Key()
}

func parseShapeKey(key string) (vec.Vec3, error) {
	if len(key) < len(keyPrefix) || key[:len(keyPrefix)] != keyPrefix {
		return vec.Vec3{}, fmt.Errorf("ключ %q без префикса %s", key, keyPrefix)
	}
	return vec.ParseKey(key[len(keyPrefix):])
}

func notFound(pos vec.Vec3) error {
	return fmt.Errorf("%w: %s", ErrNotFound, pos)
}

// checkContext проверяет контекст на отмену
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
