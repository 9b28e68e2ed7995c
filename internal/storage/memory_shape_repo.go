package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/annel0/microblock/internal/vec"
)

// MemoryShapeRepo реализует ShapeRepo в памяти.
// Используется по умолчанию и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryShapeRepo struct {
	mu   sync.RWMutex
	data map[vec.Vec3][]byte
}

// NewMemoryShapeRepo создает новый репозиторий в памяти.
func NewMemoryShapeRepo() *MemoryShapeRepo {
	return &MemoryShapeRepo{
		data: make(map[vec.Vec3][]byte),
	}
}

// Save сохраняет копию blob.
func (r *MemoryShapeRepo) Save(ctx context.Context, pos vec.Vec3, blob []byte) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[pos] = append([]byte(nil), blob...)
	return nil
}

// Load возвращает копию сохранённого blob.
func (r *MemoryShapeRepo) Load(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	if err := checkContext(ctx); err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	blob, exists := r.data[pos]
	if !exists {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

// Delete удаляет запись.
func (r *MemoryShapeRepo) Delete(ctx context.Context, pos vec.Vec3) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[pos]; !exists {
		return notFound(pos)
	}
	delete(r.data, pos)
	return nil
}

// BatchSave сохраняет несколько записей под одной блокировкой.
func (r *MemoryShapeRepo) BatchSave(ctx context.Context, blobs map[vec.Vec3][]byte) error {
	if len(blobs) == 0 {
		return nil
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for pos, blob := range blobs {
		r.data[pos] = append([]byte(nil), blob...)
	}
	return nil
}

// Positions возвращает позиции в порядке X, Y, Z.
func (r *MemoryShapeRepo) Positions(ctx context.Context) ([]vec.Vec3, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]vec.Vec3, 0, len(r.data))
	for pos := range r.data {
		out = append(out, pos)
	}
	r.mu.RUnlock()

	sortPositions(out)
	return out, nil
}

// Count возвращает количество записей (для отладки).
func (r *MemoryShapeRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Close ничего не освобождает.
func (r *MemoryShapeRepo) Close() error {
	return nil
}

func sortPositions(list []vec.Vec3) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
}
