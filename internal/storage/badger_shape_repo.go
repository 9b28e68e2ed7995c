package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/microblock/internal/vec"
)

// BadgerShapeRepo основное встроенное хранилище микроблоков на BadgerDB.
// Ключи вида "microblock:x:y:z".
type BadgerShapeRepo struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerShapeRepo открывает BadgerDB в каталоге dataPath/microblocks
func NewBadgerShapeRepo(dataPath string) (*BadgerShapeRepo, error) {
	dbPath := filepath.Join(dataPath, "microblocks")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerShapeRepo{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

func (r *BadgerShapeRepo) ready() error {
	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return nil
}

// Save сохраняет blob микроблока
func (r *BadgerShapeRepo) Save(ctx context.Context, pos vec.Vec3, blob []byte) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(shapeKey(pos)), blob)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения %s в BadgerDB: %w", pos, err)
	}
	return nil
}

// Load читает blob микроблока
func (r *BadgerShapeRepo) Load(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return nil, false, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, false, err
	}

	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(shapeKey(pos)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения %s из BadgerDB: %w", pos, err)
	}
	return data, true, nil
}

// Delete удаляет запись
func (r *BadgerShapeRepo) Delete(ctx context.Context, pos vec.Vec3) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	key := []byte(shapeKey(pos))
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(pos)
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления %s из BadgerDB: %w", pos, err)
	}
	return nil
}

// BatchSave пишет записи через WriteBatch
func (r *BadgerShapeRepo) BatchSave(ctx context.Context, blobs map[vec.Vec3][]byte) error {
	if len(blobs) == 0 {
		return nil
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()

	for pos, blob := range blobs {
		if err := wb.Set([]byte(shapeKey(pos)), blob); err != nil {
			return fmt.Errorf("ошибка пакетной записи %s: %w", pos, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка сброса пакета в BadgerDB: %w", err)
	}
	return nil
}

// Positions обходит ключи по префиксу без чтения значений
func (r *BadgerShapeRepo) Positions(ctx context.Context) ([]vec.Vec3, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if err := r.ready(); err != nil {
		return nil, err
	}

	var out []vec.Vec3
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := checkContext(ctx); err != nil {
				return err
			}
			pos, err := parseShapeKey(string(it.Item().Key()))
			if err != nil {
				return err
			}
			out = append(out, pos)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}

	sortPositions(out)
	return out, nil
}

// Close закрывает хранилище
func (r *BadgerShapeRepo) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isReady {
		return nil
	}

	r.isReady = false
	return r.db.Close()
}
