package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/microblock/internal/eventbus"
	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/microblock/persist"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

// Save записывает форму в хранилище
func (w *World) Save(ctx context.Context, pos vec.Vec3) (err error) {
	ctx, span := w.startSpan(ctx, "world.Save", pos)
	defer func() { endSpan(span, err) }()

	e, ok := w.lookup(pos)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoShape, pos)
	}

	e.mu.Lock()
	data, err := persist.Marshal(e.shape)
	gen := e.gen
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("сериализация микроблока %s: %w", pos, err)
	}

	if err := w.repo.Save(ctx, pos, data); err != nil {
		return fmt.Errorf("сохранение микроблока %s: %w", pos, err)
	}

	e.mu.Lock()
	if e.gen == gen {
		e.dirty = false
	}
	e.mu.Unlock()
	return nil
}

// Flush сохраняет одним пакетом все изменённые формы. Возвращает их число.
func (w *World) Flush(ctx context.Context) (int, error) {
	type pending struct {
		e   *entry
		gen uint64
	}

	batch := make(map[vec.Vec3][]byte)
	var saved []pending

	for _, e := range w.entries() {
		e.mu.Lock()
		if !e.dirty {
			e.mu.Unlock()
			continue
		}
		data, err := persist.Marshal(e.shape)
		pos := e.shape.Pos
		gen := e.gen
		e.mu.Unlock()
		if err != nil {
			return 0, fmt.Errorf("сериализация микроблока %s: %w", pos, err)
		}
		batch[pos] = data
		saved = append(saved, pending{e: e, gen: gen})
	}

	if len(batch) == 0 {
		return 0, nil
	}
	if err := w.repo.BatchSave(ctx, batch); err != nil {
		return 0, fmt.Errorf("пакетное сохранение %d микроблоков: %w", len(batch), err)
	}

	for _, p := range saved {
		p.e.mu.Lock()
		if p.e.gen == p.gen {
			p.e.dirty = false
		}
		p.e.mu.Unlock()
	}

	logging.Debug("💾 Сохранено микроблоков: %d", len(batch))
	return len(batch), nil
}

// Load читает форму из хранилища и ставит её в мир. false, если записи нет.
func (w *World) Load(ctx context.Context, pos vec.Vec3) (found bool, err error) {
	ctx, span := w.startSpan(ctx, "world.Load", pos)
	defer func() { endSpan(span, err) }()

	data, found, err := w.repo.Load(ctx, pos)
	if err != nil {
		return false, fmt.Errorf("загрузка микроблока %s: %w", pos, err)
	}
	if !found {
		return false, nil
	}

	s, err := w.codec.Unmarshal(data, pos, nil)
	if err != nil {
		return false, fmt.Errorf("разбор микроблока %s: %w", pos, err)
	}

	w.install(s, block.MicroBlockID)
	w.publishShape(ctx, s.Clone(), eventbus.OpLoaded)
	return true, nil
}

// LoadAll загружает все формы хранилища. Повреждённые записи пропускаются с ошибкой в логе.
func (w *World) LoadAll(ctx context.Context) (int, error) {
	positions, err := w.repo.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("список микроблоков: %w", err)
	}

	loaded := 0
	for _, pos := range positions {
		found, err := w.Load(ctx, pos)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return loaded, err
			}
			logging.Error("❌ Микроблок %s не загружен: %v", pos, err)
			continue
		}
		if found {
			loaded++
		}
	}

	logging.Info("📦 Загружено микроблоков: %d из %d", loaded, len(positions))
	return loaded, nil
}

// Run периодически сохраняет изменённые формы, пока ctx не отменён.
// При остановке делает последнее сохранение.
func (w *World) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := w.Flush(flushCtx); err != nil {
				logging.Error("❌ Финальное сохранение микроблоков: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := w.Flush(ctx); err != nil {
				logging.Error("❌ Автосохранение микроблоков: %v", err)
			}
		}
	}
}
