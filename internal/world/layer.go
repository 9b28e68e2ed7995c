package world

import (
	"context"
	"time"

	"github.com/annel0/microblock/internal/eventbus"
	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

// Разреженный слой блоков: позиции без записи считаются воздухом.

// Block id блока в позиции
func (w *World) Block(pos vec.Vec3) block.BlockID {
	w.layerMu.RLock()
	defer w.layerMu.RUnlock()
	return w.blocks[pos]
}

// SetBlock ставит обычный блок. Микроблок в позиции при этом не трогается.
func (w *World) SetBlock(pos vec.Vec3, id block.BlockID) {
	w.layerMu.Lock()
	defer w.layerMu.Unlock()
	if id == block.AirBlockID {
		delete(w.blocks, pos)
		return
	}
	w.blocks[pos] = id
}

// ExchangeBlock меняет вариант блока без пересоздания микроблока
func (w *World) ExchangeBlock(id block.BlockID, pos vec.Vec3) {
	prev := w.Block(pos)
	w.SetBlock(pos, id)
	logging.Trace("Блок %s: %d → %d", pos, prev, id)
}

// MarkAbsorptionChanged сообщает освещению, что поглощение в позиции изменилось
func (w *World) MarkAbsorptionChanged(prev, now int, pos vec.Vec3) {
	logging.Debug("💡 Поглощение света в %s: %d → %d", pos, prev, now)
	if w.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.publish(ctx, eventbus.TypeAbsorptionChanged, 7, eventbus.AbsorptionChanged{Pos: pos, Old: prev, New: now})
}
