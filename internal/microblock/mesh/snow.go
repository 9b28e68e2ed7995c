package mesh

import (
	"sync"

	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/world/block"
)

// SnowContext внешнее состояние, от которого зависит снежный меш
type SnowContext struct {
	Layer         block.BlockID // материал снежного слоя
	Level         int           // текущий уровень снега блока
	BelowTopSolid bool          // верхняя грань блока снизу сплошная
}

// BuildSnow собирает снежный меш. Поверхностный снег поднимается на 1/16 блока,
// снег на земле добавляется только если блок снизу имеет сплошной верх.
// Без поверхностного снега или при нулевом уровне возвращает nil.
func (b *Builder) BuildSnow(s *microblock.Shape, snow SnowContext, sc *microblock.Scratch) (*Mesh, error) {
	if len(s.SnowCuboids) == 0 || snow.Level <= 0 {
		return nil, nil
	}

	layer := []block.BlockID{snow.Layer}
	m, err := b.Build(s.SnowCuboids, layer, &s.Pos, sc)
	if err != nil {
		return nil, err
	}
	m.Translate(0, 1.0/microblock.Size, 0)

	if snow.BelowTopSolid && len(s.GroundSnowCuboids) > 0 {
		ground, err := b.Build(s.GroundSnowCuboids, layer, &s.Pos, sc)
		if err != nil {
			return nil, err
		}
		m.Append(ground)
	}
	return m, nil
}

// RenderState последние собранные меши блока. Снежный меш пересобирается, когда
// уровень снега отличается от отрисованного в прошлый раз или меша ещё нет.
type RenderState struct {
	mu       sync.Mutex
	base     *Mesh
	snow     *Mesh
	prevSnow SnowContext // контекст, с которым собран снежный меш
}

// Meshes результат тесселяции
type Meshes struct {
	Base *Mesh
	Snow *Mesh
}

// Regen пересобирает основной и снежный меши по снимку формы
func (r *RenderState) Regen(b *Builder, s *microblock.Shape, snow SnowContext, sc *microblock.Scratch) error {
	base, err := b.Build(s.Cuboids, s.Materials, &s.Pos, sc)
	if err != nil {
		r.mu.Lock()
		r.base, r.snow = base, nil
		r.mu.Unlock()
		return err
	}
	snowMesh, err := b.BuildSnow(s, snow, sc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = base
	r.snow = snowMesh
	r.prevSnow = snow
	return nil
}

// Tesselate отдаёт меши для рендера. false означает, что основного меша ещё нет
// и нужно вызвать Regen.
func (r *RenderState) Tesselate(b *Builder, s *microblock.Shape, snow SnowContext, sc *microblock.Scratch) (Meshes, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.base == nil {
		return Meshes{}, false, nil
	}

	// Снег на земле зависит от блока снизу, поэтому сравнивается весь контекст
	if r.prevSnow != snow || r.snow == nil {
		m, err := b.BuildSnow(s, snow, sc)
		if err != nil {
			return Meshes{Base: r.base}, true, err
		}
		r.snow = m
		r.prevSnow = snow
	}
	return Meshes{Base: r.base, Snow: r.snow}, true, nil
}

// Current последние собранные меши без пересборки
func (r *RenderState) Current() Meshes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Meshes{Base: r.base, Snow: r.snow}
}

// Invalidate сбрасывает меши после изменения формы
func (r *RenderState) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = nil
	r.snow = nil
}

// PrevSnowLevel уровень снега, с которым собран текущий снежный меш
func (r *RenderState) PrevSnowLevel() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prevSnow.Level
}

// RenderedSnow снежный контекст текущего снежного меша
func (r *RenderState) RenderedSnow() SnowContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prevSnow
}

// Store запоминает меши, собранные в другом месте (пулом)
func (r *RenderState) Store(m Meshes, snow SnowContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = m.Base
	r.snow = m.Snow
	r.prevSnow = snow
}
