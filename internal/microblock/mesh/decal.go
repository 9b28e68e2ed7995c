package mesh

import (
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/world/block"
)

// BuildDecal собирает меш наклейки (трещины, подсветка) поверх формы. Материалы не
// учитываются: любой соседний кубоид скрывает грань, все грани берут одну текстуру.
func (b *Builder) BuildDecal(cuboids []uint32, tpos block.TexturePosition, sc *microblock.Scratch) *Mesh {
	out := NewMesh(len(cuboids) * 6)
	if len(cuboids) == 0 {
		return out
	}
	if sc == nil {
		sc = microblock.AcquireScratch()
		defer microblock.ReleaseScratch(sc)
	}

	// Наклейка ложится без поправки на субпиксельный отступ атласа
	nb := *b
	nb.cfg.SubPixelPaddingX, nb.cfg.SubPixelPaddingY = 0, 0

	cwms := microblock.DecodeAll(cuboids, sc)
	tex := func(microblock.Facing, bool) block.TexturePosition { return tpos }
	always := func(microblock.Cuboid) bool { return true }

	for i, cwm := range cwms {
		skip := hiddenFaces(cwms, i, always)
		nb.addCuboid(out, cwm, skip, block.RenderPassOpaque, 0, 0, 0, tex)
	}
	return out
}
