package gen

import (
	"github.com/aquilax/go-perlin"

	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/vec"
)

// Sculptor вырезает формы микроблоков шумом Перлина: рельеф по высоте столбцов
// и пустоты по объёмному шуму. Один сид даёт одинаковую форму для позиции.
type Sculptor struct {
	noise *perlin.Perlin

	// HeightScale масштаб шума рельефа в вокселях
	HeightScale float64
	// CaveScale масштаб объёмного шума
	CaveScale float64
	// CaveThreshold выше порога воксель вырезается, 1 отключает пустоты
	CaveThreshold float64
	// Layers число материалов по высоте (1..16)
	Layers int
}

// NewSculptor создаёт генератор с указанным сидом
func NewSculptor(seed int64) *Sculptor {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Sculptor{
		noise:         perlin.NewPerlin(alpha, beta, n, seed),
		HeightScale:   0.08,
		CaveScale:     0.15,
		CaveThreshold: 0.72,
		Layers:        2,
	}
}

// noise01 приводит шум из [-1, 1] в [0, 1]
func noise01(v float64) float64 {
	v = (v + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Sculpt заполняет сетку формой для блока в позиции pos.
// Нижний слой всегда заполнен, чтобы форма стояла на блоке снизу.
func (s *Sculptor) Sculpt(pos vec.Vec3, g *microblock.VoxelGrid) {
	g.Reset()
	layers := s.Layers
	if layers < 1 {
		layers = 1
	}
	if layers > microblock.MaxMaterials {
		layers = microblock.MaxMaterials
	}

	const size = microblock.Size
	for x := 0; x < size; x++ {
		for z := 0; z < size; z++ {
			wx := float64(pos.X*size + x)
			wz := float64(pos.Z*size + z)
			height := 1 + int(noise01(s.noise.Noise2D(wx*s.HeightScale, wz*s.HeightScale))*(size-1))

			for y := 0; y < height; y++ {
				if y > 0 && s.CaveThreshold < 1 {
					wy := float64(pos.Y*size + y)
					if noise01(s.noise.Noise3D(wx*s.CaveScale, wy*s.CaveScale, wz*s.CaveScale)) > s.CaveThreshold {
						continue
					}
				}
				g.Set(x, y, z, byte(y*layers/size))
			}
		}
	}
}
