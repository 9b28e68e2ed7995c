package microblock

import "fmt"

// VoxelGrid плотная сетка 16³: наличие вокселя и индекс материала
type VoxelGrid struct {
	present  [Size][Size][Size]bool
	material [Size][Size][Size]byte
}

// Voxel координата внутри сетки
type Voxel struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// InRange проверяет попадание в сетку
func (v Voxel) InRange() bool {
	return v.X >= 0 && v.X < Size && v.Y >= 0 && v.Y < Size && v.Z >= 0 && v.Z < Size
}

// NewVoxelGrid создаёт пустую сетку
func NewVoxelGrid() *VoxelGrid {
	return &VoxelGrid{}
}

// Reset очищает сетку
func (g *VoxelGrid) Reset() {
	*g = VoxelGrid{}
}

// Set ставит воксель с материалом
func (g *VoxelGrid) Set(x, y, z int, material byte) {
	g.present[x][y][z] = true
	g.material[x][y][z] = material
}

// Clear убирает воксель; материал ячейки сохраняется как был
func (g *VoxelGrid) Clear(x, y, z int) {
	g.present[x][y][z] = false
}

// Present есть ли воксель в ячейке
func (g *VoxelGrid) Present(x, y, z int) bool {
	return g.present[x][y][z]
}

// Material индекс материала ячейки (0 для пустой)
func (g *VoxelGrid) Material(x, y, z int) byte {
	if !g.present[x][y][z] {
		return 0
	}
	return g.material[x][y][z]
}

// Count число заполненных ячеек
func (g *VoxelGrid) Count() int {
	n := 0
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			for z := 0; z < Size; z++ {
				if g.present[x][y][z] {
					n++
				}
			}
		}
	}
	return n
}

// Equal сравнивает наличие и материал заполненных ячеек
func (g *VoxelGrid) Equal(o *VoxelGrid) bool {
	return g.Diff(o) == nil
}

// Diff возвращает первую расходящуюся ячейку или nil
func (g *VoxelGrid) Diff(o *VoxelGrid) error {
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			for z := 0; z < Size; z++ {
				if g.present[x][y][z] != o.present[x][y][z] {
					return fmt.Errorf("ячейка (%d,%d,%d): наличие %v против %v", x, y, z, g.present[x][y][z], o.present[x][y][z])
				}
				if g.present[x][y][z] && g.material[x][y][z] != o.material[x][y][z] {
					return fmt.Errorf("ячейка (%d,%d,%d): материал %d против %d", x, y, z, g.material[x][y][z], o.material[x][y][z])
				}
			}
		}
	}
	return nil
}

// Fill заполняет кубоид материалом
func (g *VoxelGrid) Fill(c Cuboid) {
	for x := c.X1; x < c.X2; x++ {
		for y := c.Y1; y < c.Y2; y++ {
			for z := c.Z1; z < c.Z2; z++ {
				g.present[x][y][z] = true
				g.material[x][y][z] = c.Material
			}
		}
	}
}

// ToGrid рисует кубоиды в сетку по порядку списка; при пересечении побеждает последний.
// Повреждённые кубоиды с max ≤ min ничего не рисуют.
func ToGrid(packed []uint32, g *VoxelGrid) {
	g.Reset()
	for _, v := range packed {
		g.Fill(Decode(v))
	}
}

// GridOf строит новую сетку из упакованного списка
func GridOf(packed []uint32) *VoxelGrid {
	g := NewVoxelGrid()
	ToGrid(packed, g)
	return g
}

// Voxels перечисляет заполненные ячейки в порядке x, y, z
func (g *VoxelGrid) Voxels(fn func(v Voxel, material byte)) {
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			for z := 0; z < Size; z++ {
				if g.present[x][y][z] {
					fn(Voxel{X: x, Y: y, Z: z}, g.material[x][y][z])
				}
			}
		}
	}
}
