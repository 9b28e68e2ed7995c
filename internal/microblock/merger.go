package microblock

// Пороги для производных признаков граней
const (
	centerRadius          = 5  // |a-8| < 5 по обеим осям грани
	solidCenterMaxMissing = 5  // solidCenter: пропусков в центре меньше
	almostSolidMaxMissing = 32 // almostSolid: пропусков не больше
	sideAoMaxMissing      = 64 // грань "почти заполнена" для бокового AO
)

// SideTally счётчики пустых граничных ячеек по граням
type SideTally struct {
	Missing       [6]int
	CenterMissing [6]int
}

// SolidCenter производный признак "центр грани сплошной"
func (t SideTally) SolidCenter() [6]bool {
	var out [6]bool
	for i := range out {
		out[i] = t.CenterMissing[i] < solidCenterMaxMissing
	}
	return out
}

// AlmostSolid производный признак "грань почти сплошная"
func (t SideTally) AlmostSolid() [6]bool {
	var out [6]bool
	for i := range out {
		out[i] = t.Missing[i] <= almostSolidMaxMissing
	}
	return out
}

// EmitsSideAo хотя бы одна горизонтальная грань заполнена больше чем на три четверти
func (t SideTally) EmitsSideAo() bool {
	for _, f := range [4]Facing{North, East, South, West} {
		if t.Missing[f] < sideAoMaxMissing {
			return true
		}
	}
	return false
}

// MergeResult результат жадного слияния
type MergeResult struct {
	Cuboids    []uint32
	Tally      SideTally
	VoxelCount int
}

// VolumeRel доля заполненного объёма 0..1
func (r MergeResult) VolumeRel() float32 {
	return float32(r.VoxelCount) / Volume
}

func inCenter(a, b int) bool {
	return abs(a-8) < centerRadius && abs(b-8) < centerRadius
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (t *SideTally) countEmpty(dx, dy, dz int) {
	if dz == 0 {
		t.Missing[North]++
		if inCenter(dy, dx) {
			t.CenterMissing[North]++
		}
	}
	if dx == Size-1 {
		t.Missing[East]++
		if inCenter(dy, dz) {
			t.CenterMissing[East]++
		}
	}
	if dz == Size-1 {
		t.Missing[South]++
		if inCenter(dy, dx) {
			t.CenterMissing[South]++
		}
	}
	if dx == 0 {
		t.Missing[West]++
		if inCenter(dy, dz) {
			t.CenterMissing[West]++
		}
	}
	if dy == Size-1 {
		t.Missing[Up]++
		if inCenter(dz, dx) {
			t.CenterMissing[Up]++
		}
	}
	if dy == 0 {
		t.Missing[Down]++
		if inCenter(dz, dx) {
			t.CenterMissing[Down]++
		}
	}
}

// Tally считает пустые граничные ячейки без слияния
func Tally(g *VoxelGrid) SideTally {
	var t SideTally
	for dx := 0; dx < Size; dx++ {
		for dy := 0; dy < Size; dy++ {
			for dz := 0; dz < Size; dz++ {
				if !g.present[dx][dy][dz] {
					t.countEmpty(dx, dy, dz)
				}
			}
		}
	}
	return t
}

// Merge восстанавливает список кубоидов из сетки жадным ростом.
// Порядок обхода (x, y, z) и порядок осей роста X, Y, Z определяют результат побайтно.
// sc может быть nil: тогда буферы берутся из пула.
func Merge(g *VoxelGrid, sc *Scratch) MergeResult {
	var res MergeResult
	withScratch(sc, func(sc *Scratch) {
		res = merge(g, sc)
	})
	return res
}

func merge(g *VoxelGrid, sc *Scratch) MergeResult {
	sc.resetVisited()
	res := MergeResult{Cuboids: make([]uint32, 0, 8)}

	for dx := 0; dx < Size; dx++ {
		for dy := 0; dy < Size; dy++ {
			for dz := 0; dz < Size; dz++ {
				if !g.present[dx][dy][dz] {
					res.Tally.countEmpty(dx, dy, dz)
					continue
				}
				res.VoxelCount++

				if sc.visited[dx][dy][dz] {
					continue
				}
				sc.visited[dx][dy][dz] = true

				cub := Cuboid{
					X1: dx, Y1: dy, Z1: dz,
					X2: dx + 1, Y2: dy + 1, Z2: dz + 1,
					Material: g.material[dx][dy][dz],
				}

				for grew := true; grew; {
					grew = false
					grew = tryGrowX(&cub, g, sc) || grew
					grew = tryGrowY(&cub, g, sc) || grew
					grew = tryGrowZ(&cub, g, sc) || grew
				}

				res.Cuboids = append(res.Cuboids, cub.Encode())
			}
		}
	}
	return res
}

func canJoin(g *VoxelGrid, sc *Scratch, x, y, z int, material byte) bool {
	return g.present[x][y][z] && !sc.visited[x][y][z] && g.material[x][y][z] == material
}

func tryGrowX(cub *Cuboid, g *VoxelGrid, sc *Scratch) bool {
	if cub.X2 >= Size {
		return false
	}
	for y := cub.Y1; y < cub.Y2; y++ {
		for z := cub.Z1; z < cub.Z2; z++ {
			if !canJoin(g, sc, cub.X2, y, z, cub.Material) {
				return false
			}
		}
	}
	for y := cub.Y1; y < cub.Y2; y++ {
		for z := cub.Z1; z < cub.Z2; z++ {
			sc.visited[cub.X2][y][z] = true
		}
	}
	cub.X2++
	return true
}

func tryGrowY(cub *Cuboid, g *VoxelGrid, sc *Scratch) bool {
	if cub.Y2 >= Size {
		return false
	}
	for x := cub.X1; x < cub.X2; x++ {
		for z := cub.Z1; z < cub.Z2; z++ {
			if !canJoin(g, sc, x, cub.Y2, z, cub.Material) {
				return false
			}
		}
	}
	for x := cub.X1; x < cub.X2; x++ {
		for z := cub.Z1; z < cub.Z2; z++ {
			sc.visited[x][cub.Y2][z] = true
		}
	}
	cub.Y2++
	return true
}

func tryGrowZ(cub *Cuboid, g *VoxelGrid, sc *Scratch) bool {
	if cub.Z2 >= Size {
		return false
	}
	for x := cub.X1; x < cub.X2; x++ {
		for y := cub.Y1; y < cub.Y2; y++ {
			if !canJoin(g, sc, x, y, cub.Z2, cub.Material) {
				return false
			}
		}
	}
	for x := cub.X1; x < cub.X2; x++ {
		for y := cub.Y1; y < cub.Y2; y++ {
			sc.visited[x][y][cub.Z2] = true
		}
	}
	cub.Z2++
	return true
}
