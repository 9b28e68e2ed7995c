package gen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/vec"
)

func TestSculpt_Deterministic(t *testing.T) {
	a, b := microblock.NewVoxelGrid(), microblock.NewVoxelGrid()
	NewSculptor(42).Sculpt(vec.Vec3{X: 3, Y: 1, Z: -2}, a)
	NewSculptor(42).Sculpt(vec.Vec3{X: 3, Y: 1, Z: -2}, b)
	assert.True(t, a.Equal(b))
}

func TestSculpt_FloorIsSolid(t *testing.T) {
	g := microblock.NewVoxelGrid()
	NewSculptor(7).Sculpt(vec.Vec3{}, g)

	for x := 0; x < microblock.Size; x++ {
		for z := 0; z < microblock.Size; z++ {
			require.True(t, g.Present(x, 0, z), "столбец %d,%d", x, z)
			assert.Equal(t, byte(0), g.Material(x, 0, z))
		}
	}
	assert.Less(t, g.Count(), microblock.Volume)
}

func TestSculpt_LayersBoundMaterials(t *testing.T) {
	s := NewSculptor(3)
	s.Layers = 4
	s.CaveThreshold = 1
	g := microblock.NewVoxelGrid()
	s.Sculpt(vec.Vec3{X: 1}, g)

	g.Voxels(func(v microblock.Voxel, material byte) {
		assert.Less(t, int(material), 4)
		assert.Equal(t, byte(v.Y*4/microblock.Size), material)
	})
}

// Слияние любой вырезанной формы восстанавливает ту же сетку
func TestSculpt_MergeRoundTrip(t *testing.T) {
	sc := microblock.NewScratch()
	for seed := int64(0); seed < 8; seed++ {
		g := microblock.NewVoxelGrid()
		NewSculptor(seed).Sculpt(vec.Vec3{X: int(seed)}, g)

		res := microblock.Merge(g, sc)
		back := microblock.GridOf(res.Cuboids)
		require.NoError(t, back.Diff(g), "сид %d", seed)
	}
}
