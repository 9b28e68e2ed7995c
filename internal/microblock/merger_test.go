package microblock

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullGrid() *VoxelGrid {
	g := NewVoxelGrid()
	g.Fill(FullCuboid(0))
	return g
}

func randomGrid(seed int64, fill float64, materials int) *VoxelGrid {
	rnd := rand.New(rand.NewSource(seed))
	g := NewVoxelGrid()
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			for z := 0; z < Size; z++ {
				if rnd.Float64() < fill {
					g.Set(x, y, z, byte(rnd.Intn(materials)))
				}
			}
		}
	}
	return g
}

func totalVolume(list []uint32) int {
	n := 0
	for _, v := range list {
		n += Decode(v).Volume()
	}
	return n
}

func TestMerge_FullGrid(t *testing.T) {
	res := Merge(fullGrid(), nil)

	require.Len(t, res.Cuboids, 1)
	assert.Equal(t, FullCuboid(0), Decode(res.Cuboids[0]))
	assert.Equal(t, float32(1), res.VolumeRel())
	for _, f := range AllFaces {
		assert.True(t, res.Tally.SolidCenter()[f], "solidCenter %s", f)
		assert.True(t, res.Tally.AlmostSolid()[f], "almostSolid %s", f)
	}
	assert.True(t, res.Tally.EmitsSideAo())
}

func TestMerge_EmptyGrid(t *testing.T) {
	res := Merge(NewVoxelGrid(), NewScratch())

	assert.Empty(t, res.Cuboids)
	assert.Equal(t, 0, res.VoxelCount)
	assert.False(t, res.Tally.EmitsSideAo())
	for _, f := range AllFaces {
		assert.Equal(t, Size*Size, res.Tally.Missing[f])
		assert.Equal(t, 81, res.Tally.CenterMissing[f], "центральное окно 9x9")
		assert.False(t, res.Tally.SolidCenter()[f])
	}
}

func TestMerge_RoundTrip(t *testing.T) {
	sc := NewScratch()
	for seed := int64(1); seed <= 20; seed++ {
		fill := 0.3 + float64(seed%7)/10
		g := randomGrid(seed, fill, int(seed%4)+1)

		res := Merge(g, sc)
		back := GridOf(res.Cuboids)

		require.NoError(t, back.Diff(g), "seed %d", seed)
		assert.Equal(t, g.Count(), totalVolume(res.Cuboids), "кубоиды не должны пересекаться, seed %d", seed)
		for _, v := range res.Cuboids {
			assert.True(t, Decode(v).Valid())
		}
	}
}

func TestMerge_Deterministic(t *testing.T) {
	g := randomGrid(42, 0.7, 3)

	first := Merge(g, nil)
	second := Merge(g, NewScratch())

	assert.Equal(t, first.Cuboids, second.Cuboids)
	assert.Equal(t, first.Tally, second.Tally)
}

func TestMerge_CornerRemoved(t *testing.T) {
	g := fullGrid()
	g.Clear(0, 0, 0)

	res := Merge(g, nil)

	assert.Equal(t, Volume-1, totalVolume(res.Cuboids))
	assert.Equal(t, Volume-1, res.VoxelCount)
	require.NoError(t, GridOf(res.Cuboids).Diff(g))

	largest := 0
	for _, v := range res.Cuboids {
		if vol := Decode(v).Volume(); vol > largest {
			largest = vol
		}
	}
	assert.Equal(t, 15*16*16, largest, "основной кубоид покрывает остаток 15x16x16")
	assert.Greater(t, len(res.Cuboids), 1)

	solid := res.Tally.SolidCenter()
	almost := res.Tally.AlmostSolid()
	for _, f := range []Facing{West, Down, North} {
		assert.Equal(t, 1, res.Tally.Missing[f])
		assert.Equal(t, 0, res.Tally.CenterMissing[f])
		assert.True(t, solid[f], "угол не задевает центр грани %s", f)
		assert.True(t, almost[f])
	}
}

func TestMerge_AlmostSolidThreshold(t *testing.T) {
	g := fullGrid()
	// 32 ячейки западной грани вне центрального окна: y = 0..1
	for y := 0; y < 2; y++ {
		for z := 0; z < Size; z++ {
			g.Clear(0, y, z)
		}
	}

	res := Merge(g, nil)
	assert.Equal(t, 32, res.Tally.Missing[West])
	assert.True(t, res.Tally.AlmostSolid()[West], "32 пропуска ещё почти сплошная")
	assert.True(t, res.Tally.SolidCenter()[West])

	g.Clear(0, 2, 0)
	res = Merge(g, nil)
	assert.Equal(t, 33, res.Tally.Missing[West])
	assert.False(t, res.Tally.AlmostSolid()[West], "33 пропуска уже нет")
	assert.True(t, res.Tally.SolidCenter()[West])
}

func TestMerge_CenterThreshold(t *testing.T) {
	g := fullGrid()
	for z := 4; z < 8; z++ {
		g.Clear(0, 8, z)
	}
	res := Merge(g, nil)
	assert.Equal(t, 4, res.Tally.CenterMissing[West])
	assert.True(t, res.Tally.SolidCenter()[West])

	g.Clear(0, 8, 8)
	res = Merge(g, nil)
	assert.Equal(t, 5, res.Tally.CenterMissing[West])
	assert.False(t, res.Tally.SolidCenter()[West])
}

func TestMerge_SeparateCuboidsStaySeparate(t *testing.T) {
	g := NewVoxelGrid()
	g.Fill(Cuboid{X1: 0, Y1: 0, Z1: 0, X2: 4, Y2: 4, Z2: 4})
	g.Fill(Cuboid{X1: 8, Y1: 8, Z1: 8, X2: 12, Y2: 12, Z2: 12})

	res := Merge(g, nil)
	require.Len(t, res.Cuboids, 2)
	assert.Equal(t, Cuboid{X2: 4, Y2: 4, Z2: 4}, Decode(res.Cuboids[0]))
	assert.Equal(t, Cuboid{X1: 8, Y1: 8, Z1: 8, X2: 12, Y2: 12, Z2: 12}, Decode(res.Cuboids[1]))
}

func TestMerge_MaterialsDoNotMix(t *testing.T) {
	g := NewVoxelGrid()
	g.Fill(Cuboid{X2: 8, Y2: 16, Z2: 16, Material: 0})
	g.Fill(Cuboid{X1: 8, X2: 16, Y2: 16, Z2: 16, Material: 1})

	res := Merge(g, nil)
	require.Len(t, res.Cuboids, 2)
	assert.Equal(t, byte(0), Decode(res.Cuboids[0]).Material)
	assert.Equal(t, byte(1), Decode(res.Cuboids[1]).Material)
}

func TestMerge_SideAoNeedsHorizontalFace(t *testing.T) {
	// Горизонтальная плита: все боковые грани наполовину пусты (128 пропусков)
	g := NewVoxelGrid()
	g.Fill(Cuboid{X2: 16, Y2: 8, Z2: 16})

	res := Merge(g, nil)
	assert.False(t, res.Tally.EmitsSideAo())
	assert.True(t, res.Tally.AlmostSolid()[Down])
	assert.False(t, res.Tally.AlmostSolid()[Up])
}
