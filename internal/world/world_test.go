package world

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/microblock/internal/eventbus"
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/storage"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

type mergeCounter struct {
	merges int
	shapes int
}

func (m *mergeCounter) ObserveMerge(time.Duration, int) { m.merges++ }
func (m *mergeCounter) SetShapes(n int)                  { m.shapes = n }

type testWorld struct {
	*World
	repo    *storage.MemoryShapeRepo
	bus     eventbus.EventBus
	metrics *mergeCounter
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	reg := block.NewRegistry()
	require.NoError(t, block.RegisterDefaults(reg))

	builder := mesh.NewBuilder(reg, mesh.Config{}, nil)
	pool := mesh.NewPool(builder, 2, nil)
	bus := eventbus.NewMemoryBus(64)
	repo := storage.NewMemoryShapeRepo()
	metrics := &mergeCounter{}

	w, err := New(Options{
		Materials: reg,
		Repo:      repo,
		Builder:   builder,
		Pool:      pool,
		Bus:       bus,
		Metrics:   metrics,
		SnowLayer: block.SnowLayerID,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		bus.Close()
	})
	return &testWorld{World: w, repo: repo, bus: bus, metrics: metrics}
}

func (tw *testWorld) subscribe(t *testing.T, eventType string) <-chan *eventbus.Envelope {
	t.Helper()
	ch := make(chan *eventbus.Envelope, 16)
	_, err := tw.bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventType}}, func(ctx context.Context, ev *eventbus.Envelope) {
		ch <- ev
	})
	require.NoError(t, err)
	return ch
}

func waitEvent(t *testing.T, ch <-chan *eventbus.Envelope, out interface{}) {
	t.Helper()
	select {
	case ev := <-ch:
		require.NoError(t, eventbus.Decode(ev, out))
	case <-time.After(2 * time.Second):
		t.Fatal("событие не получено")
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestWorld_Place(t *testing.T) {
	tw := newTestWorld(t)
	events := tw.subscribe(t, eventbus.TypeShapeChanged)
	ctx := context.Background()
	pos := vec.Vec3{X: 1, Y: 64, Z: 1}

	s, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)
	assert.Equal(t, []uint32{microblock.FullCuboid(0).Encode()}, s.Cuboids)
	assert.Equal(t, block.MicroBlockID, tw.Block(pos))
	assert.Equal(t, 1, tw.Count())
	assert.Equal(t, 1, tw.metrics.shapes)

	var ev eventbus.ShapeChanged
	waitEvent(t, events, &ev)
	assert.Equal(t, eventbus.OpPlaced, ev.Op)
	assert.Equal(t, pos, ev.Pos)
	assert.Equal(t, Digest(s), ev.Digest)

	_, err = tw.Place(ctx, pos, block.BlockID(777), "nothing")
	assert.ErrorIs(t, err, ErrUnknownMaterial)
}

func TestWorld_ShapeIsSnapshot(t *testing.T) {
	tw := newTestWorld(t)
	pos := vec.Vec3{}
	_, err := tw.Place(context.Background(), pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	snap, ok := tw.Shape(pos)
	require.True(t, ok)
	snap.Cuboids[0] = 0

	again, _ := tw.Shape(pos)
	assert.Equal(t, microblock.FullCuboid(0).Encode(), again.Cuboids[0])

	_, ok = tw.Shape(vec.Vec3{X: 9})
	assert.False(t, ok)
}

func TestWorld_SetVoxel(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{X: 2}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	changed, err := tw.SetVoxel(ctx, pos, microblock.Voxel{X: 0, Y: 0, Z: 0}, true, block.AndesiteBlockID, 4)
	require.NoError(t, err)
	assert.True(t, changed)

	s, _ := tw.Shape(pos)
	assert.Equal(t, []block.BlockID{block.GraniteBlockID, block.AndesiteBlockID}, s.Materials)
	assert.Equal(t, byte(1), s.Grid(nil).Material(3, 3, 3))

	// Повторная кисть того же материала ничего не меняет
	changed, err = tw.SetVoxel(ctx, pos, microblock.Voxel{}, true, block.AndesiteBlockID, 4)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = tw.SetVoxel(ctx, pos, microblock.Voxel{}, true, block.BlockID(777), 1)
	assert.ErrorIs(t, err, ErrUnknownMaterial)

	_, err = tw.SetVoxel(ctx, vec.Vec3{X: 100}, microblock.Voxel{}, false, 0, 1)
	assert.ErrorIs(t, err, ErrNoShape)

	assert.GreaterOrEqual(t, tw.metrics.merges, 2)
}

func TestWorld_SetVoxelKeepsMaterialTableOnRejectedEdits(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{X: 4}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	_, err = tw.SetVoxel(ctx, pos, microblock.Voxel{X: 99}, true, block.GlassBlockID, 1)
	assert.ErrorIs(t, err, microblock.ErrOutOfRange)
	_, err = tw.SetVoxel(ctx, pos, microblock.Voxel{}, true, block.GlassBlockID, 0)
	assert.ErrorIs(t, err, microblock.ErrOutOfRange)

	// Повторная закраска тем же материалом ничего не меняет
	changed, err := tw.SetVoxel(ctx, pos, microblock.Voxel{}, true, block.GraniteBlockID, 16)
	require.NoError(t, err)
	assert.False(t, changed)

	s, _ := tw.Shape(pos)
	assert.Equal(t, []block.BlockID{block.GraniteBlockID}, s.Materials)

	// Больше лимита таблицы отклонённых правок таблицу не переполняют
	codes := []block.BlockID{block.AndesiteBlockID, block.ClayBlockID, block.GlassBlockID, block.LampBlockID, block.PlanksBlockID}
	for i := 0; i < microblock.MaxMaterials+1; i++ {
		_, err = tw.SetVoxel(ctx, pos, microblock.Voxel{X: 16}, true, codes[i%len(codes)], 1)
		assert.ErrorIs(t, err, microblock.ErrOutOfRange)
	}
	s, _ = tw.Shape(pos)
	assert.Len(t, s.Materials, 1)

	changed, err = tw.SetVoxel(ctx, pos, microblock.Voxel{}, true, block.GlassBlockID, 1)
	require.NoError(t, err)
	assert.True(t, changed)
	s, _ = tw.Shape(pos)
	assert.Equal(t, []block.BlockID{block.GraniteBlockID, block.GlassBlockID}, s.Materials)
}

func TestWorld_AbsorptionChangeIsPublished(t *testing.T) {
	tw := newTestWorld(t)
	events := tw.subscribe(t, eventbus.TypeAbsorptionChanged)
	ctx := context.Background()
	pos := vec.Vec3{X: 5}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	// Place без предыдущего состояния тоже сообщает переход: пропускаем его
	var placed eventbus.AbsorptionChanged
	select {
	case ev := <-events:
		require.NoError(t, eventbus.Decode(ev, &placed))
	case <-time.After(100 * time.Millisecond):
	}

	// Тонкая плита у пола больше не поглощает свет
	changed, err := tw.SetVoxel(ctx, pos, microblock.Voxel{X: 0, Y: 1, Z: 0}, false, 0, 16)
	require.NoError(t, err)
	require.True(t, changed)

	var ev eventbus.AbsorptionChanged
	waitEvent(t, events, &ev)
	assert.Equal(t, pos, ev.Pos)
	assert.Equal(t, 0, ev.New)
	assert.NotEqual(t, ev.Old, ev.New)
}

func TestWorld_CarvingEverythingRemovesBlock(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{Y: 3}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)
	require.NoError(t, tw.Save(ctx, pos))

	changed, err := tw.SetVoxel(ctx, pos, microblock.Voxel{}, false, 0, 16)
	require.NoError(t, err)
	assert.True(t, changed)

	_, ok := tw.Shape(pos)
	assert.False(t, ok)
	assert.Equal(t, block.AirBlockID, tw.Block(pos))

	_, found, err := tw.repo.Load(ctx, pos)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWorld_SetDataEmptyRemoves(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{Z: 3}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	g := microblock.NewVoxelGrid()
	g.Fill(microblock.Cuboid{X2: 16, Y2: 8, Z2: 16})
	require.NoError(t, tw.SetData(ctx, pos, g))
	s, _ := tw.Shape(pos)
	assert.InDelta(t, 0.5, s.VolumeRel, 1e-6)

	require.NoError(t, tw.SetData(ctx, pos, microblock.NewVoxelGrid()))
	_, ok := tw.Shape(pos)
	assert.False(t, ok)
}

func TestWorld_TransformFlipClearsSnowVariant(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{X: 7}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	require.NoError(t, tw.SetSnowLevel(ctx, pos, 1))
	assert.Equal(t, block.MicroBlockSnowID, tw.Block(pos))

	require.NoError(t, tw.Transform(ctx, pos, 90, microblock.NoFlip))
	s, _ := tw.Shape(pos)
	assert.Equal(t, 1, s.SnowLevel)
	assert.Equal(t, block.MicroBlockSnowID, tw.Block(pos))

	require.NoError(t, tw.Transform(ctx, pos, 0, microblock.AxisY))
	s, _ = tw.Shape(pos)
	assert.Equal(t, 0, s.SnowLevel)
	assert.Empty(t, s.SnowCuboids)
	assert.Equal(t, block.MicroBlockID, tw.Block(pos))

	assert.Error(t, tw.Transform(ctx, pos, 45, microblock.NoFlip))
}

func TestWorld_SetSnowLevel(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{X: 8}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	require.NoError(t, tw.SetSnowLevel(ctx, pos, 2))
	assert.Equal(t, block.MicroBlockSnowID, tw.Block(pos))
	require.NoError(t, tw.SetSnowLevel(ctx, pos, 0))
	assert.Equal(t, block.MicroBlockID, tw.Block(pos))

	assert.Error(t, tw.SetSnowLevel(ctx, pos, -1))
	assert.ErrorIs(t, tw.SetSnowLevel(ctx, vec.Vec3{X: 99}, 1), ErrNoShape)
}

func TestWorld_MeshIsCachedUntilEdit(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{X: 3, Y: 1}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	first, err := tw.Mesh(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, 6, first.Base.FaceCount())
	assert.Nil(t, first.Snow)

	second, err := tw.Mesh(ctx, pos)
	require.NoError(t, err)
	assert.Same(t, first.Base, second.Base)

	_, err = tw.SetVoxel(ctx, pos, microblock.Voxel{X: 0, Y: 8, Z: 0}, false, 0, 16)
	require.NoError(t, err)
	third, err := tw.Mesh(ctx, pos)
	require.NoError(t, err)
	assert.NotSame(t, first.Base, third.Base)
	min, max := third.Base.Bounds()
	assert.InDelta(t, 0, min[1], 1e-6)
	assert.InDelta(t, 0.5, max[1], 1e-6)

	// Снег пересобирается при смене уровня без пересборки основы
	require.NoError(t, tw.SetSnowLevel(ctx, pos, 1))
	snowy, err := tw.Mesh(ctx, pos)
	require.NoError(t, err)
	assert.Same(t, third.Base, snowy.Base)
	assert.NotNil(t, snowy.Snow)

	_, err = tw.Mesh(ctx, vec.Vec3{X: 99})
	assert.ErrorIs(t, err, ErrNoShape)
}

func TestWorld_GroundSnowNeedsSolidBelow(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{Y: 10}

	assert.False(t, tw.SnowContext(pos, 1).BelowTopSolid)
	tw.SetBlock(pos.Down(), block.GraniteBlockID)
	assert.True(t, tw.SnowContext(pos, 1).BelowTopSolid)

	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)
	assert.Equal(t, block.SnowLayerID, tw.SnowContext(pos, 1).Layer)
}

func TestWorld_MeshFollowsBlockBelow(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{X: 6, Y: 20}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	// Половина блока вырезана до дна: открытая земля под снегом
	_, err = tw.SetVoxel(ctx, pos, microblock.Voxel{X: 8}, false, 0, 16)
	require.NoError(t, err)
	require.NoError(t, tw.SetSnowLevel(ctx, pos, 1))

	s, _ := tw.Shape(pos)
	require.NotEmpty(t, s.GroundSnowCuboids)

	before, err := tw.Mesh(ctx, pos)
	require.NoError(t, err)
	require.NotNil(t, before.Snow)

	tw.SetBlock(pos.Down(), block.GraniteBlockID)
	after, err := tw.Mesh(ctx, pos)
	require.NoError(t, err)
	assert.Same(t, before.Base, after.Base, "основа не зависит от блока снизу")
	require.NotNil(t, after.Snow)
	assert.Greater(t, after.Snow.FaceCount(), before.Snow.FaceCount())

	fresh, err := tw.Builder().BuildSnow(s, tw.SnowContext(pos, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, fresh.FaceCount(), after.Snow.FaceCount())

	tw.SetBlock(pos.Down(), block.AirBlockID)
	again, err := tw.Mesh(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, before.Snow.FaceCount(), again.Snow.FaceCount())
}

func TestWorld_SaveLoad(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{X: -4, Y: 70, Z: 12}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)
	_, err = tw.SetVoxel(ctx, pos, microblock.Voxel{X: 4, Y: 4, Z: 4}, true, block.ClayBlockID, 2)
	require.NoError(t, err)
	require.NoError(t, tw.Save(ctx, pos))

	want, _ := tw.Shape(pos)

	other := newTestWorld(t)
	other.repo = tw.repo
	other.World.repo = tw.repo

	found, err := other.Load(ctx, pos)
	require.NoError(t, err)
	require.True(t, found)

	got, ok := other.Shape(pos)
	require.True(t, ok)
	assert.Equal(t, want.Cuboids, got.Cuboids)
	assert.Equal(t, want.Materials, got.Materials)
	assert.Equal(t, block.MicroBlockID, other.Block(pos))

	found, err = other.Load(ctx, vec.Vec3{X: 1000})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWorld_LoadCorrupted(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	require.NoError(t, tw.repo.Save(ctx, vec.Vec3{X: 1}, []byte{1, 2, 3}))

	_, err := tw.Load(ctx, vec.Vec3{X: 1})
	assert.Error(t, err)

	n, err := tw.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWorld_FlushAndLoadAll(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	for x := 0; x < 3; x++ {
		_, err := tw.Place(ctx, vec.Vec3{X: x}, block.GraniteBlockID, "granite")
		require.NoError(t, err)
	}

	n, err := tw.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, tw.repo.Count())

	n, err = tw.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "чистые формы не пишутся повторно")

	other := newTestWorld(t)
	other.World.repo = tw.repo
	loaded, err := other.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)
	assert.ElementsMatch(t, []vec.Vec3{{X: 0}, {X: 1}, {X: 2}}, other.Positions())
}

func TestWorld_RunFlushesOnStop(t *testing.T) {
	tw := newTestWorld(t)
	_, err := tw.Place(context.Background(), vec.Vec3{}, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tw.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 1, tw.repo.Count())
}

func TestWorld_RemapAndMappings(t *testing.T) {
	tw := newTestWorld(t)
	ctx := context.Background()
	pos := vec.Vec3{}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)

	mappings := tw.Mappings()
	assert.Equal(t, "rock-granite", mappings[block.GraniteBlockID])

	// В старом мире id 1 был андезитом
	tw.Remap(map[block.BlockID]string{block.GraniteBlockID: "rock-andesite"})
	s, _ := tw.Shape(pos)
	assert.Equal(t, []block.BlockID{block.AndesiteBlockID}, s.Materials)
}

func TestWorld_Remove(t *testing.T) {
	tw := newTestWorld(t)
	events := tw.subscribe(t, eventbus.TypeShapeChanged)
	ctx := context.Background()
	pos := vec.Vec3{Y: 1}
	_, err := tw.Place(ctx, pos, block.GraniteBlockID, "granite")
	require.NoError(t, err)
	var placed eventbus.ShapeChanged
	waitEvent(t, events, &placed)

	require.NoError(t, tw.Remove(ctx, pos))
	var removed eventbus.ShapeChanged
	waitEvent(t, events, &removed)
	assert.Equal(t, eventbus.OpRemoved, removed.Op)
	assert.Empty(t, removed.Digest)

	assert.ErrorIs(t, tw.Remove(ctx, pos), ErrNoShape)
	assert.Equal(t, 0, tw.metrics.shapes)
}

func TestDigest(t *testing.T) {
	a := microblock.NewShape(vec.Vec3{})
	a.Cuboids = []uint32{microblock.FullCuboid(0).Encode()}
	a.Materials = []block.BlockID{block.GraniteBlockID}
	b := a.Clone()
	assert.Equal(t, Digest(a), Digest(b))
	assert.Len(t, Digest(a), 16)

	b.Materials[0] = block.AndesiteBlockID
	assert.NotEqual(t, Digest(a), Digest(b))
}
