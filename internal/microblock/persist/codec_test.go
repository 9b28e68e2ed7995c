package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

var testPos = vec.Vec3{X: 4, Y: 60, Z: -9}

func newTestCodec(t *testing.T) (*Codec, *block.Registry) {
	t.Helper()
	reg := block.NewRegistry()
	require.NoError(t, block.RegisterDefaults(reg))
	return NewCodec(reg, ""), reg
}

func halfSlab(t *testing.T, reg *block.Registry) *microblock.Shape {
	t.Helper()
	env := microblock.Env{Materials: reg}
	granite, _ := reg.Get(block.GraniteBlockID)
	s, err := microblock.Place(env, testPos, granite, "granite")
	require.NoError(t, err)

	g := microblock.NewVoxelGrid()
	g.Fill(microblock.Cuboid{X2: 16, Y2: 8, Z2: 16})
	s.SetData(env, g)
	_, err = s.AddMaterial(block.AndesiteBlockID)
	require.NoError(t, err)
	changed, err := s.SetVoxel(env, microblock.Voxel{X: 2, Y: 8, Z: 2}, true, 1, 2)
	require.NoError(t, err)
	require.True(t, changed)
	return s
}

func marshalDoc(t *testing.T, doc bson.D) []byte {
	t.Helper()
	data, err := bson.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, reg := newTestCodec(t)
	s := halfSlab(t, reg)
	s.Name = "granite slab"

	data, err := Marshal(s)
	require.NoError(t, err)

	got, err := codec.Unmarshal(data, testPos, nil)
	require.NoError(t, err)

	assert.Equal(t, s.Cuboids, got.Cuboids)
	assert.Equal(t, s.Materials, got.Materials)
	assert.Equal(t, s.SnowCuboids, got.SnowCuboids)
	assert.Equal(t, s.GroundSnowCuboids, got.GroundSnowCuboids)
	assert.Equal(t, s.SideSolid, got.SideSolid)
	assert.Equal(t, s.SideAlmostSolid, got.SideAlmostSolid)
	assert.Equal(t, s.EmitSideAo, got.EmitSideAo)
	assert.Equal(t, s.AbsorbAnyLight, got.AbsorbAnyLight)
	assert.Equal(t, "granite slab", got.Name)
	assert.InDelta(t, s.VolumeRel, got.VolumeRel, 1e-6)
	assert.Equal(t, testPos, got.Pos)
}

func TestCodec_EmptySnowListsAreOmitted(t *testing.T) {
	_, reg := newTestCodec(t)
	s := halfSlab(t, reg)
	s.SnowCuboids = nil
	s.GroundSnowCuboids = []uint32{}

	raw := bson.Raw(marshalDoc(t, ToDocument(s)))
	_, err := raw.LookupErr(KeySnowCuboids)
	assert.Error(t, err)
	_, err = raw.LookupErr(KeyGroundSnowCuboids)
	assert.Error(t, err)

	v, err := raw.LookupErr(KeyCuboids)
	require.NoError(t, err)
	assert.Equal(t, bson.TypeArray, v.Type)
}

func TestCodec_FullFieldsSurviveHighBits(t *testing.T) {
	codec, _ := newTestCodec(t)
	// Кубоид с материалом 15 даёт старший бит слова: int32 хранит его отрицательным
	word := microblock.Encode(0, 0, 0, 16, 16, 16, 0xF0|15)
	doc := bson.D{
		{Key: KeyMaterials, Value: []int32{1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3, 2}},
		{Key: KeyCuboids, Value: []int32{int32(word)}},
	}

	got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	require.NoError(t, err)
	require.Len(t, got.Cuboids, 1)
	assert.Equal(t, word, got.Cuboids[0])
	assert.Equal(t, byte(15), microblock.Decode(got.Cuboids[0]).Material)
}

func TestCodec_LegacyStringMaterials(t *testing.T) {
	codec, _ := newTestCodec(t)
	doc := bson.D{
		// rock-andesite найден напрямую, microblock найден с суффиксом -free, остальное гранит
		{Key: KeyMaterials, Value: bson.A{"rock-andesite", "microblock", "no-such-thing"}},
		{Key: KeyCuboids, Value: []int32{int32(microblock.FullCuboid(0).Encode())}},
	}

	got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	require.NoError(t, err)
	assert.Equal(t, []block.BlockID{block.AndesiteBlockID, block.MicroBlockID, block.GraniteBlockID}, got.Materials)
}

func TestCodec_MaterialsFallback(t *testing.T) {
	codec, _ := newTestCodec(t)

	for name, doc := range map[string]bson.D{
		"missing":   {},
		"not-array": {{Key: KeyMaterials, Value: "rock-andesite"}},
		"mixed":     {{Key: KeyMaterials, Value: bson.A{"rock-andesite", 3.5}}},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
			require.NoError(t, err)
			assert.Equal(t, []block.BlockID{block.GraniteBlockID}, got.Materials)
		})
	}
}

func TestCodec_NoDefaultMaterial(t *testing.T) {
	codec := NewCodec(block.NewRegistry(), "")
	_, err := codec.Unmarshal(marshalDoc(t, bson.D{}), testPos, nil)
	assert.ErrorIs(t, err, ErrNoDefaultMaterial)
}

func TestCodec_MissingCuboidsIsFullBlock(t *testing.T) {
	codec, _ := newTestCodec(t)
	doc := bson.D{{Key: KeyMaterials, Value: []int32{int32(block.GraniteBlockID)}}}

	got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{microblock.FullCuboid(0).Encode()}, got.Cuboids)
	assert.Equal(t, float32(1), got.VolumeRel)

	// Снега нет в документе: пересчитан по сетке
	assert.NotEmpty(t, got.SnowCuboids)
	assert.Empty(t, got.GroundSnowCuboids)
}

func TestCodec_LegacyLongCuboids(t *testing.T) {
	codec, _ := newTestCodec(t)
	words := []uint32{
		microblock.Encode(0, 0, 0, 8, 16, 16, 0),
		microblock.Encode(8, 0, 0, 16, 4, 16, 0),
	}
	doc := bson.D{
		{Key: KeyMaterials, Value: []int32{int32(block.GraniteBlockID)}},
		{Key: KeyCuboids, Value: []int64{int64(words[0]), int64(words[1])}},
	}

	got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	require.NoError(t, err)
	assert.Equal(t, words, got.Cuboids)
}

func TestCodec_LongSnowListIsMalformed(t *testing.T) {
	codec, _ := newTestCodec(t)
	doc := bson.D{
		{Key: KeySnowCuboids, Value: []int64{1}},
		{Key: KeyGroundSnowCuboids, Value: []int32{}},
	}
	_, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodec_SnowRecomputedWhenOneListMissing(t *testing.T) {
	codec, reg := newTestCodec(t)
	s := halfSlab(t, reg)
	require.NotEmpty(t, s.SnowCuboids)

	doc := ToDocument(s)
	// Оставляем только мусорный список на земле: оба списка пересчитываются
	filtered := bson.D{}
	for _, e := range doc {
		if e.Key == KeySnowCuboids || e.Key == KeyGroundSnowCuboids {
			continue
		}
		filtered = append(filtered, e)
	}
	filtered = append(filtered, bson.E{Key: KeyGroundSnowCuboids, Value: []int32{12345}})

	got, err := codec.Unmarshal(marshalDoc(t, filtered), testPos, nil)
	require.NoError(t, err)
	assert.Equal(t, s.SnowCuboids, got.SnowCuboids)
	assert.Equal(t, s.GroundSnowCuboids, got.GroundSnowCuboids)
}

func TestCodec_MissingMaskBytes(t *testing.T) {
	codec, _ := newTestCodec(t)
	// Нижняя половина блока: верх не сплошной
	half := microblock.Encode(0, 0, 0, 16, 8, 16, 0)
	doc := bson.D{
		{Key: KeyMaterials, Value: []int32{int32(block.GraniteBlockID)}},
		{Key: KeyCuboids, Value: []int32{int32(half)}},
	}

	got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	require.NoError(t, err)

	assert.Equal(t, byte(0xFF), got.EmitSideAo)
	assert.True(t, got.AbsorbAnyLight)

	// sideAlmostSolid отсутствовал: обе маски пересчитаны по сетке, кубоиды не тронуты
	assert.False(t, got.SideSolid[microblock.Up])
	assert.True(t, got.SideSolid[microblock.Down])
	assert.False(t, got.SideAlmostSolid[microblock.Up])
	assert.True(t, got.SideAlmostSolid[microblock.Down])
	assert.Equal(t, []uint32{half}, got.Cuboids)
	assert.InDelta(t, 0.5, got.VolumeRel, 1e-6)
}

func TestCodec_MissingMaskByteIsAllFaces(t *testing.T) {
	codec, _ := newTestCodec(t)
	half := microblock.Encode(0, 0, 0, 16, 8, 16, 0)
	doc := bson.D{
		{Key: KeyMaterials, Value: []int32{int32(block.GraniteBlockID)}},
		{Key: KeyCuboids, Value: []int32{int32(half)}},
		{Key: KeySideAlmostSolid, Value: []byte{0}},
	}

	got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	require.NoError(t, err)
	assert.Equal(t, [6]bool{true, true, true, true, true, true}, got.SideSolid, "маска без поля читается как 255")
	assert.Equal(t, [6]bool{}, got.SideAlmostSolid)
}

func TestCodec_MaskBytesAreRead(t *testing.T) {
	codec, _ := newTestCodec(t)
	doc := bson.D{
		{Key: KeyMaterials, Value: []int32{int32(block.GraniteBlockID)}},
		{Key: KeyEmitSideAo, Value: []byte{0}},
		{Key: KeySideSolid, Value: []byte{microblock.North.Flag() | microblock.Up.Flag()}},
		{Key: KeySideAlmostSolid, Value: []byte{microblock.Down.Flag()}},
	}

	got, err := codec.Unmarshal(marshalDoc(t, doc), testPos, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0), got.EmitSideAo)
	assert.False(t, got.AbsorbAnyLight)
	assert.Equal(t, [6]bool{true, false, false, false, true, false}, got.SideSolid)
	assert.Equal(t, [6]bool{false, false, false, false, false, true}, got.SideAlmostSolid)
}

func TestCodec_Garbage(t *testing.T) {
	codec, _ := newTestCodec(t)
	_, err := codec.Unmarshal([]byte{1, 2, 3}, testPos, nil)
	assert.ErrorIs(t, err, ErrMalformed)
}
