package block

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterDefaults(r))
	return r
}

func TestRegistry_Defaults(t *testing.T) {
	r := newDefaultRegistry(t)

	granite, ok := r.GetByCode(DefaultMaterialCode)
	require.True(t, ok, "гранит должен быть зарегистрирован")
	assert.Equal(t, GraniteBlockID, granite.ID)
	assert.True(t, granite.Kind.IsInsulating())
	assert.False(t, granite.IsTransparent())

	glass, ok := r.Get(GlassBlockID)
	require.True(t, ok)
	assert.True(t, glass.IsTransparent())

	andesite, _ := r.Get(AndesiteBlockID)
	assert.Equal(t, 4, andesite.AlternateCount())
	tex, ok := andesite.Texture("all")
	require.True(t, ok)
	assert.Equal(t, Tile(4), tex.Position(5))

	ids := r.IDs()
	assert.Equal(t, AirBlockID, ids[0])
	assert.Equal(t, r.Len(), len(ids))
}

func TestRegistry_CodeClash(t *testing.T) {
	r := newDefaultRegistry(t)

	err := r.Register(Properties{ID: 500, Code: DefaultMaterialCode})
	assert.Error(t, err)

	err = r.Register(Properties{ID: 501})
	assert.Error(t, err)

	// Переименование существующего id освобождает старый код
	require.NoError(t, r.Register(Properties{ID: ClayBlockID, Code: "claybricks-red"}))
	_, ok := r.ResolveCode("claybricks")
	assert.False(t, ok)
	id, ok := r.ResolveCode("claybricks-red")
	assert.True(t, ok)
	assert.Equal(t, ClayBlockID, id)
}

const testCatalog = `{
  "blocks": [
    {
      "id": 200,
      "code": "rock-basalt",
      "renderPass": "opaque",
      "kind": "stone",
      "lightAbsorption": 99,
      "sideSolid": [true, true, true, true, true, true],
      "randomizeAxes": "xz",
      "textures": [
        {"code": "all", "base": [0, 0, 0.0625, 0.0625], "variants": [[0, 0, 0.0625, 0.0625], [0.0625, 0, 0.125, 0.0625]]}
      ]
    },
    {
      "id": 201,
      "code": "lamp-iron",
      "lightHsv": [4, 2, 14],
      "lightAbsorption": 0
    }
  ]
}`

func TestLoadCatalog(t *testing.T) {
	r := NewRegistry()
	n, err := LoadCatalog(strings.NewReader(testCatalog), r)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	basalt, ok := r.GetByCode("rock-basalt")
	require.True(t, ok)
	assert.Equal(t, MaterialStone, basalt.Kind)
	assert.Equal(t, RandomizeXZ, basalt.RandomizeAxes)
	assert.True(t, basalt.IsTopSolid())
	assert.Equal(t, 2, basalt.AlternateCount())

	lamp, ok := r.Get(201)
	require.True(t, ok)
	assert.Equal(t, [3]byte{4, 2, 14}, lamp.LightHsv)
}

func TestLoadCatalog_SchemaViolation(t *testing.T) {
	r := NewRegistry()

	_, err := LoadCatalog(strings.NewReader(`{"blocks": [{"id": 5}]}`), r)
	assert.Error(t, err, "блок без кода должен отклоняться схемой")

	_, err = LoadCatalog(strings.NewReader(`{"blocks": [{"id": 5, "code": "x", "renderPass": "wireframe"}]}`), r)
	assert.Error(t, err)

	_, err = LoadCatalog(strings.NewReader(`не json`), r)
	assert.Error(t, err)

	assert.Equal(t, 0, r.Len())
}

func TestLoadJSONBlocks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stone.json"), []byte(testCatalog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("пропускается"), 0o644))

	r := NewRegistry()
	require.NoError(t, LoadJSONBlocks(dir, r))
	assert.Equal(t, 2, r.Len())
}
