package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/microblock/internal/cache"
	"github.com/annel0/microblock/internal/eventbus"
	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/storage"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world"
	"github.com/annel0/microblock/internal/world/block"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	*RestServer
	repo *storage.MemoryShapeRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := block.NewRegistry()
	require.NoError(t, block.RegisterDefaults(reg))

	builder := mesh.NewBuilder(reg, mesh.Config{}, nil)
	pool := mesh.NewPool(builder, 2, nil)
	bus := eventbus.NewMemoryBus(64)
	repo := storage.NewMemoryShapeRepo()

	w, err := world.New(world.Options{
		Materials: reg,
		Repo:      repo,
		Builder:   builder,
		Pool:      pool,
		Bus:       bus,
		SnowLayer: block.SnowLayerID,
	})
	require.NoError(t, err)

	glbCache, err := cache.NewMemoryCache(&cache.CacheConfig{}, 8<<20)
	require.NoError(t, err)

	rs, err := NewRestServer(Config{
		World:  w,
		Pool:   pool,
		Bus:    bus,
		Cache:  glbCache,
		Logger: logging.NewWriterLogger("api-test", &bytes.Buffer{}, logging.ERROR),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		glbCache.Close()
		pool.Close()
		bus.Close()
	})
	return &testServer{RestServer: rs, repo: repo}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

func (ts *testServer) place(t *testing.T, path string) ShapeDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPut, path, `{"material":"rock-granite","name":"test"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto ShapeDTO
	decode(t, rec, &dto)
	return dto
}

func TestRestServer_PlaceAndGet(t *testing.T) {
	ts := newTestServer(t)

	dto := ts.place(t, "/api/shapes/1/2/3")
	assert.Equal(t, vec.Vec3{X: 1, Y: 2, Z: 3}, dto.Pos)
	assert.Len(t, dto.Cuboids, 1)
	require.Len(t, dto.Materials, 1)
	assert.Equal(t, block.DefaultMaterialCode, dto.Materials[0].Code)
	assert.True(t, dto.SideSolid["up"])
	assert.InDelta(t, 1.0, dto.VolumeRel, 1e-6)

	// правка сохраняется сразу
	assert.Equal(t, 1, ts.repo.Count())

	rec := ts.do(t, http.MethodGet, "/api/shapes/1/2/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got ShapeDTO
	decode(t, rec, &got)
	assert.Equal(t, dto.Digest, got.Digest)
	assert.Equal(t, `"`+got.Digest+`"`, rec.Header().Get("ETag"))
}

func TestRestServer_ETagNotModified(t *testing.T) {
	ts := newTestServer(t)
	ts.place(t, "/api/shapes/0/0/0")

	rec := ts.do(t, http.MethodGet, "/api/shapes/0/0/0", "")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/0/0", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/shapes/0/0/0/voxels", `{"x":0,"y":15,"z":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/0/0", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestRestServer_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/shapes/a/0/0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/0/0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode(t, rec, nil)
	assert.False(t, resp.Success)

	rec = ts.do(t, http.MethodPut, "/api/shapes/0/0/0", `{"material":"unobtainium"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/shapes/0/0/0", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.place(t, "/api/shapes/0/0/0")

	rec = ts.do(t, http.MethodPost, "/api/shapes/0/0/0/voxels", `{"x":16,"y":0,"z":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Огромная кисть обрезается блоком и отвечает сразу
	rec = ts.do(t, http.MethodPost, "/api/shapes/0/0/0/voxels", `{"x":0,"y":0,"z":0,"add":true,"material":"glass-plain","size":2000000000}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/shapes/0/0/0/transform", `{"degrees":45}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/shapes/0/0/0/transform", `{"degrees":90,"flip":"q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/shapes/0/0/0/snow", `{"level":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestServer_Voxels(t *testing.T) {
	ts := newTestServer(t)
	ts.place(t, "/api/shapes/0/0/0")

	var out struct {
		Changed bool `json:"changed"`
	}
	rec := ts.do(t, http.MethodPost, "/api/shapes/0/0/0/voxels", `{"x":0,"y":0,"z":0,"size":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &out)
	assert.True(t, out.Changed)

	rec = ts.do(t, http.MethodPost, "/api/shapes/0/0/0/voxels", `{"x":0,"y":0,"z":0,"add":true,"material":"glass-plain"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &out)
	assert.True(t, out.Changed)

	var dto ShapeDTO
	decode(t, ts.do(t, http.MethodGet, "/api/shapes/0/0/0", ""), &dto)
	require.Len(t, dto.Materials, 2)
	assert.Equal(t, "glass-plain", dto.Materials[1].Code)
	assert.Less(t, dto.VolumeRel, float32(1))
}

func TestRestServer_TransformAndSnow(t *testing.T) {
	ts := newTestServer(t)
	ts.place(t, "/api/shapes/0/0/0")
	ts.do(t, http.MethodPost, "/api/shapes/0/0/0/voxels", `{"x":0,"y":8,"z":0,"size":8}`)

	rec := ts.do(t, http.MethodPost, "/api/shapes/0/0/0/transform", `{"degrees":90}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/api/shapes/0/0/0/snow", `{"level":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dto ShapeDTO
	decode(t, rec, &dto)
	assert.Equal(t, 1, dto.SnowLevel)
	assert.NotZero(t, dto.SnowCuboids)
}

func TestRestServer_Mesh(t *testing.T) {
	ts := newTestServer(t)
	ts.place(t, "/api/shapes/0/0/0")

	rec := ts.do(t, http.MethodGet, "/api/shapes/0/0/0/mesh", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var m MeshDTO
	decode(t, rec, &m)
	require.NotNil(t, m.Base)
	assert.Equal(t, 6, m.Base.Faces)
	assert.Empty(t, m.Base.Positions)
	assert.Equal(t, [3]float32{1, 1, 1}, m.Base.Max)

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/0/0/mesh?full=1", "")
	decode(t, rec, &m)
	assert.Len(t, m.Base.Positions, m.Base.Vertices*3)

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/0/0/mesh.glb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "model/gltf-binary", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("glTF")))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	first := rec.Body.Bytes()

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/0/0/mesh.glb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, first, rec.Body.Bytes())

	ts.do(t, http.MethodPost, "/api/shapes/0/0/0/voxels", `{"x":0,"y":0,"z":0,"size":4}`)
	rec = ts.do(t, http.MethodGet, "/api/shapes/0/0/0/mesh.glb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.NotEqual(t, first, rec.Body.Bytes())
}

func TestRestServer_MeshGLBFollowsBlockBelow(t *testing.T) {
	ts := newTestServer(t)
	ts.place(t, "/api/shapes/0/1/0")
	ts.do(t, http.MethodPost, "/api/shapes/0/1/0/voxels", `{"x":8,"y":0,"z":0,"size":16}`)
	rec := ts.do(t, http.MethodPut, "/api/shapes/0/1/0/snow", `{"level":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/1/0/mesh.glb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	bare := rec.Body.Bytes()

	ts.world.SetBlock(vec.Vec3{}, block.GraniteBlockID)
	rec = ts.do(t, http.MethodGet, "/api/shapes/0/1/0/mesh.glb", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Greater(t, len(rec.Body.Bytes()), len(bare), "снег на земле попал в GLB")
	covered := rec.Body.Bytes()

	rec = ts.do(t, http.MethodGet, "/api/shapes/0/1/0/mesh.glb", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, covered, rec.Body.Bytes())
}

func TestRestServer_DeleteAndList(t *testing.T) {
	ts := newTestServer(t)
	ts.place(t, "/api/shapes/2/0/0")
	ts.place(t, "/api/shapes/1/0/0")

	var positions []vec.Vec3
	decode(t, ts.do(t, http.MethodGet, "/api/shapes", ""), &positions)
	assert.Equal(t, []vec.Vec3{{X: 1}, {X: 2}}, positions)

	rec := ts.do(t, http.MethodDelete, "/api/shapes/1/0/0", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, ts.repo.Count())

	rec = ts.do(t, http.MethodDelete, "/api/shapes/1/0/0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestServer_HealthAndMaterials(t *testing.T) {
	ts := newTestServer(t)
	ts.place(t, "/api/shapes/0/0/0")

	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 1, report.Shapes)
	assert.Equal(t, 2, report.Mesh.Workers)
	require.NotNil(t, report.EventBus)
	require.NotNil(t, report.Cache)

	var materials []MaterialDTO
	decode(t, ts.do(t, http.MethodGet, "/api/materials", ""), &materials)
	assert.NotEmpty(t, materials)

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "microblock_api")
}
