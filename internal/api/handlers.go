package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annel0/microblock/internal/cache"
	"github.com/annel0/microblock/internal/export"
	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world"
	"github.com/annel0/microblock/internal/world/block"
)

const posKey = "microblock_pos"

// positionMiddleware разбирает :x/:y/:z в vec.Vec3
func (rs *RestServer) positionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var coords [3]int
		for i, name := range [3]string{"x", "y", "z"} {
			v, err := strconv.Atoi(c.Param(name))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, GenericResponse{
					Success: false,
					Message: fmt.Sprintf("Неверная координата %s: %q", name, c.Param(name)),
				})
				return
			}
			coords[i] = v
		}
		c.Set(posKey, vec.Vec3{X: coords[0], Y: coords[1], Z: coords[2]})
		c.Next()
	}
}

func position(c *gin.Context) vec.Vec3 {
	return c.MustGet(posKey).(vec.Vec3)
}

// fail переводит ошибку мира в HTTP статус
func (rs *RestServer) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, world.ErrNoShape):
		status = http.StatusNotFound
	case errors.Is(err, world.ErrUnknownMaterial),
		errors.Is(err, microblock.ErrOutOfRange),
		errors.Is(err, microblock.ErrTooManyMaterials):
		status = http.StatusBadRequest
	case errors.Is(err, mesh.ErrCorrupted):
		status = http.StatusUnprocessableEntity
	}

	if status >= http.StatusInternalServerError {
		logging.Error("❌ REST %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

// resolveMaterial принимает код материала или его числовой id
func (rs *RestServer) resolveMaterial(ref string) (block.BlockID, error) {
	reg := rs.world.Materials()
	if id, ok := reg.ResolveCode(ref); ok {
		return id, nil
	}
	if n, err := strconv.ParseInt(ref, 10, 32); err == nil {
		if _, ok := reg.Get(block.BlockID(n)); ok {
			return block.BlockID(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", world.ErrUnknownMaterial, ref)
}

// persist сохраняет форму сразу после правки; автосохранение мира остаётся запасным путём
func (rs *RestServer) persist(c *gin.Context, pos vec.Vec3) {
	if err := rs.world.Save(c.Request.Context(), pos); err != nil && !errors.Is(err, world.ErrNoShape) {
		logging.Warn("⚠️ Микроблок %s не сохранён: %v", pos, err)
	}
}

func (rs *RestServer) respondShape(c *gin.Context, status int, pos vec.Vec3) {
	s, ok := rs.world.Shape(pos)
	if !ok {
		// правка превратила микроблок в воздух
		c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Микроблок убран"})
		return
	}
	dto := newShapeDTO(s, rs.world.Materials())
	c.Header("ETag", strconv.Quote(dto.Digest))
	c.JSON(status, GenericResponse{Success: true, Data: dto})
}

// handleMaterials список зарегистрированных материалов
func (rs *RestServer) handleMaterials(c *gin.Context) {
	reg := rs.world.Materials()
	out := make([]MaterialDTO, 0, reg.Len())
	for _, id := range reg.IDs() {
		p, _ := reg.Get(id)
		out = append(out, MaterialDTO{ID: id, Code: p.Code})
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: out})
}

// handleListShapes позиции всех микроблоков
func (rs *RestServer) handleListShapes(c *gin.Context) {
	positions := rs.world.Positions()
	sort.Slice(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: positions})
}

// handleGetShape форма микроблока. Поддерживает If-None-Match по дайджесту.
func (rs *RestServer) handleGetShape(c *gin.Context) {
	pos := position(c)
	s, ok := rs.world.Shape(pos)
	if !ok {
		rs.fail(c, fmt.Errorf("%w: %s", world.ErrNoShape, pos))
		return
	}

	etag := strconv.Quote(world.Digest(s))
	if c.GetHeader("If-None-Match") == etag {
		c.Header("ETag", etag)
		c.Status(http.StatusNotModified)
		return
	}
	dto := newShapeDTO(s, rs.world.Materials())
	c.Header("ETag", etag)
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: dto})
}

// handlePlace превращает блок в микроблок
func (rs *RestServer) handlePlace(c *gin.Context) {
	pos := position(c)
	var req PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный запрос: " + err.Error()})
		return
	}
	id, err := rs.resolveMaterial(req.Material)
	if err != nil {
		rs.fail(c, err)
		return
	}

	if _, err := rs.world.Place(c.Request.Context(), pos, id, req.Name); err != nil {
		rs.fail(c, err)
		return
	}
	rs.persist(c, pos)
	rs.respondShape(c, http.StatusCreated, pos)
}

// handleVoxels ставит или вырезает кисть
func (rs *RestServer) handleVoxels(c *gin.Context) {
	pos := position(c)
	req := VoxelRequest{Size: 1}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный запрос: " + err.Error()})
		return
	}

	var id block.BlockID
	if req.Add {
		var err error
		if id, err = rs.resolveMaterial(req.Material); err != nil {
			rs.fail(c, err)
			return
		}
	}

	voxel := microblock.Voxel{X: req.X, Y: req.Y, Z: req.Z}
	changed, err := rs.world.SetVoxel(c.Request.Context(), pos, voxel, req.Add, id, req.Size)
	if err != nil {
		rs.fail(c, err)
		return
	}
	if changed {
		rs.persist(c, pos)
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: gin.H{"changed": changed}})
}

// handleTransform поворачивает и отражает форму
func (rs *RestServer) handleTransform(c *gin.Context) {
	pos := position(c)
	var req TransformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный запрос: " + err.Error()})
		return
	}
	flip, ok := microblock.ParseAxis(req.Flip)
	if !ok {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: fmt.Sprintf("Неизвестная ось %q", req.Flip)})
		return
	}

	if err := rs.world.Transform(c.Request.Context(), pos, req.Degrees, flip); err != nil {
		rs.fail(c, err)
		return
	}
	rs.persist(c, pos)
	rs.respondShape(c, http.StatusOK, pos)
}

// handleSnow меняет уровень снега
func (rs *RestServer) handleSnow(c *gin.Context) {
	pos := position(c)
	var req SnowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный запрос: " + err.Error()})
		return
	}
	if err := rs.world.SetSnowLevel(c.Request.Context(), pos, req.Level); err != nil {
		rs.fail(c, err)
		return
	}
	rs.respondShape(c, http.StatusOK, pos)
}

// handleMesh сводка мешей; ?full=1 добавляет массивы вершин
func (rs *RestServer) handleMesh(c *gin.Context) {
	pos := position(c)
	m, err := rs.world.Mesh(c.Request.Context(), pos)
	if err != nil {
		rs.fail(c, err)
		return
	}
	full := c.Query("full") == "1" || c.Query("full") == "true"
	c.JSON(http.StatusOK, GenericResponse{Success: true, Data: MeshDTO{
		Base: newMeshPart(m.Base, full),
		Snow: newMeshPart(m.Snow, full),
	}})
}

// handleMeshGLB меш в формате glTF binary. Готовый GLB кешируется по дайджесту формы.
func (rs *RestServer) handleMeshGLB(c *gin.Context) {
	ctx := c.Request.Context()
	pos := position(c)
	name := fmt.Sprintf("microblock_%d_%d_%d", pos.X, pos.Y, pos.Z)

	var key string
	if rs.cache != nil {
		if s, ok := rs.world.Shape(pos); ok {
			key = cache.GLBKey(pos, world.Digest(s), rs.world.SnowContext(pos, s.SnowLevel))
			if data, err := rs.cache.Get(ctx, key); err == nil {
				c.Header("X-Cache", "HIT")
				rs.sendGLB(c, name, data)
				return
			} else if !cache.IsCacheMiss(err) {
				logging.Warn("⚠️ Кеш GLB недоступен: %v", err)
			}
		}
	}

	m, err := rs.world.Mesh(ctx, pos)
	if err != nil {
		rs.fail(c, err)
		return
	}

	data, err := export.GLB(m, name)
	if err != nil {
		if errors.Is(err, export.ErrEmptyMesh) {
			c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: err.Error()})
			return
		}
		rs.fail(c, err)
		return
	}

	if key != "" {
		if err := rs.cache.Set(ctx, key, data, 0); err != nil {
			logging.Warn("⚠️ GLB %s не закеширован: %v", pos, err)
		}
		c.Header("X-Cache", "MISS")
	}
	rs.sendGLB(c, name, data)
}

func (rs *RestServer) sendGLB(c *gin.Context, name string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".glb"))
	c.Data(http.StatusOK, "model/gltf-binary", data)
}

// handleDelete превращает микроблок в воздух
func (rs *RestServer) handleDelete(c *gin.Context) {
	if err := rs.world.Remove(c.Request.Context(), position(c)); err != nil {
		rs.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
