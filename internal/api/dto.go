package api

import (
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world"
	"github.com/annel0/microblock/internal/world/block"
)

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CuboidDTO кубоид в координатах вокселей, max исключён
type CuboidDTO struct {
	X1       int  `json:"x1"`
	Y1       int  `json:"y1"`
	Z1       int  `json:"z1"`
	X2       int  `json:"x2"`
	Y2       int  `json:"y2"`
	Z2       int  `json:"z2"`
	Material byte `json:"material"`
}

// MaterialDTO запись таблицы материалов
type MaterialDTO struct {
	ID   block.BlockID `json:"id"`
	Code string        `json:"code"`
}

// ShapeDTO форма микроблока с производными признаками
type ShapeDTO struct {
	Pos             vec.Vec3        `json:"pos"`
	Name            string          `json:"name"`
	Digest          string          `json:"digest"`
	Cuboids         []CuboidDTO     `json:"cuboids"`
	Materials       []MaterialDTO   `json:"materials"`
	SnowCuboids     int             `json:"snow_cuboids"`
	GroundSnow      int             `json:"ground_snow_cuboids"`
	SnowLevel       int             `json:"snow_level"`
	SideSolid       map[string]bool `json:"side_solid"`
	SideAlmostSolid map[string]bool `json:"side_almost_solid"`
	EmitSideAo      byte            `json:"emit_side_ao"`
	AbsorbAnyLight  bool            `json:"absorb_any_light"`
	LightHsv        [3]byte         `json:"light_hsv"`
	LightAbsorption int             `json:"light_absorption"`
	VolumeRel       float32         `json:"volume_rel"`
}

func faceMap(mask [6]bool) map[string]bool {
	out := make(map[string]bool, 6)
	for _, f := range microblock.AllFaces {
		out[f.String()] = mask[f]
	}
	return out
}

func newShapeDTO(s *microblock.Shape, reg *block.Registry) ShapeDTO {
	dto := ShapeDTO{
		Pos:             s.Pos,
		Name:            s.Name,
		Digest:          world.Digest(s),
		Cuboids:         make([]CuboidDTO, 0, len(s.Cuboids)),
		Materials:       make([]MaterialDTO, 0, len(s.Materials)),
		SnowCuboids:     len(s.SnowCuboids),
		GroundSnow:      len(s.GroundSnowCuboids),
		SnowLevel:       s.SnowLevel,
		SideSolid:       faceMap(s.SideSolid),
		SideAlmostSolid: faceMap(s.SideAlmostSolid),
		EmitSideAo:      s.EmitSideAo,
		AbsorbAnyLight:  s.AbsorbAnyLight,
		LightHsv:        s.LightHsv(reg),
		LightAbsorption: s.LightAbsorption(reg),
		VolumeRel:       s.VolumeRel,
	}
	for _, v := range s.Cuboids {
		c := microblock.Decode(v)
		dto.Cuboids = append(dto.Cuboids, CuboidDTO{X1: c.X1, Y1: c.Y1, Z1: c.Z1, X2: c.X2, Y2: c.Y2, Z2: c.Z2, Material: c.Material})
	}
	for _, id := range s.Materials {
		m := MaterialDTO{ID: id}
		if p, ok := reg.Get(id); ok {
			m.Code = p.Code
		}
		dto.Materials = append(dto.Materials, m)
	}
	return dto
}

// PlaceRequest установка микроблока
type PlaceRequest struct {
	Material string `json:"material" binding:"required"`
	Name     string `json:"name"`
}

// VoxelRequest кисть резца
type VoxelRequest struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
	Add      bool   `json:"add"`
	Material string `json:"material"`
	Size     int    `json:"size"`
}

// TransformRequest поворот и отражение
type TransformRequest struct {
	Degrees int    `json:"degrees"`
	Flip    string `json:"flip"`
}

// SnowRequest уровень снега
type SnowRequest struct {
	Level int `json:"level"`
}

// MeshPartDTO геометрия одного меша
type MeshPartDTO struct {
	Faces     int        `json:"faces"`
	Vertices  int        `json:"vertices"`
	Min       [3]float32 `json:"min"`
	Max       [3]float32 `json:"max"`
	Positions []float32  `json:"positions,omitempty"`
	UV        []float32  `json:"uv,omitempty"`
	Indices   []uint32   `json:"indices,omitempty"`
}

// MeshDTO основной и снежный меши
type MeshDTO struct {
	Base *MeshPartDTO `json:"base"`
	Snow *MeshPartDTO `json:"snow,omitempty"`
}

func newMeshPart(m *mesh.Mesh, full bool) *MeshPartDTO {
	if m == nil {
		return nil
	}
	min, max := m.Bounds()
	part := &MeshPartDTO{Faces: m.FaceCount(), Vertices: m.VertexCount(), Min: min, Max: max}
	if full {
		part.Positions = m.Positions
		part.UV = m.UV
		part.Indices = m.Indices
	}
	return part
}
