package mesh

import (
	"errors"
	"fmt"

	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/microblock"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

// ErrCorrupted кубоид ссылается на материал вне таблицы
var ErrCorrupted = errors.New("микроблок повреждён")

// CorruptionError подробности повреждения: позиция, индекс материала и размер таблицы
type CorruptionError struct {
	Pos           *vec.Vec3
	MaterialIndex int
	TableSize     int
}

func (e *CorruptionError) Error() string {
	where := "неизвестной позиции"
	if e.Pos != nil {
		where = e.Pos.String()
	}
	return fmt.Sprintf("микроблок в %s повреждён: кубоид ссылается на материал %d, а материалов только %d",
		where, e.MaterialIndex, e.TableSize)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupted
}

// Config параметры атласа
type Config struct {
	// Unknown позиция текстуры-заглушки в атласе
	Unknown          block.TexturePosition
	SubPixelPaddingX float32
	SubPixelPaddingY float32
}

// Builder собирает меши микроблоков. Сам по себе не хранит изменяемого состояния
// и может использоваться из нескольких горутин, если каждая передаёт свой Scratch.
type Builder struct {
	materials microblock.MaterialSource
	cfg       Config
	logger    *logging.Logger
}

// NewBuilder создаёт сборщик. logger может быть nil: тогда пишем в логгер по умолчанию.
func NewBuilder(materials microblock.MaterialSource, cfg Config, logger *logging.Logger) *Builder {
	return &Builder{materials: materials, cfg: cfg, logger: logger}
}

func (b *Builder) logError(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Error(format, args...)
		return
	}
	logging.Error(format, args...)
}

// Build собирает меш списка кубоидов. pos задаёт позицию для выбора альтернативных
// текстур; nil отключает альтернативы. При повреждённой таблице материалов возвращается
// пустой меш и *CorruptionError.
func (b *Builder) Build(cuboids []uint32, materials []block.BlockID, pos *vec.Vec3, sc *microblock.Scratch) (*Mesh, error) {
	out := NewMesh(len(cuboids) * 6)
	if len(cuboids) == 0 || materials == nil {
		return out, nil
	}
	if sc == nil {
		sc = microblock.AcquireScratch()
		defer microblock.ReleaseScratch(sc)
	}

	cwms := microblock.DecodeAll(cuboids, sc)

	for _, c := range cwms {
		if int(c.Material) >= len(materials) {
			err := &CorruptionError{Pos: pos, MaterialIndex: int(c.Material), TableSize: len(materials)}
			b.logError("%v. Блок будет невидим.", err)
			return NewMesh(0), err
		}
	}

	props := make([]*block.Properties, len(materials))
	transparent := make([]bool, len(materials))
	for i, id := range materials {
		p, ok := b.materials.Material(id)
		if !ok {
			p = &block.Properties{ID: id}
		}
		props[i] = p
		transparent[i] = p.IsTransparent()
	}

	for i, cwm := range cwms {
		skip := hiddenFaces(cwms, i, func(neib microblock.Cuboid) bool {
			return !transparent[neib.Material]
		})

		p := props[cwm.Material]
		textures := b.materialTextures(p, pos)
		b.addCuboid(out, cwm, skip, p.RenderPass, p.VertexFlags, p.ClimateColorMap, p.SeasonColorMap, textures)
	}

	return out, nil
}

// hiddenFaces вычисляет грани кубоида i, закрытые соседями, для которых occludes истинно.
// Грань скрыта, если сосед примыкает к ней вплотную и его проекция целиком накрывает грань.
func hiddenFaces(cwms []microblock.Cuboid, i int, occludes func(microblock.Cuboid) bool) [6]bool {
	var skip [6]bool
	cwm := cwms[i]
	for j, neib := range cwms {
		if i == j || !occludes(neib) {
			continue
		}
		for axis := 0; axis < 3; axis++ {
			covers := neib.ContainsOrTouches(cwm, microblock.Axis(axis))
			if cwm.At(axis) == neib.At(axis+3) && covers {
				skip[microblock.FaceForBound(axis)] = true
			}
			if cwm.At(axis+3) == neib.At(axis) && covers {
				skip[microblock.FaceForBound(axis+3)] = true
			}
		}
	}
	return skip
}

// faceTexture выбирает текстуру для грани кубоида
type faceTexture func(face microblock.Facing, outside bool) block.TexturePosition

// addCuboid добавляет видимые грани кубоида в меш
func (b *Builder) addCuboid(out *Mesh, c microblock.Cuboid, skip [6]bool, pass block.RenderPass, flags int32,
	climate, season byte, tex faceTexture) {
	for _, face := range microblock.AllFaces {
		if skip[face] {
			continue
		}
		tpos := tex(face, isOutside(c, face))
		b.addFace(out, c, face, tpos, pass, flags, climate, season)
	}
}

// isOutside грань лежит на внешней границе блока
func isOutside(c microblock.Cuboid, face microblock.Facing) bool {
	switch face {
	case microblock.North:
		return c.Z1 == 0
	case microblock.East:
		return c.X2 == microblock.Size
	case microblock.South:
		return c.Z2 == microblock.Size
	case microblock.West:
		return c.X1 == 0
	case microblock.Up:
		return c.Y2 == microblock.Size
	default:
		return c.Y1 == 0
	}
}

// faceCorners для каждой грани четыре угла (0 минимум, 1 максимум по оси),
// обход против часовой стрелки при взгляде снаружи
var faceCorners = [6][4][3]int{
	microblock.North: {{1, 0, 0}, {0, 0, 0}, {0, 1, 0}, {1, 1, 0}},
	microblock.East:  {{1, 0, 1}, {1, 0, 0}, {1, 1, 0}, {1, 1, 1}},
	microblock.South: {{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
	microblock.West:  {{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}},
	microblock.Up:    {{0, 1, 1}, {1, 1, 1}, {1, 1, 0}, {0, 1, 0}},
	microblock.Down:  {{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
}

var faceNormals = [6][3]int{
	microblock.North: {0, 0, -1},
	microblock.East:  {1, 0, 0},
	microblock.South: {0, 0, 1},
	microblock.West:  {-1, 0, 0},
	microblock.Up:    {0, 1, 0},
	microblock.Down:  {0, -1, 0},
}

var quadIndices = [6]uint32{0, 1, 2, 0, 2, 3}

// FaceNormal единичная нормаль грани
func FaceNormal(face microblock.Facing) [3]float32 {
	n := faceNormals[face]
	return [3]float32{float32(n[0]), float32(n[1]), float32(n[2])}
}

// NormalFlags упаковка нормали грани в биты 15..20 флагов вершины (по 2 бита на ось, смещение +1)
func NormalFlags(face microblock.Facing) int32 {
	n := faceNormals[face]
	return int32(n[0]+1)<<15 | int32(n[1]+1)<<17 | int32(n[2]+1)<<19
}

// faceUV текстурные координаты угла в долях тайла: текстура выровнена по вокселям
func faceUV(face microblock.Facing, x, y, z int) (float32, float32) {
	const s = microblock.Size
	switch face {
	case microblock.North:
		return float32(s-x) / s, float32(s-y) / s
	case microblock.East:
		return float32(s-z) / s, float32(s-y) / s
	case microblock.South:
		return float32(x) / s, float32(s-y) / s
	case microblock.West:
		return float32(z) / s, float32(s-y) / s
	case microblock.Up:
		return float32(x) / s, float32(z) / s
	default:
		return float32(x) / s, float32(s-z) / s
	}
}

func (b *Builder) addFace(out *Mesh, c microblock.Cuboid, face microblock.Facing, tpos block.TexturePosition,
	pass block.RenderPass, flags int32, climate, season byte) {
	base := uint32(out.VertexCount())
	w := tpos.X2 - tpos.X1
	h := tpos.Y2 - tpos.Y1
	vflags := flags | NormalFlags(face)

	for _, corner := range faceCorners[face] {
		x, y, z := c.At(corner[0]*3), c.At(1+corner[1]*3), c.At(2+corner[2]*3)
		out.Positions = append(out.Positions,
			float32(x)/microblock.Size, float32(y)/microblock.Size, float32(z)/microblock.Size)

		u, v := faceUV(face, x, y, z)
		out.UV = append(out.UV,
			tpos.X1+u*w-b.cfg.SubPixelPaddingX,
			tpos.Y1+v*h-b.cfg.SubPixelPaddingY)

		out.RGBA = append(out.RGBA, 255, 255, 255, 255)
		out.Flags = append(out.Flags, vflags)
	}
	for _, idx := range quadIndices {
		out.Indices = append(out.Indices, base+idx)
	}

	out.XyzFaces = append(out.XyzFaces, byte(face)+1)
	out.RenderPasses = append(out.RenderPasses, pass)
	out.ClimateColorMaps = append(out.ClimateColorMaps, climate)
	out.SeasonColorMaps = append(out.SeasonColorMaps, season)
}
