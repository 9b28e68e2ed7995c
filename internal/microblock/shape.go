package microblock

import (
	"fmt"

	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/vec"
	"github.com/annel0/microblock/internal/world/block"
)

const emitSideAoAll byte = 0x3F

// MaterialSource отдаёт свойства материала по id блока
type MaterialSource interface {
	Material(id block.BlockID) (*block.Properties, bool)
}

// BlockAccessor доступ к миру вокруг микроблока
type BlockAccessor interface {
	Block(pos vec.Vec3) block.BlockID
	ExchangeBlock(id block.BlockID, pos vec.Vec3)
	MarkAbsorptionChanged(prev, now int, pos vec.Vec3)
}

// Env коллабораторы, нужные изменяющим операциям. World и Scratch могут быть nil.
type Env struct {
	Materials MaterialSource
	World     BlockAccessor
	Scratch   *Scratch
}

// Shape состояние микроблока: кубоиды, таблица материалов, снег и производные признаки граней
type Shape struct {
	Pos  vec.Vec3
	Name string

	// Cuboids упакованные кубоиды; Material индексирует Materials
	Cuboids   []uint32
	Materials []block.BlockID

	SnowCuboids       []uint32
	GroundSnowCuboids []uint32
	SnowLevel         int

	SideSolid       [6]bool
	SideAlmostSolid [6]bool
	EmitSideAo      byte
	AbsorbAnyLight  bool
	VolumeRel       float32
}

// NewShape создаёт пустую форму в позиции pos
func NewShape(pos vec.Vec3) *Shape {
	return &Shape{Pos: pos, EmitSideAo: emitSideAoAll, VolumeRel: 1}
}

// Place превращает обычный блок в микроблок: один кубоид на весь блок или,
// если материал просит, по кубоиду на каждую коробку коллизии
func Place(env Env, pos vec.Vec3, props *block.Properties, name string) (*Shape, error) {
	s := NewShape(pos)
	s.Name = name
	s.Materials = []block.BlockID{props.ID}

	if !props.ChiselShapeFromCollisionBox || len(props.CollisionBoxes) == 0 {
		s.Cuboids = []uint32{FullCuboid(0).Encode()}
	} else {
		for _, box := range props.CollisionBoxes {
			c, err := NewCuboid(
				int(Size*box.X1), int(Size*box.Y1), int(Size*box.Z1),
				int(Size*box.X2), int(Size*box.Y2), int(Size*box.Z2), 0)
			if err != nil {
				return nil, fmt.Errorf("коробка коллизии %s: %w", props.Code, err)
			}
			s.Cuboids = append(s.Cuboids, c.Encode())
		}
	}

	s.Refresh(env)
	return s, nil
}

// Clone глубокая копия; фоновые сборки меша работают только с копиями
func (s *Shape) Clone() *Shape {
	c := *s
	c.Cuboids = append([]uint32(nil), s.Cuboids...)
	c.Materials = append([]block.BlockID(nil), s.Materials...)
	c.SnowCuboids = append([]uint32(nil), s.SnowCuboids...)
	c.GroundSnowCuboids = append([]uint32(nil), s.GroundSnowCuboids...)
	return &c
}

// IsEmpty true, если не осталось ни одного кубоида
func (s *Shape) IsEmpty() bool {
	return len(s.Cuboids) == 0
}

// Validate проверяет геометрию и ссылки на таблицу материалов
func (s *Shape) Validate() error {
	for i, v := range s.Cuboids {
		c := Decode(v)
		if !c.Valid() {
			return fmt.Errorf("%w: кубоид %d %v", ErrOutOfRange, i, c)
		}
		if int(c.Material) >= len(s.Materials) {
			return fmt.Errorf("%w: кубоид %d ссылается на материал %d из %d", ErrOutOfRange, i, c.Material, len(s.Materials))
		}
	}
	if len(s.Materials) > MaxMaterials {
		return fmt.Errorf("%w: %d", ErrTooManyMaterials, len(s.Materials))
	}
	return nil
}

// Grid восстанавливает плотную сетку в буфер sc или в новую сетку, если sc == nil
func (s *Shape) Grid(sc *Scratch) *VoxelGrid {
	var g *VoxelGrid
	if sc != nil {
		g = sc.Grid()
	} else {
		g = NewVoxelGrid()
	}
	ToGrid(s.Cuboids, g)
	return g
}

// Refresh пересобирает кубоиды и производные признаки из текущего списка
func (s *Shape) Refresh(env Env) {
	withScratch(env.Scratch, func(sc *Scratch) {
		env.Scratch = sc
		s.rebuild(env, s.Grid(sc))
	})
}

// rebuild заменяет список кубоидов жадным слиянием сетки и обновляет производные признаки
func (s *Shape) rebuild(env Env, g *VoxelGrid) {
	res := Merge(g, env.Scratch)
	hsv := s.LightHsv(env.Materials)

	s.Cuboids = res.Cuboids
	doEmitSideAo := res.Tally.EmitsSideAo()

	if s.AbsorbAnyLight != doEmitSideAo {
		prev := s.LightAbsorption(env.Materials)
		s.AbsorbAnyLight = doEmitSideAo
		now := s.LightAbsorption(env.Materials)
		if prev != now && env.World != nil {
			env.World.MarkAbsorptionChanged(prev, now, s.Pos)
		}
	}

	s.SideSolid = res.Tally.SolidCenter()
	s.SideAlmostSolid = res.Tally.AlmostSolid()
	if hsv[2] < 10 && doEmitSideAo {
		s.EmitSideAo = emitSideAoAll
	} else {
		s.EmitSideAo = 0
	}
	s.VolumeRel = res.VolumeRel()

	snow := MergeSnow(g, env.Scratch)
	s.SnowCuboids = snow.Surface
	s.GroundSnowCuboids = snow.Ground
}

// RefreshSideFlags пересчитывает маски граней по сетке, не трогая список кубоидов
func (s *Shape) RefreshSideFlags(sc *Scratch) {
	withScratch(sc, func(sc *Scratch) {
		t := Tally(s.Grid(sc))
		s.SideSolid = t.SolidCenter()
		s.SideAlmostSolid = t.AlmostSolid()
	})
}

// RefreshSnow пересчитывает снежные кубоиды по сетке
func (s *Shape) RefreshSnow(sc *Scratch) {
	withScratch(sc, func(sc *Scratch) {
		snow := MergeSnow(s.Grid(sc), sc)
		s.SnowCuboids = snow.Surface
		s.GroundSnowCuboids = snow.Ground
	})
}

// RefreshVolume пересчитывает долю заполненного объёма по сетке
func (s *Shape) RefreshVolume(sc *Scratch) {
	withScratch(sc, func(sc *Scratch) {
		s.VolumeRel = float32(s.Grid(sc).Count()) / Volume
	})
}

// SetVoxel ставит (add) или убирает кисть size³ с углом в pos, обрезая по границе блока.
// Возвращает true, если сетка изменилась.
func (s *Shape) SetVoxel(env Env, pos Voxel, add bool, material byte, size int) (bool, error) {
	if !pos.InRange() || size < 1 {
		return false, fmt.Errorf("%w: воксель %v кисть %d", ErrOutOfRange, pos, size)
	}
	if add && int(material) >= len(s.Materials) {
		return false, fmt.Errorf("%w: материал %d из %d", ErrOutOfRange, material, len(s.Materials))
	}

	changed := false
	withScratch(env.Scratch, func(sc *Scratch) {
		env.Scratch = sc
		g := s.Grid(sc)

		// Кисть обрезается границей блока, работа не превышает 16³
		size := min(size, Size)
		maxX, maxY, maxZ := min(pos.X+size, Size), min(pos.Y+size, Size), min(pos.Z+size, Size)
		for x := pos.X; x < maxX; x++ {
			for y := pos.Y; y < maxY; y++ {
				for z := pos.Z; z < maxZ; z++ {
					if add {
						if !g.Present(x, y, z) || g.Material(x, y, z) != material {
							changed = true
						}
						g.Set(x, y, z, material)
					} else if g.Present(x, y, z) {
						changed = true
						g.Clear(x, y, z)
					}
				}
			}
		}

		if changed {
			s.rebuild(env, g)
		}
	})
	return changed, nil
}

// SetData заменяет сетку целиком. Пустой результат означает, что блок нужно убрать.
func (s *Shape) SetData(env Env, g *VoxelGrid) {
	withScratch(env.Scratch, func(sc *Scratch) {
		env.Scratch = sc
		s.rebuild(env, g)
	})
}

// Transform поворачивает форму на degrees (кратно 90) вокруг вертикальной оси,
// предварительно отражая по оси flip. Отражение сбрасывает снег и меняет блок
// на вариант без снега.
func (s *Shape) Transform(env Env, degrees int, flip Axis) error {
	quarter, err := QuarterTurns(degrees)
	if err != nil {
		return err
	}

	cuboids, err := TransformList(s.Cuboids, degrees, flip)
	if err != nil {
		return err
	}
	s.Cuboids = cuboids

	if flip != NoFlip {
		s.SnowCuboids = []uint32{}
		s.GroundSnowCuboids = []uint32{}
		s.SnowLevel = 0
		if env.World != nil && env.Materials != nil {
			current := env.World.Block(s.Pos)
			if props, ok := env.Materials.Material(current); ok && props.NotSnowCoveredID != current {
				env.World.ExchangeBlock(props.NotSnowCoveredID, s.Pos)
			}
		}
		s.RefreshSideFlags(env.Scratch)
		return nil
	}

	if s.SnowCuboids, err = TransformList(s.SnowCuboids, degrees, NoFlip); err != nil {
		return err
	}
	if s.GroundSnowCuboids, err = TransformList(s.GroundSnowCuboids, degrees, NoFlip); err != nil {
		return err
	}
	s.SideSolid = RotateSideMask(s.SideSolid, quarter)
	s.SideAlmostSolid = RotateSideMask(s.SideAlmostSolid, quarter)
	return nil
}

// LightHsv средний HSV светящихся материалов (V > 0)
func (s *Shape) LightHsv(ms MaterialSource) [3]byte {
	var hsv [3]byte
	if ms == nil {
		return hsv
	}
	var sum [3]int
	q := 0
	for _, id := range s.Materials {
		props, ok := ms.Material(id)
		if !ok || props.LightHsv[2] == 0 {
			continue
		}
		for i := range sum {
			sum[i] += int(props.LightHsv[i])
		}
		q++
	}
	if q == 0 {
		return hsv
	}
	for i := range sum {
		hsv[i] = byte(sum[i] / q)
	}
	return hsv
}

// LightAbsorption минимальное поглощение света среди материалов, пока форма поглощает свет
func (s *Shape) LightAbsorption(ms MaterialSource) int {
	if !s.AbsorbAnyLight || ms == nil || len(s.Materials) == 0 {
		return 0
	}
	absorb := 99
	for _, id := range s.Materials {
		props, ok := ms.Material(id)
		if !ok {
			continue
		}
		if props.LightAbsorption < absorb {
			absorb = props.LightAbsorption
		}
	}
	return absorb
}

// DoEmitSideAo отбрасывает ли грань боковое затенение
func (s *Shape) DoEmitSideAo(face Facing) bool {
	return s.EmitSideAo&face.Flag() != 0
}

// DoEmitSideAoByFlag то же по битовой маске граней
func (s *Shape) DoEmitSideAoByFlag(flag byte) bool {
	return s.EmitSideAo&flag != 0
}

// Area прямоугольная область крепления, границы включительно
type Area struct {
	X1, Y1, Z1 int
	X2, Y2, Z2 int
}

// CanAttachBlockAt можно ли прикрепить блок к грани. Без области решает solidCenter,
// с областью требуется покрытие каждой граничной ячейки грани внутри области.
func (s *Shape) CanAttachBlockAt(face Facing, area *Area) bool {
	if area == nil {
		return s.SideSolid[face]
	}

	var required, covered [Size][Size]bool
	for x := area.X1; x <= area.X2; x++ {
		for y := area.Y1; y <= area.Y2; y++ {
			for z := area.Z1; z <= area.Z2; z++ {
				u, v, ok := projectOnFace(face, x, y, z)
				if !ok {
					return false
				}
				required[u][v] = true
			}
		}
	}

	for _, packed := range s.Cuboids {
		c := Decode(packed)
		for x := c.X1; x < c.X2; x++ {
			for y := c.Y1; y < c.Y2; y++ {
				for z := c.Z1; z < c.Z2; z++ {
					if u, v, ok := boundaryCell(face, x, y, z); ok {
						covered[u][v] = true
					}
				}
			}
		}
	}

	for u := 0; u < Size; u++ {
		for v := 0; v < Size; v++ {
			if required[u][v] && !covered[u][v] {
				return false
			}
		}
	}
	return true
}

// projectOnFace переносит точку области на слой ячеек грани
func projectOnFace(face Facing, x, y, z int) (int, int, bool) {
	var u, v int
	switch face {
	case North, South:
		u, v = x, y
	case East, West:
		u, v = y, z
	default:
		u, v = x, z
	}
	return u, v, u >= 0 && u < Size && v >= 0 && v < Size
}

// boundaryCell возвращает координаты ячейки на грани, если воксель лежит в её слое
func boundaryCell(face Facing, x, y, z int) (int, int, bool) {
	switch face {
	case North:
		return x, y, z == 0
	case South:
		return x, y, z == Size-1
	case East:
		return y, z, x == Size-1
	case West:
		return y, z, x == 0
	case Up:
		return x, z, y == Size-1
	default:
		return x, z, y == 0
	}
}

// IsInsulatingFace грань теплоизолирует: первый материал каменный/рудный/почвенный/керамический,
// грань почти сплошная и заполнено не меньше половины объёма
func (s *Shape) IsInsulatingFace(face Facing, ms MaterialSource) bool {
	if len(s.Materials) == 0 || ms == nil {
		return false
	}
	props, ok := ms.Material(s.Materials[0])
	if !ok || !props.Kind.IsInsulating() {
		return false
	}
	return s.SideAlmostSolid[face] && s.VolumeRel >= 0.5
}

// SelectionBoxes коробки выделения в долях блока; для пустой формы единичный куб
func (s *Shape) SelectionBoxes() []block.Box {
	if len(s.Cuboids) == 0 {
		return []block.Box{{X2: 1, Y2: 1, Z2: 1}}
	}
	boxes := make([]block.Box, len(s.Cuboids))
	for i, v := range s.Cuboids {
		boxes[i] = Decode(v).ToBox()
	}
	return boxes
}

// MaterialIndex индекс материала в таблице
func (s *Shape) MaterialIndex(id block.BlockID) (byte, bool) {
	for i, m := range s.Materials {
		if m == id {
			return byte(i), true
		}
	}
	return 0, false
}

// AddMaterial возвращает индекс материала, добавляя его в таблицу при необходимости
func (s *Shape) AddMaterial(id block.BlockID) (byte, error) {
	if idx, ok := s.MaterialIndex(id); ok {
		return idx, nil
	}
	if len(s.Materials) >= MaxMaterials {
		return 0, fmt.Errorf("%w: лимит %d", ErrTooManyMaterials, MaxMaterials)
	}
	s.Materials = append(s.Materials, id)
	return byte(len(s.Materials) - 1), nil
}

// CodeResolver разрешает код ассета в id блока текущего мира
type CodeResolver interface {
	ResolveCode(code string) (block.BlockID, bool)
}

// RemapMaterials переводит id материалов из старой раскладки мира через коды ассетов.
// Промахи логируются и оставляют id как есть.
func (s *Shape) RemapMaterials(oldMapping map[block.BlockID]string, resolver CodeResolver) {
	for i, id := range s.Materials {
		code, ok := oldMapping[id]
		if !ok {
			logging.Warn("Не удалось перенести материал микроблока в %s: id %d нет в старой раскладке", s.Pos, id)
			continue
		}
		newID, ok := resolver.ResolveCode(code)
		if !ok {
			logging.Warn("Не удалось перенести материал микроблока в %s: код %s не найден в регистре", s.Pos, code)
			continue
		}
		s.Materials[i] = newID
	}
}

// StoreMappings записывает коды всех используемых материалов в into
func (s *Shape) StoreMappings(into map[block.BlockID]string, ms MaterialSource) {
	for _, id := range s.Materials {
		if props, ok := ms.Material(id); ok {
			into[id] = props.Code
		}
	}
}
