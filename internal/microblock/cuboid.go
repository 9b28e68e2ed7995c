package microblock

import (
	"errors"
	"fmt"

	"github.com/annel0/microblock/internal/world/block"
)

const (
	// Size ребро сетки вокселей
	Size = 16
	// Volume число вокселей в блоке
	Volume = Size * Size * Size
	// MaxMaterials декодер восстанавливает только младшие 4 бита материала
	MaxMaterials = 16
)

var (
	ErrOutOfRange       = errors.New("геометрия вне диапазона")
	ErrTooManyMaterials = errors.New("слишком много материалов в микроблоке")
	ErrEmptyShape       = errors.New("микроблок пуст")
)

// Cuboid осевой параллелепипед внутри сетки 16³ с индексом материала.
// Координаты полуоткрытые: [X1,X2) и т.д.
type Cuboid struct {
	X1, Y1, Z1 int
	X2, Y2, Z2 int
	Material   byte
}

// NewCuboid создаёт кубоид с проверкой диапазонов
func NewCuboid(x1, y1, z1, x2, y2, z2 int, material byte) (Cuboid, error) {
	c := Cuboid{X1: x1, Y1: y1, Z1: z1, X2: x2, Y2: y2, Z2: z2, Material: material}
	if !c.Valid() {
		return Cuboid{}, fmt.Errorf("%w: кубоид %v", ErrOutOfRange, c)
	}
	return c, nil
}

// FullCuboid кубоид на весь блок
func FullCuboid(material byte) Cuboid {
	return Cuboid{X2: Size, Y2: Size, Z2: Size, Material: material}
}

// Valid проверяет 0 ≤ min < max ≤ 16 по всем осям и материал < 16
func (c Cuboid) Valid() bool {
	return validSpan(c.X1, c.X2) && validSpan(c.Y1, c.Y2) && validSpan(c.Z1, c.Z2) && c.Material < MaxMaterials
}

func validSpan(lo, hi int) bool {
	return lo >= 0 && lo < hi && hi <= Size
}

// At возвращает границу по индексу: 0..2 минимумы X,Y,Z, 3..5 максимумы
func (c Cuboid) At(i int) int {
	switch i {
	case 0:
		return c.X1
	case 1:
		return c.Y1
	case 2:
		return c.Z1
	case 3:
		return c.X2
	case 4:
		return c.Y2
	case 5:
		return c.Z2
	}
	panic(fmt.Sprintf("индекс границы %d вне 0..5", i))
}

func (c Cuboid) Width() int  { return c.X2 - c.X1 }
func (c Cuboid) Height() int { return c.Y2 - c.Y1 }
func (c Cuboid) Length() int { return c.Z2 - c.Z1 }

// Volume число вокселей внутри кубоида
func (c Cuboid) Volume() int {
	return c.Width() * c.Height() * c.Length()
}

// Contains проверяет попадание вокселя внутрь кубоида
func (c Cuboid) Contains(x, y, z int) bool {
	return x >= c.X1 && x < c.X2 && y >= c.Y1 && y < c.Y2 && z >= c.Z1 && z < c.Z2
}

// ContainsOrTouches проверяет, что проекция other на плоскость, перпендикулярную оси,
// целиком лежит внутри проекции c
func (c Cuboid) ContainsOrTouches(other Cuboid, axis Axis) bool {
	switch axis {
	case AxisX:
		return other.Z2 <= c.Z2 && other.Z1 >= c.Z1 && other.Y2 <= c.Y2 && other.Y1 >= c.Y1
	case AxisY:
		return other.X2 <= c.X2 && other.X1 >= c.X1 && other.Z2 <= c.Z2 && other.Z1 >= c.Z1
	case AxisZ:
		return other.X2 <= c.X2 && other.X1 >= c.X1 && other.Y2 <= c.Y2 && other.Y1 >= c.Y1
	}
	return false
}

// ToBox переводит кубоид в доли блока
func (c Cuboid) ToBox() block.Box {
	return block.Box{
		X1: float32(c.X1) / Size, Y1: float32(c.Y1) / Size, Z1: float32(c.Z1) / Size,
		X2: float32(c.X2) / Size, Y2: float32(c.Y2) / Size, Z2: float32(c.Z2) / Size,
	}
}

// Encode упаковывает кубоид в 32-битное слово:
// биты 0-3 X1, 4-7 Y1, 8-11 Z1, 12-15 X2-1, 16-19 Y2-1, 20-23 Z2-1, 24-31 материал.
func (c Cuboid) Encode() uint32 {
	return Encode(c.X1, c.Y1, c.Z1, c.X2, c.Y2, c.Z2, int(c.Material))
}

// Encode упаковывает границы и материал. Вне диапазона поля обрезаются по маске;
// со сборочным тегом microblockdebug нарушение вызывает панику.
func Encode(minX, minY, minZ, maxX, maxY, maxZ, material int) uint32 {
	if debugChecks {
		assertEncodable(minX, minY, minZ, maxX, maxY, maxZ, material)
	}
	return uint32(minX&15) |
		uint32(minY&15)<<4 |
		uint32(minZ&15)<<8 |
		uint32((maxX-1)&15)<<12 |
		uint32((maxY-1)&15)<<16 |
		uint32((maxZ-1)&15)<<20 |
		uint32(material&255)<<24
}

// Decode распаковывает слово. Функция тотальна: границы лежат в [0,16], материал в [0,15].
// Для повреждённых слов max может не превышать min.
func Decode(v uint32) Cuboid {
	return Cuboid{
		X1:       int(v & 15),
		Y1:       int((v >> 4) & 15),
		Z1:       int((v >> 8) & 15),
		X2:       int((v>>12)&15) + 1,
		Y2:       int((v>>16)&15) + 1,
		Z2:       int((v>>20)&15) + 1,
		Material: byte((v >> 24) & 15),
	}
}

// DecodeAll распаковывает список в буфер scratch и возвращает срез на него
func DecodeAll(packed []uint32, sc *Scratch) []Cuboid {
	out := sc.cuboids[:0]
	for _, v := range packed {
		out = append(out, Decode(v))
	}
	return out
}

// EncodeAll упаковывает список кубоидов
func EncodeAll(cuboids []Cuboid) []uint32 {
	out := make([]uint32, len(cuboids))
	for i, c := range cuboids {
		out[i] = c.Encode()
	}
	return out
}

func (c Cuboid) String() string {
	return fmt.Sprintf("(%d,%d,%d)-(%d,%d,%d)#%d", c.X1, c.Y1, c.Z1, c.X2, c.Y2, c.Z2, c.Material)
}
