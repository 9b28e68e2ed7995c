package microblock

// Facing грань блока. Порядок индексов совпадает с сохранёнными битовыми масками.
type Facing int

const (
	North Facing = iota // -Z
	East                // +X
	South               // +Z
	West                // -X
	Up                  // +Y
	Down                // -Y
)

// AllFaces все грани в порядке индексов
var AllFaces = [6]Facing{North, East, South, West, Up, Down}

var facingNames = [6]string{"north", "east", "south", "west", "up", "down"}

func (f Facing) String() string {
	if f < 0 || int(f) >= len(facingNames) {
		return "unknown"
	}
	return facingNames[f]
}

// Flag бит грани в масках (N=1, E=2, S=4, W=8, U=16, D=32)
func (f Facing) Flag() byte {
	return 1 << uint(f)
}

// Axis ось, перпендикулярная грани
func (f Facing) Axis() Axis {
	switch f {
	case East, West:
		return AxisX
	case Up, Down:
		return AxisY
	default:
		return AxisZ
	}
}

// Opposite противоположная грань
func (f Facing) Opposite() Facing {
	switch f {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	default:
		return Up
	}
}

// IsHorizontal true для N/E/S/W
func (f Facing) IsHorizontal() bool {
	return f <= West
}

// ParseFacing разбирает имя грани
func ParseFacing(name string) (Facing, bool) {
	for i, n := range facingNames {
		if n == name {
			return Facing(i), true
		}
	}
	return 0, false
}

// Axis координатная ось
type Axis int8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// NoFlip означает поворот без отражения
const NoFlip Axis = -1

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return "none"
}

// ParseAxis разбирает имя оси; пустая строка и "none" дают NoFlip
func ParseAxis(name string) (Axis, bool) {
	switch name {
	case "x", "X":
		return AxisX, true
	case "y", "Y":
		return AxisY, true
	case "z", "Z":
		return AxisZ, true
	case "", "none":
		return NoFlip, true
	}
	return NoFlip, false
}

// drawFaceIndexLookup грань для минимальной (0..2) и максимальной (3..5) стороны оси
var drawFaceIndexLookup = [6]Facing{West, Down, North, East, Up, South}

// FaceForBound возвращает грань кубоида для индекса границы 0..5 (X1,Y1,Z1,X2,Y2,Z2)
func FaceForBound(bound int) Facing {
	return drawFaceIndexLookup[bound]
}
