package microblock

import "fmt"

// QuarterTurns переводит угол в число четвертей оборота 0..3
func QuarterTurns(degrees int) (int, error) {
	if degrees%90 != 0 {
		return 0, fmt.Errorf("%w: угол %d не кратен 90", ErrOutOfRange, degrees)
	}
	return mod(degrees/90, 4), nil
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

// TransformCuboid отражает кубоид по оси flip (coord → 16-coord), затем поворачивает
// на quarter четвертей вокруг вертикальной оси через центр блока.
// Один шаг поворота переводит (x, z) в (16-z, x). Результат нормализуется в min < max.
func TransformCuboid(c Cuboid, quarter int, flip Axis) Cuboid {
	switch flip {
	case AxisX:
		c.X1, c.X2 = Size-c.X1, Size-c.X2
	case AxisY:
		c.Y1, c.Y2 = Size-c.Y1, Size-c.Y2
	case AxisZ:
		c.Z1, c.Z2 = Size-c.Z1, Size-c.Z2
	}

	for i := 0; i < mod(quarter, 4); i++ {
		c.X1, c.Z1 = Size-c.Z1, c.X1
		c.X2, c.Z2 = Size-c.Z2, c.X2
	}

	if c.X1 > c.X2 {
		c.X1, c.X2 = c.X2, c.X1
	}
	if c.Y1 > c.Y2 {
		c.Y1, c.Y2 = c.Y2, c.Y1
	}
	if c.Z1 > c.Z2 {
		c.Z1, c.Z2 = c.Z2, c.Z1
	}
	return c
}

// TransformList возвращает новый упакованный список после отражения и поворота
func TransformList(list []uint32, degrees int, flip Axis) ([]uint32, error) {
	quarter, err := QuarterTurns(degrees)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(list))
	for i, v := range list {
		out[i] = TransformCuboid(Decode(v), quarter, flip).Encode()
	}
	return out, nil
}

// RotateSideMask циклически сдвигает горизонтальные грани маски на quarter четвертей.
// Верх и низ при повороте вокруг вертикальной оси не меняются.
func RotateSideMask(mask [6]bool, quarter int) [6]bool {
	out := mask
	for i := 0; i < 4; i++ {
		out[i] = mask[mod(i-quarter, 4)]
	}
	return out
}
