package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами (позиция блока в мире)
type Vec3 struct {
	X int `json:"x" bson:"x"`
	Y int `json:"y" bson:"y"`
	Z int `json:"z" bson:"z"`
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Up возвращает позицию над блоком
func (v Vec3) Up() Vec3 {
	return Vec3{X: v.X, Y: v.Y + 1, Z: v.Z}
}

// Down возвращает позицию под блоком
func (v Vec3) Down() Vec3 {
	return Vec3{X: v.X, Y: v.Y - 1, Z: v.Z}
}

// Key возвращает строковый ключ позиции для хранилищ ("x:y:z")
func (v Vec3) Key() string {
	return fmt.Sprintf("%d:%d:%d", v.X, v.Y, v.Z)
}

// ParseKey разбирает ключ, созданный Key
func ParseKey(key string) (Vec3, error) {
	var v Vec3
	if _, err := fmt.Sscanf(key, "%d:%d:%d", &v.X, &v.Y, &v.Z); err != nil {
		return Vec3{}, fmt.Errorf("некорректный ключ позиции %q: %w", key, err)
	}
	return v, nil
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}
