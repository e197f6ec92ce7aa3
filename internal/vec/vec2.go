package vec

// Vec2 представляет 2D координаты. В движке это в основном координаты чанков.
type Vec2 struct {
	X, Y int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Wrap сворачивает координаты по модулю n (тороидальная сетка).
func (v Vec2) Wrap(n int) Vec2 {
	return Vec2{X: FloorMod(v.X, n), Y: FloorMod(v.Y, n)}
}
