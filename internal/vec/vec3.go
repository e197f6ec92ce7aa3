package vec

// Axis индексирует компоненту Vec3.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

// Axes перечисляет оси в порядке X, Y, Z.
var Axes = [3]Axis{X, Y, Z}

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	default:
		return "?"
	}
}

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// В движке это пиксели, воксели или пиксели в секунду, в зависимости от контекста.
type Vec3 struct {
	X int
	Y int
	Z int
}

// New3 создаёт вектор из трёх компонент
func New3(x, y, z int) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Scalar возвращает вектор с одинаковыми компонентами
func Scalar(s int) Vec3 {
	return Vec3{X: s, Y: s, Z: s}
}

// Get возвращает компоненту по оси
func (v Vec3) Get(a Axis) int {
	switch a {
	case X:
		return v.X
	case Y:
		return v.Y
	default:
		return v.Z
	}
}

// With возвращает копию вектора с заменённой компонентой
func (v Vec3) With(a Axis, val int) Vec3 {
	switch a {
	case X:
		v.X = val
	case Y:
		v.Y = val
	default:
		v.Z = val
	}
	return v
}

// ToVec2 преобразует Vec3 в Vec2, игнорируя координату Z
func (v Vec3) ToVec2() Vec2 {
	return Vec2{
		X: v.X,
		Y: v.Y,
	}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// IsZero сообщает, что все компоненты равны нулю
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// FloorDiv делит каждую компоненту на скаляр с округлением вниз.
// Используется для перевода пикселей в воксели и вокселей в чанки.
func (v Vec3) FloorDiv(s int) Vec3 {
	return Vec3{X: FloorDiv(v.X, s), Y: FloorDiv(v.Y, s), Z: FloorDiv(v.Z, s)}
}

// MaxAbs возвращает наибольший модуль среди компонент (чебышёвская норма).
func (v Vec3) MaxAbs() int {
	return max(Abs(v.X), Abs(v.Y), Abs(v.Z))
}
