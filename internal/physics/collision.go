package physics

import (
	"math"
	"strings"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/world"
)

// MaxWalkSteps ограничивает обход: по каждой оси не больше одного чанка пересечений.
// Достижение предела означает ошибку в геометрии или масштабе скоростей.
const MaxWalkSteps = 3 * world.ChunkSize

// MaxSpeed ограничивает модуль каждой компоненты скорости, пиксели в секунду.
// Тогда НОК трёх компонент меньше 2^48, и масштабированные координаты обхода
// помещаются в int64.
const MaxSpeed = 1<<16 - 1

// ClampVelocity ограничивает компоненты скорости по модулю MaxSpeed
func ClampVelocity(v vec.Vec3) vec.Vec3 {
	return vec.Vec3{
		X: max(-MaxSpeed, min(v.X, MaxSpeed)),
		Y: max(-MaxSpeed, min(v.Y, MaxSpeed)),
		Z: max(-MaxSpeed, min(v.Z, MaxSpeed)),
	}
}

// Reason: причина остановки движения
type Reason uint8

const (
	// ReasonNone: столкновения нет (нулевая скорость)
	ReasonNone Reason = iota
	// ReasonNoFloor: под передним краем нет пола
	ReasonNoFloor
	// ReasonWall: непроходимый воксель
	ReasonWall
	// ReasonRampBottom: основание рампы по ходу движения
	ReasonRampBottom
	// ReasonChunkBorder: граница загруженного окна или чанка обхода
	ReasonChunkBorder
	// ReasonUnresolved: превышен MaxWalkSteps
	ReasonUnresolved
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoFloor:
		return "no_floor"
	case ReasonWall:
		return "wall"
	case ReasonRampBottom:
		return "ramp_bottom"
	case ReasonChunkBorder:
		return "chunk_border"
	case ReasonUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// AxisMask: набор осей, к которым относится столкновение
type AxisMask uint8

const (
	AxisX AxisMask = 1 << iota
	AxisY
	AxisZ
)

// AxisBit возвращает бит оси
func AxisBit(a vec.Axis) AxisMask {
	return 1 << uint(a)
}

// Has сообщает, что ось входит в маску
func (m AxisMask) Has(a vec.Axis) bool {
	return m&AxisBit(a) != 0
}

func (m AxisMask) String() string {
	var sb strings.Builder
	for _, a := range vec.Axes {
		if m.Has(a) {
			sb.WriteString(a.String())
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

// ShapeSource: то, из чего солвер читает формы. Реализуется *world.ShapeGrid.
type ShapeSource interface {
	GetShape(x, y, z int) world.Shape
	IsResident(cx, cy int) bool
}

// CollisionResult описывает первое событие на пути бокса
type CollisionResult struct {
	Pos    vec.Vec3 // минимальный угол бокса в момент события
	Ticks  int      // время события в долях 1/Units секунды
	Units  int
	TimeMs int64    // округлено вверх
	Axes   AxisMask
	Reason Reason
}

// ZeroTime сообщает, что событие произошло сразу, без движения
func (r CollisionResult) ZeroTime() bool {
	return r.Ticks == 0
}

const noEvent = math.MaxInt

// tileBox: диапазон вокселей бокса, границы включительно
type tileBox struct {
	lo, hi vec.Vec3
}

type walker struct {
	src            ShapeSource
	pos, size, vel vec.Vec3
	units          int

	next   [3]int // время следующего пересечения плоскости
	step   [3]int // время прохода одного вокселя
	enter  [3]int // воксель, в который войдёт ведущий угол на следующем пересечении
	dir    [3]int
	region [3]int // чанк, внутри которого разрешён обход

	// При подъёме нижняя грань бокса пересекает плоскости вокселей отдельно
	// от ведущей. liftNext: время следующего отрыва; liftRow: ряд, который
	// после него становится уровнем пола.
	liftNext int
	liftRow  int
}

// Collide ищет первое столкновение бокса size с минимальным углом pos,
// движущегося со скоростью velocity (пиксели в секунду).
//
// Время измеряется в единицах 1/units секунды, где units = НОК модулей
// ненулевых компонент скорости. Тогда проход одного пикселя по любой оси
// занимает целое число единиц, и все пересечения границ вокселей происходят
// в целочисленные моменты. Солвер не меняет состояние и не скользит вдоль
// стен: это делает вызывающая сторона. Скорость ограничивается ClampVelocity.
func Collide(src ShapeSource, pos, size, velocity vec.Vec3) CollisionResult {
	velocity = ClampVelocity(velocity)
	if velocity.IsZero() {
		return CollisionResult{Pos: pos, Units: 1, Reason: ReasonNone}
	}
	w := newWalker(src, pos, size, velocity)
	return w.run()
}

// velocityUnits возвращает НОК модулей ненулевых компонент (1 для нулевой скорости).
func velocityUnits(v vec.Vec3) int {
	units := 0
	for _, a := range vec.Axes {
		units = vec.LCM(units, v.Get(a))
	}
	if units == 0 {
		return 1
	}
	return units
}

func newWalker(src ShapeSource, pos, size, vel vec.Vec3) *walker {
	w := &walker{
		src:      src,
		pos:      pos,
		size:     size,
		vel:      vel,
		units:    velocityUnits(vel),
		liftNext: noEvent,
	}

	for _, a := range vec.Axes {
		v := vel.Get(a)
		if v == 0 {
			w.next[a] = noEvent
			continue
		}
		pixTime := w.units / vec.Abs(v)
		w.step[a] = pixTime * world.TileSize

		if v > 0 {
			lead := pos.Get(a) + size.Get(a)
			plane := vec.CeilDiv(lead, world.TileSize) * world.TileSize
			w.next[a] = (plane - lead) * pixTime
			w.enter[a] = plane / world.TileSize
			w.dir[a] = 1
		} else {
			lead := pos.Get(a)
			plane := vec.FloorDiv(lead, world.TileSize) * world.TileSize
			w.next[a] = (lead - plane) * pixTime
			w.enter[a] = plane/world.TileSize - 1
			w.dir[a] = -1
		}

		if a == vec.Z {
			// Мир высотой ровно в один чанк
			w.region[a] = 0
			if v > 0 {
				bottom := pos.Z
				plane := vec.CeilDiv(bottom, world.TileSize) * world.TileSize
				w.liftNext = (plane - bottom) * pixTime
				w.liftRow = plane / world.TileSize
			}
		} else {
			w.region[a] = vec.FloorDiv(w.enter[a], world.ChunkSize)
		}
	}
	return w
}

func (w *walker) run() CollisionResult {
	for steps := 0; ; steps++ {
		t := min(w.next[0], w.next[1], w.next[2], w.liftNext)
		lift := w.liftNext == t

		var hit AxisMask
		for _, a := range vec.Axes {
			if w.next[a] == t {
				hit |= AxisBit(a)
			}
		}

		// Граница чанка проверяется раньше вокселей
		var border AxisMask
		for _, a := range vec.Axes {
			if hit.Has(a) && vec.FloorDiv(w.enter[a], world.ChunkSize) != w.region[a] {
				border |= AxisBit(a)
			}
		}
		if border != 0 {
			return w.result(t, border, ReasonChunkBorder)
		}

		if steps >= MaxWalkSteps {
			return CollisionResult{Pos: w.pos, Units: w.units, Axes: hit, Reason: ReasonUnresolved}
		}

		box := w.boxAt(t)
		if missing := w.nonResident(box, hit); missing != 0 {
			return w.result(t, missing, ReasonChunkBorder)
		}
		if reason, axes := w.checkPlane(box, hit); reason != ReasonNone {
			return w.result(t, axes, reason)
		}
		if lift {
			if !w.supportedLift(box) {
				return w.result(t, AxisZ, ReasonNoFloor)
			}
			w.liftNext += w.step[vec.Z]
			w.liftRow++
		}

		for _, a := range vec.Axes {
			if hit.Has(a) {
				w.next[a] += w.step[a]
				w.enter[a] += w.dir[a]
			}
		}
	}
}

// positionAt возвращает минимальный угол в момент t; дробная часть
// отбрасывается в сторону исходной позиции.
func (w *walker) positionAt(t int) vec.Vec3 {
	var p vec.Vec3
	for _, a := range vec.Axes {
		p = p.With(a, w.pos.Get(a)+w.vel.Get(a)*t/w.units)
	}
	return p
}

func (w *walker) result(t int, axes AxisMask, reason Reason) CollisionResult {
	return CollisionResult{
		Pos:    w.positionAt(t),
		Ticks:  t,
		Units:  w.units,
		TimeMs: ceilMs(t, w.units),
		Axes:   axes,
		Reason: reason,
	}
}

// ceilMs переводит тики в миллисекунды с округлением вверх: отрезок с
// ненулевым числом тиков длится хотя бы миллисекунду, и к моменту EndTime
// сущность уже дошла до EndPos.
func ceilMs(ticks, units int) int64 {
	q, r := int64(ticks/units), int64(ticks%units)
	return q*1000 + (r*1000+int64(units)-1)/int64(units)
}

// boxAt возвращает воксели, занятые боксом сразу после момента t.
// Координаты считаются в пикселях, умноженных на units, поэтому точны.
// Каждый угол отсчитывается от плоскости своего исходного вокселя, так что
// произведения остаются малыми и на дальних координатах.
func (w *walker) boxAt(t int) tileBox {
	var b tileBox
	for _, a := range vec.Axes {
		v := w.vel.Get(a)
		lo := w.cornerTile(w.pos.Get(a), v, t, v < 0)
		hi := w.cornerTile(w.pos.Get(a)+w.size.Get(a), v, t, v <= 0)
		b.lo = b.lo.With(a, lo)
		b.hi = b.hi.With(a, hi)
	}
	return b
}

// cornerTile возвращает воксель угла p, сдвинутого на v*t/units. Угол ровно
// на плоскости относится к вокселю ниже, если below.
func (w *walker) cornerTile(p, v, t int, below bool) int {
	tile := vec.FloorDiv(p, world.TileSize)
	rel := (p-tile*world.TileSize)*w.units + v*t
	if below {
		rel--
	}
	return tile + vec.FloorDiv(rel, world.TileSize*w.units)
}

// newOn возвращает оси из hit, на которых воксель только что вошёл в бокс.
func (w *walker) newOn(hit AxisMask, x, y, z int) AxisMask {
	var m AxisMask
	if hit.Has(vec.X) && x == w.enter[vec.X] {
		m |= AxisX
	}
	if hit.Has(vec.Y) && y == w.enter[vec.Y] {
		m |= AxisY
	}
	if hit.Has(vec.Z) && z == w.enter[vec.Z] {
		m |= AxisZ
	}
	return m
}

// nonResident возвращает горизонтальные оси, чей новый слой вокселей лежит
// в незагруженном чанке.
func (w *walker) nonResident(b tileBox, hit AxisMask) AxisMask {
	var m AxisMask
	if hit.Has(vec.X) {
		x := w.enter[vec.X]
		for y := b.lo.Y; y <= b.hi.Y; y++ {
			cc := world.ChunkOf(x, y)
			if !w.src.IsResident(cc.X, cc.Y) {
				m |= AxisX
				break
			}
		}
	}
	if hit.Has(vec.Y) {
		y := w.enter[vec.Y]
		for x := b.lo.X; x <= b.hi.X; x++ {
			cc := world.ChunkOf(x, y)
			if !w.src.IsResident(cc.X, cc.Y) {
				m |= AxisY
				break
			}
		}
	}
	return m
}

// blame собирает оси, на которых найдены блокирующие воксели. Угловой воксель
// (новый сразу по нескольким осям) учитывается, только если рёберных нет:
// при скольжении вдоль стены угол не должен блокировать свободную ось.
type blame struct {
	edge, corner AxisMask
}

func (b *blame) add(m AxisMask) {
	if m&(m-1) == 0 {
		b.edge |= m
	} else {
		b.corner |= m
	}
}

func (b blame) mask() AxisMask {
	if b.edge != 0 {
		return b.edge
	}
	return b.corner
}

// supportedLift сообщает, можно ли оторваться от плоскости ряда liftRow.
// Подниматься можно только по рампе: бокс должен лететь вверх и по +X над
// RampE в этом ряду или прямо под ним. Иначе под бокс уходит пустота.
func (w *walker) supportedLift(b tileBox) bool {
	if w.vel.X <= 0 {
		return false
	}
	for y := b.lo.Y; y <= b.hi.Y; y++ {
		for x := b.lo.X; x <= b.hi.X; x++ {
			if w.src.GetShape(x, y, w.liftRow) == world.ShapeRampE ||
				w.src.GetShape(x, y, w.liftRow-1) == world.ShapeRampE {
				return true
			}
		}
	}
	return false
}

// checkPlane классифицирует воксели, в которые бокс вошёл на этом шаге.
// Приоритет: стена, затем отсутствие пола, затем основание рампы.
func (w *walker) checkPlane(b tileBox, hit AxisMask) (Reason, AxisMask) {
	var wall, noFloor, ramp blame
	floorZ := b.lo.Z
	climbing := w.vel.Z > 0 && w.vel.X > 0

	for z := b.lo.Z; z <= b.hi.Z; z++ {
		for y := b.lo.Y; y <= b.hi.Y; y++ {
			for x := b.lo.X; x <= b.hi.X; x++ {
				on := w.newOn(hit, x, y, z)
				if on == 0 {
					continue
				}
				s := w.src.GetShape(x, y, z)

				if on.Has(vec.Z) {
					switch {
					case w.vel.Z > 0 && s != world.ShapeEmpty:
						// Голова упирается в потолок
						wall.add(on)
					case w.vel.Z < 0 && s != world.ShapeEmpty && s != world.ShapeFloor:
						wall.add(AxisZ)
					}
				}

				horiz := on & (AxisX | AxisY)
				if horiz == 0 {
					continue
				}
				if z > floorZ {
					if s != world.ShapeEmpty {
						wall.add(horiz)
					}
					continue
				}

				switch s {
				case world.ShapeEmpty:
					noFloor.add(horiz)
				case world.ShapeFloor:
					if climbing {
						if horiz.Has(vec.X) {
							// Вершина рампы: подъём закончен
							wall.add(AxisZ)
						} else {
							wall.add(horiz)
						}
					}
				case world.ShapeRampE:
					switch {
					case climbing:
					case horiz.Has(vec.X) && w.vel.X > 0:
						ramp.add(AxisX)
					default:
						wall.add(horiz)
					}
				default:
					// Solid и рампы других направлений
					wall.add(horiz)
				}
			}
		}
	}

	// Спуск: пересекаемая плоскость является полом вокселя, который бокс покидает
	if hit.Has(vec.Z) && w.vel.Z < 0 {
		z := w.enter[vec.Z] + 1
		for y := b.lo.Y; y <= b.hi.Y; y++ {
			for x := b.lo.X; x <= b.hi.X; x++ {
				if w.src.GetShape(x, y, z) != world.ShapeEmpty {
					wall.add(AxisZ)
				}
			}
		}
	}

	switch {
	case wall.mask() != 0:
		return ReasonWall, wall.mask()
	case noFloor.mask() != 0:
		return ReasonNoFloor, noFloor.mask()
	case ramp.mask() != 0:
		return ReasonRampBottom, ramp.mask()
	}
	return ReasonNone, 0
}
