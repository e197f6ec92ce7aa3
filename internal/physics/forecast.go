package physics

import (
	"math"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
)

// Forever: время окончания вырожденного прогноза
const Forever int64 = math.MaxInt64

// Forecast: предсказанный отрезок прямолинейного движения сущности.
// Между StartTime и EndTime позиция линейно интерполируется,
// после EndTime сущность стоит в EndPos.
type Forecast struct {
	StartPos       vec.Vec3
	EndPos         vec.Vec3
	Size           vec.Vec3
	TargetVelocity vec.Vec3 // желаемая скорость (ввод)
	ActualVelocity vec.Vec3 // скорость после скольжения и подъёма
	StartTime      int64
	EndTime        int64
}

// NewForecast создаёт стоящую в pos сущность
func NewForecast(pos, size vec.Vec3, now int64) *Forecast {
	return &Forecast{
		StartPos:  pos,
		EndPos:    pos,
		Size:      size,
		StartTime: now,
		EndTime:   Forever,
	}
}

// Position возвращает позицию минимального угла в момент now (мс).
func (f *Forecast) Position(now int64) vec.Vec3 {
	switch {
	case now < f.StartTime:
		return f.StartPos
	case now >= f.EndTime:
		return f.EndPos
	}
	return f.StartPos.Add(Displacement(f.ActualVelocity, now-f.StartTime))
}

// Velocity возвращает фактическую скорость текущего отрезка
func (f *Forecast) Velocity() vec.Vec3 {
	return f.ActualVelocity
}

// Live сообщает, что now попадает в [StartTime, EndTime)
func (f *Forecast) Live(now int64) bool {
	return f.StartTime <= now && now < f.EndTime
}

// Degenerate сообщает, что сущность стоит и прогноз не истекает
func (f *Forecast) Degenerate() bool {
	return f.ActualVelocity.IsZero() && f.EndTime == Forever
}

// collapse фиксирует позицию на момент t и обнуляет движение.
func (f *Forecast) collapse(t int64) {
	pos := f.Position(t)
	f.StartPos = pos
	f.EndPos = pos
	f.StartTime = t
	f.EndTime = Forever
	f.ActualVelocity = vec.Vec3{}
}

// Displacement возвращает смещение за dtMs миллисекунд при скорости v
// (пиксели в секунду), с отбрасыванием дробной части к нулю.
func Displacement(v vec.Vec3, dtMs int64) vec.Vec3 {
	return vec.Vec3{
		X: int(int64(v.X) * dtMs / 1000),
		Y: int(int64(v.Y) * dtMs / 1000),
		Z: int(int64(v.Z) * dtMs / 1000),
	}
}
