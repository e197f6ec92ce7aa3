package prediction

import (
	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
)

// Snapshot: авторитетный отрезок движения в том виде, в каком он приходит
// с сервера: времена обрезаны до 16 бит.
type Snapshot struct {
	EntityID  uint64
	StartPos  vec.Vec3
	StartTime uint16
	EndPos    vec.Vec3
	EndTime   uint16
	AnimID    uint16
}

// Motion: отрезок движения с полными временами
type Motion struct {
	StartPos  vec.Vec3
	EndPos    vec.Vec3
	StartTime int64
	EndTime   int64
	AnimID    uint16
}

// NewSnapshot обрезает отрезок до проводного вида
func NewSnapshot(entityID uint64, m Motion) Snapshot {
	return Snapshot{
		EntityID:  entityID,
		StartPos:  m.StartPos,
		StartTime: Truncate(m.StartTime),
		EndPos:    m.EndPos,
		EndTime:   Truncate(m.EndTime),
		AnimID:    m.AnimID,
	}
}

// Decode восстанавливает времена относительно локальных часов now.
// Начало разворачивается около now, конец отсчитывается от начала,
// поэтому отрезки длиннее 32 секунд не теряют знак.
func (s Snapshot) Decode(now int64) Motion {
	start := Unwrap(now, s.StartTime)
	return Motion{
		StartPos:  s.StartPos,
		EndPos:    s.EndPos,
		StartTime: start,
		EndTime:   start + int64(s.EndTime-s.StartTime),
		AnimID:    s.AnimID,
	}
}

// Position интерполирует позицию на момент now с ограничением по концам
func (m Motion) Position(now int64) vec.Vec3 {
	switch {
	case now >= m.EndTime:
		return m.EndPos
	case now <= m.StartTime:
		return m.StartPos
	}
	elapsed := now - m.StartTime
	total := m.EndTime - m.StartTime
	d := m.EndPos.Sub(m.StartPos)
	return m.StartPos.Add(vec.Vec3{
		X: int(int64(d.X) * elapsed / total),
		Y: int(int64(d.Y) * elapsed / total),
		Z: int(int64(d.Z) * elapsed / total),
	})
}
