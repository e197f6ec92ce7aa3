package physics

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/world"
)

var (
	// ErrBadTemplate: шаблон структуры некорректен
	ErrBadTemplate = errors.New("invalid structure template")
	// ErrStructureOverlap: структура пересекается с другой на занятом слое
	ErrStructureOverlap = errors.New("structure overlaps another structure")
	// ErrUnknownStructure: структуры с таким идентификатором нет
	ErrUnknownStructure = errors.New("unknown structure")
	// ErrStructureOutOfWindow: структура выходит за загруженные чанки или по высоте
	ErrStructureOutOfWindow = errors.New("structure outside the loaded window")
)

// StructureTemplate описывает формы структуры в вокселях.
// Shapes упорядочены как в ShapeGrid.SetRegionShape: x, затем y, затем z.
type StructureTemplate struct {
	Name      string
	Size      vec.Vec3
	Shapes    []world.Shape
	Layer     world.ShapeLayer
	Occupancy world.LayerMask // слои, которые структура занимает; пусто: только Layer
}

// Validate проверяет размеры, слой и формы шаблона
func (t *StructureTemplate) Validate() error {
	if t.Size.X <= 0 || t.Size.Y <= 0 || t.Size.Z <= 0 {
		return fmt.Errorf("%w: %q size %v", ErrBadTemplate, t.Name, t.Size)
	}
	if !t.Layer.IsOverlay() {
		return fmt.Errorf("%w: %q layer %s is not an overlay", ErrBadTemplate, t.Name, t.Layer)
	}
	if want := t.Size.X * t.Size.Y * t.Size.Z; len(t.Shapes) != want {
		return fmt.Errorf("%w: %q has %d shapes, size needs %d", ErrBadTemplate, t.Name, len(t.Shapes), want)
	}
	for i, s := range t.Shapes {
		if !s.Valid() {
			return fmt.Errorf("%w: %q shape %d is %d", ErrBadTemplate, t.Name, i, s)
		}
	}
	return nil
}

func (t *StructureTemplate) occupancy() world.LayerMask {
	return t.Occupancy | world.MaskOf(t.Layer)
}

// Structure: установленная структура
type Structure struct {
	ID       uuid.UUID
	Pos      vec.Vec3 // минимальный угол в вокселях
	Template *StructureTemplate
}

// Bounds возвращает занимаемый регион [lo, hi) в вокселях
func (s *Structure) Bounds() (lo, hi vec.Vec3) {
	return s.Pos, s.Pos.Add(s.Template.Size)
}

func (s *Structure) overlaps(o *Structure) bool {
	if s.Template.occupancy()&o.Template.occupancy() == 0 {
		return false
	}
	alo, ahi := s.Bounds()
	blo, bhi := o.Bounds()
	for _, a := range vec.Axes {
		if alo.Get(a) >= bhi.Get(a) || blo.Get(a) >= ahi.Get(a) {
			return false
		}
	}
	return true
}

func (s *Structure) touchesChunk(cc vec.Vec2) bool {
	lo, hi := s.Bounds()
	c0 := world.ChunkOf(lo.X, lo.Y)
	c1 := world.ChunkOf(hi.X-1, hi.Y-1)
	return cc.X >= c0.X && cc.X <= c1.X && cc.Y >= c0.Y && cc.Y <= c1.Y
}

// refreshAround пересчитывает регион с запасом в один воксель по горизонтали:
// соседний чанк тоже читается запросами на границе.
func (w *World) refreshAround(lo, hi vec.Vec3) {
	pad := vec.New3(1, 1, 0)
	w.grid.RefreshShapeLayers(lo.Sub(pad), hi.Add(pad))
}

// AddStructure устанавливает структуру по шаблону в позицию pos (воксели).
func (w *World) AddStructure(pos vec.Vec3, tmpl *StructureTemplate) (uuid.UUID, error) {
	if tmpl == nil {
		return uuid.Nil, fmt.Errorf("%w: nil template", ErrBadTemplate)
	}
	if err := tmpl.Validate(); err != nil {
		return uuid.Nil, err
	}

	s := &Structure{Pos: pos, Template: tmpl}
	lo, hi := s.Bounds()
	if lo.Z < 0 || hi.Z > world.ChunkSize {
		return uuid.Nil, fmt.Errorf("%w: z range %d..%d", ErrStructureOutOfWindow, lo.Z, hi.Z)
	}
	c0 := world.ChunkOf(lo.X, lo.Y)
	c1 := world.ChunkOf(hi.X-1, hi.Y-1)
	for cy := c0.Y; cy <= c1.Y; cy++ {
		for cx := c0.X; cx <= c1.X; cx++ {
			if !w.grid.IsResident(cx, cy) {
				return uuid.Nil, fmt.Errorf("%w: chunk (%d,%d)", ErrStructureOutOfWindow, cx, cy)
			}
		}
	}

	for id, other := range w.structures {
		if s.overlaps(other) {
			return uuid.Nil, fmt.Errorf("%w: %q at %v hits %s", ErrStructureOverlap, tmpl.Name, pos, id)
		}
	}

	if err := w.grid.SetRegionShape(lo, hi, tmpl.Layer, tmpl.Shapes); err != nil {
		return uuid.Nil, fmt.Errorf("place %q: %w", tmpl.Name, err)
	}
	w.refreshAround(lo, hi)

	s.ID = uuid.New()
	w.structures[s.ID] = s
	w.metrics.Structures.Inc()
	w.logger.Debug("Structure %s (%s) placed at %v", s.ID, tmpl.Name, pos)
	return s.ID, nil
}

// RemoveStructure снимает структуру и пересчитывает её регион
func (w *World) RemoveStructure(id uuid.UUID) error {
	s, ok := w.structures[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStructure, id)
	}
	w.dropStructure(id, s)
	return nil
}

// Structure возвращает установленную структуру
func (w *World) Structure(id uuid.UUID) (*Structure, bool) {
	s, ok := w.structures[id]
	return s, ok
}

// Structures возвращает число установленных структур
func (w *World) Structures() int {
	return len(w.structures)
}

func (w *World) dropStructure(id uuid.UUID, s *Structure) {
	lo, hi := s.Bounds()
	if err := w.grid.ClearRegionShape(lo, hi, s.Template.Layer); err != nil {
		w.logger.Error("Failed to clear structure %s: %v", id, err)
	}
	w.refreshAround(lo, hi)
	delete(w.structures, id)
	w.metrics.Structures.Dec()
}
