package world

import (
	"errors"
	"fmt"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/logging"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
)

// NoCeiling возвращается FindCeiling, если выше позиции нет непустых вокселей.
const NoCeiling = -1

var (
	// ErrShapeBufferSize: длина буфера форм не совпадает с объёмом региона
	ErrShapeBufferSize = errors.New("shape buffer size does not match region volume")
	// ErrInvalidLayer: слой вне диапазона
	ErrInvalidLayer = errors.New("invalid shape layer")
)

// ShapeGrid хранит формы вокселей для тороидального окна LocalSize x LocalSize чанков.
//
// Записи (SetRegionShape, ClearRegionShape) попадают в слои и не видны GetShape
// до вызова RefreshShapeLayers для того же региона. Так несколько записей
// можно объединить и заплатить за компоновку один раз.
type ShapeGrid struct {
	slots    [LocalSize * LocalSize]ShapeLayers
	coords   [LocalSize * LocalSize]vec.Vec2
	resident [LocalSize * LocalSize]bool

	refreshes int
	logger    *logging.Logger
}

// NewShapeGrid создаёт пустую сетку: все слоты пусты и не загружены.
func NewShapeGrid() *ShapeGrid {
	return &ShapeGrid{
		logger: logging.GetWorldLogger(),
	}
}

// SlotIndex возвращает индекс слота для координат чанка (с заворачиванием).
func SlotIndex(cx, cy int) int {
	return vec.FloorMod(cy, LocalSize)*LocalSize + vec.FloorMod(cx, LocalSize)
}

func (g *ShapeGrid) slotFor(x, y int) *ShapeLayers {
	return &g.slots[SlotIndex(vec.FloorDiv(x, ChunkSize), vec.FloorDiv(y, ChunkSize))]
}

// regionVolume возвращает объём полуоткрытого региона [lo, hi).
func regionVolume(lo, hi vec.Vec3) int {
	d := hi.Sub(lo)
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return 0
	}
	return d.X * d.Y * d.Z
}

// SetRegionShape записывает формы региона [lo, hi) в слой layer.
// Порядок буфера: x быстрее всего, затем y, затем z.
// При несовпадении длины ничего не пишется.
func (g *ShapeGrid) SetRegionShape(lo, hi vec.Vec3, layer ShapeLayer, shapes []Shape) error {
	if layer >= MaxLayers {
		return fmt.Errorf("%w: %d", ErrInvalidLayer, layer)
	}
	if volume := regionVolume(lo, hi); len(shapes) != volume {
		g.logger.Warn("SetRegionShape %v..%v layer=%s: buffer has %d shapes, region needs %d",
			lo, hi, layer, len(shapes), volume)
		return fmt.Errorf("%w: got %d, want %d", ErrShapeBufferSize, len(shapes), volume)
	}

	i := 0
	for z := lo.Z; z < hi.Z; z++ {
		for y := lo.Y; y < hi.Y; y++ {
			for x := lo.X; x < hi.X; x++ {
				s := shapes[i]
				i++
				if z < 0 || z >= ChunkSize {
					continue
				}
				g.slotFor(x, y).Layer(layer).Set(vec.FloorMod(x, ChunkSize), vec.FloorMod(y, ChunkSize), z, s)
			}
		}
	}
	return nil
}

// ClearRegionShape эквивалентна записи пустых форм в регион.
func (g *ShapeGrid) ClearRegionShape(lo, hi vec.Vec3, layer ShapeLayer) error {
	if layer >= MaxLayers {
		return fmt.Errorf("%w: %d", ErrInvalidLayer, layer)
	}
	for z := lo.Z; z < hi.Z; z++ {
		if z < 0 || z >= ChunkSize {
			continue
		}
		for y := lo.Y; y < hi.Y; y++ {
			for x := lo.X; x < hi.X; x++ {
				g.slotFor(x, y).Layer(layer).Set(vec.FloorMod(x, ChunkSize), vec.FloorMod(y, ChunkSize), z, ShapeEmpty)
			}
		}
	}
	return nil
}

// RefreshShapeLayers пересчитывает итоговые формы всех слотов, которых касается регион.
func (g *ShapeGrid) RefreshShapeLayers(lo, hi vec.Vec3) {
	if hi.X <= lo.X || hi.Y <= lo.Y {
		return
	}
	c0 := ChunkOf(lo.X, lo.Y)
	c1 := ChunkOf(hi.X-1, hi.Y-1)

	// Окно тороидальное: больше LocalSize чанков по оси означает повтор слотов.
	nx := min(c1.X-c0.X+1, LocalSize)
	ny := min(c1.Y-c0.Y+1, LocalSize)
	for dy := 0; dy < ny; dy++ {
		for dx := 0; dx < nx; dx++ {
			g.slots[SlotIndex(c0.X+dx, c0.Y+dy)].Composite()
			g.refreshes++
		}
	}
}

// RefreshChunk пересчитывает итоговые формы одного чанка.
func (g *ShapeGrid) RefreshChunk(cc vec.Vec2) {
	g.slots[SlotIndex(cc.X, cc.Y)].Composite()
	g.refreshes++
}

// RefreshCount возвращает число выполненных компоновок чанков.
func (g *ShapeGrid) RefreshCount() int {
	return g.refreshes
}

// GetShape возвращает итоговую форму вокселя. Z вне вертикального диапазона: пусто.
func (g *ShapeGrid) GetShape(x, y, z int) Shape {
	if z < 0 || z >= ChunkSize {
		return ShapeEmpty
	}
	return g.slotFor(x, y).effective.Get(vec.FloorMod(x, ChunkSize), vec.FloorMod(y, ChunkSize), z)
}

// LayerShape возвращает форму конкретного слоя без компоновки.
func (g *ShapeGrid) LayerShape(layer ShapeLayer, x, y, z int) Shape {
	if layer >= MaxLayers || z < 0 || z >= ChunkSize {
		return ShapeEmpty
	}
	return g.slotFor(x, y).Layer(layer).Get(vec.FloorMod(x, ChunkSize), vec.FloorMod(y, ChunkSize), z)
}

// FindCeiling ищет первый непустой воксель над pos (координаты вокселя) и
// возвращает расстояние до него в вокселях, либо NoCeiling.
func (g *ShapeGrid) FindCeiling(pos vec.Vec3) int {
	for z := max(pos.Z+1, 0); z < ChunkSize; z++ {
		if g.GetShape(pos.X, pos.Y, z) != ShapeEmpty {
			return z - pos.Z
		}
	}
	return NoCeiling
}

// SetResident привязывает слот к чанку cc. Если слот держал другой чанк,
// его слои стираются, а прежние координаты возвращаются как вытесненные.
func (g *ShapeGrid) SetResident(cc vec.Vec2) (evicted vec.Vec2, wasOther bool) {
	idx := SlotIndex(cc.X, cc.Y)
	if g.resident[idx] && g.coords[idx] != cc {
		evicted, wasOther = g.coords[idx], true
		g.slots[idx].Reset()
	}
	g.coords[idx] = cc
	g.resident[idx] = true
	return evicted, wasOther
}

// Evict освобождает слот чанка cc, если он загружен.
func (g *ShapeGrid) Evict(cc vec.Vec2) bool {
	idx := SlotIndex(cc.X, cc.Y)
	if !g.resident[idx] || g.coords[idx] != cc {
		return false
	}
	g.resident[idx] = false
	g.slots[idx].Reset()
	return true
}

// IsResident сообщает, что чанк (cx, cy) сейчас загружен в своём слоте.
func (g *ShapeGrid) IsResident(cx, cy int) bool {
	idx := SlotIndex(cx, cy)
	return g.resident[idx] && g.coords[idx] == vec.Vec2{X: cx, Y: cy}
}

// SlotCoord возвращает чанк, который держит слот для (cx, cy).
func (g *ShapeGrid) SlotCoord(cx, cy int) (vec.Vec2, bool) {
	idx := SlotIndex(cx, cy)
	return g.coords[idx], g.resident[idx]
}
