package world

import (
	"errors"
	"fmt"
)

// Идентификаторы тайлов таблицы по умолчанию
const (
	TileAir   uint16 = 0
	TileGrass uint16 = 1
	TileRock  uint16 = 2
	TileRampE uint16 = 3
)

// ErrTerrainSize: в чанке ландшафта не ChunkVolume тайлов
var ErrTerrainSize = errors.New("terrain chunk must contain exactly ChunkVolume tiles")

// TileTable отображает идентификатор тайла в форму вокселя.
// Таблица приходит от слоя ассетов; неизвестные тайлы считаются пустыми.
type TileTable struct {
	shapes []Shape
	names  []string
	known  []bool
}

// NewTileTable создаёт пустую таблицу
func NewTileTable() *TileTable {
	return &TileTable{}
}

// DefaultTileTable возвращает таблицу, которой пользуется генератор.
func DefaultTileTable() *TileTable {
	t := NewTileTable()
	t.Define(TileAir, "air", ShapeEmpty)
	t.Define(TileGrass, "grass", ShapeFloor)
	t.Define(TileRock, "rock", ShapeSolid)
	t.Define(TileRampE, "ramp_e", ShapeRampE)
	return t
}

// Define регистрирует тайл
func (t *TileTable) Define(id uint16, name string, shape Shape) {
	if int(id) >= len(t.shapes) {
		n := int(id) + 1
		t.shapes = append(t.shapes, make([]Shape, n-len(t.shapes))...)
		t.names = append(t.names, make([]string, n-len(t.names))...)
		t.known = append(t.known, make([]bool, n-len(t.known))...)
	}
	t.shapes[id] = shape
	t.names[id] = name
	t.known[id] = true
}

// Shape возвращает форму тайла; ok=false для незарегистрированных id.
func (t *TileTable) Shape(id uint16) (Shape, bool) {
	if int(id) >= len(t.shapes) || !t.known[id] {
		return ShapeEmpty, false
	}
	return t.shapes[id], true
}

// Name возвращает имя тайла
func (t *TileTable) Name(id uint16) string {
	if int(id) >= len(t.names) || !t.known[id] {
		return fmt.Sprintf("tile#%d", id)
	}
	return t.names[id]
}

// Len возвращает число зарегистрированных тайлов
func (t *TileTable) Len() int {
	n := 0
	for _, k := range t.known {
		if k {
			n++
		}
	}
	return n
}

// ShapesFor переводит тайлы чанка в формы. unknown: число неизвестных id.
func (t *TileTable) ShapesFor(ids []uint16) (shapes []Shape, unknown int, err error) {
	if len(ids) != ChunkVolume {
		return nil, 0, fmt.Errorf("%w: got %d", ErrTerrainSize, len(ids))
	}
	shapes = make([]Shape, len(ids))
	for i, id := range ids {
		s, ok := t.Shape(id)
		if !ok {
			unknown++
		}
		shapes[i] = s
	}
	return shapes, unknown, nil
}
