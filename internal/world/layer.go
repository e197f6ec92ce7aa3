package world

// ShapeLayer определяет слой форм внутри слота чанка.
// Слой 0: ландшафт, выводится из тайлов. Слои выше: оверлеи структур,
// записываются и стираются при установке и удалении структур.
//
// 0 – LayerTerrain: ландшафт;
// 1 – LayerFloor: полы и фундаменты структур;
// 2 – LayerObject: стены, мебель;
// 3 – LayerRoof: крыши/надстройки.
type ShapeLayer uint8

const (
	LayerTerrain ShapeLayer = iota
	LayerFloor
	LayerObject
	LayerRoof

	MaxLayers // всегда последний: количество слоев
)

func (l ShapeLayer) String() string {
	switch l {
	case LayerTerrain:
		return "terrain"
	case LayerFloor:
		return "floor"
	case LayerObject:
		return "object"
	case LayerRoof:
		return "roof"
	default:
		return "invalid"
	}
}

// IsOverlay сообщает, что слой принадлежит структурам
func (l ShapeLayer) IsOverlay() bool {
	return l > LayerTerrain && l < MaxLayers
}

// LayerMask: набор слоёв
type LayerMask uint8

// MaskOf возвращает маску из одного слоя
func MaskOf(l ShapeLayer) LayerMask {
	return 1 << l
}

// Has сообщает, что слой входит в маску
func (m LayerMask) Has(l ShapeLayer) bool {
	return m&MaskOf(l) != 0
}

// ShapeLayers хранит стек слоёв слота и закешированную итоговую форму.
// Итог пересчитывается только явным вызовом Composite.
type ShapeLayers struct {
	layers    [MaxLayers]ShapeChunk
	effective ShapeChunk
}

// Layer возвращает слой для записи
func (sl *ShapeLayers) Layer(l ShapeLayer) *ShapeChunk {
	return &sl.layers[l]
}

// Effective возвращает последний скомпонованный результат
func (sl *ShapeLayers) Effective() *ShapeChunk {
	return &sl.effective
}

// Composite пересчитывает итоговые формы: побеждает первый непустой слой,
// считая от верхнего оверлея вниз к ландшафту.
func (sl *ShapeLayers) Composite() {
	for i := range sl.effective {
		s := ShapeEmpty
		for l := int(MaxLayers) - 1; l >= 0; l-- {
			if v := sl.layers[l][i]; v != ShapeEmpty {
				s = v
				break
			}
		}
		sl.effective[i] = s
	}
}

// Reset стирает все слои и итог
func (sl *ShapeLayers) Reset() {
	for l := range sl.layers {
		sl.layers[l].Fill(ShapeEmpty)
	}
	sl.effective.Fill(ShapeEmpty)
}
