package world

import (
	"github.com/aquilax/go-perlin"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
)

// Пороги шума для генерации (шум нормирован в 0..1)
const (
	PitMax         = 0.18 // Ниже - яма без пола
	RampStart      = 0.56 // Выше - рампа перед плато
	PlateauStart   = 0.62 // Выше - плато высотой в один воксель
	defaultNoiseSc = 0.11
)

// Generator генерирует ландшафт чанков по шуму Перлина с таблицей DefaultTileTable.
// Один и тот же сид всегда даёт одинаковый ландшафт.
type Generator struct {
	Seed       int64
	NoiseScale float64 // Масштаб шума
	noise      *perlin.Perlin
}

// NewGenerator создаёт генератор
func NewGenerator(seed int64) *Generator {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Generator{
		Seed:       seed,
		NoiseScale: defaultNoiseSc,
		noise:      perlin.NewPerlin(alpha, beta, n, seed),
	}
}

// Height возвращает значение шума в 0..1 для вокселя (x, y) в мировых координатах
func (g *Generator) Height(x, y int) float64 {
	v := g.noise.Noise2D(float64(x)*g.NoiseScale, float64(y)*g.NoiseScale)
	v = (v + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Generate возвращает ChunkVolume тайлов чанка cc в порядке ChunkIndex.
//
// Земля: трава на z=0. Плато: камень на z=0 и трава на z=1.
// Перед плато с запада может стоять рампа, ведущая наверх.
// Ямы: воздух на z=0.
func (g *Generator) Generate(cc vec.Vec2) []uint16 {
	tiles := make([]uint16, ChunkVolume)
	baseX := cc.X * ChunkSize
	baseY := cc.Y * ChunkSize

	for y := 0; y < ChunkSize; y++ {
		for x := 0; x < ChunkSize; x++ {
			gx, gy := baseX+x, baseY+y
			h := g.Height(gx, gy)

			switch {
			case h >= PlateauStart:
				tiles[ChunkIndex(x, y, 0)] = TileRock
				tiles[ChunkIndex(x, y, 1)] = TileGrass
			case h < PitMax:
				tiles[ChunkIndex(x, y, 0)] = TileAir
			case h >= RampStart && g.Height(gx+1, gy) >= PlateauStart:
				tiles[ChunkIndex(x, y, 0)] = TileRampE
			default:
				tiles[ChunkIndex(x, y, 0)] = TileGrass
			}
		}
	}
	return tiles
}

// FlatChunk возвращает чанк, целиком покрытый травой на z=0.
func FlatChunk() []uint16 {
	tiles := make([]uint16, ChunkVolume)
	for y := 0; y < ChunkSize; y++ {
		for x := 0; x < ChunkSize; x++ {
			tiles[ChunkIndex(x, y, 0)] = TileGrass
		}
	}
	return tiles
}
