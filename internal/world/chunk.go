package world

import "github.com/candyasscoder/everfree-outpost-sub000/internal/vec"

const (
	// TileSize: размер вокселя в пикселях
	TileSize = 32
	// ChunkSize: размер чанка в вокселях по каждой оси
	ChunkSize = 16
	// ChunkVolume: количество вокселей в чанке
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
	// LocalSize: размер тороидального локального окна в чанках
	LocalSize = 8
	// ChunkPixels: размер чанка в пикселях
	ChunkPixels = ChunkSize * TileSize
)

// ShapeChunk: плотный массив форм чанка 16x16x16
type ShapeChunk [ChunkVolume]Shape

// ChunkIndex возвращает индекс вокселя внутри чанка по локальным координатам
func ChunkIndex(x, y, z int) int {
	return (z*ChunkSize+y)*ChunkSize + x
}

// Get возвращает форму по локальным координатам
func (c *ShapeChunk) Get(x, y, z int) Shape {
	return c[ChunkIndex(x, y, z)]
}

// Set устанавливает форму по локальным координатам
func (c *ShapeChunk) Set(x, y, z int, s Shape) {
	c[ChunkIndex(x, y, z)] = s
}

// Fill заполняет чанк одной формой
func (c *ShapeChunk) Fill(s Shape) {
	for i := range c {
		c[i] = s
	}
}

// ChunkOf возвращает координаты чанка, содержащего воксель
func ChunkOf(x, y int) vec.Vec2 {
	return vec.Vec2{X: vec.FloorDiv(x, ChunkSize), Y: vec.FloorDiv(y, ChunkSize)}
}

// TileOf переводит позицию в пикселях в координаты вокселя
func TileOf(px vec.Vec3) vec.Vec3 {
	return px.FloorDiv(TileSize)
}
