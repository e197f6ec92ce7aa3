package world

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
)

// ChunkArchive хранит вытесненные из окна чанки ландшафта в сжатом виде,
// чтобы при возврате окна не запрашивать их заново.
// Формат записи: RLE ландшафта (little-endian uint16), сжатый zstd.
type ChunkArchive struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	chunks map[vec.Vec2][]byte
	order  []vec.Vec2 // порядок вставки для вытеснения старейших
	limit  int
	bytes  int
}

// NewChunkArchive создаёт архив на limit чанков (0: без ограничения).
func NewChunkArchive(limit int) (*ChunkArchive, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ChunkArchive{
		encoder: enc,
		decoder: dec,
		chunks:  make(map[vec.Vec2][]byte),
		limit:   limit,
	}, nil
}

// Store сохраняет тайлы чанка, заменяя прежнюю запись.
func (a *ChunkArchive) Store(cc vec.Vec2, tiles []uint16) error {
	if len(tiles) != ChunkVolume {
		return fmt.Errorf("%w: got %d", ErrTerrainSize, len(tiles))
	}
	words := EncodeTerrainRLE(tiles)
	raw := make([]byte, 2*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint16(raw[2*i:], w)
	}
	packed := a.encoder.EncodeAll(raw, nil)

	if old, ok := a.chunks[cc]; ok {
		a.bytes -= len(old)
		a.removeFromOrder(cc)
	}
	a.chunks[cc] = packed
	a.order = append(a.order, cc)
	a.bytes += len(packed)

	for a.limit > 0 && len(a.order) > a.limit {
		oldest := a.order[0]
		a.order = a.order[1:]
		a.bytes -= len(a.chunks[oldest])
		delete(a.chunks, oldest)
	}
	return nil
}

// Load возвращает тайлы чанка; ok=false, если чанка нет в архиве.
func (a *ChunkArchive) Load(cc vec.Vec2) (tiles []uint16, ok bool, err error) {
	packed, ok := a.chunks[cc]
	if !ok {
		return nil, false, nil
	}
	raw, err := a.decoder.DecodeAll(packed, nil)
	if err != nil {
		return nil, true, fmt.Errorf("decompress chunk %v: %w", cc, err)
	}
	if len(raw)%2 != 0 {
		return nil, true, fmt.Errorf("%w: odd payload length %d", ErrRLECorrupt, len(raw))
	}
	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	tiles, err = DecodeTerrainRLE(words)
	if err != nil {
		return nil, true, err
	}
	return tiles, true, nil
}

// Forget удаляет чанк из архива
func (a *ChunkArchive) Forget(cc vec.Vec2) {
	if packed, ok := a.chunks[cc]; ok {
		a.bytes -= len(packed)
		delete(a.chunks, cc)
		a.removeFromOrder(cc)
	}
}

func (a *ChunkArchive) removeFromOrder(cc vec.Vec2) {
	for i, c := range a.order {
		if c == cc {
			a.order = append(a.order[:i], a.order[i+1:]...)
			return
		}
	}
}

// Len возвращает число чанков в архиве
func (a *ChunkArchive) Len() int {
	return len(a.chunks)
}

// Bytes возвращает суммарный размер сжатых записей
func (a *ChunkArchive) Bytes() int {
	return a.bytes
}

// Close освобождает кодеки zstd
func (a *ChunkArchive) Close() {
	a.encoder.Close()
	a.decoder.Close()
}
