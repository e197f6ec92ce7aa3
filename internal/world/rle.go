package world

import (
	"errors"
	"fmt"
)

// Формат RLE ландшафта: поток uint16. Слово с установленным старшим битом:
// заголовок серии: младшие 15 бит задают длину, следующее слово: значение.
// Остальные слова: одиночные тайлы.
const (
	rleRunFlag  = 0x8000
	rleMaxRun   = 0x7fff
	rleMinBatch = 3
)

// ErrRLECorrupt: поток RLE обрывается посреди серии или выходит за чанк
var ErrRLECorrupt = errors.New("corrupt terrain RLE stream")

// DecodeTerrainRLE разворачивает поток в ровно ChunkVolume тайлов.
func DecodeTerrainRLE(words []uint16) ([]uint16, error) {
	out := make([]uint16, 0, ChunkVolume)
	for i := 0; i < len(words); i++ {
		w := words[i]
		if w&rleRunFlag == 0 {
			out = append(out, w)
		} else {
			if i+1 >= len(words) {
				return nil, fmt.Errorf("%w: run header at %d without value", ErrRLECorrupt, i)
			}
			n := int(w &^ rleRunFlag)
			i++
			if len(out)+n > ChunkVolume {
				return nil, fmt.Errorf("%w: run overflows chunk at word %d", ErrRLECorrupt, i)
			}
			for j := 0; j < n; j++ {
				out = append(out, words[i])
			}
		}
		if len(out) > ChunkVolume {
			return nil, fmt.Errorf("%w: more than %d tiles", ErrRLECorrupt, ChunkVolume)
		}
	}
	if len(out) != ChunkVolume {
		return nil, fmt.Errorf("%w: got %d", ErrTerrainSize, len(out))
	}
	return out, nil
}

// EncodeTerrainRLE сжимает тайлы в тот же формат. Тайлы со старшим битом
// всегда кодируются серией, чтобы их нельзя было принять за заголовок.
func EncodeTerrainRLE(tiles []uint16) []uint16 {
	out := make([]uint16, 0, len(tiles)/4)
	for i := 0; i < len(tiles); {
		v := tiles[i]
		n := 1
		for i+n < len(tiles) && tiles[i+n] == v && n < rleMaxRun {
			n++
		}
		if n >= rleMinBatch || v&rleRunFlag != 0 {
			out = append(out, rleRunFlag|uint16(n), v)
		} else {
			for j := 0; j < n; j++ {
				out = append(out, v)
			}
		}
		i += n
	}
	return out
}
