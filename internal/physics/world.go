package physics

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/logging"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/world"
)

const (
	// maxSlideAttempts: три обнуления осей, одна подмена для рампы и запас
	maxSlideAttempts = 5
	// maxUpdateRetries: сколько раз UpdateForecast пересчитывает истёкший прогноз за кадр
	maxUpdateRetries = 5
	// DefaultArchiveLimit: сколько вытесненных чанков хранит архив по умолчанию
	DefaultArchiveLimit = 256
)

var (
	// ErrUnknownEntity: сущность не отслеживается
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidSize: размер бокса должен быть положительным по всем осям
	ErrInvalidSize = errors.New("entity size must be positive")
)

// Options настраивает World
type Options struct {
	Tiles        *world.TileTable // nil: world.DefaultTileTable()
	ArchiveLimit int              // 0: DefaultArchiveLimit
	Metrics      *Metrics         // nil: незарегистрированные метрики
}

// World связывает сетку форм, загрузку чанков, структуры и прогнозы движения.
// Не потокобезопасен: все вызовы идут из цикла кадра.
type World struct {
	grid    *world.ShapeGrid
	tiles   *world.TileTable
	archive *world.ChunkArchive

	// Тайлы загруженных чанков по слотам, для архивации при вытеснении
	terrain [world.LocalSize * world.LocalSize][]uint16

	forecasts  map[uint64]*Forecast
	structures map[uuid.UUID]*Structure

	metrics *Metrics
	logger  *logging.Logger
}

// NewWorld создаёт пустой мир: ни один чанк не загружен.
func NewWorld(opts Options) (*World, error) {
	if opts.Tiles == nil {
		opts.Tiles = world.DefaultTileTable()
	}
	if opts.ArchiveLimit <= 0 {
		opts.ArchiveLimit = DefaultArchiveLimit
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	archive, err := world.NewChunkArchive(opts.ArchiveLimit)
	if err != nil {
		return nil, fmt.Errorf("create chunk archive: %w", err)
	}

	return &World{
		grid:       world.NewShapeGrid(),
		tiles:      opts.Tiles,
		archive:    archive,
		forecasts:  make(map[uint64]*Forecast),
		structures: make(map[uuid.UUID]*Structure),
		metrics:    opts.Metrics,
		logger:     logging.GetPhysicsLogger(),
	}, nil
}

// Close освобождает кодеки архива
func (w *World) Close() {
	w.archive.Close()
}

// Grid возвращает сетку форм
func (w *World) Grid() *world.ShapeGrid {
	return w.grid
}

// Archive возвращает архив вытесненных чанков
func (w *World) Archive() *world.ChunkArchive {
	return w.archive
}

// FindCeiling возвращает расстояние в вокселях от вокселя, содержащего
// пиксельную позицию pos, до ближайшего непустого вокселя выше, либо world.NoCeiling.
func (w *World) FindCeiling(pos vec.Vec3) int {
	return w.grid.FindCeiling(world.TileOf(pos))
}

// ===== Прогнозы =====

// ResetForecast фиксирует сущность в её позиции на момент now и строит
// новый прогноз для целевой скорости target.
func (w *World) ResetForecast(now int64, f *Forecast, target vec.Vec3) {
	f.collapse(now)
	f.TargetVelocity = ClampVelocity(target)
	w.forecast(f)
}

// UpdateForecast продлевает истёкший прогноз: каждый новый отрезок
// начинается там, где кончился предыдущий. Если отрезок не сдвинулся во
// времени, сущность зажата и попытки прекращаются до следующего кадра.
func (w *World) UpdateForecast(now int64, f *Forecast) {
	for i := 0; i < maxUpdateRetries && !f.Live(now); i++ {
		end := f.EndTime
		f.collapse(min(now, end))
		w.forecast(f)
		if f.EndTime == end {
			w.metrics.WedgedForecasts.Inc()
			w.logger.Debug("Forecast wedged at %v (target %v, t=%d)", f.StartPos, f.TargetVelocity, f.StartTime)
			break
		}
	}
}

// Warp переносит сущность в pos на момент now и строит прогноз с текущей целевой скоростью.
func (w *World) Warp(now int64, f *Forecast, pos vec.Vec3) {
	f.StartPos = pos
	f.EndPos = pos
	f.StartTime = now
	f.EndTime = Forever
	f.ActualVelocity = vec.Vec3{}
	w.forecast(f)
}

// forecast строит один отрезок от f.StartPos в момент f.StartTime.
// Заблокированные с нулевым временем оси обнуляются (скольжение вдоль стены),
// основание рампы один раз превращается в подъём с vz = vx.
func (w *World) forecast(f *Forecast) {
	vel := f.TargetVelocity
	climbed := false

	for attempt := 0; attempt < maxSlideAttempts && !vel.IsZero(); attempt++ {
		res := Collide(w.grid, f.StartPos, f.Size, vel)
		w.metrics.observeCollision(res)

		switch {
		case res.Reason == ReasonUnresolved:
			w.logger.Warn("Collision walk unresolved from %v size %v vel %v, entity stays put",
				f.StartPos, f.Size, vel)
			return
		case !res.ZeroTime():
			f.EndPos = res.Pos
			f.EndTime = f.StartTime + res.TimeMs
			f.ActualVelocity = vel
			return
		case res.Reason == ReasonRampBottom && !climbed:
			climbed = true
			vel.Z = vel.X
		default:
			vel = zeroAxes(vel, res.Axes)
		}
	}
}

func zeroAxes(v vec.Vec3, m AxisMask) vec.Vec3 {
	for _, a := range vec.Axes {
		if m.Has(a) {
			v = v.With(a, 0)
		}
	}
	return v
}

// ===== Сущности =====

// Track начинает отслеживать сущность, стоящую в pos
func (w *World) Track(id uint64, pos, size vec.Vec3, now int64) (*Forecast, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}
	f := NewForecast(pos, size, now)
	if _, exists := w.forecasts[id]; !exists {
		w.metrics.TrackedEntities.Inc()
	}
	w.forecasts[id] = f
	return f, nil
}

// Forecast возвращает прогноз сущности
func (w *World) Forecast(id uint64) (*Forecast, bool) {
	f, ok := w.forecasts[id]
	return f, ok
}

// Untrack прекращает отслеживание
func (w *World) Untrack(id uint64) {
	if _, ok := w.forecasts[id]; ok {
		delete(w.forecasts, id)
		w.metrics.TrackedEntities.Dec()
	}
}

// Entities возвращает число отслеживаемых сущностей
func (w *World) Entities() int {
	return len(w.forecasts)
}

// SetTarget меняет целевую скорость отслеживаемой сущности
func (w *World) SetTarget(now int64, id uint64, target vec.Vec3) error {
	f, ok := w.forecasts[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	w.ResetForecast(now, f, target)
	logging.LogEntityForecast(w.logger, id,
		f.StartPos.X, f.StartPos.Y, f.StartPos.Z, f.EndPos.X, f.EndPos.Y, f.EndPos.Z, f.EndTime)
	return nil
}

// Step продлевает прогнозы всех отслеживаемых сущностей
func (w *World) Step(now int64) {
	for id, f := range w.forecasts {
		end := f.EndTime
		w.UpdateForecast(now, f)
		if f.EndTime != end {
			logging.LogEntityForecast(w.logger, id,
				f.StartPos.X, f.StartPos.Y, f.StartPos.Z, f.EndPos.X, f.EndPos.Y, f.EndPos.Z, f.EndTime)
		}
	}
}

// ===== Чанки =====

func chunkBounds(cc vec.Vec2) (lo, hi vec.Vec3) {
	lo = vec.New3(cc.X*world.ChunkSize, cc.Y*world.ChunkSize, 0)
	hi = lo.Add(vec.Scalar(world.ChunkSize))
	return lo, hi
}

// LoadChunk загружает ландшафт чанка cc: ChunkVolume идентификаторов тайлов
// в порядке x, y, z. Если слот держал другой чанк, тот уходит в архив.
func (w *World) LoadChunk(cc vec.Vec2, tileIDs []uint16) error {
	shapes, unknown, err := w.tiles.ShapesFor(tileIDs)
	if err != nil {
		return fmt.Errorf("load chunk %v: %w", cc, err)
	}
	if unknown > 0 {
		w.logger.Warn("Chunk %v: %d unknown tile ids treated as empty", cc, unknown)
	}

	slot := world.SlotIndex(cc.X, cc.Y)
	evicted, wasOther := w.grid.SetResident(cc)
	if wasOther {
		w.retire(evicted, slot)
	}

	lo, hi := chunkBounds(cc)
	if err := w.grid.SetRegionShape(lo, hi, world.LayerTerrain, shapes); err != nil {
		return fmt.Errorf("load chunk %v: %w", cc, err)
	}
	w.grid.RefreshChunk(cc)

	w.terrain[slot] = append(w.terrain[slot][:0], tileIDs...)
	w.archive.Forget(cc)
	w.metrics.ChunkLoads.Inc()
	logging.LogChunkLoad(w.logger, cc.X, cc.Y, slot, wasOther)
	return nil
}

// LoadChunkRLE декодирует ландшафт в формате RLE и загружает его
func (w *World) LoadChunkRLE(cc vec.Vec2, words []uint16) error {
	tiles, err := world.DecodeTerrainRLE(words)
	if err != nil {
		return fmt.Errorf("load chunk %v: %w", cc, err)
	}
	return w.LoadChunk(cc, tiles)
}

// RestoreChunk загружает ранее вытесненный чанк из архива.
// Возвращает false, если чанка в архиве нет.
func (w *World) RestoreChunk(cc vec.Vec2) (bool, error) {
	tiles, ok, err := w.archive.Load(cc)
	if err != nil {
		return false, fmt.Errorf("restore chunk %v: %w", cc, err)
	}
	if !ok {
		return false, nil
	}
	if err := w.LoadChunk(cc, tiles); err != nil {
		return false, err
	}
	return true, nil
}

// UnloadChunk выгружает чанк из окна (с архивацией)
func (w *World) UnloadChunk(cc vec.Vec2) bool {
	if !w.grid.IsResident(cc.X, cc.Y) {
		return false
	}
	slot := world.SlotIndex(cc.X, cc.Y)
	w.retire(cc, slot)
	w.grid.Evict(cc)
	return true
}

// retire архивирует ландшафт вытесняемого чанка и снимает его структуры.
func (w *World) retire(cc vec.Vec2, slot int) {
	if tiles := w.terrain[slot]; len(tiles) == world.ChunkVolume {
		if err := w.archive.Store(cc, tiles); err != nil {
			w.logger.Error("Failed to archive chunk %v: %v", cc, err)
		}
	}
	w.terrain[slot] = w.terrain[slot][:0]

	for id, s := range w.structures {
		if s.touchesChunk(cc) {
			w.logger.Debug("Structure %s dropped with evicted chunk %v", id, cc)
			w.dropStructure(id, s)
		}
	}
	w.metrics.ChunkEvictions.Inc()
}
