package physics

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/world"
)

func TestWorld_ForecastOnFlatFloor(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})
	f, err := w.Track(1, vec.Vec3{}, cube, 0)
	require.NoError(t, err)
	assert.True(t, f.Degenerate())

	target := vec.New3(30, 0, 0)
	require.NoError(t, w.SetTarget(0, 1, target))

	assert.Equal(t, target, f.ActualVelocity, "препятствий нет: фактическая скорость равна целевой")
	assert.Equal(t, vec.New3(480, 0, 0), f.EndPos)
	assert.Equal(t, int64(16000), f.EndTime)
	assert.True(t, f.Live(8000))
	assert.Equal(t, vec.New3(240, 0, 0), f.Position(8000))
	assert.Equal(t, vec.New3(480, 0, 0), f.Position(99999), "после конца сущность стоит")
	assert.Equal(t, vec.Vec3{}, f.Position(-5), "до начала сущность в начале")
}

func TestWorld_SlidesAlongWall(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.LoadChunk(vec.Vec2{}, flatWith(func(tiles []uint16) {
		setColumn(tiles, 5, 0, world.TileRock)
	})))

	f, err := w.Track(1, vec.Vec3{}, cube, 0)
	require.NoError(t, err)
	w.ResetForecast(0, f, vec.New3(30, 30, 0))

	// Первый отрезок упирается в стену
	assert.Equal(t, vec.New3(128, 128, 0), f.EndPos)

	w.UpdateForecast(f.EndTime, f)
	assert.Equal(t, vec.New3(0, 30, 0), f.ActualVelocity, "X заблокирована, скольжение по Y")
	assert.Equal(t, vec.New3(128, 480, 0), f.EndPos)
	assert.Greater(t, f.EndTime, f.StartTime)
}

func TestWorld_ContinuesAcrossChunks(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{}, vec.Vec2{X: 1})
	f, err := w.Track(1, vec.Vec3{}, cube, 0)
	require.NoError(t, err)
	w.ResetForecast(0, f, vec.New3(30, 0, 0))
	require.Equal(t, int64(16000), f.EndTime)

	w.UpdateForecast(20000, f)
	assert.Equal(t, int64(16000), f.StartTime, "новый отрезок начинается там, где кончился прежний")
	assert.Equal(t, vec.New3(480, 0, 0), f.StartPos)
	assert.Equal(t, int64(33067), f.EndTime)
	assert.Equal(t, vec.New3(600, 0, 0), f.Position(20000))
}

func TestWorld_UnloadedNeighbourStopsEntity(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})
	f, err := w.Track(1, vec.New3(480, 0, 0), cube, 0)
	require.NoError(t, err)

	w.ResetForecast(0, f, vec.New3(30, 0, 0))
	assert.True(t, f.Degenerate())
	assert.Equal(t, vec.New3(480, 0, 0), f.Position(5000))
}

func TestWorld_RampClimb(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.LoadChunk(vec.Vec2{}, rampTerrain()))

	f, err := w.Track(1, vec.Vec3{}, cube, 0)
	require.NoError(t, err)
	w.ResetForecast(0, f, vec.New3(30, 0, 0))
	assert.Equal(t, vec.New3(128, 0, 0), f.EndPos, "остановка у основания рампы")
	assert.Equal(t, int64(4267), f.EndTime)

	w.UpdateForecast(4800, f)
	assert.Equal(t, vec.New3(30, 0, 30), f.ActualVelocity, "на рампе vz = vx")
	assert.Equal(t, vec.New3(143, 0, 15), f.Position(4800))
	assert.Equal(t, vec.New3(160, 0, 32), f.EndPos)

	for now := int64(4900); now <= 20000; now += 100 {
		w.UpdateForecast(now, f)
	}
	assert.Equal(t, vec.New3(480, 0, 32), f.Position(20000), "сущность прошла плато до границы чанка")
	assert.Equal(t, vec.New3(30, 0, 0), f.TargetVelocity)

	// Спуск по рампе не поддерживается: край плато останавливает
	w.ResetForecast(20000, f, vec.New3(-30, 0, 0))
	assert.Equal(t, vec.New3(192, 0, 32), f.EndPos)
	assert.Equal(t, int64(20000+9600), f.EndTime)
}

func TestWorld_HighSpeedSegmentLastsAtLeastOneMs(t *testing.T) {
	metrics := NewMetrics(nil)
	w, err := NewWorld(Options{Metrics: metrics})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.LoadChunk(vec.Vec2{}, flatWith(func(tiles []uint16) {
		setColumn(tiles, 2, 0, world.TileRock)
	})))

	// 2000 px/s: последний пиксель до стены занимает полмиллисекунды
	f := NewForecast(vec.New3(31, 0, 0), cube, 0)
	f.TargetVelocity = vec.New3(2000, 0, 0)
	f.EndTime = 0

	w.UpdateForecast(0, f)
	assert.Equal(t, vec.New3(32, 0, 0), f.EndPos)
	assert.Equal(t, int64(1), f.EndTime, "сдвинувшийся отрезок не бывает нулевой длины")
	assert.Equal(t, vec.New3(31, 0, 0), f.Position(0))
	assert.Zero(t, testutil.ToFloat64(metrics.WedgedForecasts))

	w.UpdateForecast(1, f)
	assert.True(t, f.Degenerate(), "вплотную к стене движение прекращается")
	assert.Equal(t, vec.New3(32, 0, 0), f.Position(100))
}

func TestWorld_WedgedForecastStopsRetrying(t *testing.T) {
	metrics := NewMetrics(nil)
	w, err := NewWorld(Options{Metrics: metrics})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.LoadChunk(vec.Vec2{}, world.FlatChunk()))

	// Отрезок из будущего: пересчёт от now даёт тот же конец
	f := NewForecast(vec.Vec3{}, cube, 0)
	f.TargetVelocity = vec.New3(30, 0, 0)
	f.StartTime = 5000
	f.EndTime = 16000

	w.UpdateForecast(0, f)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WedgedForecasts))
	assert.Equal(t, int64(0), f.StartTime)
	assert.Equal(t, int64(16000), f.EndTime)
	assert.True(t, f.Live(0))
}

func TestWorld_RisingWithoutRampStaysOnFloor(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})
	f, err := w.Track(1, vec.Vec3{}, cube, 0)
	require.NoError(t, err)

	w.ResetForecast(0, f, vec.New3(0, 0, 30))
	assert.True(t, f.Degenerate(), "вверх по воздуху не подняться")
	assert.Equal(t, vec.Vec3{}, f.Position(16000))

	// Подъём вне рампы гасится, горизонтальная часть остаётся
	w.ResetForecast(0, f, vec.New3(30, 0, 30))
	assert.Equal(t, vec.New3(30, 0, 0), f.ActualVelocity)
	assert.Equal(t, vec.New3(480, 0, 0), f.EndPos)
}

// checkContinuity опрашивает позицию каждую миллисекунду и проверяет, что
// за миллисекунду сущность сдвигается не больше чем на ceil(|v|/1000)+1 по
// каждой оси, в том числе на стыках отрезков. Возвращает число отрезков.
func checkContinuity(t *testing.T, w *World, f *Forecast, until int64) int {
	t.Helper()
	v := f.TargetVelocity
	limit := vec.New3(vec.CeilDiv(vec.Abs(v.X), 1000)+1, vec.CeilDiv(vec.Abs(v.Y), 1000)+1, vec.CeilDiv(vec.Abs(v.Z), 1000)+1)

	segments := 1
	prev := f.Position(f.StartTime)
	start := f.StartTime
	for now := f.StartTime; now <= until; now++ {
		w.UpdateForecast(now, f)
		if f.StartTime != start {
			start = f.StartTime
			segments++
		}
		pos := f.Position(now)
		for _, a := range vec.Axes {
			require.LessOrEqual(t, vec.Abs(pos.Get(a)-prev.Get(a)), limit.Get(a),
				"скачок по оси %v в t=%d: %v -> %v", a, now, prev, pos)
		}
		prev = pos
	}
	return segments
}

func TestWorld_ForecastContinuity(t *testing.T) {
	tests := []struct {
		name string
		pos  vec.Vec3
		vel  vec.Vec3
		min  int
	}{
		{"negative", vec.New3(900, 64, 0), vec.New3(-45, 0, 0), 3},
		{"non-coprime", vec.New3(10, 400, 0), vec.New3(40, -24, 0), 2},
		{"fast", vec.New3(-500, 64, 0), vec.New3(1500, 0, 0), 3},
		{"slow diagonal", vec.New3(40, 30, 0), vec.New3(-7, 3, 0), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorld(t, vec.Vec2{X: -1}, vec.Vec2{}, vec.Vec2{X: 1})
			f, err := w.Track(1, tt.pos, cube, 0)
			require.NoError(t, err)
			w.ResetForecast(0, f, tt.vel)

			segments := checkContinuity(t, w, f, 35000)
			assert.GreaterOrEqual(t, segments, tt.min, "проверка прошла через стыки отрезков")
		})
	}
}

func TestWorld_Warp(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})
	f, err := w.Track(1, vec.Vec3{}, cube, 0)
	require.NoError(t, err)
	w.ResetForecast(0, f, vec.New3(30, 0, 0))

	w.Warp(1000, f, vec.New3(100, 64, 0))
	assert.Equal(t, int64(1000), f.StartTime)
	assert.Equal(t, vec.New3(100, 64, 0), f.Position(1000))
	assert.Equal(t, vec.New3(30, 0, 0), f.ActualVelocity, "целевая скорость сохраняется")
	assert.Equal(t, vec.New3(130, 64, 0), f.Position(2000))
}

func TestWorld_EntityRegistry(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	w, err := NewWorld(Options{Metrics: metrics})
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Track(1, vec.Vec3{}, vec.New3(32, 0, 32), 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = w.Track(1, vec.Vec3{}, cube, 0)
	require.NoError(t, err)
	_, err = w.Track(2, vec.Vec3{}, cube, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Entities())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TrackedEntities))

	w.Untrack(1)
	_, ok := w.Forecast(1)
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TrackedEntities))

	err = w.SetTarget(0, 1, vec.New3(1, 0, 0))
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestWorld_LoadChunkErrors(t *testing.T) {
	w := newTestWorld(t)

	err := w.LoadChunk(vec.Vec2{}, make([]uint16, 10))
	assert.ErrorIs(t, err, world.ErrTerrainSize)
	assert.False(t, w.Grid().IsResident(0, 0), "неполный чанк не загружается")

	err = w.LoadChunkRLE(vec.Vec2{}, []uint16{0x8000 | 5})
	assert.ErrorIs(t, err, world.ErrRLECorrupt)

	require.NoError(t, w.LoadChunkRLE(vec.Vec2{}, world.EncodeTerrainRLE(world.FlatChunk())))
	assert.Equal(t, world.ShapeFloor, w.Grid().GetShape(3, 3, 0))
	assert.Equal(t, world.ShapeEmpty, w.Grid().GetShape(3, 3, 1))
}

func TestWorld_EvictionArchivesAndRestores(t *testing.T) {
	metrics := NewMetrics(nil)
	w, err := NewWorld(Options{Metrics: metrics})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.LoadChunk(vec.Vec2{}, flatWith(func(tiles []uint16) {
		tiles[world.ChunkIndex(4, 4, 0)] = world.TileRock
	})))
	id, err := w.AddStructure(vec.New3(1, 1, 0), wallTemplate())
	require.NoError(t, err)

	// Чанк (8,0) попадает в тот же слот
	require.NoError(t, w.LoadChunk(vec.Vec2{X: world.LocalSize}, world.FlatChunk()))
	assert.False(t, w.Grid().IsResident(0, 0))
	assert.Equal(t, 1, w.Archive().Len())
	_, ok := w.Structure(id)
	assert.False(t, ok, "структура вытесненного чанка снимается")
	assert.Equal(t, 0, w.Structures())
	assert.Equal(t, world.ShapeFloor, w.Grid().GetShape(world.LocalSize*world.ChunkSize+1, 1, 0),
		"оверлеи прежнего чанка не протекают в новый")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChunkEvictions))

	restored, err := w.RestoreChunk(vec.Vec2{})
	require.NoError(t, err)
	require.True(t, restored)
	assert.Equal(t, world.ShapeSolid, w.Grid().GetShape(4, 4, 0))
	assert.True(t, w.Grid().IsResident(0, 0))
	assert.Equal(t, 1, w.Archive().Len(), "в архиве теперь чанк (8,0)")

	restored, err = w.RestoreChunk(vec.Vec2{X: 3})
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestWorld_UnloadChunk(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})
	assert.True(t, w.UnloadChunk(vec.Vec2{}))
	assert.False(t, w.UnloadChunk(vec.Vec2{}))
	assert.False(t, w.Grid().IsResident(0, 0))
	assert.Equal(t, world.ShapeEmpty, w.Grid().GetShape(0, 0, 0))
	assert.Equal(t, 1, w.Archive().Len())
}

func TestWorld_FindCeiling(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})
	roof := &StructureTemplate{
		Name:   "roof",
		Size:   vec.New3(1, 1, 1),
		Shapes: []world.Shape{world.ShapeSolid},
		Layer:  world.LayerRoof,
	}
	_, err := w.AddStructure(vec.New3(1, 1, 3), roof)
	require.NoError(t, err)

	assert.Equal(t, 3, w.FindCeiling(vec.New3(37, 40, 0)))
	assert.Equal(t, world.NoCeiling, w.FindCeiling(vec.New3(100, 100, 0)))
}

// noTunnelingRun двигает сущности по случайному рельефу и проверяет,
// что ни в один момент бокс не стоит на пустоте или в камне.
func noTunnelingRun(t *testing.T, seed int64) []vec.Vec3 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	tiles := flatWith(func(tiles []uint16) {
		for y := 0; y < world.ChunkSize; y++ {
			for x := 0; x < world.ChunkSize; x++ {
				switch r := rng.Intn(100); {
				case r < 12:
					tiles[world.ChunkIndex(x, y, 0)] = world.TileRock
				case r < 20:
					tiles[world.ChunkIndex(x, y, 0)] = world.TileAir
				}
			}
		}
	})
	w := newTestWorld(t)
	require.NoError(t, w.LoadChunk(vec.Vec2{}, tiles))
	g := w.Grid()

	var forecasts []*Forecast
	for id := uint64(0); len(forecasts) < 8; id++ {
		tx, ty := rng.Intn(world.ChunkSize), rng.Intn(world.ChunkSize)
		if g.GetShape(tx, ty, 0) != world.ShapeFloor {
			continue
		}
		size := vec.New3(8+rng.Intn(25), 8+rng.Intn(25), 32)
		pos := vec.New3(
			tx*world.TileSize+rng.Intn(world.TileSize-size.X+1),
			ty*world.TileSize+rng.Intn(world.TileSize-size.Y+1),
			0)
		f, err := w.Track(id, pos, size, 0)
		require.NoError(t, err)
		forecasts = append(forecasts, f)
	}

	randomVelocity := func() vec.Vec3 {
		return vec.New3(rng.Intn(121)-60, rng.Intn(121)-60, 0)
	}

	for frame := int64(0); frame < 400; frame++ {
		now := frame * 50
		for _, f := range forecasts {
			if frame%20 == 0 {
				w.ResetForecast(now, f, randomVelocity())
			} else {
				w.UpdateForecast(now, f)
			}

			pos := f.Position(now)
			lo := world.TileOf(pos)
			hi := world.TileOf(pos.Add(f.Size).Sub(vec.Scalar(1)))
			require.Equal(t, 0, lo.Z, "сущность не покидает уровень пола")
			for y := lo.Y; y <= hi.Y; y++ {
				for x := lo.X; x <= hi.X; x++ {
					require.Equal(t, world.ShapeFloor, g.GetShape(x, y, 0),
						"seed %d, кадр %d: бокс %v..%v над вокселем (%d,%d)", seed, frame, pos, f.Size, x, y)
				}
			}
		}
	}

	final := make([]vec.Vec3, len(forecasts))
	for i, f := range forecasts {
		final[i] = f.Position(400 * 50)
	}
	return final
}

func TestWorld_NoTunnelingProperty(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		noTunnelingRun(t, seed)
	}
}

func TestWorld_Deterministic(t *testing.T) {
	assert.Equal(t, noTunnelingRun(t, 42), noTunnelingRun(t, 42))
}

func TestWorld_GeneratedTerrainDeterministic(t *testing.T) {
	run := func() vec.Vec3 {
		w := newTestWorld(t)
		gen := world.NewGenerator(99)
		require.NoError(t, w.LoadChunk(vec.Vec2{}, gen.Generate(vec.Vec2{})))
		f, err := w.Track(1, vec.New3(200, 200, 0), vec.New3(20, 20, 30), 0)
		require.NoError(t, err)
		w.ResetForecast(0, f, vec.New3(37, 23, 0))
		for now := int64(0); now <= 10000; now += 16 {
			w.UpdateForecast(now, f)
		}
		return f.Position(10000)
	}
	assert.Equal(t, run(), run())
}

func wallTemplate() *StructureTemplate {
	return &StructureTemplate{
		Name:   "wall",
		Size:   vec.New3(1, 2, 2),
		Shapes: []world.Shape{world.ShapeSolid, world.ShapeSolid, world.ShapeSolid, world.ShapeSolid},
		Layer:  world.LayerObject,
	}
}

func TestStructure_BlocksAndRemoves(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})

	id, err := w.AddStructure(vec.New3(5, 0, 0), wallTemplate())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, world.ShapeSolid, w.Grid().GetShape(5, 1, 1))
	assert.Equal(t, world.ShapeFloor, w.Grid().LayerShape(world.LayerTerrain, 5, 0, 0))

	res := Collide(w.Grid(), vec.Vec3{}, cube, vec.New3(30, 0, 0))
	assert.Equal(t, ReasonWall, res.Reason)
	assert.Equal(t, vec.New3(128, 0, 0), res.Pos)

	require.NoError(t, w.RemoveStructure(id))
	assert.Equal(t, world.ShapeFloor, w.Grid().GetShape(5, 0, 0), "после снятия виден ландшафт")
	res = Collide(w.Grid(), vec.Vec3{}, cube, vec.New3(30, 0, 0))
	assert.Equal(t, ReasonChunkBorder, res.Reason)

	err = w.RemoveStructure(id)
	assert.ErrorIs(t, err, ErrUnknownStructure)
}

func TestStructure_Overlap(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})

	_, err := w.AddStructure(vec.New3(5, 0, 0), wallTemplate())
	require.NoError(t, err)

	_, err = w.AddStructure(vec.New3(5, 1, 1), wallTemplate())
	assert.ErrorIs(t, err, ErrStructureOverlap)

	// Другой слой без общих занятых слоёв не конфликтует
	roof := &StructureTemplate{
		Name:   "roof",
		Size:   vec.New3(1, 1, 1),
		Shapes: []world.Shape{world.ShapeFloor},
		Layer:  world.LayerRoof,
	}
	_, err = w.AddStructure(vec.New3(5, 0, 1), roof)
	require.NoError(t, err)

	// Занятость объявлена явно
	roof2 := *roof
	roof2.Occupancy = world.MaskOf(world.LayerObject)
	_, err = w.AddStructure(vec.New3(5, 1, 0), &roof2)
	assert.ErrorIs(t, err, ErrStructureOverlap)
	assert.Equal(t, 2, w.Structures())
}

func TestStructure_Validation(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{})

	tests := []struct {
		name string
		tmpl *StructureTemplate
		pos  vec.Vec3
		err  error
	}{
		{"nil", nil, vec.Vec3{}, ErrBadTemplate},
		{"terrain layer", &StructureTemplate{Size: vec.New3(1, 1, 1), Shapes: []world.Shape{world.ShapeSolid}, Layer: world.LayerTerrain}, vec.Vec3{}, ErrBadTemplate},
		{"short buffer", &StructureTemplate{Size: vec.New3(2, 1, 1), Shapes: []world.Shape{world.ShapeSolid}, Layer: world.LayerObject}, vec.Vec3{}, ErrBadTemplate},
		{"zero size", &StructureTemplate{Layer: world.LayerObject}, vec.Vec3{}, ErrBadTemplate},
		{"bad shape", &StructureTemplate{Size: vec.New3(1, 1, 1), Shapes: []world.Shape{world.Shape(200)}, Layer: world.LayerObject}, vec.Vec3{}, ErrBadTemplate},
		{"too high", wallTemplate(), vec.New3(0, 0, 15), ErrStructureOutOfWindow},
		{"unloaded chunk", wallTemplate(), vec.New3(15, 15, 0), ErrStructureOutOfWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.AddStructure(tt.pos, tt.tmpl)
			assert.True(t, errors.Is(err, tt.err), "ожидалась %v, получена %v", tt.err, err)
		})
	}
	assert.Equal(t, 0, w.Structures())
}

func TestStructure_RefreshCoversNeighbourChunk(t *testing.T) {
	w := newTestWorld(t, vec.Vec2{}, vec.Vec2{X: 1})

	// Стена на краю чанка 0 должна остановить движение из чанка 1
	id, err := w.AddStructure(vec.New3(15, 0, 0), wallTemplate())
	require.NoError(t, err)
	res := Collide(w.Grid(), vec.New3(544, 0, 0), cube, vec.New3(-30, 0, 0))
	assert.Equal(t, ReasonChunkBorder, res.Reason, "обход ограничен чанком 1")
	assert.Equal(t, vec.New3(512, 0, 0), res.Pos)

	res = Collide(w.Grid(), vec.New3(512, 0, 0), cube, vec.New3(-30, 0, 0))
	assert.Equal(t, ReasonWall, res.Reason)
	assert.True(t, res.ZeroTime())

	require.NoError(t, w.RemoveStructure(id))
	res = Collide(w.Grid(), vec.New3(512, 0, 0), cube, vec.New3(-30, 0, 0))
	assert.Equal(t, ReasonChunkBorder, res.Reason)
	assert.False(t, res.ZeroTime())
}
