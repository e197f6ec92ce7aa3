package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/config"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/logging"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/physics"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/prediction"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/world"
)

const localEntity uint64 = 1

const (
	inputLatencyMs = 80 // задержка ввода до сервера
	snapshotEvery  = 6  // кадров между снимками локальной сущности
	retargetEvery  = 90 // кадров между сменой направления
	placeAttempts  = 32
	entityHeight   = 48
)

type pendingInput struct {
	at     int64
	target vec.Vec3
}

// simulation гоняет клиентский мир против «серверного» с той же геометрией:
// сервер получает ввод с задержкой и рассылает отрезки движения.
type simulation struct {
	cfg *config.Config
	rng *rand.Rand
	gen *world.Generator

	client *physics.World
	server *physics.World
	recon  *prediction.Reconciler

	entities []uint64
	inputs   []pendingInput
	sent     map[uint64]int64 // StartTime+1 последнего отрезка, разосланного сущности
}

type report struct {
	Frames      int
	SimulatedMs int64
	Structures  int
	Chunks      int
	Archived    int
	Prediction  prediction.Stats
	LocalPos    vec.Vec3
}

func newSimulation(cfg *config.Config, reg prometheus.Registerer) (*simulation, error) {
	tiles := cfg.TileTable()

	client, err := physics.NewWorld(physics.Options{
		Tiles:        tiles,
		ArchiveLimit: cfg.Simulation.ArchiveLimit,
		Metrics:      physics.NewMetrics(reg),
	})
	if err != nil {
		return nil, fmt.Errorf("client world: %w", err)
	}
	server, err := physics.NewWorld(physics.Options{Tiles: tiles})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("server world: %w", err)
	}

	recon := prediction.NewReconciler(client, prediction.Config{
		SnapTolerance: cfg.Prediction.SnapTolerance,
		QueueLimit:    cfg.Prediction.QueueLimit,
	}, prediction.NewMetrics(reg))

	return &simulation{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Simulation.Seed)),
		gen:    world.NewGenerator(cfg.Simulation.Seed),
		client: client,
		server: server,
		recon:  recon,
		sent:   make(map[uint64]int64),
	}, nil
}

func (s *simulation) Close() {
	s.client.Close()
	s.server.Close()
}

func (s *simulation) setup() error {
	if err := s.loadTerrain(); err != nil {
		return err
	}
	if err := s.placeStructures(); err != nil {
		return err
	}
	return s.spawnEntities()
}

// loadTerrain загружает окно чанков. Клиент получает ландшафт в RLE, как с сервера.
func (s *simulation) loadTerrain() error {
	for cy := 0; cy < s.cfg.Simulation.ChunksY; cy++ {
		for cx := 0; cx < s.cfg.Simulation.ChunksX; cx++ {
			cc := vec.Vec2{X: cx, Y: cy}
			tiles := s.gen.Generate(cc)
			if err := s.server.LoadChunk(cc, tiles); err != nil {
				return err
			}
			if err := s.client.LoadChunkRLE(cc, world.EncodeTerrainRLE(tiles)); err != nil {
				return err
			}
		}
	}
	logging.Info("🗺️ Загружено %d чанков (seed=%d)", s.cfg.Simulation.ChunksX*s.cfg.Simulation.ChunksY, s.cfg.Simulation.Seed)
	return nil
}

func (s *simulation) windowVoxels() (int, int) {
	return s.cfg.Simulation.ChunksX * world.ChunkSize, s.cfg.Simulation.ChunksY * world.ChunkSize
}

// placeStructures ставит каждую структуру в случайное место на обоих мирах.
func (s *simulation) placeStructures() error {
	templates, err := s.cfg.Templates()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	wx, wy := s.windowVoxels()
	for _, name := range names {
		tmpl := templates[name]
		for attempt := 0; attempt < placeAttempts; attempt++ {
			pos := vec.New3(s.rng.Intn(wx), s.rng.Intn(wy), 0)
			if _, err := s.server.AddStructure(pos, tmpl); err != nil {
				if errors.Is(err, physics.ErrStructureOverlap) || errors.Is(err, physics.ErrStructureOutOfWindow) {
					continue
				}
				return err
			}
			if _, err := s.client.AddStructure(pos, tmpl); err != nil {
				return fmt.Errorf("client rejected %q placed on server: %w", name, err)
			}
			logging.Debug("Структура %s установлена в %v", name, pos)
			break
		}
	}
	return nil
}

// standingSpot ищет воксель пола со свободным местом над ним
func (s *simulation) standingSpot() (vec.Vec3, bool) {
	wx, wy := s.windowVoxels()
	g := s.server.Grid()
	for attempt := 0; attempt < 256; attempt++ {
		x, y := s.rng.Intn(wx), s.rng.Intn(wy)
		for z := 0; z < world.ChunkSize-2; z++ {
			if g.GetShape(x, y, z) == world.ShapeFloor &&
				g.GetShape(x, y, z+1) == world.ShapeEmpty {
				return vec.New3(x*world.TileSize, y*world.TileSize, z*world.TileSize), true
			}
		}
	}
	return vec.Vec3{}, false
}

func (s *simulation) spawnEntities() error {
	size := vec.New3(world.TileSize, world.TileSize, entityHeight)
	for i := 0; i < s.cfg.Simulation.Entities; i++ {
		pos, ok := s.standingSpot()
		if !ok {
			logging.Warn("⚠️ Не найдено место для сущности %d", i)
			continue
		}
		id := localEntity + uint64(i)
		if _, err := s.server.Track(id, pos, size, 0); err != nil {
			return err
		}
		if id == localEntity {
			f, err := s.client.Track(id, pos, size, 0)
			if err != nil {
				return err
			}
			s.recon.SetLocal(id, f)
		}
		s.entities = append(s.entities, id)
	}
	logging.Info("🐎 Создано сущностей: %d", len(s.entities))
	return nil
}

func (s *simulation) randomTarget() vec.Vec3 {
	speed := s.cfg.Simulation.Speed
	if speed == 0 {
		return vec.Vec3{}
	}
	return vec.New3(s.rng.Intn(2*speed+1)-speed, s.rng.Intn(2*speed+1)-speed, 0)
}

// motionOf переводит серверный прогноз в отрезок для рассылки
func motionOf(f *physics.Forecast, now int64) prediction.Motion {
	if f.EndTime == physics.Forever {
		pos := f.Position(now)
		return prediction.Motion{StartPos: pos, EndPos: pos, StartTime: now, EndTime: now}
	}
	return prediction.Motion{
		StartPos:  f.StartPos,
		EndPos:    f.EndPos,
		StartTime: f.StartTime,
		EndTime:   f.EndTime,
	}
}

func (s *simulation) broadcast(now int64, id uint64) {
	f, ok := s.server.Forecast(id)
	if !ok {
		return
	}
	m := motionOf(f, now)
	if !f.Degenerate() {
		m.AnimID = 1
	}
	s.recon.OnSnapshot(now, prediction.NewSnapshot(id, m))
}

// revisit выгружает дальний чанк и возвращает его из архива,
// как при уходе окна и возврате к прежнему месту.
func (s *simulation) revisit() {
	cc := vec.Vec2{X: s.cfg.Simulation.ChunksX - 1, Y: s.cfg.Simulation.ChunksY - 1}
	if !s.client.UnloadChunk(cc) {
		return
	}
	restored, err := s.client.RestoreChunk(cc)
	if err != nil || !restored {
		logging.Warn("⚠️ Чанк %v не восстановлен из архива: %v", cc, err)
		return
	}
	logging.Debug("Чанк %v выгружен и восстановлен из архива", cc)
}

func (s *simulation) run(ctx context.Context) report {
	step := s.cfg.Simulation.FrameStepMs
	frames := s.cfg.Simulation.Frames
	var now int64

	frame := 0
	for ; frame < frames; frame++ {
		if ctx.Err() != nil {
			logging.Warn("⏹️ Симуляция прервана на кадре %d", frame)
			break
		}
		now = int64(frame) * step

		if frame%retargetEvery == 0 {
			for _, id := range s.entities {
				target := s.randomTarget()
				if id == localEntity {
					if err := s.recon.OnInput(now, target); err != nil {
						logging.Error("Ошибка ввода: %v", err)
					}
					s.inputs = append(s.inputs, pendingInput{at: now + inputLatencyMs, target: target})
					continue
				}
				if err := s.server.SetTarget(now, id, target); err != nil {
					logging.Error("Ошибка сервера: %v", err)
				}
			}
		}

		for len(s.inputs) > 0 && s.inputs[0].at <= now {
			if err := s.server.SetTarget(s.inputs[0].at, localEntity, s.inputs[0].target); err != nil {
				logging.Error("Ошибка сервера: %v", err)
			}
			s.inputs = s.inputs[1:]
		}

		s.server.Step(now)
		for _, id := range s.entities {
			if id == localEntity {
				if frame%snapshotEvery == 0 {
					s.broadcast(now, id)
				}
				continue
			}
			// Удалённым сущностям отрезок уходит один раз, при его смене
			if f, ok := s.server.Forecast(id); ok && s.sent[id] != f.StartTime+1 {
				s.sent[id] = f.StartTime + 1
				s.broadcast(now, id)
			}
		}
		if frame == frames/2 {
			s.revisit()
		}
		s.recon.Frame(now)
	}

	rep := report{
		Frames:      frame,
		SimulatedMs: now,
		Structures:  s.client.Structures(),
		Chunks:      s.cfg.Simulation.ChunksX * s.cfg.Simulation.ChunksY,
		Archived:    s.client.Archive().Len(),
		Prediction:  s.recon.Stats(),
	}
	rep.LocalPos, _ = s.recon.Position(now, localEntity)
	return rep
}
