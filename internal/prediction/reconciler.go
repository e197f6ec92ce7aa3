package prediction

import (
	"errors"
	"sync"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/logging"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/physics"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
)

// ErrNoLocalEntity: локальная сущность не назначена
var ErrNoLocalEntity = errors.New("no local entity")

// Predictor строит прогнозы движения; реализуется *physics.World.
type Predictor interface {
	ResetForecast(now int64, f *physics.Forecast, target vec.Vec3)
	UpdateForecast(now int64, f *physics.Forecast)
	Warp(now int64, f *physics.Forecast, pos vec.Vec3)
}

// Config настраивает сверку
type Config struct {
	SnapTolerance int // допустимое расхождение по любой оси, пиксели
	QueueLimit    int // максимум ожидающих отрезков удалённой сущности
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		SnapTolerance: 8,
		QueueLimit:    16,
	}
}

// Stats: статистика предсказаний локальной сущности
type Stats struct {
	Snapshots       uint64
	Corrections     uint64
	AvgError        float64
	MaxError        int
	DroppedSegments uint64
}

type remoteState struct {
	current    Motion
	hasCurrent bool
	queue      []Motion
}

// Reconciler сводит локальное предсказание с авторитетными отрезками сервера.
// Локальная сущность движется сразу по вводу. Снимок сервера заменяет её
// предсказание авторитетным отрезком; скачок к серверной позиции происходит,
// только если расхождение больше SnapTolerance. Удалённые сущности
// проигрывают отрезки сервера по очереди.
type Reconciler struct {
	mu        sync.RWMutex
	predictor Predictor
	cfg       Config

	localID  uint64
	local    *physics.Forecast
	hasLocal bool

	// Авторитетный отрезок, вклеенный вместо локального предсказания.
	// Пока он не кончился, локальный прогноз не продлевается.
	splice   Motion
	splicing bool

	remotes map[uint64]*remoteState
	anims   map[uint64]uint16

	stats   Stats
	metrics *Metrics
	logger  *logging.Logger
}

// NewReconciler создаёт сверку поверх predictor
func NewReconciler(predictor Predictor, cfg Config, metrics *Metrics) *Reconciler {
	def := DefaultConfig()
	if cfg.SnapTolerance < 0 {
		cfg.SnapTolerance = def.SnapTolerance
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = def.QueueLimit
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Reconciler{
		predictor: predictor,
		cfg:       cfg,
		remotes:   make(map[uint64]*remoteState),
		anims:     make(map[uint64]uint16),
		metrics:   metrics,
		logger:    logging.GetPredictionLogger(),
	}
}

// SetLocal назначает сущность, управляемую вводом
func (r *Reconciler) SetLocal(id uint64, f *physics.Forecast) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.localID = id
	r.local = f
	r.hasLocal = true
	r.splicing = false
	delete(r.remotes, id)
}

// OnInput сразу предсказывает движение локальной сущности с новой целевой скоростью
func (r *Reconciler) OnInput(now int64, target vec.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasLocal {
		return ErrNoLocalEntity
	}
	if r.splicing {
		// Ввод прерывает вклеенный отрезок: предсказание идёт от текущей отрисованной точки
		r.splicing = false
		r.predictor.Warp(now, r.local, r.splice.Position(now))
	}
	r.predictor.ResetForecast(now, r.local, target)
	return nil
}

// OnSnapshot принимает авторитетный отрезок
func (r *Reconciler) OnSnapshot(now int64, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := snap.Decode(now)
	r.anims[snap.EntityID] = snap.AnimID
	r.metrics.Snapshots.Inc()

	if r.hasLocal && snap.EntityID == r.localID {
		r.reconcileLocal(now, m)
		return
	}

	rs, ok := r.remotes[snap.EntityID]
	if !ok {
		rs = &remoteState{}
		r.remotes[snap.EntityID] = rs
	}
	rs.queue = append(rs.queue, m)
	if len(rs.queue) > r.cfg.QueueLimit {
		rs.queue = rs.queue[1:]
		r.stats.DroppedSegments++
		r.metrics.DroppedSegments.Inc()
		r.logger.Debug("Entity %d: motion queue full, oldest segment dropped", snap.EntityID)
	}
}

// reconcileLocal заменяет локальное предсказание авторитетным отрезком с момента now.
// Прошлые кадры не переигрываются. В пределах допуска отрезок ведётся от
// отрисованной позиции и сходится к концу серверного, иначе сущность
// переносится на серверную позицию. Локальный прогноз возобновляется после
// конца отрезка.
func (r *Reconciler) reconcileLocal(now int64, auth Motion) {
	want := auth.Position(now)
	got := r.position(now)
	diff := want.Sub(got).MaxAbs()

	r.stats.Snapshots++
	n := float64(r.stats.Snapshots)
	r.stats.AvgError += (float64(diff) - r.stats.AvgError) / n
	r.stats.MaxError = max(r.stats.MaxError, diff)
	r.metrics.PredictionError.Observe(float64(diff))

	from := got
	if diff > r.cfg.SnapTolerance {
		from = want
		r.stats.Corrections++
		r.metrics.Corrections.Inc()
		r.logger.Debug("Local entity %d corrected by %d px: %v -> %v", r.localID, diff, got, want)
	}

	r.splice = Motion{
		StartPos:  from,
		EndPos:    auth.EndPos,
		StartTime: now,
		EndTime:   max(auth.EndTime, now),
		AnimID:    auth.AnimID,
	}
	r.splicing = true
}

// position возвращает отрисовываемую позицию локальной сущности
func (r *Reconciler) position(now int64) vec.Vec3 {
	if r.splicing {
		return r.splice.Position(now)
	}
	return r.local.Position(now)
}

// Frame продвигает состояние к моменту now: продлевает локальный прогноз
// (или возвращается к нему по окончании вклеенного отрезка) и переключает удалённые сущности на начавшиеся отрезки.
func (r *Reconciler) Frame(now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasLocal {
		if r.splicing && now >= r.splice.EndTime {
			r.splicing = false
			r.predictor.Warp(r.splice.EndTime, r.local, r.splice.EndPos)
		}
		if !r.splicing {
			r.predictor.UpdateForecast(now, r.local)
		}
	}
	for _, rs := range r.remotes {
		for len(rs.queue) > 0 && rs.queue[0].StartTime <= now {
			rs.current = rs.queue[0]
			rs.hasCurrent = true
			rs.queue = rs.queue[1:]
		}
	}
}

// Position возвращает позицию сущности для отрисовки
func (r *Reconciler) Position(now int64, id uint64) (vec.Vec3, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.hasLocal && id == r.localID {
		return r.position(now), true
	}
	rs, ok := r.remotes[id]
	switch {
	case !ok:
		return vec.Vec3{}, false
	case rs.hasCurrent:
		return rs.current.Position(now), true
	case len(rs.queue) > 0:
		return rs.queue[0].StartPos, true
	}
	return vec.Vec3{}, false
}

// AnimID возвращает последнюю анимацию сущности
func (r *Reconciler) AnimID(id uint64) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	anim, ok := r.anims[id]
	return anim, ok
}

// Pending возвращает число ожидающих отрезков удалённой сущности
func (r *Reconciler) Pending(id uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rs, ok := r.remotes[id]; ok {
		return len(rs.queue)
	}
	return 0
}

// Forget забывает сущность
func (r *Reconciler) Forget(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.remotes, id)
	delete(r.anims, id)
	if r.hasLocal && id == r.localID {
		r.local = nil
		r.hasLocal = false
		r.splicing = false
	}
}

// Stats возвращает копию статистики
func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
