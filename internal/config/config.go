package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/logging"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/physics"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/world"
)

// ErrInvalidConfig: значение конфигурации вне допустимого диапазона
var ErrInvalidConfig = errors.New("invalid config")

// Config корневая структура конфигурации симулятора.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Prediction PredictionConfig `yaml:"prediction"`
	Simulation SimulationConfig `yaml:"simulation"`
	Tiles      []TileConfig     `yaml:"tiles"`
	Structures []TemplateConfig `yaml:"structures"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"` // пусто: только консоль
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type PredictionConfig struct {
	SnapTolerance int `yaml:"snap_tolerance"`
	QueueLimit    int `yaml:"queue_limit"`
}

type SimulationConfig struct {
	Seed         int64 `yaml:"seed"`
	Entities     int   `yaml:"entities"`
	Frames       int   `yaml:"frames"`
	FrameStepMs  int64 `yaml:"frame_step_ms"`
	ChunksX      int   `yaml:"chunks_x"`
	ChunksY      int   `yaml:"chunks_y"`
	ArchiveLimit int   `yaml:"archive_limit"`
	Speed        int   `yaml:"speed"` // максимальная скорость сущностей, px/s
}

// TileConfig: запись таблицы тайлов
type TileConfig struct {
	ID    uint16      `yaml:"id"`
	Name  string      `yaml:"name"`
	Shape world.Shape `yaml:"shape"`
}

// TemplateConfig: шаблон структуры. Если Shapes пуст, объём заполняется Fill.
type TemplateConfig struct {
	Name      string        `yaml:"name"`
	Size      [3]int        `yaml:"size"`
	Layer     string        `yaml:"layer"`
	Occupancy []string      `yaml:"occupancy"`
	Shapes    []world.Shape `yaml:"shapes"`
	Fill      world.Shape   `yaml:"fill"`
}

// GetAddr возвращает адрес метрик с приоритетом: config -> env -> default
func (m *MetricsConfig) GetAddr() string {
	if m.Addr != "" {
		return m.Addr
	}
	if env := os.Getenv("PHYSSIM_METRICS_ADDR"); env != "" {
		return env
	}
	return ":2112"
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Prediction: PredictionConfig{
			SnapTolerance: 8,
			QueueLimit:    16,
		},
		Simulation: SimulationConfig{
			Seed:         1,
			Entities:     16,
			Frames:       600,
			FrameStepMs:  16,
			ChunksX:      3,
			ChunksY:      3,
			ArchiveLimit: physics.DefaultArchiveLimit,
			Speed:        96,
		},
		Structures: []TemplateConfig{
			{Name: "fence", Size: [3]int{1, 4, 1}, Layer: "object", Fill: world.ShapeSolid},
			{Name: "pad", Size: [3]int{3, 3, 1}, Layer: "floor", Fill: world.ShapeFloor},
		},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", берётся из ENV PHYSSIM_CONFIG; без файла возвращается Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("PHYSSIM_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет диапазоны значений
func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case s.FrameStepMs <= 0:
		return fmt.Errorf("%w: frame_step_ms must be positive", ErrInvalidConfig)
	case s.ChunksX <= 0 || s.ChunksY <= 0:
		return fmt.Errorf("%w: chunk window must be positive", ErrInvalidConfig)
	case s.ChunksX > world.LocalSize || s.ChunksY > world.LocalSize:
		return fmt.Errorf("%w: chunk window exceeds %d", ErrInvalidConfig, world.LocalSize)
	case s.Entities < 0 || s.Frames < 0 || s.Speed < 0:
		return fmt.Errorf("%w: negative simulation value", ErrInvalidConfig)
	case c.Prediction.SnapTolerance < 0:
		return fmt.Errorf("%w: snap_tolerance must not be negative", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// TileTable строит таблицу тайлов; без записей: таблица по умолчанию
func (c *Config) TileTable() *world.TileTable {
	if len(c.Tiles) == 0 {
		return world.DefaultTileTable()
	}
	t := world.NewTileTable()
	for _, tc := range c.Tiles {
		t.Define(tc.ID, tc.Name, tc.Shape)
	}
	return t
}

// Templates строит шаблоны структур по имени
func (c *Config) Templates() (map[string]*physics.StructureTemplate, error) {
	out := make(map[string]*physics.StructureTemplate, len(c.Structures))
	for _, tc := range c.Structures {
		tmpl, err := tc.Build()
		if err != nil {
			return nil, err
		}
		out[tc.Name] = tmpl
	}
	return out, nil
}

// Build переводит запись конфигурации в шаблон и проверяет его
func (tc *TemplateConfig) Build() (*physics.StructureTemplate, error) {
	layer, err := ParseLayer(tc.Layer)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", tc.Name, err)
	}
	var occupancy world.LayerMask
	for _, name := range tc.Occupancy {
		l, err := ParseLayer(name)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", tc.Name, err)
		}
		occupancy |= world.MaskOf(l)
	}

	size := vec.New3(tc.Size[0], tc.Size[1], tc.Size[2])
	shapes := tc.Shapes
	if len(shapes) == 0 && size.X > 0 && size.Y > 0 && size.Z > 0 {
		shapes = make([]world.Shape, size.X*size.Y*size.Z)
		for i := range shapes {
			shapes[i] = tc.Fill
		}
	}

	tmpl := &physics.StructureTemplate{
		Name:      tc.Name,
		Size:      size,
		Shapes:    shapes,
		Layer:     layer,
		Occupancy: occupancy,
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// ParseLayer разбирает имя слоя ("terrain", "floor", "object", "roof") или его номер
func ParseLayer(name string) (world.ShapeLayer, error) {
	for l := world.LayerTerrain; l < world.MaxLayers; l++ {
		if l.String() == name {
			return l, nil
		}
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 && n < int(world.MaxLayers) {
		return world.ShapeLayer(n), nil
	}
	return 0, fmt.Errorf("%w: unknown layer %q", ErrInvalidConfig, name)
}
