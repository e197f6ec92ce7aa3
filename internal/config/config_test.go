package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/physics"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/vec"
	"github.com/candyasscoder/everfree-outpost-sub000/internal/world"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "physsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("PHYSSIM_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
prediction:
  snap_tolerance: 3
simulation:
  seed: 77
  chunks_x: 2
tiles:
  - {id: 0, name: air, shape: empty}
  - {id: 9, name: stone, shape: solid}
structures:
  - name: gate
    size: [2, 1, 1]
    layer: object
    occupancy: [floor]
    shapes: [solid, floor]
`)
	t.Setenv("PHYSSIM_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Prediction.SnapTolerance)
	assert.Equal(t, 16, cfg.Prediction.QueueLimit, "незаданное поле остаётся по умолчанию")
	assert.Equal(t, int64(77), cfg.Simulation.Seed)
	assert.Equal(t, 2, cfg.Simulation.ChunksX)
	assert.Equal(t, 3, cfg.Simulation.ChunksY)

	tiles := cfg.TileTable()
	shape, ok := tiles.Shape(9)
	require.True(t, ok)
	assert.Equal(t, world.ShapeSolid, shape)
	_, ok = tiles.Shape(world.TileGrass)
	assert.False(t, ok, "таблица из конфига заменяет таблицу по умолчанию")

	templates, err := cfg.Templates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	gate := templates["gate"]
	require.NotNil(t, gate)
	assert.Equal(t, vec.New3(2, 1, 1), gate.Size)
	assert.Equal(t, world.LayerObject, gate.Layer)
	assert.True(t, gate.Occupancy.Has(world.LayerFloor))
	assert.Equal(t, []world.Shape{world.ShapeSolid, world.ShapeFloor}, gate.Shapes)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "tiles:\n  - {id: 1, shape: lava}\n"))
	assert.Error(t, err, "неизвестная форма")

	_, err = Load(writeConfig(t, "simulation:\n  chunks_x: 9\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultTemplates(t *testing.T) {
	templates, err := Default().Templates()
	require.NoError(t, err)

	fence := templates["fence"]
	require.NotNil(t, fence)
	assert.Len(t, fence.Shapes, 4)
	assert.Equal(t, world.ShapeSolid, fence.Shapes[0])

	pad := templates["pad"]
	require.NotNil(t, pad)
	assert.Equal(t, world.LayerFloor, pad.Layer)
}

func TestTemplateConfig_Invalid(t *testing.T) {
	_, err := (&TemplateConfig{Name: "x", Size: [3]int{1, 1, 1}, Layer: "sky"}).Build()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = (&TemplateConfig{Name: "x", Size: [3]int{1, 1, 1}, Layer: "terrain", Fill: world.ShapeSolid}).Build()
	assert.ErrorIs(t, err, physics.ErrBadTemplate)

	_, err = (&TemplateConfig{Name: "x", Size: [3]int{2, 1, 1}, Layer: "roof", Shapes: []world.Shape{world.ShapeFloor}}).Build()
	assert.ErrorIs(t, err, physics.ErrBadTemplate)
}

func TestParseLayer(t *testing.T) {
	l, err := ParseLayer("roof")
	require.NoError(t, err)
	assert.Equal(t, world.LayerRoof, l)

	l, err = ParseLayer("1")
	require.NoError(t, err)
	assert.Equal(t, world.LayerFloor, l)

	_, err = ParseLayer("4")
	assert.Error(t, err)
}

func TestMetricsConfig_GetAddr(t *testing.T) {
	t.Setenv("PHYSSIM_METRICS_ADDR", "")
	m := MetricsConfig{}
	assert.Equal(t, ":2112", m.GetAddr())

	t.Setenv("PHYSSIM_METRICS_ADDR", "127.0.0.1:9100")
	assert.Equal(t, "127.0.0.1:9100", m.GetAddr())

	m.Addr = ":9999"
	assert.Equal(t, ":9999", m.GetAddr())
}
