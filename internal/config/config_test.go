package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/zmin/adapt"
)

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDecode_Partial(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
mode: turbo
adapt_every: 128
router:
  exploration_rate: 0
tier:
  latency_budget: 20ms
log:
  enabled: true
  level: debug
snapshot:
  path: /tmp/state.zms
`))
	require.NoError(t, err)
	assert.Equal(t, adapt.Turbo, cfg.Mode)
	assert.Equal(t, 128, cfg.AdaptEvery)
	assert.Zero(t, cfg.Router.ExplorationRate)
	assert.Equal(t, 20*time.Millisecond, cfg.Tier.LatencyBudget)
	assert.Equal(t, "/tmp/state.zms", cfg.Snapshot.Path)
	assert.True(t, cfg.Snapshot.SaveOnClose)

	// untouched sections keep their defaults
	def := Default()
	assert.Equal(t, def.Cache, cfg.Cache)
	assert.Equal(t, def.Speculation, cfg.Speculation)

	opts := cfg.LoggerOptions(nil)
	assert.True(t, opts.Enabled)
	assert.Equal(t, slog.LevelDebug, opts.Level)
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("routr:\n  seed: 1\n"))
	assert.Error(t, err)
}

func TestDecode_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"mode":      "mode: warp\n",
		"cache":     "cache:\n  capacity: 2\n",
		"level":     "log:\n  level: loud\n",
		"threshold": "speculation:\n  threshold: 1.5\n",
	} {
		_, err := Decode(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestEncodeDecode(t *testing.T) {
	cfg := Default()
	cfg.Mode = adapt.Eco
	cfg.Log.JSON = true

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))
	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvPath, "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "zmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: eco\n"), 0o644))
	t.Setenv(EnvPath, path)
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, adapt.Eco, cfg.Mode)

	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = FromEnv()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
