package zmin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/zmin/adapt"
	"github.com/joshuapare/zmin/adapt/patterncache"
	"github.com/joshuapare/zmin/adapt/perfmon"
	"github.com/joshuapare/zmin/internal/clock"
	"github.com/joshuapare/zmin/internal/config"
	"github.com/joshuapare/zmin/internal/testutil"
	"github.com/joshuapare/zmin/internal/topology"
	"github.com/joshuapare/zmin/minify"
	"github.com/joshuapare/zmin/pkg/types"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Router.ExplorationRate = 0
	cfg.Snapshot.SaveOnClose = false
	return cfg
}

func newMinifier(t *testing.T, opts ...Option) (*Minifier, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Unix(0, 0), time.Millisecond)
	opts = append([]Option{
		WithConfig(testConfig()),
		withClock(fake),
		WithEngineOptions(adapt.WithTopology(topology.Info{NUMANodes: 1}, nil)),
	}, opts...)
	m, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, fake
}

func TestMinify_Corpus(t *testing.T) {
	m, _ := newMinifier(t)
	for name, doc := range testutil.Corpus(2) {
		out, err := m.Minify(doc)
		require.NoError(t, err, name)
		assert.Equal(t, string(testutil.Compact(t, doc)), string(out), name)
	}
}

func TestMinify_ReportsTiming(t *testing.T) {
	m, _ := newMinifier(t)
	input := []byte(`{"a": 1, "b": 2}`)
	out, err := m.Minify(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))

	st := m.Stats()
	assert.Equal(t, uint64(1), st.Executed)
	var samples uint64
	var elapsed time.Duration
	for subj, s := range st.Perf {
		if subj.Kind == perfmon.KindStrategy {
			samples += s.Samples
			elapsed += s.TotalTime
		}
	}
	assert.Equal(t, uint64(1), samples)
	// the fake clock steps once per Now
	assert.Equal(t, time.Millisecond, elapsed)
}

func TestMinifyString(t *testing.T) {
	m, _ := newMinifier(t)
	out, err := m.MinifyString("[ 1 , \"a b\" ]")
	require.NoError(t, err)
	assert.Equal(t, `[1,"a b"]`, out)
}

func TestMinifyWith(t *testing.T) {
	m, _ := newMinifier(t)
	out, err := m.MinifyWith([]byte(`[ true ]`), minify.CustomParser)
	require.NoError(t, err)
	assert.Equal(t, `[true]`, string(out))
	_, ok := m.Engine().Monitor().Stats(perfmon.Strategy(minify.CustomParser))
	assert.True(t, ok)
}

// brokenHandTuned fails every run so speculation rolls back to the fallback.
type brokenHandTuned struct{}

func (brokenHandTuned) ID() minify.ID { return minify.HandTuned }

func (brokenHandTuned) Minify(dst, _ []byte) ([]byte, int, error) {
	return dst[:0], 0, errors.New("kernel fault")
}

func TestMinifyWith_RollbackCreditsFallback(t *testing.T) {
	reg, err := minify.NewRegistry(minify.Capabilities{AVX2: true}, minify.WithStrategy(brokenHandTuned{}))
	require.NoError(t, err)
	m, _ := newMinifier(t, WithEngineOptions(adapt.WithRegistry(reg)))

	input := []byte(`{ "a" : [ 1, 2 ] }`)
	m.Engine().Cache().Upsert(patterncache.Fingerprint(input),
		patterncache.Entry{Strategy: minify.HandTuned, Confidence: 1})

	out, err := m.MinifyWith(input, minify.HandTuned)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, string(out))

	_, ok := m.Engine().Monitor().Stats(perfmon.Strategy(minify.HandTuned))
	assert.False(t, ok)
	st, ok := m.Engine().Monitor().Stats(perfmon.Strategy(minify.Fallback))
	require.True(t, ok)
	assert.Equal(t, uint64(1), st.Samples)
	assert.Equal(t, int64(len(input)), st.TotalBytes)
}

func TestMinifyWith_ModeRestricted(t *testing.T) {
	m, _ := newMinifier(t, WithMode(adapt.Eco))
	_, err := m.MinifyWith([]byte(`[]`), minify.HandTuned)
	assert.ErrorIs(t, err, types.ErrUnsupportedStrategy)
}

func TestMinify_InvalidInput(t *testing.T) {
	m, _ := newMinifier(t)
	m.SetMode(adapt.Eco)
	_, err := m.MinifyWith([]byte(`{"a": [1}`), minify.CustomParser)
	assert.Equal(t, types.ErrKindInput, types.KindOf(err))
}

func TestMinifyReader(t *testing.T) {
	m, _ := newMinifier(t)
	var buf bytes.Buffer
	n, err := m.MinifyReader(strings.NewReader("{ \"k\" : null }\n"), &buf)
	require.NoError(t, err)
	assert.Equal(t, `{"k":null}`, buf.String())
	assert.Equal(t, int64(buf.Len()), n)
}

func TestMinifyFile(t *testing.T) {
	m, _ := newMinifier(t)
	doc := testutil.New(4).Pretty(16 << 10)
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	var buf bytes.Buffer
	_, err := m.MinifyFile(path, &buf)
	require.NoError(t, err)
	assert.Equal(t, string(testutil.Compact(t, doc)), buf.String())

	_, err = m.MinifyFile(filepath.Join(t.TempDir(), "missing.json"), &buf)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMinifyBatch(t *testing.T) {
	m, _ := newMinifier(t)
	g := testutil.New(8)
	inputs := make([][]byte, 24)
	for i := range inputs {
		inputs[i] = g.FlatObject(i + 1)
	}
	out, err := m.MinifyBatch(context.Background(), inputs, 4)
	require.NoError(t, err)
	require.Len(t, out, len(inputs))
	for i := range inputs {
		assert.Equal(t, string(testutil.Compact(t, inputs[i])), string(out[i]), "input %d", i)
	}
}

func TestMinifyBatch_Canceled(t *testing.T) {
	m, _ := newMinifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.MinifyBatch(ctx, [][]byte{[]byte(`[]`)}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMinify_SkipsOfflineAccelerator(t *testing.T) {
	dev := &minify.EmulatedDevice{}
	reg, err := minify.NewRegistry(minify.Capabilities{Device: dev})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Mode = adapt.Turbo
	m, _ := newMinifier(t, WithConfig(cfg), WithEngineOptions(adapt.WithRegistry(reg)))

	big := testutil.New(1).Pretty(64 << 10)
	d, err := m.Engine().Route(big, []minify.ID{minify.Accelerator})
	require.NoError(t, err)
	require.Equal(t, minify.Accelerator, d.Strategy)

	// the cached decision now names a device that went away
	dev.Offline = true
	out, err := m.Minify(big)
	require.NoError(t, err)
	assert.Equal(t, string(testutil.Compact(t, big)), string(out))
}

func TestSnapshot_WarmStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.zms")
	input := testutil.New(6).Pretty(10 << 10)

	first, _ := newMinifier(t, WithSnapshot(path))
	_, err := first.Minify(input)
	require.NoError(t, err)
	require.NoError(t, first.Close())
	require.FileExists(t, path)

	second, _ := newMinifier(t, WithSnapshot(path))
	d, err := second.Engine().Route(input, nil)
	require.NoError(t, err)
	assert.True(t, d.Cached)
}

func TestSnapshot_CorruptIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.zms")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	m, _ := newMinifier(t, WithSnapshot(path))
	assert.Zero(t, m.Engine().Cache().Len())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Log.Level = "loud"
	_, err := New(WithConfig(cfg))
	assert.Error(t, err)
}
