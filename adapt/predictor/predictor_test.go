package predictor

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/joshuapare/zmin/adapt/analyzer"
	"github.com/joshuapare/zmin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredict_ConfidenceBounded(t *testing.T) {
	p := New(DefaultConfig())
	for name, src := range testutil.Corpus(1) {
		cat, conf := p.Predict(analyzer.Analyze(src).Features())
		assert.Less(t, int(cat), NumCategories, name)
		assert.GreaterOrEqual(t, conf, 0.0, name)
		assert.LessOrEqual(t, conf, 1.0, name)
	}
}

func TestPredict_DeepInputIsDeepNesting(t *testing.T) {
	p := New(DefaultConfig())
	cat, conf := p.Predict(analyzer.Analyze(testutil.Deep(64)).Features())
	assert.Equal(t, DeepNesting, cat)
	assert.Positive(t, conf)
}

func TestPredict_Deterministic(t *testing.T) {
	p := New(DefaultConfig())
	f := analyzer.Analyze(testutil.New(2).Pretty(4 << 10)).Features()
	c1, p1 := p.Predict(f)
	c2, p2 := p.Predict(f)
	assert.Equal(t, c1, c2)
	assert.Equal(t, p1, p2)
}

func TestUpdate_CorrectIsNoop(t *testing.T) {
	p := New(DefaultConfig())
	before := p.Weights()
	f := analyzer.Analyze([]byte(`{"a": 1}`)).Features()
	p.Update(f, FlatObject, FlatObject)
	assert.Equal(t, before, p.Weights())

	acc, n := p.Accuracy()
	assert.Equal(t, 1.0, acc)
	assert.Equal(t, uint64(1), n)
}

func TestUpdate_MispredictionLowersConfidence(t *testing.T) {
	p := New(DefaultConfig())
	f := analyzer.Analyze(testutil.New(4).Pretty(8 << 10)).Features()
	cat, before := p.Predict(f)
	p.Update(f, cat, (cat+1)%Category(NumCategories))
	_, after := p.Predict(f)
	assert.LessOrEqual(t, after, before)
}

// TestUpdate_WeightsStayFinite drives random updates and checks the bounds.
func TestUpdate_WeightsStayFinite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.5
	p := New(cfg)
	rng := rand.New(rand.NewPCG(1, 2))
	for range 10000 {
		var f Features
		for i := range f {
			f[i] = rng.Float64() * 3
		}
		p.Update(f, Category(rng.IntN(NumCategories)), Category(rng.IntN(NumCategories)))
	}
	for i, w := range p.Weights() {
		require.False(t, math.IsNaN(w) || math.IsInf(w, 0), "weight %d", i)
		assert.LessOrEqual(t, math.Abs(w), cfg.WeightLimit, "weight %d", i)
	}
	_, conf := p.Predict(Features{1, 1, 1, 1, 1, 1, 1, 1})
	assert.GreaterOrEqual(t, conf, 0.0)
	assert.LessOrEqual(t, conf, 1.0)
}

func TestSetWeights_Sanitizes(t *testing.T) {
	p := New(DefaultConfig())
	var w Features
	w[0] = math.NaN()
	w[1] = 100
	w[2] = -100
	p.SetWeights(w)
	got := p.Weights()
	assert.Equal(t, initialWeights[0], got[0])
	assert.Equal(t, 4.0, got[1])
	assert.Equal(t, -4.0, got[2])
}

func TestLabel(t *testing.T) {
	g := testutil.New(3)
	tests := []struct {
		name string
		src  []byte
		want Category
	}{
		{"deep", testutil.Deep(32), DeepNesting},
		{"numbers", []byte(`[1234, 5678, 9012, 3456, 7890]`), UniformArray},
		{"flat", []byte(`{"a":1,"b":2}`), FlatObject},
		{"strings", g.StringHeavy(50), StringHeavy},
		{"config", []byte(`{"name": "svc", "host": "localhost", "mode": "debug"}`), ConfigLike},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(analyzer.Analyze(tt.src)))
		})
	}
}

func TestCategory_Text(t *testing.T) {
	for c := range NumCategories {
		text, err := Category(c).MarshalText()
		require.NoError(t, err)
		var got Category
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, Category(c), got)
	}
	var c Category
	assert.Error(t, c.UnmarshalText([]byte("blob")))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{LearningRate: 0, WeightLimit: 1}.Validate())
	assert.Error(t, Config{LearningRate: 0.1, WeightLimit: math.Inf(1)}.Validate())
}
