package analyzer

import (
	"math"
	"testing"

	"github.com/joshuapare/zmin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_Empty(t *testing.T) {
	assert.Equal(t, Characteristics{}, Analyze(nil))
	assert.Equal(t, Characteristics{}, Analyze([]byte{}))
	assert.Equal(t, [NumFeatures]float64{}, Analyze(nil).Features())
}

func TestAnalyze_FlatObject(t *testing.T) {
	src := []byte(`{"a": 1, "b": 2}`)
	ch := Analyze(src)

	require.Equal(t, uint64(16), ch.Size)
	assert.Equal(t, uint8(1), ch.MaxNestingDepth)
	assert.InDelta(t, 3.0/16, ch.WhitespaceRatio, 1e-12)
	assert.InDelta(t, 5.0/16, ch.StructuralRatio, 1e-12) // { : , : }
	assert.InDelta(t, 4.0/16, ch.StringRatio, 1e-12)
	assert.InDelta(t, 2.0/16, ch.DigitRatio, 1e-12)
	assert.InDelta(t, 2.0/16, ch.LetterRatio, 1e-12)

	want := 0.25*math.Log(16) + 0.5*1 + 4*(5.0/16) + 2*(3.0/16)
	assert.InDelta(t, want, ch.ComplexityScore, 1e-12)
}

func TestAnalyze_Idempotent(t *testing.T) {
	for name, src := range testutil.Corpus(5) {
		first := Analyze(src)
		for range 3 {
			assert.Equal(t, first, Analyze(src), name)
		}
	}
}

func TestAnalyze_DepthFlooredAndSaturated(t *testing.T) {
	// Stray closers never push depth below zero.
	ch := Analyze([]byte(`]]]}[`))
	assert.Equal(t, uint8(1), ch.MaxNestingDepth)

	ch = Analyze(testutil.Deep(300))
	assert.Equal(t, uint8(255), ch.MaxNestingDepth)
}

func TestAnalyzePrefix(t *testing.T) {
	src := testutil.New(9).Pretty(32 << 10)
	ch := AnalyzePrefix(src, 256)
	assert.Equal(t, uint64(len(src)), ch.Size)
	assert.Equal(t, Analyze(src[:256]).WhitespaceRatio, ch.WhitespaceRatio)
	assert.Equal(t, Analyze(src), AnalyzePrefix(src, 0))
	assert.Equal(t, Analyze(src), AnalyzePrefix(src, len(src)+1))
}

func TestFeatures_Bounded(t *testing.T) {
	for name, src := range testutil.Corpus(8) {
		for i, v := range Analyze(src).Features() {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s[%d]", name, i)
			assert.GreaterOrEqual(t, v, 0.0, "%s[%d]", name, i)
		}
	}
}

func BenchmarkAnalyze(b *testing.B) {
	src := testutil.New(1).Pretty(1 << 20)
	b.SetBytes(int64(len(src)))
	for b.Loop() {
		_ = Analyze(src)
	}
}
