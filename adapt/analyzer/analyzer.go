// Package analyzer extracts a fixed-size numeric profile from raw JSON bytes.
//
// Analyze is a pure single pass: it counts whitespace, structural characters
// ({ } [ ] : ,), quotes, digits, letters, and nesting transitions. It has no
// side effects and allocates nothing, so repeated calls over the same bytes
// return identical Characteristics.
package analyzer

import "math"

// Complexity weights. Constants, not learned.
const (
	weightLogSize    = 0.25
	weightDepth      = 0.5
	weightStructural = 4.0
	weightWhitespace = 2.0
)

// NumFeatures is the length of the feature vector produced by Features.
const NumFeatures = 8

// Feature indexes into the vector returned by Features.
const (
	FeatureLogSize = iota
	FeatureWhitespace
	FeatureStructural
	FeatureString
	FeatureDigit
	FeatureLetter
	FeatureDepth
	FeatureComplexity
)

// Normalization scales so every feature lands roughly in [0, 1].
const (
	logSizeScale    = 32.0 // ln(2^46) ~ 32
	depthScale      = 64.0
	complexityScale = 16.0
)

// Characteristics is the per-input profile. It is derived once, immutable,
// and passed by value.
type Characteristics struct {
	Size            uint64
	WhitespaceRatio float64
	StructuralRatio float64
	StringRatio     float64
	DigitRatio      float64
	LetterRatio     float64
	MaxNestingDepth uint8
	ComplexityScore float64
}

// byte classes for the counting pass
const (
	clsOther uint8 = iota
	clsSpace
	clsOpen
	clsClose
	clsSeparator
	clsQuote
	clsDigit
	clsLetter
)

var class [256]uint8

func init() {
	for _, c := range []byte{' ', '\t', '\n', '\r'} {
		class[c] = clsSpace
	}
	class['{'], class['['] = clsOpen, clsOpen
	class['}'], class[']'] = clsClose, clsClose
	class[':'], class[','] = clsSeparator, clsSeparator
	class['"'] = clsQuote
	for c := '0'; c <= '9'; c++ {
		class[c] = clsDigit
	}
	for c := 'a'; c <= 'z'; c++ {
		class[c] = clsLetter
		class[c-'a'+'A'] = clsLetter
	}
}

// Analyze profiles b in one pass.
func Analyze(b []byte) Characteristics {
	n := len(b)
	if n == 0 {
		return Characteristics{}
	}

	var ws, structural, quotes, digits, letters int
	depth, maxDepth := 0, 0
	for _, c := range b {
		switch class[c] {
		case clsSpace:
			ws++
		case clsOpen:
			structural++
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case clsClose:
			structural++
			if depth > 0 {
				depth--
			}
		case clsSeparator:
			structural++
		case clsQuote:
			quotes++
		case clsDigit:
			digits++
		case clsLetter:
			letters++
		}
	}

	total := float64(n)
	ch := Characteristics{
		Size:            uint64(n),
		WhitespaceRatio: float64(ws) / total,
		StructuralRatio: float64(structural) / total,
		StringRatio:     float64(quotes) / total,
		DigitRatio:      float64(digits) / total,
		LetterRatio:     float64(letters) / total,
		MaxNestingDepth: uint8(min(maxDepth, math.MaxUint8)),
	}
	ch.ComplexityScore = weightLogSize*math.Log(total) +
		weightDepth*float64(ch.MaxNestingDepth) +
		weightStructural*ch.StructuralRatio +
		weightWhitespace*ch.WhitespaceRatio
	return ch
}

// AnalyzePrefix profiles at most limit lead bytes of b. Size still reports
// len(b) so size-banded decisions see the real input.
func AnalyzePrefix(b []byte, limit int) Characteristics {
	if limit <= 0 || limit >= len(b) {
		return Analyze(b)
	}
	ch := Analyze(b[:limit])
	ch.Size = uint64(len(b))
	return ch
}

// Features returns the normalized feature vector used by the predictor.
func (c Characteristics) Features() [NumFeatures]float64 {
	var f [NumFeatures]float64
	if c.Size > 0 {
		f[FeatureLogSize] = math.Log(float64(c.Size)) / logSizeScale
	}
	f[FeatureWhitespace] = c.WhitespaceRatio
	f[FeatureStructural] = c.StructuralRatio
	f[FeatureString] = c.StringRatio
	f[FeatureDigit] = c.DigitRatio
	f[FeatureLetter] = c.LetterRatio
	f[FeatureDepth] = float64(c.MaxNestingDepth) / depthScale
	f[FeatureComplexity] = c.ComplexityScore / complexityScale
	return f
}
