package predictor

import "github.com/joshuapare/zmin/adapt/analyzer"

// Rule thresholds for Label.
const (
	deepDepth        = 16
	nestedDepth      = 4
	letterHeavyRatio = 0.5
	configQuoteRatio = 0.1
	numberHeavyRatio = 0.35
	sparseWhitespace = 0.45
	configMaxSize    = 16 << 10
)

// Label is the deterministic rule set that supplies the observed category
// for Update. It looks at the full-input characteristics after the fact.
func Label(ch analyzer.Characteristics) Category {
	switch {
	case ch.MaxNestingDepth >= deepDepth:
		return DeepNesting
	case ch.DigitRatio >= numberHeavyRatio:
		if ch.StringRatio < 0.01 {
			return UniformArray
		}
		return NumberHeavy
	case ch.LetterRatio >= letterHeavyRatio && ch.StringRatio > 0:
		if ch.Size <= configMaxSize && ch.MaxNestingDepth <= 3 && ch.StringRatio >= configQuoteRatio {
			return ConfigLike
		}
		return StringHeavy
	case ch.WhitespaceRatio >= sparseWhitespace:
		return SparseObject
	case ch.MaxNestingDepth >= nestedDepth:
		return NestedObject
	case ch.MaxNestingDepth <= 1 && ch.StringRatio > 0:
		return FlatObject
	case ch.StringRatio == 0:
		return ArrayHeavy
	default:
		return MixedArray
	}
}
