package minify

// DefaultHybridCutover is the input size at which the hybrid strategy
// switches from its small kernel to its large kernel.
const DefaultHybridCutover = 64 << 10

// hybridKernel delegates by input size: inputs below cutover go to small,
// the rest to large.
type hybridKernel struct {
	small   Strategy
	large   Strategy
	cutover int
}

// NewHybrid returns the strategy registered as Hybrid.
func NewHybrid(small, large Strategy, cutover int) Strategy {
	if cutover <= 0 {
		cutover = DefaultHybridCutover
	}
	return hybridKernel{small: small, large: large, cutover: cutover}
}

func (hybridKernel) ID() ID { return Hybrid }

func (k hybridKernel) Minify(dst, src []byte) ([]byte, int, error) {
	if len(src) < k.cutover {
		return k.small.Minify(dst, src)
	}
	return k.large.Minify(dst, src)
}
