package minify

// Byte classes for the table kernel.
const (
	classPlain uint8 = iota
	classSpace
	classQuote
	classEscape
)

var (
	outsideClass [256]uint8
	insideClass  [256]uint8
)

func init() {
	for _, c := range []byte{' ', '\t', '\n', '\r'} {
		outsideClass[c] = classSpace
	}
	outsideClass['"'] = classQuote
	insideClass['"'] = classQuote
	insideClass['\\'] = classEscape
}

// tableKernel classifies bytes through two 256-entry tables (outside and
// inside strings) and copies runs of plain bytes in one step.
type tableKernel struct{}

// NewHandTuned returns the table-driven kernel registered as HandTuned.
func NewHandTuned() Strategy { return tableKernel{} }

func (tableKernel) ID() ID { return HandTuned }

func (tableKernel) Minify(dst, src []byte) ([]byte, int, error) {
	out := dst[:0]
	limit := cap(dst)
	n := len(src)
	inString := false

	i := 0
	for i < n {
		table := &outsideClass
		if inString {
			table = &insideClass
		}
		j := i
		for j < n && table[src[j]] == classPlain {
			j++
		}
		if j > i {
			if len(out)+(j-i) > limit {
				return out, len(out), overflow(HandTuned, limit)
			}
			out = append(out, src[i:j]...)
			i = j
			if i == n {
				break
			}
		}

		width := 1
		switch table[src[i]] {
		case classSpace:
			i++
			continue
		case classQuote:
			inString = !inString
		case classEscape:
			if i+1 < n {
				width = 2
			}
		}
		if len(out)+width > limit {
			return out, len(out), overflow(HandTuned, limit)
		}
		out = append(out, src[i:i+width]...)
		i += width
	}
	return out, len(out), nil
}
