package minify

import (
	"fmt"

	"github.com/joshuapare/zmin/pkg/types"
)

// DefaultMaxNestingDepth is the structural-context stack capacity of the
// custom parser.
const DefaultMaxNestingDepth = 1024

// parserKernel is the scalar state machine plus a fixed-capacity stack of
// open containers. It rejects mismatched closers and nesting beyond its
// capacity.
type parserKernel struct {
	maxDepth int
}

// NewParser returns the kernel registered as CustomParser. maxDepth <= 0 or
// above DefaultMaxNestingDepth selects DefaultMaxNestingDepth.
func NewParser(maxDepth int) Resumable {
	if maxDepth <= 0 || maxDepth > DefaultMaxNestingDepth {
		maxDepth = DefaultMaxNestingDepth
	}
	return parserKernel{maxDepth: maxDepth}
}

func (parserKernel) ID() ID { return CustomParser }

func (k parserKernel) Minify(dst, src []byte) ([]byte, int, error) {
	out, _, err := k.MinifyFrom(dst, src, Checkpoint{})
	return out, len(out), err
}

func (k parserKernel) MinifyFrom(dst, src []byte, cp Checkpoint) ([]byte, Checkpoint, error) {
	if err := validateCheckpoint(CustomParser, dst, src, cp); err != nil {
		return dst[:0], cp, err
	}

	var stack [DefaultMaxNestingDepth]byte
	depth := 0
	// Containers opened before cp are known only by count, not order.
	baseBraces, baseBrackets := cp.State.BraceDepth, cp.State.BracketDepth
	if int(baseBraces+baseBrackets) > k.maxDepth {
		return dst[:cp.OutputLength], cp, types.ErrNestingTooDeep
	}

	st := cp.State
	last := cp
	out := dst[:cp.OutputLength]
	limit := cap(out)

	for i := cp.Position; i < len(src); i++ {
		if i > cp.Position && i%checkpointStride == 0 {
			last = Checkpoint{Position: i, OutputLength: len(out), State: st}
		}

		c := src[i]
		if st.InString {
			switch {
			case st.EscapePending:
				st.EscapePending = false
			case c == '\\':
				st.EscapePending = true
			case c == '"':
				st.InString = false
			}
		} else {
			switch c {
			case ' ', '\t', '\n', '\r':
				continue
			case '"':
				st.InString = true
			case '{', '[':
				if depth+int(baseBraces+baseBrackets) >= k.maxDepth {
					return out, last, fmt.Errorf("%s: depth %d at offset %d: %w",
						CustomParser, k.maxDepth, i, types.ErrNestingTooDeep)
				}
				stack[depth] = c
				depth++
				if c == '{' {
					st.BraceDepth++
				} else {
					st.BracketDepth++
				}
			case '}', ']':
				open := byte('{')
				if c == ']' {
					open = '['
				}
				switch {
				case depth > 0:
					if stack[depth-1] != open {
						return out, last, fmt.Errorf("%s: mismatched %q at offset %d: %w",
							CustomParser, c, i, types.ErrInvalidInput)
					}
					depth--
				case c == '}' && baseBraces > 0:
					baseBraces--
				case c == ']' && baseBrackets > 0:
					baseBrackets--
				default:
					return out, last, fmt.Errorf("%s: unbalanced %q at offset %d: %w",
						CustomParser, c, i, types.ErrInvalidInput)
				}
				if c == '}' {
					st.BraceDepth--
				} else {
					st.BracketDepth--
				}
			}
		}

		n := len(out)
		if n == limit {
			return out, last, overflow(CustomParser, limit)
		}
		out = out[:n+1]
		out[n] = c
	}

	return out, Checkpoint{Position: len(src), OutputLength: len(out), State: st}, nil
}
