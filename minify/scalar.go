package minify

// scalarKernel is the byte-at-a-time reference kernel. It tracks the full
// ParseState and is therefore resumable. The same implementation backs both
// Scalar and Fallback.
type scalarKernel struct {
	id ID
}

// NewScalar returns the scalar kernel registered as Scalar.
func NewScalar() Resumable { return scalarKernel{id: Scalar} }

// NewFallback returns the scalar kernel registered as Fallback. It has no
// capability requirements and is always available.
func NewFallback() Resumable { return scalarKernel{id: Fallback} }

func (k scalarKernel) ID() ID { return k.id }

func (k scalarKernel) Minify(dst, src []byte) ([]byte, int, error) {
	out, _, err := k.MinifyFrom(dst, src, Checkpoint{})
	return out, len(out), err
}

func (k scalarKernel) MinifyFrom(dst, src []byte, cp Checkpoint) ([]byte, Checkpoint, error) {
	if err := validateCheckpoint(k.id, dst, src, cp); err != nil {
		return dst[:0], cp, err
	}
	return scan(k.id, dst[:cp.OutputLength], src, cp)
}

// scan runs the scalar state machine from cp over src, appending to out.
func scan(id ID, out, src []byte, cp Checkpoint) ([]byte, Checkpoint, error) {
	st := cp.State
	last := cp
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
			case '{':
				st.BraceDepth++
			case '}':
				if st.BraceDepth > 0 {
					st.BraceDepth--
				}
			case '[':
				st.BracketDepth++
			case ']':
				if st.BracketDepth > 0 {
					st.BracketDepth--
				}
			}
		}

		n := len(out)
		if n == limit {
			return out, last, overflow(id, limit)
		}
		out = out[:n+1]
		out[n] = c
	}

	return out, Checkpoint{Position: len(src), OutputLength: len(out), State: st}, nil
}
