package minify

import "bytes"

// structuralKernel jumps from one string boundary to the next. Outside a
// string it copies non-whitespace spans; a string literal is located with
// bytes.IndexAny and copied whole.
type structuralKernel struct{}

// NewStructural returns the kernel registered as VectorStructural.
func NewStructural() Strategy { return structuralKernel{} }

func (structuralKernel) ID() ID { return VectorStructural }

func (structuralKernel) Minify(dst, src []byte) ([]byte, int, error) {
	out := dst[:0]
	limit := cap(dst)

	copySpan := func(span []byte) bool {
		if len(out)+len(span) > limit {
			return false
		}
		out = append(out, span...)
		return true
	}

	i := 0
	for i < len(src) {
		// Outside a string: everything up to the next quote.
		q := bytes.IndexByte(src[i:], '"')
		end := len(src)
		if q >= 0 {
			end = i + q
		}
		for j := i; j < end; {
			for j < end && isSpace(src[j]) {
				j++
			}
			k := j
			for k < end && !isSpace(src[k]) {
				k++
			}
			if k > j && !copySpan(src[j:k]) {
				return out, len(out), overflow(VectorStructural, limit)
			}
			j = k
		}
		if q < 0 {
			break
		}

		// Inside a string: find the closing quote, skipping escapes.
		j := end + 1
		for j < len(src) {
			r := bytes.IndexAny(src[j:], "\"\\")
			if r < 0 {
				j = len(src)
				break
			}
			j += r
			if src[j] == '\\' {
				j += 2
				continue
			}
			j++ // include closing quote
			break
		}
		if j > len(src) {
			j = len(src)
		}
		if !copySpan(src[end:j]) {
			return out, len(out), overflow(VectorStructural, limit)
		}
		i = j
	}
	return out, len(out), nil
}
