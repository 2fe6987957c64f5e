package minify

import (
	"encoding/binary"
	"math/bits"
)

const (
	swarLSB = 0x0101010101010101
	swarMSB = 0x8080808080808080

	quoteWord     = swarLSB * '"'
	backslashWord = swarLSB * '\\'
)

// hasZero flags zero bytes of x. The lowest flagged byte is always exact;
// higher flags may be false positives from borrow propagation.
func hasZero(x uint64) uint64 { return (x - swarLSB) & ^x & swarMSB }

// hasLess flags bytes of x below n (n <= 128), lowest flag exact.
func hasLess(x uint64, n uint64) uint64 { return (x - swarLSB*n) & ^x & swarMSB }

// streamingKernel processes eight bytes per step. A word with no byte of
// interest is copied whole; otherwise the bytes before the first interesting
// one are copied and that byte goes through the scalar rules.
type streamingKernel struct{}

// NewStreaming returns the SWAR kernel registered as VectorStreaming.
func NewStreaming() Strategy { return streamingKernel{} }

func (streamingKernel) ID() ID { return VectorStreaming }

func (streamingKernel) Minify(dst, src []byte) ([]byte, int, error) {
	out := dst[:0]
	limit := cap(dst)
	inString, escape := false, false

	i := 0
	for i < len(src) {
		if !escape && i+8 <= len(src) {
			w := binary.LittleEndian.Uint64(src[i:])
			var special uint64
			if inString {
				special = hasZero(w^quoteWord) | hasZero(w^backslashWord)
			} else {
				// Whitespace is 0x09, 0x0A, 0x0D, 0x20: all below 0x21.
				special = hasZero(w^quoteWord) | hasLess(w, 0x21)
			}
			span := 8
			if special != 0 {
				span = bits.TrailingZeros64(special) / 8
			}
			if span > 0 {
				if len(out)+span > limit {
					return out, len(out), overflow(VectorStreaming, limit)
				}
				out = append(out, src[i:i+span]...)
				i += span
				continue
			}
		}

		c := src[i]
		i++
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
		} else if isSpace(c) {
			continue
		} else if c == '"' {
			inString = true
		}
		if len(out) == limit {
			return out, len(out), overflow(VectorStreaming, limit)
		}
		out = append(out, c)
	}
	return out, len(out), nil
}
