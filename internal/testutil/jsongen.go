// Package testutil generates deterministic JSON corpora for tests and
// benchmarks. Every generator is seeded so failures reproduce exactly.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// tricky strings exercise escapes and whitespace inside literals.
var tricky = []string{
	`quote " inside`,
	`back\slash`,
	"tab\tand\nnewline",
	"  leading and trailing spaces  ",
	`escaped \" quote and \\ pair`,
	"unicode: héllo wörld ✓",
	`{ not: [a, structure] }`,
	"",
}

// Gen is a seeded generator.
type Gen struct {
	rng *rand.Rand
}

// New returns a generator seeded with seed.
func New(seed uint64) *Gen {
	return &Gen{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *Gen) word(minLen, maxLen int) string {
	n := minLen + g.rng.IntN(maxLen-minLen+1)
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(letters[g.rng.IntN(len(letters))])
	}
	return b.String()
}

func (g *Gen) scalar() any {
	switch g.rng.IntN(6) {
	case 0:
		return g.word(10, 50)
	case 1:
		return g.rng.Float64()*2000 - 1000
	case 2:
		return g.rng.IntN(2) == 0
	case 3:
		return nil
	case 4:
		return tricky[g.rng.IntN(len(tricky))]
	default:
		return g.rng.IntN(1 << 20)
	}
}

// nested mirrors the dataset generator: objects with a 30% chance of
// arrays and 50% of nested objects per key.
func (g *Gen) nested(depth int) any {
	if depth == 0 {
		return g.word(5, 20)
	}
	obj := make(map[string]any)
	for range 1 + g.rng.IntN(5) {
		key := g.word(5, 15)
		switch r := g.rng.Float64(); {
		case r < 0.3:
			arr := make([]any, 1+g.rng.IntN(5))
			for i := range arr {
				arr[i] = g.nested(depth - 1)
			}
			obj[key] = arr
		case r < 0.65:
			obj[key] = g.nested(depth - 1)
		default:
			obj[key] = g.scalar()
		}
	}
	return obj
}

// Pretty returns an indented document of roughly size bytes.
func (g *Gen) Pretty(size int) []byte {
	doc := map[string]any{
		"metadata": map[string]any{"dataset": "generated", "version": "1.0"},
	}
	var items []any
	var out []byte
	for {
		items = append(items, map[string]any{
			"id":   len(items),
			"type": []string{"user", "product", "order", "event"}[g.rng.IntN(4)],
			"data": g.nested(2 + g.rng.IntN(4)),
		})
		if len(items)%16 != 0 {
			continue
		}
		doc["items"] = items
		out = mustIndent(doc)
		if len(out) >= size {
			return out
		}
	}
}

// FlatObject returns an indented object with n scalar members.
func (g *Gen) FlatObject(n int) []byte {
	obj := make(map[string]any, n)
	for i := range n {
		obj[fmt.Sprintf("key%d", i)] = g.scalar()
	}
	return mustIndent(obj)
}

// NumberArray returns an indented array of n numbers.
func (g *Gen) NumberArray(n int) []byte {
	arr := make([]float64, n)
	for i := range arr {
		arr[i] = g.rng.Float64() * 1e6
	}
	return mustIndent(arr)
}

// StringHeavy returns an array of long strings full of escapes and spaces.
func (g *Gen) StringHeavy(n int) []byte {
	arr := make([]string, n)
	for i := range arr {
		arr[i] = tricky[g.rng.IntN(len(tricky))] + " " + g.word(40, 120)
	}
	return mustIndent(arr)
}

// Deep returns depth nested arrays, each level indented.
func Deep(depth int) []byte {
	var b bytes.Buffer
	for i := range depth {
		b.WriteString(strings.Repeat(" ", i))
		b.WriteString("[\n")
	}
	b.WriteString("1\n")
	for i := depth - 1; i >= 0; i-- {
		b.WriteString(strings.Repeat(" ", i))
		b.WriteString("]\n")
	}
	return b.Bytes()
}

// Corpus returns a named set of documents of varied shape.
func Corpus(seed uint64) map[string][]byte {
	g := New(seed)
	return map[string][]byte{
		"empty":        {},
		"spaces":       []byte(" \t\r\n  "),
		"flat":         []byte(`{"a": 1, "b": 2}`),
		"flat_object":  g.FlatObject(64),
		"numbers":      g.NumberArray(500),
		"strings":      g.StringHeavy(200),
		"deep":         Deep(200),
		"pretty_small": g.Pretty(2 << 10),
		"pretty_large": g.Pretty(256 << 10),
		"escape_tail":  []byte(`["trailing \\", "x \" y" ,  "z"]`),
	}
}

// Compact returns the reference minification of src via encoding/json.
// src must be valid JSON (empty and all-whitespace inputs yield empty).
func Compact(t testing.TB, src []byte) []byte {
	t.Helper()
	if len(bytes.TrimSpace(src)) == 0 {
		return []byte{}
	}
	var b bytes.Buffer
	if err := json.Compact(&b, src); err != nil {
		t.Fatalf("reference compact: %v", err)
	}
	return b.Bytes()
}

func mustIndent(v any) []byte {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return out
}
