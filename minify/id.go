package minify

import (
	"fmt"
	"strings"
)

// ID identifies an execution strategy. Declaration order is significant:
// the router breaks score ties by candidate order and Available reports
// strategies in this order.
type ID uint8

const (
	Scalar ID = iota
	VectorStreaming
	VectorStructural
	HandTuned
	CustomParser
	Accelerator
	Hybrid
	Fallback

	// NumIDs is the number of strategy identifiers.
	NumIDs = int(Fallback) + 1
)

var idNames = [NumIDs]string{
	Scalar:           "scalar",
	VectorStreaming:  "vector_streaming",
	VectorStructural: "vector_structural",
	HandTuned:        "hand_tuned",
	CustomParser:     "custom_parser",
	Accelerator:      "accelerator",
	Hybrid:           "hybrid",
	Fallback:         "fallback",
}

func (id ID) String() string {
	if int(id) < NumIDs {
		return idNames[id]
	}
	return fmt.Sprintf("strategy(%d)", uint8(id))
}

// Valid reports whether id names a declared strategy.
func (id ID) Valid() bool { return int(id) < NumIDs }

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("minify: invalid strategy id %d", uint8(id))
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID resolves a strategy name (case-insensitive, '-' or '_' separated).
func ParseID(name string) (ID, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for i, n := range idNames {
		if n == norm {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("minify: unknown strategy %q", name)
}

// IDs returns every strategy identifier in declaration order.
func IDs() []ID {
	ids := make([]ID, NumIDs)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}
