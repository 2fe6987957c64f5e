package predictor

import (
	"fmt"
	"strings"
)

// Category is the structural class of an input. Exactly one per input.
type Category uint8

const (
	FlatObject Category = iota
	NestedObject
	ArrayHeavy
	MixedArray
	StringHeavy
	NumberHeavy
	DeepNesting
	SparseObject
	UniformArray
	ConfigLike

	// NumCategories is the number of categories.
	NumCategories = int(ConfigLike) + 1
)

var categoryNames = [NumCategories]string{
	FlatObject:   "flat_object",
	NestedObject: "nested_object",
	ArrayHeavy:   "array_heavy",
	MixedArray:   "mixed_array",
	StringHeavy:  "string_heavy",
	NumberHeavy:  "number_heavy",
	DeepNesting:  "deep_nesting",
	SparseObject: "sparse_object",
	UniformArray: "uniform_array",
	ConfigLike:   "config_like",
}

func (c Category) String() string {
	if int(c) < NumCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if int(c) >= NumCategories {
		return nil, fmt.Errorf("predictor: invalid category %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range categoryNames {
		if n == name {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("predictor: unknown category %q", text)
}
