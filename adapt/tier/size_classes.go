package tier

import "math"

// SizeClassConfig defines how pool buffer capacities are bucketed.
// Small requests step linearly, larger ones grow geometrically.
type SizeClassConfig struct {
	// Name for this configuration (for benchmarking)
	Name string `yaml:"name"`

	SmallMin       int `yaml:"small_min"`       // smallest class capacity
	SmallMax       int `yaml:"small_max"`       // last linearly spaced class
	SmallIncrement int `yaml:"small_increment"` // linear step

	// MediumMax is the largest class; pool requests above it never fit.
	MediumMax    int     `yaml:"medium_max"`
	GrowthFactor float64 `yaml:"growth_factor"`
}

// Predefined configurations.
var (
	// 256 B-4 KiB step 256 (16 classes) + 4 KiB-4 MiB x1.5 (~18 classes).
	ConfigBalanced = SizeClassConfig{
		Name:           "Balanced",
		SmallMin:       256,
		SmallMax:       4096,
		SmallIncrement: 256,
		MediumMax:      4 << 20,
		GrowthFactor:   1.5,
	}

	// Fewer, wider buckets: less bookkeeping, more slack per buffer.
	ConfigCoarse = SizeClassConfig{
		Name:           "Coarse",
		SmallMin:       1024,
		SmallMax:       4096,
		SmallIncrement: 1024,
		MediumMax:      4 << 20,
		GrowthFactor:   2.0,
	}

	DefaultSizeClasses = ConfigBalanced
)

// sizeClassTable holds the computed class capacities, ascending.
type sizeClassTable struct {
	config     SizeClassConfig
	capacities []int
}

func newSizeClassTable(config SizeClassConfig) *sizeClassTable {
	table := &sizeClassTable{
		config:     config,
		capacities: make([]int, 0, 64),
	}

	// Phase 1: linear
	for size := config.SmallMin; size <= config.SmallMax; size += config.SmallIncrement {
		table.capacities = append(table.capacities, size)
	}
	// SmallMax is always a class, even when the increment does not land on it.
	if n := len(table.capacities); n == 0 || table.capacities[n-1] < config.SmallMax {
		table.capacities = append(table.capacities, config.SmallMax)
	}

	// Phase 2: geometric up to MediumMax
	size := config.SmallMax
	for size < config.MediumMax {
		next := int(math.Ceil(float64(size) * config.GrowthFactor))
		if next <= size {
			next = size + 1
		}
		next = min(next, config.MediumMax)
		table.capacities = append(table.capacities, next)
		size = next
	}
	return table
}

// classOf returns the smallest class whose capacity holds size, or
// len(capacities) when none does.
func (t *sizeClassTable) classOf(size int) int {
	lo, hi := 0, len(t.capacities)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.capacities[mid] >= size {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (t *sizeClassTable) capacity(class int) int { return t.capacities[class] }

func (t *sizeClassTable) numClasses() int { return len(t.capacities) }

func (t *sizeClassTable) String() string { return t.config.Name }
