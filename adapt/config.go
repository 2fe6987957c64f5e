package adapt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joshuapare/zmin/adapt/patterncache"
	"github.com/joshuapare/zmin/adapt/predictor"
	"github.com/joshuapare/zmin/adapt/router"
	"github.com/joshuapare/zmin/adapt/speculative"
	"github.com/joshuapare/zmin/adapt/tier"
	"github.com/joshuapare/zmin/minify"
)

// Mode trades throughput for resource use.
type Mode uint8

const (
	// Eco runs the portable kernels only, without speculation or huge
	// page / NUMA memory.
	Eco Mode = iota
	// Sport uses every host kernel but never offloads.
	Sport
	// Turbo uses everything available, accelerator included.
	Turbo
)

var modeNames = [...]string{"eco", "sport", "turbo"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(s, n) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("adapt: unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if int(m) >= len(modeNames) {
		return nil, fmt.Errorf("adapt: invalid mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Allows reports whether the mode may route to id.
func (m Mode) Allows(id minify.ID) bool {
	switch m {
	case Eco:
		return id == minify.Scalar || id == minify.CustomParser || id == minify.Fallback
	case Sport:
		return id != minify.Accelerator
	default:
		return true
	}
}

// StrategyConfig shapes the strategy registry.
type StrategyConfig struct {
	ForceVector     bool `yaml:"force_vector"`
	MaxNestingDepth int  `yaml:"max_nesting_depth"`
	HybridCutover   int  `yaml:"hybrid_cutover"`
}

// Config composes every component's configuration.
type Config struct {
	Mode Mode `yaml:"mode"`
	// AdaptEvery triggers Adapt after this many executed inputs. Zero
	// disables automatic adaptation.
	AdaptEvery int `yaml:"adapt_every"`
	// SamplePrefix limits analysis to the lead bytes of large inputs. Zero
	// analyzes everything.
	SamplePrefix int `yaml:"sample_prefix"`

	Strategies  StrategyConfig      `yaml:"strategies"`
	Predictor   predictor.Config    `yaml:"predictor"`
	Cache       patterncache.Config `yaml:"cache"`
	Router      router.Config       `yaml:"router"`
	Speculation speculative.Config  `yaml:"speculation"`
	Tier        tier.Config         `yaml:"tier"`
}

// DefaultConfig returns Sport mode with every component's defaults.
func DefaultConfig() Config {
	return Config{
		Mode:         Sport,
		AdaptEvery:   256,
		SamplePrefix: 1 << 20,
		Strategies: StrategyConfig{
			MaxNestingDepth: minify.DefaultMaxNestingDepth,
			HybridCutover:   minify.DefaultHybridCutover,
		},
		Predictor:   predictor.DefaultConfig(),
		Cache:       patterncache.DefaultConfig(),
		Router:      router.DefaultConfig(),
		Speculation: speculative.DefaultConfig(),
		Tier:        tier.DefaultConfig(),
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if int(c.Mode) >= len(modeNames) {
		return fmt.Errorf("adapt: invalid mode %d", uint8(c.Mode))
	}
	if c.AdaptEvery < 0 || c.SamplePrefix < 0 {
		return errors.New("adapt: adapt_every and sample_prefix must be non-negative")
	}
	if c.Strategies.MaxNestingDepth < 0 || c.Strategies.MaxNestingDepth > minify.DefaultMaxNestingDepth {
		return fmt.Errorf("adapt: max_nesting_depth must be in [0, %d]", minify.DefaultMaxNestingDepth)
	}
	if c.Strategies.HybridCutover < 0 {
		return errors.New("adapt: hybrid_cutover must be non-negative")
	}
	return errors.Join(
		c.Predictor.Validate(),
		c.Cache.Validate(),
		c.Router.Validate(),
		c.Speculation.Validate(),
		c.Tier.Validate(),
	)
}
