package minify

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Capabilities describes what the running machine can execute.
type Capabilities struct {
	Arch   string
	SSE42  bool
	AVX2   bool
	AVX512 bool
	ASIMD  bool

	// Device is the accelerator offload target, nil when absent.
	Device Device
}

// DetectCapabilities probes the CPU feature flags once at startup.
func DetectCapabilities() Capabilities {
	return Capabilities{
		Arch:   runtime.GOARCH,
		SSE42:  cpu.X86.HasSSE42,
		AVX2:   cpu.X86.HasAVX2,
		AVX512: cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW,
		ASIMD:  cpu.ARM64.HasASIMD,
	}
}

// HasVector reports whether any SIMD extension is present.
func (c Capabilities) HasVector() bool {
	return c.SSE42 || c.AVX2 || c.AVX512 || c.ASIMD
}

// VectorWidth returns the widest native vector in bytes, 8 (one machine
// word, SWAR only) when no SIMD extension is present.
func (c Capabilities) VectorWidth() int {
	switch {
	case c.AVX512:
		return 64
	case c.AVX2:
		return 32
	case c.SSE42, c.ASIMD:
		return 16
	default:
		return 8
	}
}

// HasAccelerator reports whether a ready offload device is attached.
func (c Capabilities) HasAccelerator() bool {
	return c.Device != nil && c.Device.Ready()
}
