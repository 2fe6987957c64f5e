package minify

import (
	"fmt"

	"github.com/joshuapare/zmin/pkg/types"
)

// Device is an offload target for the accelerator strategy. GPU or FPGA
// backends live outside this module; they only need to honor the same
// minification contract.
type Device interface {
	// Name identifies the device in logs.
	Name() string

	// Ready reports whether the device can accept work right now.
	Ready() bool

	// Minify writes the minified form of src into dst[:0].
	Minify(dst, src []byte) ([]byte, error)
}

type acceleratorKernel struct {
	dev Device
}

// NewAccelerator returns the strategy registered as Accelerator.
func NewAccelerator(dev Device) Strategy { return acceleratorKernel{dev: dev} }

func (acceleratorKernel) ID() ID { return Accelerator }

func (k acceleratorKernel) Minify(dst, src []byte) ([]byte, int, error) {
	if k.dev == nil || !k.dev.Ready() {
		return dst[:0], 0, fmt.Errorf("%s: no ready device: %w", Accelerator, types.ErrUnsupportedStrategy)
	}
	out, err := k.dev.Minify(dst, src)
	if err != nil {
		return dst[:0], 0, fmt.Errorf("%s: %s: %w", Accelerator, k.dev.Name(), err)
	}
	if len(out) > cap(dst) || len(out) > len(src) {
		return dst[:0], 0, overflow(Accelerator, cap(dst))
	}
	return out, len(out), nil
}

// EmulatedDevice runs the table kernel on the host. It stands in for real
// hardware in tests and on machines without an offload device.
type EmulatedDevice struct {
	// Offline makes Ready report false.
	Offline bool
}

func (d *EmulatedDevice) Name() string { return "host-emulated" }

func (d *EmulatedDevice) Ready() bool { return d != nil && !d.Offline }

func (d *EmulatedDevice) Minify(dst, src []byte) ([]byte, error) {
	out, _, err := tableKernel{}.Minify(dst, src)
	return out, err
}
