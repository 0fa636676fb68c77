// Package nn defines the model interface an evaluation drives, plus a small
// linear classifier that can be loaded from disk.
package nn

import (
	"context"
	"errors"
	"fmt"

	"github.com/flambeai/flambe-go/tensor"
)

// ErrDeviceUnavailable is returned when a module is moved to a device that is not present.
var ErrDeviceUnavailable = errors.New("nn: device not available")

// Module is a model that maps a batch to a prediction and its target.
//
// Forward receives the columns of a collated batch and returns the
// prediction together with the target it should be scored against.
type Module interface {
	Forward(ctx context.Context, inputs ...*tensor.Tensor) (pred, target *tensor.Tensor, err error)
	// To moves the module's parameters to device.
	To(device tensor.Device) error
	// Eval switches the module to inference mode.
	Eval()
	// Train switches the module to training mode.
	Train()
	// Training reports whether the module is in training mode.
	Training() bool
}

// ForwardFunc is the signature of a plain forward pass.
type ForwardFunc func(ctx context.Context, inputs ...*tensor.Tensor) (pred, target *tensor.Tensor, err error)

// Func adapts a ForwardFunc into a Module. It tracks placement and mode
// and rejects inputs that are not on the module's device.
//
// Use this when a model has no parameters of its own to move.
func Func(fn ForwardFunc) *FuncModule {
	return &FuncModule{fn: fn, device: tensor.CPU, training: true}
}

// FuncModule is the Module returned by Func.
type FuncModule struct {
	fn       ForwardFunc
	device   tensor.Device
	training bool
}

var _ Module = (*FuncModule)(nil)

func (m *FuncModule) Forward(ctx context.Context, inputs ...*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if err := checkDevice(m.device, inputs); err != nil {
		return nil, nil, err
	}
	return m.fn(ctx, inputs...)
}

func (m *FuncModule) To(device tensor.Device) error {
	if !tensor.Available(device) {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}
	m.device = device
	return nil
}

// Device returns the module's placement.
func (m *FuncModule) Device() tensor.Device { return m.device }

func (m *FuncModule) Eval()          { m.training = false }
func (m *FuncModule) Train()         { m.training = true }
func (m *FuncModule) Training() bool { return m.training }

func checkDevice(device tensor.Device, inputs []*tensor.Tensor) error {
	for i, in := range inputs {
		if in.Device() != device {
			return fmt.Errorf("%w: input %d is on %s, module is on %s", tensor.ErrDeviceMismatch, i, in.Device(), device)
		}
	}
	return nil
}
