// Package tensor provides the minimal dense tensor used by flambe-go.
//
// Tensors hold float32 values in row-major order together with a device
// placement tag. Computation always happens on the host; the device tag
// records where a tensor is meant to live so that modules can enforce the
// same placement rules an accelerator runtime would.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

var (
	// ErrShapeMismatch indicates incompatible tensor shapes for an operation.
	ErrShapeMismatch = errors.New("tensor: shape mismatch")

	// ErrInvalidShape indicates an invalid tensor shape or dimension.
	ErrInvalidShape = errors.New("tensor: invalid shape")

	// ErrDeviceMismatch indicates tensors placed on different devices.
	ErrDeviceMismatch = errors.New("tensor: device mismatch")

	// ErrEmpty indicates an operation over an empty list of tensors.
	ErrEmpty = errors.New("tensor: empty tensor list")

	// ErrNotScalar indicates that a single element was required.
	ErrNotScalar = errors.New("tensor: not a single-element tensor")
)

// Tensor is a dense multi-dimensional array of float32 values.
//
// Tensor values are immutable once constructed: every operation returns a
// new tensor, so tensors may be shared between goroutines.
type Tensor struct {
	data   []float32
	shape  []int
	device Device
}

// New creates a CPU tensor from data with the given shape. When no shape is
// given the tensor is one-dimensional. data is copied.
func New(data []float32, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	size, err := numel(shape)
	if err != nil {
		return nil, err
	}
	if size != len(data) {
		return nil, fmt.Errorf("%w: %d values do not fill shape %v", ErrShapeMismatch, len(data), shape)
	}
	return newTensor(append([]float32(nil), data...), shape, CPU), nil
}

// Scalar creates a zero-dimensional CPU tensor holding v.
func Scalar(v float32) *Tensor {
	return newTensor([]float32{v}, []int{}, CPU)
}

// Zeros creates a CPU tensor of the given shape filled with zeros.
func Zeros(shape ...int) (*Tensor, error) {
	size, err := numel(shape)
	if err != nil {
		return nil, err
	}
	return newTensor(make([]float32, size), shape, CPU), nil
}

// FromInts creates a tensor from integer values, such as class labels or token ids.
func FromInts[T constraints.Integer](values []T, shape ...int) (*Tensor, error) {
	data := make([]float32, len(values))
	for i, v := range values {
		data[i] = float32(v)
	}
	return New(data, shape...)
}

// FromFloats creates a tensor from floating point values of any width.
func FromFloats[T constraints.Float](values []T, shape ...int) (*Tensor, error) {
	data := make([]float32, len(values))
	for i, v := range values {
		data[i] = float32(v)
	}
	return New(data, shape...)
}

// newTensor takes ownership of data; shape is copied.
func newTensor(data []float32, shape []int, device Device) *Tensor {
	return &Tensor{
		data:   data,
		shape:  append([]int{}, shape...),
		device: device,
	}
}

func numel(shape []int) (int, error) {
	size := 1
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("%w: shape[%d] must be non-negative, got %d", ErrInvalidShape, i, dim)
		}
		size *= dim
	}
	return size, nil
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return append([]int{}, t.shape...)
}

// Dims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) Dims() int {
	return len(t.shape)
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Len returns the size of the leading dimension, or 0 for a scalar.
func (t *Tensor) Len() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[0]
}

// Device returns the tensor's placement.
func (t *Tensor) Device() Device {
	return t.device
}

// Data returns a copy of the tensor's values in row-major order.
func (t *Tensor) Data() []float32 {
	return append([]float32(nil), t.data...)
}

// At returns the element at the given indices.
// Panics if indices are invalid - this is a programmer error.
func (t *Tensor) At(indices ...int) float32 {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("tensor: expected %d indices, got %d", len(t.shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index[%d]=%d out of bounds [0,%d)", i, indices[i], t.shape[i]))
		}
		idx += indices[i] * stride
		stride *= t.shape[i]
	}
	return t.data[idx]
}

// To returns the tensor placed on device. If the tensor already lives there
// it is returned as is, otherwise the values are copied.
func (t *Tensor) To(device Device) *Tensor {
	if t.device == device {
		return t
	}
	return newTensor(t.Data(), t.shape, device)
}

// CPU is shorthand for To(CPU).
func (t *Tensor) CPU() *Tensor {
	return t.To(CPU)
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() (float64, error) {
	if len(t.data) != 1 {
		return 0, fmt.Errorf("%w: shape %v has %d elements", ErrNotScalar, t.shape, len(t.data))
	}
	return float64(t.data[0]), nil
}

// Reshape returns a tensor with the same values and a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	size, err := numel(shape)
	if err != nil {
		return nil, err
	}
	if size != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.shape, shape)
	}
	return newTensor(t.Data(), shape, t.device), nil
}

// Argmax returns the index of the largest value along the last dimension.
// The result drops that dimension. Ties resolve to the first index.
func (t *Tensor) Argmax() (*Tensor, error) {
	if len(t.shape) == 0 {
		return nil, fmt.Errorf("%w: argmax of a scalar", ErrInvalidShape)
	}
	last := t.shape[len(t.shape)-1]
	if last == 0 {
		return nil, fmt.Errorf("%w: argmax over an empty dimension", ErrInvalidShape)
	}
	rows := len(t.data) / last
	out := make([]float32, rows)
	for r := 0; r < rows; r++ {
		row := t.data[r*last : (r+1)*last]
		best := 0
		bestValue := float32(math.Inf(-1))
		for i, v := range row {
			if v > bestValue {
				best, bestValue = i, v
			}
		}
		out[r] = float32(best)
	}
	return newTensor(out, t.shape[:len(t.shape)-1], t.device), nil
}

// String returns a short description of the tensor for debugging.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, device=%s)", t.shape, t.device)
}
