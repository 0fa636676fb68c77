package tensor

import (
	"fmt"
	"slices"
)

// Cat concatenates tensors along dim. All tensors must share a device and
// agree on every dimension except dim. Negative dims count from the end.
func Cat(ts []*Tensor, dim int) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, ErrEmpty
	}
	first := ts[0]
	rank := first.Dims()
	if rank == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional tensors cannot be concatenated", ErrInvalidShape)
	}
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		return nil, fmt.Errorf("%w: dim %d out of range for rank %d", ErrInvalidShape, dim, rank)
	}

	total := 0
	for i, t := range ts {
		if t.device != first.device {
			return nil, fmt.Errorf("%w: tensor %d is on %s, expected %s", ErrDeviceMismatch, i, t.device, first.device)
		}
		if t.Dims() != rank {
			return nil, fmt.Errorf("%w: tensor %d has rank %d, expected %d", ErrShapeMismatch, i, t.Dims(), rank)
		}
		for d := 0; d < rank; d++ {
			if d != dim && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("%w: tensor %d has shape %v, expected %v outside dim %d", ErrShapeMismatch, i, t.shape, first.shape, dim)
			}
		}
		total += t.shape[dim]
	}

	outer := 1
	for _, n := range first.shape[:dim] {
		outer *= n
	}
	inner := 1
	for _, n := range first.shape[dim+1:] {
		inner *= n
	}

	shape := first.Shape()
	shape[dim] = total
	data := make([]float32, 0, outer*total*inner)
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			chunk := t.shape[dim] * inner
			data = append(data, t.data[o*chunk:(o+1)*chunk]...)
		}
	}
	return newTensor(data, shape, first.device), nil
}

// Stack joins equally shaped tensors along a new leading dimension.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, ErrEmpty
	}
	first := ts[0]
	data := make([]float32, 0, len(ts)*first.Size())
	for i, t := range ts {
		if t.device != first.device {
			return nil, fmt.Errorf("%w: tensor %d is on %s, expected %s", ErrDeviceMismatch, i, t.device, first.device)
		}
		if !slices.Equal(t.shape, first.shape) {
			return nil, fmt.Errorf("%w: tensor %d has shape %v, expected %v", ErrShapeMismatch, i, t.shape, first.shape)
		}
		data = append(data, t.data...)
	}
	shape := append([]int{len(ts)}, first.shape...)
	return newTensor(data, shape, first.device), nil
}

// Pad right-pads a one-dimensional tensor with value up to length.
func Pad(t *Tensor, length int, value float32) (*Tensor, error) {
	if t.Dims() != 1 {
		return nil, fmt.Errorf("%w: pad expects a 1-D tensor, got shape %v", ErrInvalidShape, t.shape)
	}
	n := t.shape[0]
	if length < n {
		return nil, fmt.Errorf("%w: cannot pad length %d down to %d", ErrShapeMismatch, n, length)
	}
	if length == n {
		return t, nil
	}
	data := make([]float32, length)
	copy(data, t.data)
	for i := n; i < length; i++ {
		data[i] = value
	}
	return newTensor(data, []int{length}, t.device), nil
}
