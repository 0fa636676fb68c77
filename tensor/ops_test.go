package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCat_Dim0(t *testing.T) {
	t.Parallel()

	a := mustNew(t, []float32{1, 2, 3, 4}, 2, 2)
	b := mustNew(t, []float32{5, 6}, 1, 2)

	out, err := Cat([]*Tensor{a, b}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out.Data())
}

func TestCat_InnerDim(t *testing.T) {
	t.Parallel()

	a := mustNew(t, []float32{1, 2, 3, 4}, 2, 2)
	b := mustNew(t, []float32{5, 6}, 2, 1)

	out, err := Cat([]*Tensor{a, b}, -1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Shape())
	assert.Equal(t, []float32{1, 2, 5, 3, 4, 6}, out.Data())
}

func TestCat_OneDimensional(t *testing.T) {
	t.Parallel()

	out, err := Cat([]*Tensor{
		mustNew(t, []float32{1}),
		mustNew(t, []float32{2, 3}),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, out.Data())
}

func TestCat_Errors(t *testing.T) {
	t.Parallel()

	_, err := Cat(nil, 0)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Cat([]*Tensor{Scalar(1), Scalar(2)}, 0)
	assert.ErrorIs(t, err, ErrInvalidShape)

	a := mustNew(t, []float32{1, 2, 3, 4}, 2, 2)
	_, err = Cat([]*Tensor{a}, 2)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = Cat([]*Tensor{a, mustNew(t, []float32{1, 2, 3}, 1, 3)}, 0)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Cat([]*Tensor{a, mustNew(t, []float32{1, 2})}, 0)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Cat([]*Tensor{a, a.To(CUDA)}, 0)
	assert.ErrorIs(t, err, ErrDeviceMismatch)
}

func TestCat_KeepsDevice(t *testing.T) {
	t.Parallel()

	a := mustNew(t, []float32{1}).To(CUDA)
	b := mustNew(t, []float32{2}).To(CUDA)
	out, err := Cat([]*Tensor{a, b}, 0)
	require.NoError(t, err)
	assert.Equal(t, CUDA, out.Device())
}

func TestStack(t *testing.T) {
	t.Parallel()

	out, err := Stack([]*Tensor{
		mustNew(t, []float32{1, 2}),
		mustNew(t, []float32{3, 4}),
		mustNew(t, []float32{5, 6}),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out.Data())

	scalars, err := Stack([]*Tensor{Scalar(1), Scalar(0)})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, scalars.Shape())

	_, err = Stack(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Stack([]*Tensor{mustNew(t, []float32{1}), mustNew(t, []float32{1, 2})})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPad(t *testing.T) {
	t.Parallel()

	x := mustNew(t, []float32{1, 2})
	out, err := Pad(x, 4, -1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, -1, -1}, out.Data())

	same, err := Pad(x, 2, 0)
	require.NoError(t, err)
	assert.Same(t, x, same)

	_, err = Pad(x, 1, 0)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Pad(Scalar(1), 3, 0)
	assert.ErrorIs(t, err, ErrInvalidShape)
}
