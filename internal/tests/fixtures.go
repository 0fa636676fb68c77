// Package tests provides fixtures shared by package tests.
package tests

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flambeai/flambe-go/dataset"
	"github.com/flambeai/flambe-go/nn"
	"github.com/flambeai/flambe-go/tensor"
)

// Labeled builds a two-column example of a feature vector and a class id.
func Labeled(t *testing.T, features []float32, label int) dataset.Example {
	t.Helper()
	x, err := tensor.New(features)
	require.NoError(t, err)
	return dataset.Example{x, tensor.Scalar(float32(label))}
}

// Separable returns a small dataset whose test split is classified perfectly
// by SeparatingClassifier: the label is the index of the larger feature.
func Separable(t *testing.T) *dataset.InMemory {
	t.Helper()
	train := []dataset.Example{
		Labeled(t, []float32{3, 1}, 0),
		Labeled(t, []float32{0, 2}, 1),
	}
	val := []dataset.Example{
		Labeled(t, []float32{5, 4}, 0),
	}
	test := []dataset.Example{
		Labeled(t, []float32{2, 1}, 0),
		Labeled(t, []float32{1, 4}, 1),
		Labeled(t, []float32{0, 3}, 1),
		Labeled(t, []float32{6, 2}, 0),
		Labeled(t, []float32{1, 5}, 1),
	}
	return dataset.New(train, val, test)
}

// SeparatingClassifier returns a two-class linear classifier scoring class i
// by feature i.
func SeparatingClassifier(t *testing.T) *nn.Classifier {
	t.Helper()
	w, err := tensor.New([]float32{1, 0, 0, 1}, 2, 2)
	require.NoError(t, err)
	layer, err := nn.NewLinear(w, nil)
	require.NoError(t, err)
	return nn.NewClassifier(layer)
}

// RecordingModel wraps a forward function and records every batch it sees.
type RecordingModel struct {
	*nn.FuncModule

	mu      sync.Mutex
	batches [][]*tensor.Tensor
	modes   []bool
}

// NewRecordingModel returns a model that calls fn after recording its inputs.
func NewRecordingModel(fn nn.ForwardFunc) *RecordingModel {
	m := &RecordingModel{}
	m.FuncModule = nn.Func(func(ctx context.Context, inputs ...*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
		m.mu.Lock()
		m.batches = append(m.batches, inputs)
		m.modes = append(m.modes, m.FuncModule.Training())
		m.mu.Unlock()
		return fn(ctx, inputs...)
	})
	return m
}

// Batches returns the inputs of every Forward call.
func (m *RecordingModel) Batches() [][]*tensor.Tensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*tensor.Tensor(nil), m.batches...)
}

// TrainingModes returns the training flag observed by every Forward call.
func (m *RecordingModel) TrainingModes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.modes...)
}
