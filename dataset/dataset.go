// Package dataset holds the train, validation and test splits an evaluation reads from.
package dataset

import (
	"errors"
	"fmt"

	"github.com/flambeai/flambe-go/tensor"
)

// Split names accepted by Split.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// ErrUnknownSplit is returned when a split name is not train, val or test.
var ErrUnknownSplit = errors.New("dataset: unknown split")

// Example is a single row: one tensor per column.
type Example []*tensor.Tensor

// Dataset exposes the three standard splits.
type Dataset interface {
	Train() []Example
	Val() []Example
	Test() []Example
}

// Split returns the split of ds named by name.
func Split(ds Dataset, name string) ([]Example, error) {
	switch name {
	case SplitTrain:
		return ds.Train(), nil
	case SplitVal:
		return ds.Val(), nil
	case SplitTest:
		return ds.Test(), nil
	default:
		return nil, fmt.Errorf("%w: %q (want %s, %s or %s)", ErrUnknownSplit, name, SplitTrain, SplitVal, SplitTest)
	}
}

// InMemory is a Dataset backed by slices.
type InMemory struct {
	train []Example
	val   []Example
	test  []Example
}

var _ Dataset = (*InMemory)(nil)

// New creates an in-memory dataset. Any split may be empty.
func New(train, val, test []Example) *InMemory {
	return &InMemory{train: train, val: val, test: test}
}

func (d *InMemory) Train() []Example { return d.train }
func (d *InMemory) Val() []Example   { return d.val }
func (d *InMemory) Test() []Example  { return d.test }
