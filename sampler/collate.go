package sampler

import (
	"fmt"

	"github.com/flambeai/flambe-go/dataset"
	"github.com/flambeai/flambe-go/tensor"
)

// Collate stacks examples column by column. Scalar columns become [B],
// 1-D columns are right-padded with pad to the longest sequence and become
// [B, L], and higher-rank columns must share a shape.
func Collate(examples []dataset.Example, pad float32) (Batch, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	columns := len(examples[0])
	for i, ex := range examples {
		if len(ex) != columns {
			return nil, fmt.Errorf("%w: example %d has %d, expected %d", ErrColumnMismatch, i, len(ex), columns)
		}
	}

	batch := make(Batch, columns)
	for c := 0; c < columns; c++ {
		column := make([]*tensor.Tensor, len(examples))
		for i, ex := range examples {
			column[i] = ex[c]
		}
		t, err := collateColumn(column, pad)
		if err != nil {
			return nil, fmt.Errorf("collating column %d: %w", c, err)
		}
		batch[c] = t
	}
	return batch, nil
}

func collateColumn(column []*tensor.Tensor, pad float32) (*tensor.Tensor, error) {
	if column[0].Dims() != 1 {
		return tensor.Stack(column)
	}

	longest := 0
	for _, t := range column {
		if t.Dims() != 1 {
			return nil, fmt.Errorf("%w: mixed sequence and non-sequence values", tensor.ErrShapeMismatch)
		}
		longest = max(longest, t.Len())
	}

	padded := make([]*tensor.Tensor, len(column))
	for i, t := range column {
		p, err := tensor.Pad(t, longest, pad)
		if err != nil {
			return nil, err
		}
		padded[i] = p
	}
	return tensor.Stack(padded)
}
