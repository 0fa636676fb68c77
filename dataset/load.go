package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/flambeai/flambe-go/blobs"
	"github.com/flambeai/flambe-go/tensor"
)

// file is the on-disk layout: each split is a list of examples, each
// example a list of columns, each column a number or a rectangular array.
type file struct {
	Train []json.RawMessage `json:"train"`
	Val   []json.RawMessage `json:"val"`
	Test  []json.RawMessage `json:"test"`
}

// Load reads a dataset from a local path, a file:// URL, a gs:// URL or an
// http(s):// URL.
func Load(ctx context.Context, uri string) (*InMemory, error) {
	r, err := blobs.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer r.Close()

	ds, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding dataset %q: %w", uri, err)
	}
	return ds, nil
}

// Decode parses a dataset document from r.
func Decode(r io.Reader) (*InMemory, error) {
	var f file
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, err
	}

	train, err := decodeSplit(SplitTrain, f.Train)
	if err != nil {
		return nil, err
	}
	val, err := decodeSplit(SplitVal, f.Val)
	if err != nil {
		return nil, err
	}
	test, err := decodeSplit(SplitTest, f.Test)
	if err != nil {
		return nil, err
	}
	return New(train, val, test), nil
}

func decodeSplit(name string, rows []json.RawMessage) ([]Example, error) {
	examples := make([]Example, 0, len(rows))
	for i, raw := range rows {
		var columns []any
		if err := json.Unmarshal(raw, &columns); err != nil {
			return nil, fmt.Errorf("%s[%d]: example must be a list of columns: %w", name, i, err)
		}
		example := make(Example, len(columns))
		for c, column := range columns {
			t, err := columnTensor(column)
			if err != nil {
				return nil, fmt.Errorf("%s[%d] column %d: %w", name, i, c, err)
			}
			example[c] = t
		}
		examples = append(examples, example)
	}
	return examples, nil
}

func columnTensor(v any) (*tensor.Tensor, error) {
	if n, ok := v.(float64); ok {
		return tensor.Scalar(float32(n)), nil
	}
	shape, err := shapeOf(v)
	if err != nil {
		return nil, err
	}
	var data []float32
	if err := flatten(v, shape, &data); err != nil {
		return nil, err
	}
	return tensor.New(data, shape...)
}

// shapeOf follows the first element at every depth.
func shapeOf(v any) ([]int, error) {
	var shape []int
	for {
		switch x := v.(type) {
		case float64:
			return shape, nil
		case []any:
			shape = append(shape, len(x))
			if len(x) == 0 {
				return shape, nil
			}
			v = x[0]
		default:
			return nil, fmt.Errorf("unsupported value %T", v)
		}
	}
}

func flatten(v any, shape []int, out *[]float32) error {
	if len(shape) == 0 {
		n, ok := v.(float64)
		if !ok {
			return fmt.Errorf("ragged array: expected a number, got %T", v)
		}
		*out = append(*out, float32(n))
		return nil
	}
	items, ok := v.([]any)
	if !ok || len(items) != shape[0] {
		return fmt.Errorf("ragged array: expected %d elements", shape[0])
	}
	for _, item := range items {
		if err := flatten(item, shape[1:], out); err != nil {
			return err
		}
	}
	return nil
}
