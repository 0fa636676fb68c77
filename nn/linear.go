package nn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/flambeai/flambe-go/blobs"
	"github.com/flambeai/flambe-go/tensor"
)

// Linear applies y = x Wᵀ + b with W of shape [out, in] and b of shape [out].
type Linear struct {
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

// NewLinear validates the parameter shapes. bias may be nil.
func NewLinear(weight, bias *tensor.Tensor) (*Linear, error) {
	if weight.Dims() != 2 {
		return nil, fmt.Errorf("%w: weight must be [out, in], got %v", tensor.ErrInvalidShape, weight.Shape())
	}
	if bias != nil && (bias.Dims() != 1 || bias.Len() != weight.Len()) {
		return nil, fmt.Errorf("%w: bias %v does not match weight %v", tensor.ErrShapeMismatch, bias.Shape(), weight.Shape())
	}
	if bias != nil && bias.Device() != weight.Device() {
		return nil, fmt.Errorf("%w: bias on %s, weight on %s", tensor.ErrDeviceMismatch, bias.Device(), weight.Device())
	}
	return &Linear{Weight: weight, Bias: bias}, nil
}

// Apply computes the layer output for x of shape [..., in].
func (l *Linear) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Device() != l.Weight.Device() {
		return nil, fmt.Errorf("%w: input on %s, weight on %s", tensor.ErrDeviceMismatch, x.Device(), l.Weight.Device())
	}
	wShape := l.Weight.Shape()
	out, in := wShape[0], wShape[1]

	xShape := x.Shape()
	if len(xShape) == 0 || xShape[len(xShape)-1] != in {
		return nil, fmt.Errorf("%w: input %v does not end in %d features", tensor.ErrShapeMismatch, xShape, in)
	}

	xs := x.Data()
	ws := l.Weight.Data()
	var bs []float32
	if l.Bias != nil {
		bs = l.Bias.Data()
	}

	rows := len(xs) / in
	ys := make([]float32, rows*out)
	for r := 0; r < rows; r++ {
		row := xs[r*in : (r+1)*in]
		for o := 0; o < out; o++ {
			var sum float32
			if bs != nil {
				sum = bs[o]
			}
			for i, w := range ws[o*in : (o+1)*in] {
				sum += w * row[i]
			}
			ys[r*out+o] = sum
		}
	}

	outShape := append(xShape[:len(xShape)-1:len(xShape)-1], out)
	y, err := tensor.New(ys, outShape...)
	if err != nil {
		return nil, err
	}
	return y.To(x.Device()), nil
}

// To moves the layer parameters to device.
func (l *Linear) To(device tensor.Device) {
	l.Weight = l.Weight.To(device)
	if l.Bias != nil {
		l.Bias = l.Bias.To(device)
	}
}

// Classifier scores batches of (features, target) with a Linear layer.
type Classifier struct {
	Layer    *Linear
	training bool
}

var _ Module = (*Classifier)(nil)

// NewClassifier wraps layer. The classifier starts in training mode.
func NewClassifier(layer *Linear) *Classifier {
	return &Classifier{Layer: layer, training: true}
}

// Forward expects exactly two inputs: features [N, in] and targets [N].
func (c *Classifier) Forward(ctx context.Context, inputs ...*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(inputs) != 2 {
		return nil, nil, fmt.Errorf("classifier expects (features, target), got %d inputs", len(inputs))
	}
	if err := checkDevice(c.Layer.Weight.Device(), inputs); err != nil {
		return nil, nil, err
	}
	pred, err := c.Layer.Apply(inputs[0])
	if err != nil {
		return nil, nil, err
	}
	return pred, inputs[1], nil
}

func (c *Classifier) To(device tensor.Device) error {
	if !tensor.Available(device) {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}
	c.Layer.To(device)
	return nil
}

func (c *Classifier) Eval()          { c.training = false }
func (c *Classifier) Train()         { c.training = true }
func (c *Classifier) Training() bool { return c.training }

// linearFile is the JSON weights layout: weight is [out][in], bias is [out].
type linearFile struct {
	Weight [][]float32 `json:"weight"`
	Bias   []float32   `json:"bias,omitempty"`
}

// LoadLinear reads JSON weights from a local path, a file:// URL, a gs:// URL
// or an http(s):// URL.
func LoadLinear(ctx context.Context, uri string) (*Linear, error) {
	r, err := blobs.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("opening weights: %w", err)
	}
	defer r.Close()

	l, err := DecodeLinear(r)
	if err != nil {
		return nil, fmt.Errorf("decoding weights %q: %w", uri, err)
	}
	return l, nil
}

// DecodeLinear parses JSON weights from r.
func DecodeLinear(r io.Reader) (*Linear, error) {
	var f linearFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, err
	}
	if len(f.Weight) == 0 || len(f.Weight[0]) == 0 {
		return nil, fmt.Errorf("%w: empty weight matrix", tensor.ErrInvalidShape)
	}
	in := len(f.Weight[0])
	data := make([]float32, 0, len(f.Weight)*in)
	for i, row := range f.Weight {
		if len(row) != in {
			return nil, fmt.Errorf("%w: weight row %d has %d values, expected %d", tensor.ErrShapeMismatch, i, len(row), in)
		}
		data = append(data, row...)
	}
	weight, err := tensor.New(data, len(f.Weight), in)
	if err != nil {
		return nil, err
	}
	var bias *tensor.Tensor
	if f.Bias != nil {
		if bias, err = tensor.New(f.Bias); err != nil {
			return nil, err
		}
	}
	return NewLinear(weight, bias)
}
