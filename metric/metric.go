// Package metric scores concatenated predictions against targets.
package metric

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/flambeai/flambe-go/tensor"
)

var (
	// ErrEmptyInput is returned when there is nothing to score.
	ErrEmptyInput = errors.New("metric: empty input")

	// ErrUndefined is returned when a metric has no value for the input,
	// such as AUC over a single class.
	ErrUndefined = errors.New("metric: undefined for input")
)

// Metric is an interface for scoring predictions.
type Metric interface {
	// Compute returns the metric as a single-element tensor.
	Compute(pred, target *tensor.Tensor) (*tensor.Tensor, error)
	// String returns the metric name, used when the value is logged.
	String() string
}

// ComputeFunc computes a scalar metric value.
type ComputeFunc func(pred, target *tensor.Tensor) (float64, error)

// New creates a metric with the given name and compute function.
func New(name string, fn ComputeFunc) Metric {
	return &metricImpl{name: name, fn: fn}
}

type metricImpl struct {
	name string
	fn   ComputeFunc
}

func (m *metricImpl) Compute(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	v, err := m.fn(pred, target)
	if err != nil {
		return nil, err
	}
	return tensor.Scalar(float32(v)), nil
}

func (m *metricImpl) String() string {
	return m.name
}

var registry = map[string]func() Metric{
	"accuracy":   Accuracy,
	"mse":        MSE,
	"rmse":       RMSE,
	"nll":        NLL,
	"perplexity": Perplexity,
	"auc":        AUC,
}

// ByName returns the built-in metric with the given case-insensitive name.
func ByName(name string) (Metric, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the built-in metrics.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
