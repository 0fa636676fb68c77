// Package sampler turns dataset examples into batches of tensors.
package sampler

import (
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/flambeai/flambe-go/dataset"
	"github.com/flambeai/flambe-go/tensor"
)

var (
	// ErrNoExamples is returned when asked to sample from an empty split.
	ErrNoExamples = errors.New("sampler: no examples provided")

	// ErrInvalidBatchSize is returned for batch sizes below one.
	ErrInvalidBatchSize = errors.New("sampler: batch size must be positive")

	// ErrColumnMismatch is returned when examples in a batch have different column counts.
	ErrColumnMismatch = errors.New("sampler: examples have different numbers of columns")
)

// Batch holds one collated tensor per column, with the batch as dimension 0.
type Batch []*tensor.Tensor

// Iterator yields batches. Implementations must return io.EOF when iteration is complete.
type Iterator interface {
	Next() (Batch, error)
}

// Sampler produces an Iterator over a split.
type Sampler interface {
	Sample(data []dataset.Example) (Iterator, error)
}

// BaseSampler batches examples in order (or shuffled), padding variable
// length sequence columns.
type BaseSampler struct {
	// BatchSize is the maximum number of examples per batch.
	BatchSize int
	// Shuffle permutes the examples once per epoch.
	Shuffle bool
	// PadIndex fills the tail of shorter 1-D columns.
	PadIndex float32
	// DropLast skips a trailing batch smaller than BatchSize.
	DropLast bool
	// Epochs is the number of passes over the data. Values below one mean one.
	Epochs int
	// Seed seeds shuffling so runs are reproducible.
	Seed int64
}

var _ Sampler = (*BaseSampler)(nil)

// Option configures a BaseSampler.
type Option func(*BaseSampler)

// WithBatchSize sets the batch size (default 16).
func WithBatchSize(n int) Option {
	return func(s *BaseSampler) { s.BatchSize = n }
}

// WithShuffle enables shuffling with the given seed.
func WithShuffle(seed int64) Option {
	return func(s *BaseSampler) {
		s.Shuffle = true
		s.Seed = seed
	}
}

// WithPadIndex sets the padding value for sequence columns.
func WithPadIndex(v float32) Option {
	return func(s *BaseSampler) { s.PadIndex = v }
}

// WithDropLast drops the final incomplete batch.
func WithDropLast() Option {
	return func(s *BaseSampler) { s.DropLast = true }
}

// WithEpochs sets the number of passes over the data.
func WithEpochs(n int) Option {
	return func(s *BaseSampler) { s.Epochs = n }
}

// NewBaseSampler returns a sampler with batch size 16, no shuffling and a single epoch.
func NewBaseSampler(opts ...Option) *BaseSampler {
	s := &BaseSampler{
		BatchSize: 16,
		Epochs:    1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample returns an iterator over data. The slice is not modified.
func (s *BaseSampler) Sample(data []dataset.Example) (Iterator, error) {
	if len(data) == 0 {
		return nil, ErrNoExamples
	}
	if s.BatchSize < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, s.BatchSize)
	}
	epochs := s.Epochs
	if epochs < 1 {
		epochs = 1
	}

	var rng *rand.Rand
	if s.Shuffle {
		rng = rand.New(rand.NewSource(s.Seed))
	}

	return &batchIterator{
		sampler: s,
		data:    data,
		epochs:  epochs,
		rng:     rng,
	}, nil
}

// batchIterator walks the data epoch by epoch.
type batchIterator struct {
	sampler *BaseSampler
	data    []dataset.Example
	epochs  int
	rng     *rand.Rand

	epoch int
	order []int
	pos   int
}

func (it *batchIterator) Next() (Batch, error) {
	size := it.sampler.BatchSize
	for {
		if it.order == nil {
			if it.epoch >= it.epochs {
				return nil, io.EOF
			}
			it.order = it.permutation()
			it.pos = 0
		}

		remaining := len(it.order) - it.pos
		if remaining == 0 || (it.sampler.DropLast && remaining < size) {
			it.order = nil
			it.epoch++
			continue
		}

		end := min(it.pos+size, len(it.order))
		examples := make([]dataset.Example, 0, end-it.pos)
		for _, idx := range it.order[it.pos:end] {
			examples = append(examples, it.data[idx])
		}
		it.pos = end
		return Collate(examples, it.sampler.PadIndex)
	}
}

func (it *batchIterator) permutation() []int {
	if it.rng != nil {
		return it.rng.Perm(len(it.data))
	}
	order := make([]int, len(it.data))
	for i := range order {
		order[i] = i
	}
	return order
}
