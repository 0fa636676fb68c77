package component

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intlogger "github.com/flambeai/flambe-go/internal/logger"
	"github.com/flambeai/flambe-go/internal/oteltest"
	"github.com/flambeai/flambe-go/trace"
)

// countdown continues until it has run n times.
type countdown struct {
	n      int
	runs   int
	blocks []string
	err    error
	metric *float64
}

func (c *countdown) Run(ctx context.Context, blockName string) (bool, error) {
	c.runs++
	block, _ := trace.GetBlock(ctx)
	c.blocks = append(c.blocks, block)
	if c.err != nil {
		return false, c.err
	}
	return c.runs < c.n, nil
}

func (c *countdown) Metric() (float64, bool) {
	if c.metric == nil {
		return 0, false
	}
	return *c.metric, true
}

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *oteltest.Exporter) {
	t.Helper()
	tracer, exporter := oteltest.Setup(t)
	opts = append([]Option{
		WithTracer(tracer),
		WithLogger(intlogger.NewFailTestLogger(t)),
		WithOutput(nil),
	}, opts...)
	return NewRunner(opts...), exporter
}

func TestRunner_RunsUntilDone(t *testing.T) {
	r, exporter := newTestRunner(t)

	metric := 0.8
	train := &countdown{n: 3}
	eval := &countdown{n: 1, metric: &metric}

	result, err := r.Run(context.Background(),
		Block{Name: "train", Component: train},
		Block{Name: "eval", Component: eval},
	)
	require.NoError(t, err)
	require.NoError(t, result.Error())

	assert.Equal(t, 3, train.runs)
	assert.Equal(t, 1, eval.runs)
	assert.Equal(t, []string{"train", "train", "train"}, train.blocks)
	assert.Equal(t, []string{"eval"}, eval.blocks)

	require.Len(t, result.Blocks, 2)
	assert.Equal(t, 3, result.Blocks[0].Steps)
	assert.False(t, result.Blocks[0].HasMetric)
	got, ok := result.Metric("eval")
	assert.True(t, ok)
	assert.Equal(t, 0.8, got)
	_, ok = result.Metric("missing")
	assert.False(t, ok)

	spans := exporter.Flush()
	trainSpans := oteltest.Named(spans, "block:train")
	require.Len(t, trainSpans, 3)
	for i, s := range trainSpans {
		s.AssertOK()
		s.AssertAttrEquals(trace.BlockAttrKey, "train")
		s.AssertAttrEquals("flambe.step", i)
		s.AssertAttrEquals("flambe.continue", i < 2)
	}
	require.Len(t, oteltest.Named(spans, "block:eval"), 1)
}

func TestRunner_StopsOnError(t *testing.T) {
	r, exporter := newTestRunner(t)

	boom := errors.New("boom")
	failing := &countdown{n: 5, err: boom}
	never := &countdown{n: 1}

	result, err := r.Run(context.Background(),
		Block{Name: "train", Component: failing},
		Block{Name: "eval", Component: never},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, result.Error(), boom)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 0, never.runs)
	require.Len(t, result.Blocks, 1)

	span := exporter.FlushOne()
	span.AssertErrored("boom")
	ev, ok := span.Event("exception")
	require.True(t, ok)
	assert.Equal(t, "ErrBlock", ev.Attrs["exception.type"])
}

func TestRunner_MaxSteps(t *testing.T) {
	r, _ := newTestRunner(t, WithMaxSteps(4))

	forever := &countdown{n: 100}
	result, err := r.Run(context.Background(), Block{Name: "train", Component: forever})
	assert.ErrorIs(t, err, ErrMaxSteps)
	assert.Equal(t, 4, forever.runs)
	assert.Equal(t, 4, result.Blocks[0].Steps)
}

func TestRunner_CanceledContext(t *testing.T) {
	r, _ := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &countdown{n: 1}
	_, err := r.Run(ctx, Block{Name: "eval", Component: c})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.runs)
}

func TestResult_String(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRunner(t, WithOutput(&out))

	metric := 0.25
	_, err := r.Run(context.Background(), Block{Name: "eval", Component: &countdown{n: 1, metric: &metric}})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "=== Experiment ===")
	assert.Contains(t, out.String(), "Block eval: steps=1 metric=0.2500")
	assert.NotContains(t, out.String(), "Errors:")
}
