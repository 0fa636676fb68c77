package eval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flambeai/flambe-go/dataset"
	intlogger "github.com/flambeai/flambe-go/internal/logger"
	"github.com/flambeai/flambe-go/internal/oteltest"
	"github.com/flambeai/flambe-go/internal/tests"
	"github.com/flambeai/flambe-go/logging"
	"github.com/flambeai/flambe-go/metric"
	"github.com/flambeai/flambe-go/nn"
	"github.com/flambeai/flambe-go/sampler"
	"github.com/flambeai/flambe-go/tensor"
)

// scalarRecorder is a sink that keeps every scalar.
type scalarRecorder struct {
	mu      sync.Mutex
	scalars []logging.Scalar
	err     error
}

func (r *scalarRecorder) LogScalar(_ context.Context, s logging.Scalar) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scalars = append(r.scalars, s)
	return r.err
}

// capturingMetric records what it is asked to score.
type capturingMetric struct {
	metric.Metric
	pred, target *tensor.Tensor
}

func (m *capturingMetric) Compute(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	m.pred, m.target = pred, target
	return m.Metric.Compute(pred, target)
}

// passthrough returns the first two batch columns as prediction and target.
func passthrough(_ context.Context, inputs ...*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	return inputs[0], inputs[1], nil
}

type unitTestEval struct {
	exporter *oteltest.Exporter
	sink     *scalarRecorder
}

func newUnitTestEval(t *testing.T, ds dataset.Dataset, model nn.Module, m metric.Metric, opts ...Option) (*Evaluator, *unitTestEval) {
	t.Helper()
	tracer, exporter := oteltest.Setup(t)
	sink := &scalarRecorder{}

	opts = append([]Option{
		WithTracer(tracer),
		WithLogger(intlogger.NewFailTestLogger(t)),
		WithSink(sink),
		WithDevice(tensor.CPU),
		WithSampler(sampler.NewBaseSampler(sampler.WithBatchSize(2))),
	}, opts...)

	e, err := New(ds, model, m, opts...)
	require.NoError(t, err)
	return e, &unitTestEval{exporter: exporter, sink: sink}
}

func TestEvaluator_Run(t *testing.T) {
	e, u := newUnitTestEval(t, tests.Separable(t), tests.SeparatingClassifier(t), metric.Accuracy())

	_, ok := e.Metric()
	assert.False(t, ok, "metric is unset before the first run")

	more, err := e.Run(context.Background(), "eval")
	require.NoError(t, err)
	assert.False(t, more, "evaluation is a single step")

	got, ok := e.Metric()
	require.True(t, ok)
	assert.Equal(t, 1.0, got)

	require.Len(t, u.sink.scalars, 1)
	assert.Equal(t, "Eval Accuracy", u.sink.scalars[0].Tag)
	assert.Equal(t, 1.0, u.sink.scalars[0].Value)
	assert.Equal(t, 0, u.sink.scalars[0].GlobalStep)

	spans := u.exporter.Flush()
	evalSpans := oteltest.Named(spans, "eval")
	require.Len(t, evalSpans, 1)
	root := evalSpans[0]
	root.AssertOK()
	root.AssertAttrs(map[string]any{
		"flambe.eval.data":     "test",
		"flambe.eval.device":   "cpu",
		"flambe.eval.metric":   "Accuracy",
		"flambe.eval.examples": 5,
	})
	root.AssertAttrEquals("flambe.eval.value", 1.0)

	batches := oteltest.Named(spans, "batch")
	require.Len(t, batches, 3)
	for i, b := range batches {
		assert.True(t, b.IsChildOf(root))
		b.AssertAttrEquals("flambe.batch.index", i)
	}
	batches[2].AssertAttrEquals("flambe.batch.size", 1)

	metricSpans := oteltest.Named(spans, "metric")
	require.Len(t, metricSpans, 1)
	assert.True(t, metricSpans[0].IsChildOf(root))
	metricSpans[0].AssertAttrEquals("flambe.metric.batches", 3)
}

func TestEvaluator_LogPrefix(t *testing.T) {
	e, u := newUnitTestEval(t, tests.Separable(t), tests.SeparatingClassifier(t), metric.Accuracy(),
		WithLogPrefix("run1"))

	_, err := e.Run(context.Background(), "eval")
	require.NoError(t, err)

	e.SetLogPrefix("run2")
	_, err = e.Run(context.Background(), "eval")
	require.NoError(t, err)

	e.SetLogPrefix("")
	_, err = e.Run(context.Background(), "eval")
	require.NoError(t, err)

	require.Len(t, u.sink.scalars, 3)
	assert.Equal(t, "run1 Eval Accuracy", u.sink.scalars[0].Tag)
	assert.Equal(t, "run2 Eval Accuracy", u.sink.scalars[1].Tag)
	assert.Equal(t, "Eval Accuracy", u.sink.scalars[2].Tag)
}

func TestEvaluator_ConcatenatesInSamplerOrder(t *testing.T) {
	var examples []dataset.Example
	for i := 0; i < 5; i++ {
		examples = append(examples, dataset.Example{tensor.Scalar(float32(i)), tensor.Scalar(float32(10 * i))})
	}
	ds := dataset.New(nil, examples, nil)

	m := &capturingMetric{Metric: metric.MSE()}
	e, _ := newUnitTestEval(t, ds, nn.Func(passthrough), m, WithEvalData(dataset.SplitVal))
	assert.Equal(t, dataset.SplitVal, e.EvalData())

	_, err := e.Run(context.Background(), "eval")
	require.NoError(t, err)

	require.NotNil(t, m.pred)
	assert.Equal(t, []float32{0, 1, 2, 3, 4}, m.pred.Data())
	assert.Equal(t, []float32{0, 10, 20, 30, 40}, m.target.Data())
	assert.Equal(t, tensor.CPU, m.pred.Device())

	got, ok := e.Metric()
	require.True(t, ok)
	assert.InDelta(t, (0+81+324+729+1296)/5.0, got, 1e-3)
}

func TestEvaluator_MovesToDevice(t *testing.T) {
	t.Setenv("FLAMBE_CUDA_AVAILABLE", "true")

	model := tests.NewRecordingModel(passthrough)
	m := &capturingMetric{Metric: metric.Accuracy()}
	e, u := newUnitTestEval(t, tests.Separable(t), model, m, WithDevice(tensor.CUDA))
	assert.Equal(t, tensor.CUDA, e.Device())
	assert.True(t, model.Training())

	_, err := e.Run(context.Background(), "eval")
	require.NoError(t, err)

	assert.Equal(t, tensor.CUDA, model.Device())
	assert.False(t, model.Training(), "model is left in inference mode")

	batches := model.Batches()
	require.Len(t, batches, 3)
	for _, b := range batches {
		for _, x := range b {
			assert.Equal(t, tensor.CUDA, x.Device())
		}
	}
	for _, training := range model.TrainingModes() {
		assert.False(t, training)
	}

	require.NotNil(t, m.pred)
	assert.Equal(t, tensor.CPU, m.pred.Device())
	assert.Equal(t, tensor.CPU, m.target.Device())

	spans := u.exporter.Flush()
	evalSpans := oteltest.Named(spans, "eval")
	require.Len(t, evalSpans, 1)
	evalSpans[0].AssertAttrEquals("flambe.eval.device", "cuda")
}

func TestEvaluator_UnavailableDevice(t *testing.T) {
	e, u := newUnitTestEval(t, tests.Separable(t), tests.SeparatingClassifier(t), metric.Accuracy(),
		WithDevice(tensor.Device("tpu")))

	_, err := e.Run(context.Background(), "eval")
	require.Error(t, err)
	assert.ErrorIs(t, err, errEval)
	assert.ErrorIs(t, err, nn.ErrDeviceUnavailable)

	span := u.exporter.FlushOne()
	span.AssertErrored("tpu")
}

func TestEvaluator_EmptySplit(t *testing.T) {
	ds := dataset.New(nil, nil, nil)
	e, u := newUnitTestEval(t, ds, nn.Func(passthrough), metric.MSE())

	more, err := e.Run(context.Background(), "eval")
	assert.False(t, more)
	assert.ErrorIs(t, err, ErrNoBatches)
	_, ok := e.Metric()
	assert.False(t, ok)
	assert.Empty(t, u.sink.scalars)

	span := u.exporter.FlushOne()
	span.AssertErrored("no batches")
	ev, ok := span.Event("exception")
	require.True(t, ok)
	assert.Equal(t, "ErrNoBatches", ev.Attrs["exception.type"])
}

func TestEvaluator_DropLastLeavesNoBatches(t *testing.T) {
	s := sampler.NewBaseSampler(sampler.WithBatchSize(16), sampler.WithDropLast())
	e, _ := newUnitTestEval(t, tests.Separable(t), tests.SeparatingClassifier(t), metric.Accuracy(), WithSampler(s))

	_, err := e.Run(context.Background(), "eval")
	assert.ErrorIs(t, err, ErrNoBatches)
}

func TestEvaluator_ForwardError(t *testing.T) {
	boom := errors.New("out of memory")
	calls := 0
	model := nn.Func(func(ctx context.Context, inputs ...*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
		calls++
		if calls == 2 {
			return nil, nil, boom
		}
		return passthrough(ctx, inputs...)
	})
	e, u := newUnitTestEval(t, tests.Separable(t), model, metric.MSE())

	_, err := e.Run(context.Background(), "eval")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForward)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "evaluation stops at the failing batch")

	spans := u.exporter.Flush()
	batches := oteltest.Named(spans, "batch")
	require.Len(t, batches, 2)
	batches[0].AssertOK()
	batches[1].AssertErrored("out of memory")
	assert.Empty(t, oteltest.Named(spans, "metric"))
}

func TestEvaluator_NilForwardOutput(t *testing.T) {
	model := nn.Func(func(context.Context, ...*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
		return nil, nil, nil
	})
	e, _ := newUnitTestEval(t, tests.Separable(t), model, metric.MSE())

	_, err := e.Run(context.Background(), "eval")
	assert.ErrorIs(t, err, ErrForward)
}

func TestEvaluator_MetricError(t *testing.T) {
	bad := errors.New("bad metric")
	m := metric.New("Broken", func(_, _ *tensor.Tensor) (float64, error) { return 0, bad })
	e, u := newUnitTestEval(t, tests.Separable(t), tests.SeparatingClassifier(t), m)

	_, err := e.Run(context.Background(), "eval")
	assert.ErrorIs(t, err, ErrMetric)
	assert.ErrorIs(t, err, bad)
	assert.Empty(t, u.sink.scalars)

	metricSpans := oteltest.Named(u.exporter.Flush(), "metric")
	require.Len(t, metricSpans, 1)
	metricSpans[0].AssertErrored("bad metric")
}

func TestEvaluator_RaggedPredictions(t *testing.T) {
	calls := 0
	model := nn.Func(func(_ context.Context, inputs ...*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
		calls++
		width := 2
		if calls == 2 {
			width = 3
		}
		n := inputs[1].Len()
		pred, err := tensor.Zeros(n, width)
		return pred, inputs[1], err
	})
	e, _ := newUnitTestEval(t, tests.Separable(t), model, metric.Accuracy())

	_, err := e.Run(context.Background(), "eval")
	assert.ErrorIs(t, err, ErrMetric)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestEvaluator_LogError(t *testing.T) {
	e, u := newUnitTestEval(t, tests.Separable(t), tests.SeparatingClassifier(t), metric.Accuracy())
	u.sink.err = errors.New("disk full")

	_, err := e.Run(context.Background(), "eval")
	assert.ErrorIs(t, err, errLog)

	got, ok := e.Metric()
	assert.True(t, ok, "the metric is stored before it is logged")
	assert.Equal(t, 1.0, got)
}

func TestEvaluator_Canceled(t *testing.T) {
	model := tests.NewRecordingModel(passthrough)
	e, _ := newUnitTestEval(t, tests.Separable(t), model, metric.MSE())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, "eval")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.Batches())
}

func TestNew_Errors(t *testing.T) {
	ds := tests.Separable(t)
	model := tests.SeparatingClassifier(t)

	_, err := New(nil, model, metric.Accuracy())
	assert.ErrorIs(t, err, errEval)

	_, err = New(ds, nil, metric.Accuracy())
	assert.ErrorIs(t, err, errEval)

	_, err = New(ds, model, nil)
	assert.ErrorIs(t, err, errEval)

	_, err = New(ds, model, metric.Accuracy(), WithEvalData("holdout"))
	assert.ErrorIs(t, err, dataset.ErrUnknownSplit)
}

func TestNew_Defaults(t *testing.T) {
	e, err := New(tests.Separable(t), tests.SeparatingClassifier(t), metric.Accuracy(),
		WithLogger(intlogger.NewFailTestLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, dataset.SplitTest, e.EvalData())
	assert.Equal(t, tensor.DefaultDevice(), e.Device())
	base, ok := e.sampler.(*sampler.BaseSampler)
	require.True(t, ok)
	assert.Equal(t, 16, base.BatchSize)
	assert.False(t, base.Shuffle)
}
