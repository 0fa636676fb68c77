// Command flambe-eval evaluates a linear classifier on one split of a dataset.
//
//	flambe-eval -dataset gs://bucket/iris.json -model weights.json -metric accuracy
//
// Datasets and weights may be local paths or gs:// URIs. Flags default to
// the FLAMBE_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flambeai/flambe-go"
	"github.com/flambeai/flambe-go/blobs"
	"github.com/flambeai/flambe-go/component"
	"github.com/flambeai/flambe-go/config"
	"github.com/flambeai/flambe-go/dataset"
	"github.com/flambeai/flambe-go/logger"
	"github.com/flambeai/flambe-go/metric"
	"github.com/flambeai/flambe-go/nn"
	"github.com/flambeai/flambe-go/trace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	env := config.FromEnv()

	fs := flag.NewFlagSet("flambe-eval", flag.ContinueOnError)
	datasetURI := fs.String("dataset", "", "dataset JSON (path, gs:// or http(s):// URI)")
	modelURI := fs.String("model", "", "linear classifier weights JSON (path, gs:// or http(s):// URI)")
	metricName := fs.String("metric", "accuracy", fmt.Sprintf("metric, one of %v", metric.Names()))
	split := fs.String("split", env.EvalData, "split to evaluate: train, val or test")
	batchSize := fs.Int("batch-size", env.EvalBatchSize, "evaluation batch size")
	device := fs.String("device", env.Device, "device: cpu, cuda or cuda:N (default: auto)")
	prefix := fs.String("prefix", env.LogPrefix, "prefix of the logged scalar tag")
	db := fs.String("db", env.ScalarDB, "sqlite file to log scalars to")
	uploadDB := fs.String("upload-db", "", "copy the scalar db to this path, gs:// or http(s):// URI when done")
	exporter := fs.String("exporter", env.OtelExporter, "trace exporter: none, stdout or otlp")
	endpoint := fs.String("endpoint", env.OtelEndpoint, "OTLP HTTP endpoint")
	traceBatches := fs.Bool("trace-batches", true, "export per-batch spans")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *datasetURI == "" || *modelURI == "" {
		return fmt.Errorf("-dataset and -model are required")
	}
	if *uploadDB != "" && *db == "" {
		return fmt.Errorf("-upload-db requires -db")
	}

	log := logger.NewDefaultLogger()

	m, err := metric.ByName(*metricName)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var filters []config.SpanFilterFunc
	if !*traceBatches {
		filters = append(filters, trace.DropSpansNamed("batch"))
	}

	client, err := flambe.New(tp,
		flambe.WithDevice(*device),
		flambe.WithEvalData(*split),
		flambe.WithEvalBatchSize(*batchSize),
		flambe.WithLogPrefix(*prefix),
		flambe.WithScalarDB(*db),
		flambe.WithOtelExporter(*exporter, *endpoint),
		flambe.WithSpanFilterFuncs(filters...),
		flambe.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	ds, err := dataset.Load(ctx, *datasetURI)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}
	layer, err := nn.LoadLinear(ctx, *modelURI)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	evaluator, err := client.NewEvaluator(ds, nn.NewClassifier(layer), m)
	if err != nil {
		return err
	}

	result, err := client.Runner(component.WithOutput(stdout)).Run(ctx, component.Block{Name: "eval", Component: evaluator})
	if err != nil {
		return err
	}
	if value, ok := result.Metric("eval"); ok {
		fmt.Fprintf(stdout, "%s: %.6f\n", m, value)
	}

	if *uploadDB != "" {
		// flush the WAL into the db file before copying it
		if err := client.Close(); err != nil {
			return fmt.Errorf("closing scalar db: %w", err)
		}
		if err := blobs.For(*uploadDB).Upload(ctx, *db, *uploadDB); err != nil {
			return fmt.Errorf("uploading scalar db: %w", err)
		}
		log.Info("uploaded scalar db", "uri", *uploadDB)
	}
	return nil
}
