package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flambeai/flambe-go/store"
)

const testDataset = `{
  "train": [[[3, 1], 0]],
  "test": [
    [[2, 1], 0],
    [[1, 4], 1],
    [[0, 3], 1],
    [[6, 2], 1]
  ]
}`

const testWeights = `{"weight": [[1, 0], [0, 1]], "bias": [0, 0]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_EvaluatesAndUploads(t *testing.T) {
	dir := t.TempDir()
	ds := writeFile(t, dir, "dataset.json", testDataset)
	weights := writeFile(t, dir, "weights.json", testWeights)
	db := filepath.Join(dir, "scalars.db")
	uploaded := filepath.Join(dir, "out", "scalars.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(uploaded), 0o755))

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-dataset", ds,
		"-model", weights,
		"-metric", "accuracy",
		"-device", "cpu",
		"-batch-size", "3",
		"-prefix", "cli",
		"-exporter", "none",
		"-trace-batches=false",
		"-db", db,
		"-upload-db", uploaded,
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Block eval: steps=1 metric=0.7500")
	assert.Contains(t, out.String(), "Accuracy: 0.750000")

	s, err := store.NewStore(uploaded)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	scalars, err := s.Scalars(ctx, runs[0].ID, "cli Eval Accuracy")
	require.NoError(t, err)
	require.Len(t, scalars, 1)
	assert.Equal(t, 0.75, scalars[0].Value)
}

func TestRun_LoadsOverHTTP(t *testing.T) {
	files := map[string]string{
		"/data/dataset.json":   testDataset,
		"/models/weights.json": testWeights,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-dataset", srv.URL + "/data/dataset.json",
		"-model", srv.URL + "/models/weights.json",
		"-device", "cpu",
		"-exporter", "none",
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Accuracy: 0.750000")

	err = run(context.Background(), []string{
		"-dataset", srv.URL + "/data/missing.json",
		"-model", srv.URL + "/models/weights.json",
		"-device", "cpu",
		"-exporter", "none",
	}, &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	ds := writeFile(t, dir, "dataset.json", testDataset)
	weights := writeFile(t, dir, "weights.json", testWeights)

	tests := []struct {
		name string
		args []string
	}{
		{"missing dataset", []string{"-model", weights}},
		{"unknown metric", []string{"-dataset", ds, "-model", weights, "-metric", "bleu", "-device", "cpu"}},
		{"unknown split", []string{"-dataset", ds, "-model", weights, "-split", "holdout", "-device", "cpu"}},
		{"empty split", []string{"-dataset", ds, "-model", weights, "-split", "val", "-device", "cpu"}},
		{"upload without db", []string{"-dataset", ds, "-model", weights, "-upload-db", filepath.Join(dir, "x.db")}},
		{"missing weights", []string{"-dataset", ds, "-model", filepath.Join(dir, "nope.json"), "-device", "cpu"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out)
			assert.Error(t, err)
		})
	}
}
