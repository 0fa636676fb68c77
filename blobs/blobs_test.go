package blobs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGCS(t *testing.T) {
	t.Parallel()

	bucket, object, err := ParseGCS("gs://models/sst2/test.json")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Equal(t, "sst2/test.json", object)

	for _, bad := range []string{"/tmp/x", "gs://", "gs://bucket", "gs://bucket/", "gs:///object"} {
		_, _, err := ParseGCS(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestFor(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &GCSBlobstore{}, For("gs://b/o"))
	assert.IsType(t, &FileStore{}, For("/tmp/data.json"))
	assert.IsType(t, &FileStore{}, For("file:///tmp/data.json"))
	assert.IsType(t, &HTTPStore{}, For("https://example.com/data.json"))
}

func TestFileStore_OpenDownloadUpload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"ok":true}`), 0o644))

	r, err := Open(ctx, "file://"+src)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, `{"ok":true}`, string(b))

	store := &FileStore{}
	dest := filepath.Join(dir, "copy.json")
	require.NoError(t, store.Download(ctx, src, dest))
	b, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(b))

	uploaded := filepath.Join(dir, "nested", "up.json")
	require.NoError(t, store.Upload(ctx, src, uploaded))
	b, err = os.ReadFile(uploaded)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "download", "temp files must not be left behind")
	}
}

func TestFileStore_NotExist(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHTTPStore(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	objects := map[string][]byte{"/data.json": []byte(`{"test":[]}`)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			b, ok := objects[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(b)
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = b
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	store := &HTTPStore{Token: "t"}

	r, err := Open(ctx, srv.URL+"/data.json")
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, `{"test":[]}`, string(b))

	dir := t.TempDir()
	dest := filepath.Join(dir, "copy.json")
	require.NoError(t, store.Download(ctx, srv.URL+"/data.json", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `{"test":[]}`, string(got))

	require.NoError(t, store.Upload(ctx, dest, srv.URL+"/uploaded.json"))
	mu.Lock()
	assert.Equal(t, `{"test":[]}`, string(objects["/uploaded.json"]))
	mu.Unlock()

	_, err = store.Open(ctx, srv.URL+"/missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
