// Package blobs opens dataset and weight files from local disk, http(s)
// servers or object storage.
package blobs

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Reader opens objects by URI.
type Reader interface {
	// Open returns the object contents. If no such object exists, the error
	// satisfies errors.Is(err, os.ErrNotExist).
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Blobstore is a Reader that can also write objects.
type Blobstore interface {
	Reader
	// Download copies the object at uri to destPath, replacing it atomically.
	Download(ctx context.Context, uri string, destPath string) error
	// Upload copies the file at sourcePath to uri.
	Upload(ctx context.Context, sourcePath string, uri string) error
}

const gcsScheme = "gs://"

// IsGCS reports whether uri names a Google Cloud Storage object.
func IsGCS(uri string) bool {
	return strings.HasPrefix(uri, gcsScheme)
}

// ParseGCS splits gs://bucket/object into its bucket and object key.
func ParseGCS(uri string) (bucket, object string, err error) {
	if !IsGCS(uri) {
		return "", "", fmt.Errorf("not a GCS URL (gs://<bucket>/<object>): %q", uri)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("GCS URL must name a bucket and object: %q", uri)
	}
	return bucket, object, nil
}

// Open opens uri with the store that serves its scheme.
func Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return For(uri).Open(ctx, uri)
}

// For returns the Blobstore serving uri's scheme.
func For(uri string) Blobstore {
	switch {
	case IsGCS(uri):
		return &GCSBlobstore{}
	case IsHTTP(uri):
		return &HTTPStore{}
	default:
		return &FileStore{}
	}
}
