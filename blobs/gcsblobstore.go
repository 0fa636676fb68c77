package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"

	"github.com/flambeai/flambe-go/logger"
)

// GCSBlobstore reads and writes objects in Google Cloud Storage using
// application default credentials.
type GCSBlobstore struct {
	Logger logger.Logger
}

var _ Blobstore = (*GCSBlobstore)(nil)

func (g *GCSBlobstore) log() logger.Logger {
	if g.Logger == nil {
		return logger.Discard()
	}
	return g.Logger
}

func (g *GCSBlobstore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseGCS(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %q: %w", uri, os.ErrNotExist)
		}
		return nil, fmt.Errorf("opening object from GCS %q: %w", uri, err)
	}

	g.log().Debug("opened object in GCS", "url", uri, "bytes", r.Attrs.Size)
	return &gcsReader{Reader: r, client: client}, nil
}

func (g *GCSBlobstore) Download(ctx context.Context, uri string, destPath string) error {
	log := g.log()

	r, err := g.Open(ctx, uri)
	if err != nil {
		return err
	}
	defer r.Close()

	log.Info("downloading blob from GCS", "source", uri, "destination", destPath)

	startedAt := time.Now()
	n, err := writeToFile(log, r, destPath)
	if err != nil {
		return fmt.Errorf("downloading from GCS: %w", err)
	}

	log.Info("downloaded blob from GCS", "source", uri, "destination", destPath, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

func (g *GCSBlobstore) Upload(ctx context.Context, sourcePath string, uri string) error {
	log := g.log()

	bucket, object, err := ParseGCS(uri)
	if err != nil {
		return err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("uploading blob to GCS", "source", sourcePath, "destination", uri)

	startedAt := time.Now()
	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return fmt.Errorf("uploading to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer: %w", err)
	}

	log.Info("uploaded blob to GCS", "url", uri, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

// gcsReader closes the storage client along with the object reader.
type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	return errors.Join(r.Reader.Close(), r.client.Close())
}
