package blobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/flambeai/flambe-go/internal/https"
	"github.com/flambeai/flambe-go/logger"
)

// HTTPStore serves http:// and https:// URLs. Uploads use PUT.
type HTTPStore struct {
	// Token is sent as a bearer token. Defaults to FLAMBE_HTTP_TOKEN.
	Token  string
	Logger logger.Logger
}

var _ Blobstore = (*HTTPStore)(nil)

// IsHTTP reports whether uri is an http or https URL.
func IsHTTP(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

func (h *HTTPStore) client() *https.Client {
	token := h.Token
	if token == "" {
		token = os.Getenv("FLAMBE_HTTP_TOKEN")
	}
	return https.NewClient(token, h.Logger)
}

func (h *HTTPStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	resp, err := h.client().GET(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", uri, err)
	}
	return resp.Body, nil
}

func (h *HTTPStore) Download(ctx context.Context, uri string, destPath string) error {
	src, err := h.Open(ctx, uri)
	if err != nil {
		return err
	}
	defer src.Close()

	log := h.Logger
	if log == nil {
		log = logger.Discard()
	}
	if _, err := writeToFile(log, src, destPath); err != nil {
		return fmt.Errorf("downloading %q: %w", uri, err)
	}
	return nil
}

func (h *HTTPStore) Upload(ctx context.Context, sourcePath string, uri string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	stat, err := src.Stat()
	if err != nil {
		return fmt.Errorf("getting stat of file %q: %w", sourcePath, err)
	}

	resp, err := h.client().PUT(ctx, uri, src, stat.Size())
	if err != nil {
		return fmt.Errorf("uploading to %q: %w", uri, err)
	}
	return resp.Body.Close()
}
