package blobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flambeai/flambe-go/logger"
)

// FileStore serves plain paths and file:// URLs from local disk.
type FileStore struct {
	Logger logger.Logger
}

var _ Blobstore = (*FileStore)(nil)

func (f *FileStore) log() logger.Logger {
	if f.Logger == nil {
		return logger.Discard()
	}
	return f.Logger
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

func (f *FileStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	file, err := os.Open(localPath(uri))
	if err != nil {
		// os errors already satisfy errors.Is(err, os.ErrNotExist)
		return nil, fmt.Errorf("opening %q: %w", uri, err)
	}
	return file, nil
}

func (f *FileStore) Download(ctx context.Context, uri string, destPath string) error {
	src, err := f.Open(ctx, uri)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := writeToFile(f.log(), src, destPath); err != nil {
		return fmt.Errorf("copying %q: %w", uri, err)
	}
	return nil
}

func (f *FileStore) Upload(ctx context.Context, sourcePath string, uri string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	dest := localPath(uri)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory for %q: %w", dest, err)
	}
	if _, err := writeToFile(f.log(), src, dest); err != nil {
		return fmt.Errorf("copying to %q: %w", uri, err)
	}
	return nil
}

// writeToFile streams src into a temp file next to destinationPath and
// renames it into place, so readers never observe a partial file.
func writeToFile(log logger.Logger, src io.Reader, destinationPath string) (int64, error) {
	dir := filepath.Dir(destinationPath)
	tempFile, err := os.CreateTemp(dir, "download")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	shouldDeleteTempFile := true
	defer func() {
		if shouldDeleteTempFile {
			if err := os.Remove(tempFile.Name()); err != nil {
				log.Error("removing temp file", "path", tempFile.Name(), "error", err)
			}
		}
	}()

	shouldCloseTempFile := true
	defer func() {
		if shouldCloseTempFile {
			if err := tempFile.Close(); err != nil {
				log.Error("closing temp file", "path", tempFile.Name(), "error", err)
			}
		}
	}()

	n, err := io.Copy(tempFile, src)
	if err != nil {
		return n, fmt.Errorf("copying from source: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	shouldCloseTempFile = false

	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	shouldDeleteTempFile = false

	return n, nil
}
