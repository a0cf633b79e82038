// Package ingest fetches the raw bookings CSV and splits it into train and
// test files.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// Source copies the raw dataset to a local path.
type Source interface {
	Fetch(ctx context.Context, dst string) error
	String() string
}

// GCSSource downloads one object from Google Cloud Storage. Credentials come
// from the environment (Application Default Credentials, or
// STORAGE_EMULATOR_HOST for a local emulator).
type GCSSource struct {
	Bucket string
	Object string

	// Client is optional. When nil, Fetch creates and closes its own client.
	Client *storage.Client
}

// Fetch streams the object into dst.
func (s *GCSSource) Fetch(ctx context.Context, dst string) error {
	if s.Bucket == "" || s.Object == "" {
		return errors.NewValidationError("bucket", "bucket and object names are required", s.String())
	}

	client := s.Client
	if client == nil {
		c, err := storage.NewClient(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to create storage client")
		}
		defer c.Close()
		client = c
	}

	r, err := client.Bucket(s.Bucket).Object(s.Object).NewReader(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", s.String())
	}
	defer r.Close()

	return writeAtomic(dst, r)
}

func (s *GCSSource) String() string {
	return "gs://" + s.Bucket + "/" + s.Object
}

// FileSource copies a CSV that is already on local disk.
type FileSource struct {
	Path string
}

// Fetch copies Path to dst.
func (s *FileSource) Fetch(ctx context.Context, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", s.Path)
	}
	defer f.Close()

	return writeAtomic(dst, f)
}

func (s *FileSource) String() string {
	return s.Path
}

// writeAtomic writes r to a temp file next to dst and renames it into place,
// so a failed download never leaves a truncated raw file behind.
func writeAtomic(dst string, r io.Reader) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to copy data")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), dst), "failed to move file into place")
}
