package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/cvbank/cvbank-backend/pkg/logger"
)

const gcsScheme = "gs://"

// GCS stores files as objects in a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket string
	logger *logger.Logger
}

// NewGCS creates a client using application default credentials.
func NewGCS(ctx context.Context, bucket string, log *logger.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}

	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: c, bucket: bucket, logger: log.WithComponent("file_store")}, nil
}

// Close releases the client.
func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Locate(ownerID, filename string) (string, error) {
	key, err := objectKey(ownerID, filename)
	if err != nil {
		return "", err
	}
	return gcsScheme + g.bucket + "/" + key, nil
}

func (g *GCS) Write(ctx context.Context, locator, contentType string, r io.Reader) (int64, error) {
	obj, err := g.object(locator)
	if err != nil {
		return 0, err
	}

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("upload object: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("finalize object: %w", err)
	}
	return n, nil
}

func (g *GCS) Exists(ctx context.Context, locator string) (bool, error) {
	obj, err := g.object(locator)
	if err != nil {
		return false, err
	}

	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

func (g *GCS) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	obj, err := g.object(locator)
	if err != nil {
		return nil, err
	}

	rc, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return rc, nil
}

func (g *GCS) Delete(ctx context.Context, locator string) error {
	obj, err := g.object(locator)
	if err != nil {
		return err
	}

	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (g *GCS) object(locator string) (*gcs.ObjectHandle, error) {
	prefix := gcsScheme + g.bucket + "/"
	if !strings.HasPrefix(locator, prefix) {
		return nil, ErrInvalidLocator
	}
	key := strings.TrimPrefix(locator, prefix)
	if key == "" {
		return nil, ErrInvalidLocator
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return nil, ErrInvalidLocator
		}
	}
	return g.client.Bucket(g.bucket).Object(key), nil
}
