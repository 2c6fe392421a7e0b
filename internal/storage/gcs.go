package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
)

// GCS downloads gs:// refs into temporary local copies and uploads new files
// to a single bucket.
type GCS struct {
	client *storage.Client
	bucket string // upload target; may be empty for read-only use
	logger *slog.Logger
}

func NewGCS(client *storage.Client, bucket string, logger *slog.Logger) *GCS {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCS{client: client, bucket: bucket, logger: logger}
}

func (g *GCS) Fetch(ctx context.Context, ref string) (string, func(), error) {
	bucket, object, ok := ParseGSURI(ref)
	if !ok {
		return "", nil, common.NewAppError("FILE_INVALID", "malformed GCS reference "+ref, common.ErrInvalidInput)
	}

	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return "", nil, common.NewAppError("FILE_NOT_FOUND", "uploaded file "+ref+" does not exist", common.ErrNotFound)
		}
		return "", nil, fmt.Errorf("failed to get GCS object reader for %s: %w", ref, err)
	}
	defer reader.Close()

	local, err := os.CreateTemp("", "orders-*"+path.Ext(object))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(local.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.logger.Warn("failed to remove temp copy", "path", local.Name(), "error", err)
		}
	}
	if _, err := io.Copy(local, reader); err != nil {
		_ = local.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	if err := local.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	g.logger.Debug("fetched GCS object", "ref", ref, "path", local.Name(), "bytes", reader.Attrs.Size)
	return local.Name(), cleanup, nil
}

// Put uploads r to the configured bucket only if name does not exist yet.
func (g *GCS) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	if g.bucket == "" {
		return "", common.NewAppError("STORAGE_UNAVAILABLE", "no GCS upload bucket configured", common.ErrInvalidInput)
	}
	// canceling the writer's context abandons the upload instead of committing a partial object
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := g.client.Bucket(g.bucket).Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(wctx)
	if _, err := io.Copy(writer, r); err != nil {
		cancel()
		_ = writer.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	ref := gsScheme + g.bucket + "/" + name
	g.logger.Info("uploaded file to GCS", "ref", ref)
	return ref, nil
}

func (g *GCS) Delete(ctx context.Context, ref string) error {
	bucket, object, ok := ParseGSURI(ref)
	if !ok {
		return common.NewAppError("FILE_INVALID", "malformed GCS reference "+ref, common.ErrInvalidInput)
	}
	err := g.client.Bucket(bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", ref, err)
	}
	g.logger.Info("deleted GCS object", "ref", ref)
	return nil
}
