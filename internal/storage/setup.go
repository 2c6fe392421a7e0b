package storage

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
)

// Stores bundles where jobs read from and where intake writes to.
type Stores struct {
	Source *Router
	Sink   Sink
	client *storage.Client
}

// Setup builds the local store under uploadDir and, when enabled, a GCS
// client using application default credentials. Uploads go to GCS only when
// a bucket is configured.
func Setup(ctx context.Context, cfg common.StorageConfig, uploadDir string, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	local := NewLocal(uploadDir)
	s := &Stores{Source: &Router{Local: local}, Sink: local}
	if !cfg.GCSEnabled {
		return s, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	gcs := NewGCS(client, cfg.GCSBucket, logger)
	s.client = client
	s.Source.GCS = gcs
	if cfg.GCSBucket != "" {
		s.Sink = gcs
	}
	logger.Info("GCS storage enabled", "upload_bucket", cfg.GCSBucket)
	return s, nil
}

func (s *Stores) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
