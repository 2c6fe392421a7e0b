// Package intake accepts spreadsheet uploads, stores them and queues a pending job.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
	"github.com/joseph-ayodele/orders-tracker/internal/storage"
)

// DefaultMaxBytes caps a single upload.
const DefaultMaxBytes int64 = 50 << 20

var (
	ErrUnsupportedType = common.NewAppError("UNSUPPORTED_FILE", "only Excel workbooks (.xlsx, .xlsm) are accepted", common.ErrInvalidInput)
	ErrTooLarge        = common.NewAppError("FILE_TOO_LARGE", "uploaded file exceeds the size limit", common.ErrInvalidInput)
)

type Service struct {
	jobs     repository.JobRepository
	users    repository.UserRepository
	sink     storage.Sink
	maxBytes int64
	logger   *slog.Logger
}

func NewService(jobs repository.JobRepository, users repository.UserRepository, sink storage.Sink, maxBytes int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{jobs: jobs, users: users, sink: sink, maxBytes: maxBytes, logger: logger}
}

// Submit copies the workbook at srcPath into upload storage and inserts a
// pending job for ownerID. The stored name is "<job id>-<base name>".
func (s *Service) Submit(ctx context.Context, ownerID uuid.UUID, srcPath string) (*entity.Job, error) {
	abs, err := filepath.Abs(srcPath)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	base := filepath.Base(abs)
	if !constants.IsAllowedExt(filepath.Ext(base)) {
		s.logger.Warn("upload rejected", "path", abs, "reason", "extension")
		return nil, ErrUnsupportedType
	}

	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.NewAppError("FILE_NOT_FOUND", "file "+abs+" does not exist", common.ErrNotFound)
		}
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, common.NewAppError("FILE_INVALID", abs+" is not a regular file", common.ErrInvalidInput)
	}
	if info.Size() > s.maxBytes {
		s.logger.Warn("upload rejected", "path", abs, "reason", "size", "bytes", info.Size(), "max_bytes", s.maxBytes)
		return nil, ErrTooLarge
	}
	if err := sniff(abs); err != nil {
		s.logger.Warn("upload rejected", "path", abs, "reason", "content", "error", err)
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			s.logger.Warn("close upload failed", "path", abs, "error", err)
		}
	}(f)

	jobID := uuid.New()
	// the file may grow after Stat; the copy itself enforces the limit
	ref, err := s.sink.Put(ctx, jobID.String()+"-"+base, &cappedReader{r: f, left: s.maxBytes})
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			s.logger.Warn("upload rejected", "path", abs, "reason", "size", "max_bytes", s.maxBytes)
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("store upload: %w", err)
	}

	job, err := s.jobs.Create(ctx, jobID, ownerID, ref)
	if err != nil {
		if delErr := s.sink.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			s.logger.Error("orphaned upload", "ref", ref, "error", delErr)
		}
		return nil, err
	}
	s.logger.Info("upload accepted", "job_id", job.ID, "owner_id", ownerID, "file_ref", ref, "bytes", info.Size())
	return job, nil
}

// cappedReader fails with ErrTooLarge once more than left bytes are read.
type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.left < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.left+1 {
		p = p[:c.left+1]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

// sniff accepts OOXML workbooks and any other zip container. Macro-enabled
// workbooks are reported as plain zip by the detector.
func sniff(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect content type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(constants.SpreadsheetMIME) || m.Is("application/zip") {
			return nil
		}
	}
	return common.NewAppError("UNSUPPORTED_FILE", "file content is "+mt.String()+", not an Excel workbook", common.ErrInvalidInput)
}
