package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/constants"
)

type FileResult struct {
	Path  string
	JobID uuid.UUID
	Err   string
}

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Submitted uint32
	Failed    uint32
}

// SubmitDirectory walks root and submits every workbook with an allowed
// extension. Per-file failures are recorded in the results and do not stop the walk.
func (s *Service) SubmitDirectory(ctx context.Context, ownerID uuid.UUID, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constants.IsAllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		job, err := s.Submit(ctx, ownerID, path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: path, JobID: job.ID})
		stats.Submitted++
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	s.logger.Info("directory submitted", "root", root, "matched", stats.Matched, "submitted", stats.Submitted, "failed", stats.Failed)
	return results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
