package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/constants"
)

type WatchConfig struct {
	Root            string    // drop folder, watched recursively; must not be the upload dir
	OwnerID         uuid.UUID // owner of every job submitted from Root
	InitialScan     bool      // submit files already present at start
	Debounce        time.Duration
	RemoveSubmitted bool // delete the dropped file once its job is queued
}

const defaultDebounce = 500 * time.Millisecond

// Watch submits workbooks as they appear under cfg.Root until ctx is done.
// Bursts of create/write events on a path are coalesced so a file is read
// after the writer goes quiet.
func (s *Service) Watch(ctx context.Context, cfg WatchConfig) error {
	if cfg.Root == "" {
		return errors.New("watch root is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			s.logger.Warn("close watcher failed", "error", err)
		}
	}()

	pending := map[string]struct{}{}
	addDir := func(root string, scan bool) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if scan && droppable(path) {
				pending[path] = struct{}{}
			}
			return nil
		})
	}
	if err := addDir(cfg.Root, cfg.InitialScan); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.Root, err)
	}
	s.logger.Info("watching drop folder", "root", cfg.Root, "owner_id", cfg.OwnerID)

	flush := func() {
		for path := range pending {
			delete(pending, path)
			s.submitDropped(ctx, cfg, path)
		}
	}
	flush()

	timer := time.NewTimer(cfg.Debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Has(fsnotify.Create) {
				if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
					// files created before Add are picked up by the scan
					if err := addDir(e.Name, true); err != nil {
						s.logger.Warn("failed to watch new directory", "path", e.Name, "error", err)
					}
				}
			}
			if droppable(e.Name) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
				pending[e.Name] = struct{}{}
			}
			if len(pending) > 0 {
				timer.Reset(cfg.Debounce)
				fire = timer.C
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		case <-fire:
			fire = nil
			flush()
		}
	}
}

func (s *Service) submitDropped(ctx context.Context, cfg WatchConfig, path string) {
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return
	}
	job, err := s.Submit(ctx, cfg.OwnerID, path)
	if err != nil {
		s.logger.Warn("dropped file not submitted", "path", path, "error", err)
		return
	}
	if cfg.RemoveSubmitted {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove submitted file", "path", path, "job_id", job.ID, "error", err)
		}
	}
}

func droppable(path string) bool {
	return !isHidden(path) && constants.IsAllowedExt(filepath.Ext(path))
}
