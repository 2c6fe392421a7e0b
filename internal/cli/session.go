package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
)

// session is one command's view of the store.
type session struct {
	cfg    *common.Config
	logger *slog.Logger
	db     *repository.DB
	users  repository.UserRepository
	jobs   repository.JobRepository
}

func openSession(ctx context.Context, verbose bool) (*session, error) {
	cfg := common.LoadConfig()
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := common.NewLogger(common.LogConfig{Level: level, Format: cfg.Log.Format}, os.Stderr)

	if cfg.Database.DSN == "" {
		return nil, errors.New("DB_URL is required")
	}
	db, err := repository.Open(ctx, repository.Config{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		MaxConns:    2,
		MinConns:    1,
		DialTimeout: cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			repository.Close(db, logger)
			return nil, err
		}
	}
	return &session{
		cfg:    cfg,
		logger: logger,
		db:     db,
		users:  repository.NewUserRepository(db, logger),
		jobs:   repository.NewJobRepository(db, logger),
	}, nil
}

func (s *session) Close() {
	repository.Close(s.db, s.logger)
}

// resolveOwner accepts an owner id or a registered email.
func (s *session) resolveOwner(ctx context.Context, ref string) (*entity.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("--owner is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		return s.users.GetByID(ctx, id)
	}
	u, err := s.users.GetByEmail(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("owner %s: %w", ref, err)
	}
	return u, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
