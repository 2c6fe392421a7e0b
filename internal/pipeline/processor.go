// Package pipeline settles one claimed job: fetch, parse, aggregate, finalize, notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/orders-tracker/internal/aggregate"
	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/notify"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
	"github.com/joseph-ayodele/orders-tracker/internal/sheet"
	"github.com/joseph-ayodele/orders-tracker/internal/storage"
)

// Notifier delivers the outcome of a finalized job.
type Notifier interface {
	Notify(ctx context.Context, job *entity.Job) notify.Report
}

// Processor runs claimed jobs to a terminal state under a single worker id.
type Processor struct {
	workerID string
	jobs     repository.JobRepository
	files    storage.Source
	parser   sheet.Parser
	notifier Notifier
	logger   *slog.Logger
}

func NewProcessor(workerID string, jobs repository.JobRepository, files storage.Source, parser sheet.Parser, notifier Notifier, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		workerID: workerID,
		jobs:     jobs,
		files:    files,
		parser:   parser,
		notifier: notifier,
		logger:   logger,
	}
}

// WorkerID is the id recorded in claimed_by for jobs this processor claims.
func (p *Processor) WorkerID() string { return p.workerID }

// ProcessNext claims the oldest pending job and settles it. It reports
// whether a job was claimed. A returned error with claimed=false is a store
// failure during claim; with claimed=true the job could not be finalized and
// stays in processing.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.jobs.Claim(ctx, p.workerID)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if job == nil {
		return false, nil
	}

	start := time.Now()
	log := p.logger.With("job_id", job.ID, "owner_id", job.OwnerID, "worker_id", p.workerID)
	ctx = common.WithLogger(common.WithJobID(ctx, job.ID.String()), log)
	log.Info("processing job", "file_ref", job.FileRef)

	final, err := p.settle(ctx, job)
	if err != nil {
		log.Error("job left in processing", "error", err)
		return true, err
	}

	rep := p.notifier.Notify(ctx, final)
	log.Info("job settled",
		"status", final.Status,
		"email_sent", rep.EmailSent,
		"pushed", rep.Pushed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true, nil
}

// settle writes exactly one terminal state for job and returns the stored record.
func (p *Processor) settle(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	log := common.LoggerFromContext(ctx, p.logger)

	metrics, runErr := p.run(ctx, job)
	if runErr == nil {
		done, err := p.jobs.FinishSuccess(ctx, job.ID, p.workerID, metrics)
		if err == nil {
			return done, nil
		}
		runErr = fmt.Errorf("failed to save results: %w", err)
	}

	log.Warn("job failed", "error", runErr)
	failed, err := p.jobs.FinishFailure(ctx, job.ID, p.workerID, errorDetail(runErr))
	if err != nil {
		return nil, fmt.Errorf("record failure %q: %w", runErr.Error(), err)
	}
	return failed, nil
}

func (p *Processor) run(ctx context.Context, job *entity.Job) (m entity.Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.NewAppError("PANIC", fmt.Sprintf("processing panicked: %v", r), common.ErrInternal)
		}
	}()

	path, cleanup, err := p.files.Fetch(ctx, job.FileRef)
	if err != nil {
		return m, err
	}
	defer cleanup()

	rows, err := p.parser.Parse(ctx, path)
	if err != nil {
		return m, err
	}
	common.LoggerFromContext(ctx, p.logger).Debug("parsed rows", "rows", len(rows))
	m = aggregate.Aggregate(rows)
	return m, aggregate.Check(m)
}

// errorDetail picks the user-facing message stored on a failed job.
func errorDetail(err error) string {
	var pe *sheet.ParseError
	if errors.As(err, &pe) {
		return pe.Message
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
