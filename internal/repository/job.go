package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

var (
	ErrJobNotFound   = common.NewAppError("JOB_NOT_FOUND", "job not found", common.ErrNotFound)
	ErrJobNotClaimed = common.NewAppError("JOB_NOT_CLAIMED", "job is not processing under this worker", common.ErrConflict)
)

// claimAttempts bounds how often Claim re-selects after losing a race.
const claimAttempts = 5

// JobFilter narrows List results. Zero values mean "no constraint".
type JobFilter struct {
	OwnerID       uuid.UUID
	Statuses      []constants.JobStatus
	Search        string // case-insensitive substring of file_ref
	SubmittedFrom time.Time
	SubmittedTo   time.Time
	Page          int // 1-based
	Limit         int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 200
)

type JobRepository interface {
	Create(ctx context.Context, jobID, ownerID uuid.UUID, fileRef string) (*entity.Job, error)
	Claim(ctx context.Context, workerID string) (*entity.Job, error)
	FinishSuccess(ctx context.Context, jobID uuid.UUID, workerID string, metrics entity.Metrics) (*entity.Job, error)
	FinishFailure(ctx context.Context, jobID uuid.UUID, workerID, detail string) (*entity.Job, error)
	GetByID(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, filter JobFilter) ([]*entity.Job, int, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

var jobColumnNames = columns(jobsColumns)

func (r *jobRepo) Create(ctx context.Context, jobID, ownerID uuid.UUID, fileRef string) (*entity.Job, error) {
	return r.insert(ctx, jobID, ownerID, fileRef, time.Now().UTC())
}

func (r *jobRepo) insert(ctx context.Context, jobID, ownerID uuid.UUID, fileRef string, submittedAt time.Time) (*entity.Job, error) {
	if err := common.NewValidator().
		Field("job_id", jobID, common.Required).
		Field("owner_id", ownerID, common.Required).
		Field("file_ref", fileRef, common.Required).
		Err("INVALID_JOB"); err != nil {
		return nil, err
	}

	q, args := r.db.builder().Insert(jobsTableName).
		Columns("id", "owner_id", "file_ref", "state", "submitted_at").
		Values(jobID, ownerID, fileRef, string(constants.JobStatusPending), submittedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("job create failed", "job_id", jobID, "owner_id", ownerID, "error", err)
		return nil, fmt.Errorf("create job: %w", err)
	}
	r.log.Info("job created", "job_id", jobID, "owner_id", ownerID, "file_ref", fileRef)
	return &entity.Job{
		ID:          jobID,
		OwnerID:     ownerID,
		FileRef:     fileRef,
		Status:      constants.JobStatusPending,
		SubmittedAt: submittedAt,
	}, nil
}

// Claim moves the oldest pending job to processing under workerID.
// The UPDATE is guarded on state = 'pending', so among concurrent claimers
// exactly one sees a row affected. It returns (nil, nil) when nothing is pending.
func (r *jobRepo) Claim(ctx context.Context, workerID string) (*entity.Job, error) {
	if workerID == "" {
		return nil, common.NewAppError("INVALID_WORKER", "worker id is required", common.ErrInvalidInput)
	}
	for attempt := 1; attempt <= claimAttempts; attempt++ {
		jobID, ok, err := r.oldestPending(ctx)
		if err != nil {
			return nil, fmt.Errorf("select pending job: %w", err)
		}
		if !ok {
			return nil, nil
		}

		q, args := r.db.builder().Update(jobsTableName).
			Set("state", string(constants.JobStatusProcessing)).
			Set("started_at", time.Now().UTC()).
			Set("claimed_by", workerID).
			Where(entsql.And(
				entsql.EQ("id", jobID),
				entsql.EQ("state", string(constants.JobStatusPending)),
			)).
			Query()
		n, err := r.db.exec(ctx, q, args)
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", jobID, err)
		}
		if n == 1 {
			job, err := r.GetByID(ctx, jobID)
			if err != nil {
				return nil, err
			}
			r.log.Info("job claimed", "job_id", jobID, "worker_id", workerID, "attempt", attempt)
			return job, nil
		}
		r.log.Debug("job claim lost race", "job_id", jobID, "worker_id", workerID, "attempt", attempt)
	}
	return nil, nil
}

func (r *jobRepo) oldestPending(ctx context.Context) (uuid.UUID, bool, error) {
	b := r.db.builder()
	q, args := b.Select("id").
		From(b.Table(jobsTableName)).
		Where(entsql.EQ("state", string(constants.JobStatusPending))).
		OrderBy(entsql.Asc("submitted_at"), entsql.Asc("id")).
		Limit(1).
		Query()
	rows, err := r.db.query(ctx, q, args)
	if err != nil {
		return uuid.Nil, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return uuid.Nil, false, storeError(rows.Err())
	}
	var id uuid.UUID
	if err := rows.Scan(&id); err != nil {
		return uuid.Nil, false, storeError(err)
	}
	return id, true, nil
}

// FinishSuccess completes a job claimed by workerID and records its metrics.
func (r *jobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, workerID string, m entity.Metrics) (*entity.Job, error) {
	for name, v := range map[string]float64{
		"total_revenue":       m.TotalRevenue,
		"total_items":         m.TotalItems,
		"average_order_value": m.AverageOrderValue,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, common.NewAppError("INVALID_METRICS", fmt.Sprintf("%s must be a non-negative number, got %v", name, v), common.ErrInvalidInput)
		}
	}

	q, args := r.db.builder().Update(jobsTableName).
		Set("state", string(constants.JobStatusCompleted)).
		Set("completed_at", time.Now().UTC()).
		Set("total_revenue", m.TotalRevenue).
		Set("total_items", m.TotalItems).
		Set("average_order_value", m.AverageOrderValue).
		Where(claimedBy(jobID, workerID)).
		Query()
	if err := r.finish(ctx, jobID, workerID, q, args); err != nil {
		r.log.Error("job finish(completed) failed", "job_id", jobID, "worker_id", workerID, "error", err)
		return nil, err
	}
	r.log.Info("job finished (completed)", "job_id", jobID, "worker_id", workerID,
		"total_revenue", m.TotalRevenue, "total_items", m.TotalItems)
	return r.GetByID(ctx, jobID)
}

// FinishFailure fails a job claimed by workerID with a human-readable detail.
func (r *jobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, workerID, detail string) (*entity.Job, error) {
	if detail == "" {
		detail = "unknown error"
	}
	q, args := r.db.builder().Update(jobsTableName).
		Set("state", string(constants.JobStatusFailed)).
		Set("error_detail", detail).
		Where(claimedBy(jobID, workerID)).
		Query()
	if err := r.finish(ctx, jobID, workerID, q, args); err != nil {
		r.log.Error("job finish(failed) failed", "job_id", jobID, "worker_id", workerID, "error", err)
		return nil, err
	}
	r.log.Warn("job finished (failed)", "job_id", jobID, "worker_id", workerID, "error", detail)
	return r.GetByID(ctx, jobID)
}

func claimedBy(jobID uuid.UUID, workerID string) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("id", jobID),
		entsql.EQ("state", string(constants.JobStatusProcessing)),
		entsql.EQ("claimed_by", workerID),
	)
}

func (r *jobRepo) finish(ctx context.Context, jobID uuid.UUID, workerID, q string, args []any) error {
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		return fmt.Errorf("finalize job %s: %w", jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("finalize job %s by %s: %w", jobID, workerID, ErrJobNotClaimed)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	b := r.db.builder()
	q, args := b.Select(jobColumnNames...).
		From(b.Table(jobsTableName)).
		Where(entsql.EQ("id", jobID)).
		Query()
	jobs, err := r.queryJobs(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	return jobs[0], nil
}

// List returns one page of jobs, newest first, plus the total match count.
func (r *jobRepo) List(ctx context.Context, f JobFilter) ([]*entity.Job, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	b := r.db.builder()
	preds := f.predicates()

	countSel := b.Select(entsql.Count("*")).From(b.Table(jobsTableName))
	if len(preds) > 0 {
		countSel.Where(entsql.And(preds...))
	}
	q, args := countSel.Query()
	total, err := r.count(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	sel := b.Select(jobColumnNames...).From(b.Table(jobsTableName))
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	q, args = sel.
		OrderBy(entsql.Desc("submitted_at"), entsql.Desc("id")).
		Limit(limit).
		Offset((page - 1) * limit).
		Query()
	jobs, err := r.queryJobs(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

func (f JobFilter) predicates() []*entsql.Predicate {
	var preds []*entsql.Predicate
	if f.OwnerID != uuid.Nil {
		preds = append(preds, entsql.EQ("owner_id", f.OwnerID))
	}
	if len(f.Statuses) > 0 {
		states := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			states[i] = string(s)
		}
		preds = append(preds, entsql.In("state", states...))
	}
	if f.Search != "" {
		preds = append(preds, entsql.ContainsFold("file_ref", f.Search))
	}
	if !f.SubmittedFrom.IsZero() {
		preds = append(preds, entsql.GTE("submitted_at", f.SubmittedFrom.UTC()))
	}
	if !f.SubmittedTo.IsZero() {
		preds = append(preds, entsql.LTE("submitted_at", f.SubmittedTo.UTC()))
	}
	return preds
}

func (r *jobRepo) count(ctx context.Context, q string, args []any) (int, error) {
	rows, err := r.db.query(ctx, q, args)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, storeError(err)
		}
	}
	return n, storeError(rows.Err())
}

func (r *jobRepo) queryJobs(ctx context.Context, q string, args []any) ([]*entity.Job, error) {
	rows, err := r.db.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storeError(err)
		}
		jobs = append(jobs, job)
	}
	return jobs, storeError(rows.Err())
}

// scanJob reads one row selected with jobColumnNames.
func scanJob(s scanner) (*entity.Job, error) {
	var (
		job                    entity.Job
		state                  string
		startedAt, completedAt sql.NullTime
		claimedBy, errorDetail sql.NullString
		revenue, items, aov    sql.NullFloat64
	)
	err := s.Scan(
		&job.ID, &job.OwnerID, &job.FileRef, &state, &job.SubmittedAt,
		&startedAt, &claimedBy, &completedAt,
		&revenue, &items, &aov, &errorDetail,
	)
	if err != nil {
		return nil, err
	}

	job.Status = constants.JobStatus(state)
	if !job.Status.Valid() {
		return nil, errors.New("unknown job state " + state)
	}
	job.SubmittedAt = job.SubmittedAt.UTC()
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	if claimedBy.Valid {
		job.ClaimedBy = &claimedBy.String
	}
	if errorDetail.Valid {
		job.ErrorDetail = &errorDetail.String
	}
	if revenue.Valid {
		job.Metrics = &entity.Metrics{
			TotalRevenue:      revenue.Float64,
			TotalItems:        items.Float64,
			AverageOrderValue: aov.Float64,
		}
	}
	return &job, nil
}
