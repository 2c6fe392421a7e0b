package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "orders.db"),
		DialTimeout: 5 * time.Second,
	}, discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { Close(db, discard) })
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func newOwner(t *testing.T, db *DB) *entity.User {
	t.Helper()
	u, err := NewUserRepository(db, discard).Create(context.Background(), uuid.NewString()[:8]+"@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestClaimReturnsNilWhenIdle(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), discard)
	job, err := repo.Claim(context.Background(), "w1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job, got %v", job.ID)
	}
}

func TestClaimIsFIFOBySubmittedAt(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newOwner(t, db)
	repo := NewJobRepository(db, discard).(*jobRepo)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newer, _ := repo.insert(ctx, uuid.New(), owner.ID, "newer.xlsx", base.Add(time.Minute))
	older, _ := repo.insert(ctx, uuid.New(), owner.ID, "older.xlsx", base)
	middle, _ := repo.insert(ctx, uuid.New(), owner.ID, "middle.xlsx", base.Add(30*time.Second))

	for _, want := range []*entity.Job{older, middle, newer} {
		got, err := repo.Claim(ctx, "w1")
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if got == nil || got.ID != want.ID {
			t.Fatalf("expected %s, got %+v", want.FileRef, got)
		}
		if got.Status != constants.JobStatusProcessing {
			t.Errorf("status = %s, want processing", got.Status)
		}
		if got.StartedAt == nil || got.ClaimedBy == nil || *got.ClaimedBy != "w1" {
			t.Errorf("claim bookkeeping not set: %+v", got)
		}
	}
	if got, _ := repo.Claim(ctx, "w1"); got != nil {
		t.Fatalf("expected queue to be drained, got %s", got.FileRef)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newOwner(t, db)
	repo := NewJobRepository(db, discard)
	job, err := repo.Create(ctx, uuid.New(), owner.ID, "orders.xlsx")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		worker := "w" + string(rune('a'+i))
		go func() {
			defer wg.Done()
			<-start
			got, err := repo.Claim(ctx, worker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if got != nil {
				if got.ID != job.ID {
					errs = append(errs, errors.New("claimed unexpected job"))
				}
				winners = append(winners, worker)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("claim errors: %v", errs)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	stored, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.ClaimedBy == nil || *stored.ClaimedBy != winners[0] {
		t.Errorf("claimed_by = %v, want %s", stored.ClaimedBy, winners[0])
	}
}

func TestFinishSuccess(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newOwner(t, db)
	repo := NewJobRepository(db, discard)
	created, _ := repo.Create(ctx, uuid.New(), owner.ID, "orders.xlsx")
	if _, err := repo.Claim(ctx, "w1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	m := entity.Metrics{TotalRevenue: 26, TotalItems: 3, AverageOrderValue: 13}
	if _, err := repo.FinishSuccess(ctx, created.ID, "w2", m); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("finish by another worker: err = %v, want ErrJobNotClaimed", err)
	}

	done, err := repo.FinishSuccess(ctx, created.ID, "w1", m)
	if err != nil {
		t.Fatalf("FinishSuccess: %v", err)
	}
	if done.Status != constants.JobStatusCompleted {
		t.Errorf("status = %s", done.Status)
	}
	if done.Metrics == nil || *done.Metrics != m {
		t.Errorf("metrics = %+v, want %+v", done.Metrics, m)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if done.ErrorDetail != nil {
		t.Errorf("error_detail = %q on completed job", *done.ErrorDetail)
	}
}

func TestFinishSuccessRejectsNegativeMetrics(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newOwner(t, db)
	repo := NewJobRepository(db, discard)
	created, _ := repo.Create(ctx, uuid.New(), owner.ID, "orders.xlsx")
	_, _ = repo.Claim(ctx, "w1")

	_, err := repo.FinishSuccess(ctx, created.ID, "w1", entity.Metrics{TotalRevenue: -1})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	stored, _ := repo.GetByID(ctx, created.ID)
	if stored.Status != constants.JobStatusProcessing {
		t.Fatalf("status = %s, want processing", stored.Status)
	}
}

func TestFinishFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newOwner(t, db)
	repo := NewJobRepository(db, discard)
	created, _ := repo.Create(ctx, uuid.New(), owner.ID, "orders.xlsx")

	if _, err := repo.FinishFailure(ctx, created.ID, "w1", "boom"); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("finish on pending job: err = %v, want ErrJobNotClaimed", err)
	}
	_, _ = repo.Claim(ctx, "w1")

	failed, err := repo.FinishFailure(ctx, created.ID, "w1", "invalid format: missing quantity column")
	if err != nil {
		t.Fatalf("FinishFailure: %v", err)
	}
	if failed.Status != constants.JobStatusFailed {
		t.Errorf("status = %s", failed.Status)
	}
	if failed.ErrorDetail == nil || *failed.ErrorDetail != "invalid format: missing quantity column" {
		t.Errorf("error_detail = %v", failed.ErrorDetail)
	}
	if failed.Metrics != nil {
		t.Errorf("metrics set on failed job: %+v", failed.Metrics)
	}
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newOwner(t, db)
	repo := NewJobRepository(db, discard)
	created, _ := repo.Create(ctx, uuid.New(), owner.ID, "orders.xlsx")
	_, _ = repo.Claim(ctx, "w1")
	done, err := repo.FinishSuccess(ctx, created.ID, "w1", entity.Metrics{TotalRevenue: 5, TotalItems: 1, AverageOrderValue: 5})
	if err != nil {
		t.Fatalf("FinishSuccess: %v", err)
	}

	if got, _ := repo.Claim(ctx, "w1"); got != nil {
		t.Fatalf("terminal job was claimed again")
	}
	if _, err := repo.FinishFailure(ctx, created.ID, "w1", "late"); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("FinishFailure on completed job: err = %v", err)
	}
	if _, err := repo.FinishSuccess(ctx, created.ID, "w1", entity.Metrics{}); !errors.Is(err, ErrJobNotClaimed) {
		t.Fatalf("FinishSuccess on completed job: err = %v", err)
	}

	after, _ := repo.GetByID(ctx, created.ID)
	if after.Status != done.Status || *after.Metrics != *done.Metrics || !after.CompletedAt.Equal(*done.CompletedAt) || after.ErrorDetail != nil {
		t.Fatalf("terminal job changed: before %+v after %+v", done, after)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), discard)
	_, err := repo.GetByID(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreFailuresAreDatabaseErrors(t *testing.T) {
	db := newTestDB(t)
	owner := newOwner(t, db)
	jobs := NewJobRepository(db, discard)
	users := NewUserRepository(db, discard)
	Close(db, discard)

	ctx := context.Background()
	if _, err := jobs.Claim(ctx, "w1"); !errors.Is(err, common.ErrDatabase) {
		t.Errorf("Claim err = %v, want ErrDatabase", err)
	}
	if _, err := jobs.Create(ctx, uuid.New(), owner.ID, "orders.xlsx"); !errors.Is(err, common.ErrDatabase) {
		t.Errorf("Create err = %v, want ErrDatabase", err)
	}
	if _, _, err := jobs.List(ctx, JobFilter{}); !errors.Is(err, common.ErrDatabase) {
		t.Errorf("List err = %v, want ErrDatabase", err)
	}
	_, err := users.GetByID(ctx, owner.ID)
	if !errors.Is(err, common.ErrDatabase) || errors.Is(err, common.ErrNotFound) {
		t.Errorf("GetByID err = %v, want ErrDatabase only", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := newOwner(t, db)
	bob := newOwner(t, db)
	repo := NewJobRepository(db, discard).(*jobRepo)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, ref := range []string{"jan.xlsx", "feb.xlsx", "march-orders.xlsx"} {
		if _, err := repo.insert(ctx, uuid.New(), alice.ID, ref, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := repo.insert(ctx, uuid.New(), bob.ID, "bob.xlsx", base.Add(10*time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	claimed, _ := repo.Claim(ctx, "w1") // jan.xlsx

	tests := []struct {
		name      string
		filter    JobFilter
		wantRefs  []string
		wantTotal int
	}{
		{"all newest first", JobFilter{}, []string{"bob.xlsx", "march-orders.xlsx", "feb.xlsx", "jan.xlsx"}, 4},
		{"owner", JobFilter{OwnerID: alice.ID}, []string{"march-orders.xlsx", "feb.xlsx", "jan.xlsx"}, 3},
		{"status", JobFilter{Statuses: []constants.JobStatus{constants.JobStatusProcessing}}, []string{claimed.FileRef}, 1},
		{"search is case-insensitive", JobFilter{Search: "MARCH"}, []string{"march-orders.xlsx"}, 1},
		{"window", JobFilter{SubmittedFrom: base.Add(30 * time.Minute), SubmittedTo: base.Add(90 * time.Minute)}, []string{"feb.xlsx"}, 1},
		{"page two", JobFilter{Page: 2, Limit: 3}, []string{"jan.xlsx"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, total, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			var refs []string
			for _, j := range jobs {
				refs = append(refs, j.FileRef)
			}
			if len(refs) != len(tt.wantRefs) {
				t.Fatalf("refs = %v, want %v", refs, tt.wantRefs)
			}
			for i := range refs {
				if refs[i] != tt.wantRefs[i] {
					t.Fatalf("refs = %v, want %v", refs, tt.wantRefs)
				}
			}
		})
	}
}
