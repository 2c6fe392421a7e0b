package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/notify"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
	"github.com/joseph-ayodele/orders-tracker/internal/sheet"
	"github.com/joseph-ayodele/orders-tracker/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []*entity.Job
}

func (n *recordingNotifier) Notify(_ context.Context, job *entity.Job) notify.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return notify.Report{EmailSent: true, Pushed: true}
}

type harness struct {
	db        *repository.DB
	jobs      repository.JobRepository
	owner     *entity.User
	uploadDir string
	notifier  *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "orders.db")}, discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repository.Close(db, discard) })
	if err := repository.Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	owner, err := repository.NewUserRepository(db, discard).Create(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return &harness{
		db:        db,
		jobs:      repository.NewJobRepository(db, discard),
		owner:     owner,
		uploadDir: t.TempDir(),
		notifier:  &recordingNotifier{},
	}
}

func (h *harness) processor(parser sheet.Parser) *Processor {
	return NewProcessor("test-worker", h.jobs, storage.NewLocal(h.uploadDir), parser, h.notifier, discard)
}

// submit writes rows (header first) into the upload dir and queues a job for it.
func (h *harness) submit(t *testing.T, name string, rows ...[]any) *entity.Job {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(filepath.Join(h.uploadDir, name)); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	job, err := h.jobs.Create(context.Background(), uuid.New(), h.owner.ID, name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

// saveFails loses every FinishSuccess, as a full disk would.
type saveFails struct{ repository.JobRepository }

func (saveFails) FinishSuccess(context.Context, uuid.UUID, string, entity.Metrics) (*entity.Job, error) {
	return nil, errors.New("disk full")
}

var inProcess = sheet.ParserFunc(func(_ context.Context, path string) ([]sheet.Row, error) {
	return sheet.Parse(path)
})

func TestProcessNextCompletesJob(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "orders.xlsx",
		[]any{"Product", "Quantity", "Price"},
		[]any{"A", 2, 10.5},
		[]any{"B", 1, 5},
	)

	claimed, err := h.processor(inProcess).ProcessNext(context.Background())
	if err != nil || !claimed {
		t.Fatalf("ProcessNext = %v, %v", claimed, err)
	}

	stored, _ := h.jobs.GetByID(context.Background(), job.ID)
	if stored.Status != constants.JobStatusCompleted {
		t.Fatalf("status = %s (%v)", stored.Status, stored.ErrorDetail)
	}
	want := entity.Metrics{TotalRevenue: 26, TotalItems: 3, AverageOrderValue: 13}
	if stored.Metrics == nil || *stored.Metrics != want {
		t.Fatalf("metrics = %+v, want %+v", stored.Metrics, want)
	}
	if len(h.notifier.jobs) != 1 || h.notifier.jobs[0].Status != constants.JobStatusCompleted {
		t.Fatalf("notified = %+v", h.notifier.jobs)
	}
}

func TestProcessNextFailures(t *testing.T) {
	tests := []struct {
		name       string
		rows       [][]any
		fileRef    string
		parser     sheet.Parser
		wrapJobs   func(repository.JobRepository) repository.JobRepository
		wantDetail string
	}{
		{
			name:       "schema rejected",
			rows:       [][]any{{"Name", "Cost"}, {"A", 3}},
			parser:     inProcess,
			wantDetail: "invalid format",
		},
		{
			name:       "empty file",
			rows:       [][]any{{"Product", "Quantity", "Price"}},
			parser:     inProcess,
			wantDetail: "empty file",
		},
		{
			name:       "missing upload",
			fileRef:    "gone.xlsx",
			parser:     inProcess,
			wantDetail: "does not exist",
		},
		{
			name: "parser io error",
			rows: [][]any{{"Product", "Quantity", "Price"}, {"A", 1, 1}},
			parser: sheet.ParserFunc(func(context.Context, string) ([]sheet.Row, error) {
				return nil, &sheet.ParseError{Kind: sheet.KindIO, Message: "parser timed out after 30s"}
			}),
			wantDetail: "parser timed out",
		},
		{
			name: "panic is contained",
			rows: [][]any{{"Product", "Quantity", "Price"}, {"A", 1, 1}},
			parser: sheet.ParserFunc(func(context.Context, string) ([]sheet.Row, error) {
				panic("nil map")
			}),
			wantDetail: "processing panicked: nil map",
		},
		{
			name:       "totals overflow",
			rows:       [][]any{{"Product", "Quantity", "Price"}, {"A", "1e200", "1e200"}},
			parser:     inProcess,
			wantDetail: "order totals exceed the representable range",
		},
		{
			name:       "saving metrics fails",
			rows:       [][]any{{"Product", "Quantity", "Price"}, {"A", 2, 10.5}},
			parser:     inProcess,
			wrapJobs:   func(r repository.JobRepository) repository.JobRepository { return saveFails{r} },
			wantDetail: "failed to save results: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var job *entity.Job
			if tt.fileRef != "" {
				job, _ = h.jobs.Create(context.Background(), uuid.New(), h.owner.ID, tt.fileRef)
			} else {
				job = h.submit(t, "upload.xlsx", tt.rows...)
			}

			p := h.processor(tt.parser)
			if tt.wrapJobs != nil {
				p = NewProcessor("test-worker", tt.wrapJobs(h.jobs), storage.NewLocal(h.uploadDir), tt.parser, h.notifier, discard)
			}
			claimed, err := p.ProcessNext(context.Background())
			if err != nil || !claimed {
				t.Fatalf("ProcessNext = %v, %v", claimed, err)
			}
			stored, _ := h.jobs.GetByID(context.Background(), job.ID)
			if stored.Status != constants.JobStatusFailed {
				t.Fatalf("status = %s", stored.Status)
			}
			if stored.Metrics != nil {
				t.Errorf("failed job has metrics %+v", stored.Metrics)
			}
			if stored.ErrorDetail == nil || !strings.Contains(*stored.ErrorDetail, tt.wantDetail) {
				t.Errorf("error_detail = %v, want it to contain %q", stored.ErrorDetail, tt.wantDetail)
			}
			if len(h.notifier.jobs) != 1 || h.notifier.jobs[0].Status != constants.JobStatusFailed {
				t.Errorf("notified = %+v", h.notifier.jobs)
			}
		})
	}
}

func TestProcessNextIdle(t *testing.T) {
	h := newHarness(t)
	claimed, err := h.processor(inProcess).ProcessNext(context.Background())
	if err != nil || claimed {
		t.Fatalf("ProcessNext = %v, %v; want idle", claimed, err)
	}
	if len(h.notifier.jobs) != 0 {
		t.Fatal("notified without a job")
	}
}

func TestProcessNextStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	repository.Close(h.db, discard)
	claimed, err := h.processor(inProcess).ProcessNext(context.Background())
	if claimed || !errors.Is(err, common.ErrDatabase) {
		t.Fatalf("ProcessNext = %v, %v; want a database claim error", claimed, err)
	}
}

func TestProcessNextIsFIFO(t *testing.T) {
	h := newHarness(t)
	header := []any{"Product", "Quantity", "Price"}
	first := h.submit(t, "first.xlsx", header, []any{"A", 1, 1})
	time.Sleep(5 * time.Millisecond)
	second := h.submit(t, "second.xlsx", header, []any{"B", 1, 2})

	p := h.processor(inProcess)
	for i := 0; i < 2; i++ {
		if _, err := p.ProcessNext(context.Background()); err != nil {
			t.Fatalf("ProcessNext: %v", err)
		}
	}
	if len(h.notifier.jobs) != 2 || h.notifier.jobs[0].ID != first.ID || h.notifier.jobs[1].ID != second.ID {
		t.Fatalf("settle order = %v", h.notifier.jobs)
	}
}

func TestErrorDetail(t *testing.T) {
	pe := &sheet.ParseError{Kind: sheet.KindSchemaInvalid, Message: "invalid format: missing price column(s) in the first row"}
	if got := errorDetail(errors.Join(errors.New("ctx"), pe)); got != pe.Message {
		t.Errorf("errorDetail = %q", got)
	}
	if got := errorDetail(errors.New("plain")); got != "plain" {
		t.Errorf("errorDetail = %q", got)
	}
}
