package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestExportJobsXLSX(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "orders.db")}, discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repository.Close(db, discard)
	if err := repository.Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	owner, err := repository.NewUserRepository(db, discard).Create(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	jobs := repository.NewJobRepository(db, discard)

	done, _ := jobs.Create(ctx, uuid.New(), owner.ID, "march.xlsx")
	bad, _ := jobs.Create(ctx, uuid.New(), owner.ID, "broken.xlsx")
	for range 2 {
		if _, err := jobs.Claim(ctx, "w1"); err != nil {
			t.Fatalf("Claim: %v", err)
		}
	}
	if _, err := jobs.FinishSuccess(ctx, done.ID, "w1", entity.Metrics{TotalRevenue: 1234.5, TotalItems: 3, AverageOrderValue: 411.5}); err != nil {
		t.Fatalf("FinishSuccess: %v", err)
	}
	if _, err := jobs.FinishFailure(ctx, bad.ID, "w1", "empty file: the sheet has no data rows"); err != nil {
		t.Fatalf("FinishFailure: %v", err)
	}
	if _, err := jobs.Create(ctx, uuid.New(), owner.ID, "april.xlsx"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	data, err := NewService(jobs, discard).ExportJobsXLSX(ctx, repository.JobFilter{OwnerID: owner.ID, Limit: 1})
	if err != nil {
		t.Fatalf("ExportJobsXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3 jobs", len(rows))
	}
	if rows[0][0] != headers[0] || rows[0][3] != "Total Revenue" {
		t.Fatalf("header = %v", rows[0])
	}

	byFile := map[string][]string{}
	for _, r := range rows[1:] {
		byFile[r[1]] = r
	}
	if r := byFile["march.xlsx"]; r[2] != "completed" || r[3] != "1,234.50" || r[4] != "3" {
		t.Errorf("completed row = %v", r)
	}
	if r := byFile["broken.xlsx"]; r[2] != "failed" || len(r) < 8 || r[7] != "empty file: the sheet has no data rows" {
		t.Errorf("failed row = %v", r)
	}
	if r := byFile["april.xlsx"]; r[2] != "pending" || (len(r) > 3 && r[3] != "") {
		t.Errorf("pending row = %v", r)
	}
}
