// Package export writes job reports as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
)

const sheet = "Jobs"

// pageSize is the List page used while collecting rows.
const pageSize = 200

var headers = []string{
	"Submitted (UTC)",
	"File",
	"Status",
	"Total Revenue",
	"Total Items",
	"Average Order Value",
	"Completed (UTC)",
	"Error",
	"Job ID",
}

type Service struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

func NewService(jobs repository.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportJobsXLSX returns a workbook with every job matching filter, newest
// first. Page and Limit on filter are ignored.
func (s *Service) ExportJobsXLSX(ctx context.Context, filter repository.JobFilter) ([]byte, error) {
	start := time.Now()

	var jobs []*entity.Job
	filter.Limit = pageSize
	for filter.Page = 1; ; filter.Page++ {
		page, total, err := s.jobs.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("query jobs: %w", err)
		}
		jobs = append(jobs, page...)
		if len(page) == 0 || len(jobs) >= total {
			break
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, err
	}
	_ = f.SetRowStyle(sheet, 1, 1, bold)

	for i, j := range jobs {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &[]any{
			j.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
			j.FileName(),
			string(j.Status),
			metric(j, func(m entity.Metrics) float64 { return m.TotalRevenue }),
			metric(j, func(m entity.Metrics) float64 { return m.TotalItems }),
			metric(j, func(m entity.Metrics) float64 { return m.AverageOrderValue }),
			timestamp(j.CompletedAt),
			deref(j.ErrorDetail),
			j.ID.String(),
		}); err != nil {
			return nil, err
		}
	}
	if len(jobs) > 0 {
		last := len(jobs) + 1
		_ = f.SetCellStyle(sheet, "D2", fmt.Sprintf("D%d", last), money)
		_ = f.SetCellStyle(sheet, "F2", fmt.Sprintf("F%d", last), money)
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // submitted
	_ = f.SetColWidth(sheet, "B", "B", 32) // file
	_ = f.SetColWidth(sheet, "C", "C", 12)
	_ = f.SetColWidth(sheet, "D", "F", 18) // metrics
	_ = f.SetColWidth(sheet, "G", "G", 20)
	_ = f.SetColWidth(sheet, "H", "H", 48) // error
	_ = f.SetColWidth(sheet, "I", "I", 38)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("jobs exported",
		"owner_id", filter.OwnerID,
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// metric leaves the cell empty for jobs without metrics.
func metric(j *entity.Job, pick func(entity.Metrics) float64) any {
	if j.Metrics == nil {
		return nil
	}
	return pick(*j.Metrics)
}

func timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
