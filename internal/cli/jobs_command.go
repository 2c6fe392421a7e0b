package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/export"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type jobsPage struct {
	Jobs  []*entity.Job `json:"jobs"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
}

func runJobs(args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	owner := fs.String("owner", "", "only jobs of this owner (id or email)")
	status := fs.String("status", "", "comma-separated states: pending,processing,completed,failed")
	search := fs.String("search", "", "case-insensitive file name match")
	from := fs.String("from", "", "submitted at or after (YYYY-MM-DD or RFC 3339)")
	to := fs.String("to", "", "submitted at or before (YYYY-MM-DD or RFC 3339)")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 10, "jobs per page")
	jsonOut := fs.Bool("json", false, "print JSON output")
	exportPath := fs.String("export", "", "write every matching job to this .xlsx file instead of printing a page")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := repository.JobFilter{Search: strings.TrimSpace(*search), Page: *page, Limit: *limit}
	for _, raw := range strings.Split(*status, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		st := constants.JobStatus(strings.ToLower(raw))
		if !st.Valid() {
			return fmt.Errorf("unknown status %q", raw)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	var err error
	if filter.SubmittedFrom, err = parseTime(*from, false); err != nil {
		return err
	}
	if filter.SubmittedTo, err = parseTime(*to, true); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if *owner != "" {
		u, err := s.resolveOwner(ctx, *owner)
		if err != nil {
			return err
		}
		filter.OwnerID = u.ID
	}

	if *exportPath != "" {
		data, err := export.NewService(s.jobs, s.logger).ExportJobsXLSX(ctx, filter)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*exportPath, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(stdout, "exported to %s\n", *exportPath)
		return nil
	}

	jobs, total, err := s.jobs.List(ctx, filter)
	if err != nil {
		return err
	}
	res := jobsPage{Jobs: jobs, Total: total, Page: max(*page, 1), Pages: pageCount(total, *limit)}
	if *jsonOut {
		return printJSON(res)
	}
	if total == 0 {
		fmt.Fprintln(stdout, mutedStyle.Render("no jobs match"))
		return nil
	}
	fmt.Fprintln(stdout, renderJobsTable(jobs))
	fmt.Fprintln(stdout, mutedStyle.Render(fmt.Sprintf("page %d of %d (%d jobs)", res.Page, res.Pages, total)))
	return nil
}

func pageCount(total, limit int) int {
	if limit <= 0 {
		limit = 10
	}
	if total == 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

func renderJobsTable(jobs []*entity.Job) string {
	p := message.NewPrinter(language.English)
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		revenue, items, aov, detail := "", "", "", ""
		if j.Metrics != nil {
			revenue = p.Sprintf("%.2f", j.Metrics.TotalRevenue)
			items = p.Sprintf("%.0f", j.Metrics.TotalItems)
			aov = p.Sprintf("%.2f", j.Metrics.AverageOrderValue)
		}
		if j.ErrorDetail != nil {
			detail = truncate(*j.ErrorDetail, 48)
		}
		rows = append(rows, []string{
			j.ID.String()[:8],
			truncate(j.FileName(), 32),
			string(j.Status),
			j.SubmittedAt.Local().Format("2006-01-02 15:04"),
			revenue,
			items,
			aov,
			detail,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "FILE", "STATUS", "SUBMITTED", "REVENUE", "ITEMS", "AOV", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(jobs) {
				return statusStyle(jobs[row].Status).Padding(0, 1)
			}
			return cellStyle
		})
	return t.String()
}

func statusStyle(s constants.JobStatus) lipgloss.Style {
	switch s {
	case constants.JobStatusCompleted:
		return completedStyle
	case constants.JobStatusFailed:
		return errorStyle
	default:
		return activeStyle
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
