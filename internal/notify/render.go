package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	printer       = message.NewPrinter(language.English)
)

type reportView struct {
	FileName          string
	ProcessedAt       string
	TotalRevenue      string
	TotalItems        string
	AverageOrderValue string
	Error             string
}

// Render builds the outcome email for a terminal job.
func Render(job *entity.Job) (subject, text, html string, err error) {
	view := reportView{FileName: job.FileName()}
	var name string
	switch job.Status {
	case constants.JobStatusCompleted:
		name = "completed"
		subject = "Upload Processing Completed: " + view.FileName
		if job.Metrics != nil {
			view.TotalRevenue = printer.Sprintf("%.2f", job.Metrics.TotalRevenue)
			view.TotalItems = printer.Sprintf("%v", job.Metrics.TotalItems)
			view.AverageOrderValue = printer.Sprintf("%.2f", job.Metrics.AverageOrderValue)
		}
		if job.CompletedAt != nil {
			view.ProcessedAt = job.CompletedAt.UTC().Format("Jan 2, 2006, 3:04 PM UTC")
		}
	case constants.JobStatusFailed:
		name = "failed"
		subject = "Upload Processing Failed: " + view.FileName
		if job.ErrorDetail != nil {
			view.Error = *job.ErrorDetail
		}
	default:
		return "", "", "", fmt.Errorf("no email template for job state %s", job.Status)
	}

	var tb, hb bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&tb, name+".txt.tmpl", view); err != nil {
		return "", "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTemplates.ExecuteTemplate(&hb, name+".html.tmpl", view); err != nil {
		return "", "", "", fmt.Errorf("render html body: %w", err)
	}
	return subject, tb.String(), hb.String(), nil
}
