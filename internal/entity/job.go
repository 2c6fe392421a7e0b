package entity

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/constants"
)

// Metrics are the aggregate figures stored on a completed job.
type Metrics struct {
	TotalRevenue      float64 `json:"total_revenue"`
	TotalItems        float64 `json:"total_items"`
	AverageOrderValue float64 `json:"average_order_value"`
}

// Job represents a spreadsheet processing job for data transfer between layers.
type Job struct {
	ID          uuid.UUID           `json:"id"`
	OwnerID     uuid.UUID           `json:"owner_id"`
	FileRef     string              `json:"file_ref"`
	Status      constants.JobStatus `json:"status"`
	SubmittedAt time.Time           `json:"submitted_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	ClaimedBy   *string             `json:"claimed_by,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Metrics     *Metrics            `json:"metrics,omitempty"`
	ErrorDetail *string             `json:"error_detail,omitempty"`
}

// FileName is the display name of the uploaded file, without the job id
// prefix intake adds to stored uploads.
func (j *Job) FileName() string {
	base := filepath.Base(j.FileRef)
	if name, ok := strings.CutPrefix(base, j.ID.String()+"-"); ok && name != "" {
		return name
	}
	return base
}
