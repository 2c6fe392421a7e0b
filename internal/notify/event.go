package notify

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

// EventUploadStatus is the push event emitted once per finalized job.
const EventUploadStatus = "uploadStatus"

// UploadStatus is the push payload. Metric fields are set only for completed
// jobs and Error only for failed ones.
type UploadStatus struct {
	UploadID          string              `json:"uploadId"`
	Status            constants.JobStatus `json:"status"`
	ProcessedAt       *time.Time          `json:"processedAt,omitempty"`
	TotalRevenue      *float64            `json:"totalRevenue,omitempty"`
	TotalItems        *float64            `json:"totalItems,omitempty"`
	AverageOrderValue *float64            `json:"averageOrderValue,omitempty"`
	Error             string              `json:"error,omitempty"`
	EmailSent         bool                `json:"emailSent"`
	TargetEmail       string              `json:"targetEmail,omitempty"`
}

// NewUploadStatus builds the payload for a terminal job.
func NewUploadStatus(job *entity.Job, emailSent bool, targetEmail string) (*UploadStatus, error) {
	ev := &UploadStatus{
		UploadID:    job.ID.String(),
		Status:      job.Status,
		EmailSent:   emailSent,
		TargetEmail: targetEmail,
	}
	switch job.Status {
	case constants.JobStatusCompleted:
		if job.Metrics == nil {
			return nil, fmt.Errorf("completed job %s has no metrics", job.ID)
		}
		m := *job.Metrics
		ev.TotalRevenue, ev.TotalItems, ev.AverageOrderValue = &m.TotalRevenue, &m.TotalItems, &m.AverageOrderValue
		if job.CompletedAt != nil {
			t := job.CompletedAt.UTC()
			ev.ProcessedAt = &t
		}
	case constants.JobStatusFailed:
		ev.Error = "unknown error"
		if job.ErrorDetail != nil && *job.ErrorDetail != "" {
			ev.Error = *job.ErrorDetail
		}
	default:
		return nil, fmt.Errorf("job %s is %s, not terminal", job.ID, job.Status)
	}
	return ev, nil
}

//go:embed upload_status.schema.json
var uploadStatusSchema []byte

var compiledUploadStatus = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("upload_status.schema.json", bytes.NewReader(uploadStatusSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("upload_status.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Validate checks the payload's wire form against the embedded JSON Schema.
func (e *UploadStatus) Validate() error {
	schema, err := compiledUploadStatus()
	if err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}
